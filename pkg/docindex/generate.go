package docindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
)

// Generator turns a documentation snapshot into a DocIndex according
// to one filter configuration.
type Generator struct {
	filter *config.DocFilterConfig
}

// NewGenerator creates a generator. A nil filter uses the defaults.
func NewGenerator(filter *config.DocFilterConfig) *Generator {
	if filter == nil {
		filter = config.DefaultDocFilterConfig()
	}
	return &Generator{filter: filter}
}

// ConfigHash returns the cache-key component for a filter
// configuration. Equal configurations hash equally regardless of how
// they were loaded.
func ConfigHash(filter *config.DocFilterConfig) string {
	if filter == nil {
		filter = config.DefaultDocFilterConfig()
	}
	raw, _ := json.Marshal(filter)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Build produces the index for one snapshot. Files are evaluated in
// path order so the result is deterministic.
func (g *Generator) Build(commit string, files []PageFile) *DocIndex {
	blocked := make(map[string]struct{}, len(g.filter.ExcludeTitles))
	for _, t := range g.filter.ExcludeTitles {
		blocked[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	sorted := make([]PageFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	pages := make([]Page, 0, len(sorted))
	for _, f := range sorted {
		if !passesFilters(g.filter.IncludeGlobs, g.filter.ExcludeGlobs, f.Path) {
			continue
		}
		page := parsePage(f, g.filter.MaxSectionsPerPage, g.filter.MaxSummaryLength)
		if _, ok := blocked[strings.ToLower(strings.TrimSpace(page.Title))]; ok {
			continue
		}
		pages = append(pages, page)
		if g.filter.MaxPages > 0 && len(pages) >= g.filter.MaxPages {
			break
		}
	}

	categories := make(map[string][]string)
	for _, p := range pages {
		c := categoryOf(p.Path)
		categories[c] = append(categories[c], p.Path)
	}

	return &DocIndex{
		Commit:      commit,
		Pages:       pages,
		Categories:  categories,
		GeneratedAt: time.Now().UTC(),
	}
}

// CompactText renders the index into the flat form embedded in
// prompts. Pages are grouped by category; sections and summaries are
// included according to the compact_format configuration.
func (g *Generator) CompactText(idx *DocIndex) string {
	cf := g.filter.CompactFormat
	if cf == nil {
		cf = config.DefaultDocFilterConfig().CompactFormat
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Documentation index (commit %s, %d pages)\n", shortCommit(idx.Commit), len(idx.Pages))

	names := make([]string, 0, len(idx.Categories))
	for name := range idx.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b.WriteString("\n")
		b.WriteString(name)
		b.WriteString(":\n")
		for _, p := range idx.Categories[name] {
			page, ok := idx.PageByPath(p)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", page.Path, page.Title)
			if cf.IncludeSections && len(page.Sections) > 0 {
				sections := page.Sections
				if cf.MaxSectionsInCompact > 0 && len(sections) > cf.MaxSectionsInCompact {
					sections = sections[:cf.MaxSectionsInCompact]
				}
				fmt.Fprintf(&b, "  sections: %s\n", strings.Join(sections, "; "))
			}
			if cf.IncludeSummaries && page.Summary != "" {
				fmt.Fprintf(&b, "  summary: %s\n", page.Summary)
			}
		}
	}

	return b.String()
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

// passesFilters applies include and exclude globs to a slash path. An
// empty include list admits everything.
func passesFilters(include, exclude []string, relPath string) bool {
	if matchGlobs(exclude, relPath) {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return matchGlobs(include, relPath)
}

func matchGlobs(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// pruneDir reports whether a directory subtree is fully excluded, so
// walkers can skip descending into it. Only whole-subtree patterns
// (dir + "/**") prune; file-level excludes still apply per file.
func pruneDir(exclude []string, dirPath string) bool {
	return slices.Contains(exclude, dirPath+"/**")
}

var (
	headingPattern    = regexp.MustCompile(`^(#{1,3})\s+(.+)$`)
	mdImagePattern    = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkPattern     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdListPrefix      = regexp.MustCompile(`^(\d+\.|[-*+>])\s+`)
	frontmatterTitle  = regexp.MustCompile(`(?m)^title:\s*(.+)$`)
	multiSpacePattern = regexp.MustCompile(`\s{2,}`)
)

// parsePage extracts title, sections and summary from one markdown
// file. Headings inside code fences are ignored.
func parsePage(f PageFile, maxSections, maxSummary int) Page {
	body, frontmatter := splitFrontmatter(f.Content)

	var title string
	if m := frontmatterTitle.FindStringSubmatch(frontmatter); m != nil {
		title = strings.Trim(strings.TrimSpace(m[1]), `"'`)
	}

	var sections []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingPattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		text := strings.TrimSpace(strings.TrimRight(m[2], "# "))
		if text == "" {
			continue
		}
		if title == "" && len(m[1]) == 1 {
			title = text
		}
		if maxSections <= 0 || len(sections) < maxSections {
			sections = append(sections, text)
		}
	}

	if title == "" {
		title = titleFromPath(f.Path)
	}

	return Page{
		Path:        f.Path,
		Title:       title,
		Sections:    sections,
		Summary:     firstParagraph(body, maxSummary),
		LastUpdated: f.LastUpdated,
	}
}

// splitFrontmatter peels a leading YAML frontmatter block off markdown
// content. Returns the remaining body and the raw frontmatter.
func splitFrontmatter(content string) (body, frontmatter string) {
	trimmed := strings.TrimLeft(content, "\n\r \t")
	if !strings.HasPrefix(trimmed, "---\n") && trimmed != "---" {
		return content, ""
	}

	rest := strings.TrimPrefix(trimmed, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content, ""
	}

	frontmatter = rest[:end]
	body = rest[end+len("\n---"):]
	return strings.TrimPrefix(body, "\n"), frontmatter
}

// firstParagraph returns the first run of prose lines, stripped of
// markdown markers and truncated with an ellipsis.
func firstParagraph(body string, maxLen int) string {
	var parts []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if s == "" {
			if len(parts) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(s, "#") {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, s)
	}

	return truncate(stripMarkdown(strings.Join(parts, " ")), maxLen)
}

func stripMarkdown(s string) string {
	s = mdImagePattern.ReplaceAllString(s, "")
	s = mdLinkPattern.ReplaceAllString(s, "$1")
	s = mdListPrefix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "`", "")
	s = multiSpacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// truncate cuts s so the result, ellipsis included, stays within max
// runes.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

// categoryOf derives a category from the top-level directory segment.
// Files at the documentation root fall under General.
func categoryOf(p string) string {
	dir, _, found := strings.Cut(p, "/")
	if !found {
		return "General"
	}
	return titleCase(dir)
}

// titleFromPath turns a filename into a readable title.
func titleFromPath(p string) string {
	base := path.Base(p)
	base = strings.TrimSuffix(base, path.Ext(base))
	return titleCase(base)
}

func titleCase(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
