package docindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/embedding"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/vectorstore"
)

const (
	// DocSource is the vector-store source label for documentation
	// chunks.
	DocSource = "docs"

	// maxChunkRunes bounds chunk text before embedding. Longer sections
	// are truncated rather than split; retrieval granularity stays one
	// section.
	maxChunkRunes = 4000

	embedBatchSize = 16
)

// Embedder pushes documentation chunks into the vector store so the
// context-enrich step can retrieve them.
type Embedder struct {
	engine embedding.Engine
	store  *vectorstore.Store
	logger *slog.Logger
}

// NewEmbedder creates an embedder over the given engine and store.
func NewEmbedder(engine embedding.Engine, store *vectorstore.Store, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		engine: engine,
		store:  store,
		logger: logger.With("component", "docindex.embedder"),
	}
}

// SyncIndex replaces a tenant's documentation vectors with chunks from
// the given snapshot. Only pages present in the index are embedded, so
// filtered and blocklisted pages never reach retrieval. Returns the
// number of chunks indexed.
func (e *Embedder) SyncIndex(ctx context.Context, tenantID string, idx *DocIndex, files []PageFile) (int, error) {
	indexed := make(map[string]struct{}, len(idx.Pages))
	for _, p := range idx.Pages {
		indexed[p.Path] = struct{}{}
	}

	var chunks []chunk
	for _, f := range files {
		if _, ok := indexed[f.Path]; !ok {
			continue
		}
		chunks = append(chunks, chunkFile(f)...)
	}

	if err := e.store.DeleteSource(ctx, tenantID, DocSource); err != nil {
		return 0, fmt.Errorf("clear old doc vectors: %w", err)
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := e.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return start, fmt.Errorf("embed doc chunks: %w", err)
		}

		docs := make([]vectorstore.Document, len(batch))
		for i, c := range batch {
			meta, _ := json.Marshal(map[string]string{"path": c.Path, "section": c.Section})
			docs[i] = vectorstore.Document{
				TenantID: tenantID,
				Source:   DocSource,
				Key:      c.Key,
				Content:  c.Text,
				Vector:   vectors[i],
				Metadata: meta,
			}
		}
		if err := e.store.Upsert(ctx, docs...); err != nil {
			return start, fmt.Errorf("store doc vectors: %w", err)
		}
	}

	e.logger.Info("Documentation vectors synced",
		"tenant_id", tenantID, "commit", shortCommit(idx.Commit), "chunks", len(chunks))
	return len(chunks), nil
}

// chunk is one embeddable unit of a documentation page.
type chunk struct {
	Key     string // path, or path#section-slug
	Path    string
	Section string
	Text    string
}

// chunkFile splits a page into a preamble chunk plus one chunk per
// heading. Headings inside code fences do not split.
func chunkFile(f PageFile) []chunk {
	body, _ := splitFrontmatter(f.Content)

	var chunks []chunk
	slugSeen := make(map[string]int)

	flush := func(section string, lines []string) {
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if text == "" {
			return
		}
		key := f.Path
		if section != "" {
			slug := slugify(section)
			slugSeen[slug]++
			if n := slugSeen[slug]; n > 1 {
				slug = fmt.Sprintf("%s-%d", slug, n)
			}
			key = f.Path + "#" + slug
		}
		chunks = append(chunks, chunk{
			Key:     key,
			Path:    f.Path,
			Section: section,
			Text:    truncate(text, maxChunkRunes),
		})
	}

	var section string
	var lines []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			lines = append(lines, line)
			continue
		}
		if !inFence {
			if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
				flush(section, lines)
				section = strings.TrimSpace(strings.TrimRight(m[2], "# "))
				lines = []string{line}
				continue
			}
		}
		lines = append(lines, line)
	}
	flush(section, lines)

	return chunks
}

var slugStripPattern = regexp.MustCompile(`[^a-z0-9 -]`)

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStripPattern.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), "-")
	if s == "" {
		return "section"
	}
	return s
}
