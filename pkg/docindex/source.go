package docindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
)

// Source produces documentation snapshots.
type Source interface {
	// Snapshot returns the current commit hash and the documentation
	// files that pass the source's glob filters, sorted by path.
	Snapshot(ctx context.Context) (string, []PageFile, error)
}

// NewSource builds the configured snapshot source for a tenant.
func NewSource(cfg *config.DocsConfig) (Source, error) {
	if cfg == nil || cfg.Source == nil {
		return nil, fmt.Errorf("docs source not configured")
	}

	switch cfg.Source.Kind {
	case config.DocSourceLocal:
		return NewLocalSource(cfg.Source.Path, cfg.Filter), nil
	case config.DocSourceGitHub:
		var token string
		if cfg.Source.TokenEnv != "" {
			token = os.Getenv(cfg.Source.TokenEnv)
		}
		return NewGitHubSource(cfg.Source, cfg.Filter, token)
	default:
		return nil, fmt.Errorf("unsupported doc source kind %q", cfg.Source.Kind)
	}
}

// LocalSource walks a local documentation checkout. The commit hash
// comes from .git when the directory is a git checkout; otherwise a
// content hash stands in so plain directories still get cache
// invalidation on change.
type LocalSource struct {
	root         string
	includeGlobs []string
	excludeGlobs []string
}

// NewLocalSource creates a source over a local directory.
func NewLocalSource(root string, filter *config.DocFilterConfig) *LocalSource {
	if filter == nil {
		filter = config.DefaultDocFilterConfig()
	}
	return &LocalSource{
		root:         root,
		includeGlobs: filter.IncludeGlobs,
		excludeGlobs: filter.ExcludeGlobs,
	}
}

// Snapshot walks the directory and reads every file passing the glob
// filters.
func (s *LocalSource) Snapshot(ctx context.Context) (string, []PageFile, error) {
	var files []PageFile

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if d.Name() == ".git" || pruneDir(s.excludeGlobs, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !passesFilters(s.includeGlobs, s.excludeGlobs, rel) {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read doc file %s: %w", rel, readErr)
		}

		var updated *time.Time
		if info, infoErr := d.Info(); infoErr == nil {
			t := info.ModTime().UTC()
			updated = &t
		}

		files = append(files, PageFile{Path: rel, Content: string(content), LastUpdated: updated})
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("walk docs directory %s: %w", s.root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	commit, err := gitHead(s.root)
	if err != nil {
		commit = contentHash(files)
	}

	return commit, files, nil
}

// gitHead resolves the checkout's HEAD commit by reading .git directly,
// covering symbolic refs, packed refs, detached HEAD and worktree
// gitdir files.
func gitHead(root string) (string, error) {
	gitDir := filepath.Join(root, ".git")

	// Worktrees keep a ".git" file pointing at the real directory.
	if info, err := os.Stat(gitDir); err != nil {
		return "", err
	} else if !info.IsDir() {
		raw, err := os.ReadFile(gitDir)
		if err != nil {
			return "", err
		}
		target := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(raw)), "gitdir:"))
		if target == "" {
			return "", fmt.Errorf("unreadable gitdir file at %s", gitDir)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(root, target)
		}
		gitDir = target
	}

	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", err
	}

	ref := strings.TrimSpace(string(head))
	if !strings.HasPrefix(ref, "ref:") {
		// Detached HEAD carries the hash itself.
		return ref, nil
	}

	refPath := strings.TrimSpace(strings.TrimPrefix(ref, "ref:"))
	if raw, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(refPath))); err == nil {
		return strings.TrimSpace(string(raw)), nil
	}

	return lookupPackedRef(filepath.Join(gitDir, "packed-refs"), refPath)
}

func lookupPackedRef(packedPath, refPath string) (string, error) {
	raw, err := os.ReadFile(packedPath)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		hash, name, found := strings.Cut(line, " ")
		if found && name == refPath {
			return hash, nil
		}
	}

	return "", fmt.Errorf("ref %s not found in packed-refs", refPath)
}

// contentHash derives a snapshot identity for directories that are not
// git checkouts. Any file change produces a new hash, so the index
// cache still invalidates correctly.
func contentHash(files []PageFile) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.Content))
		h.Write([]byte{0})
	}
	return "dir-" + hex.EncodeToString(h.Sum(nil))[:16]
}
