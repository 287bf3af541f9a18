// Package docindex produces a filtered, compact catalog of
// documentation pages used to ground classification and generation
// prompts. Generated indexes are cached by (commit hash, config hash)
// in the doc_index_cache table with an in-memory TTL layer in front.
package docindex

import (
	"time"
)

// PageFile is one raw documentation file from a snapshot.
type PageFile struct {
	// Path is slash-separated and relative to the documentation root.
	Path        string
	Content     string
	LastUpdated *time.Time // nil when the source cannot tell
}

// Page is one indexed documentation page.
type Page struct {
	Path        string     `json:"path"`
	Title       string     `json:"title"`
	Sections    []string   `json:"sections,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// DocIndex is the structured catalog of one documentation snapshot.
type DocIndex struct {
	Commit      string              `json:"commit"`
	Pages       []Page              `json:"pages"`
	Categories  map[string][]string `json:"categories"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// PageByPath looks up an indexed page.
func (idx *DocIndex) PageByPath(path string) (*Page, bool) {
	for i := range idx.Pages {
		if idx.Pages[i].Path == path {
			return &idx.Pages[i], true
		}
	}
	return nil, false
}

// HasPage reports whether the path is part of the catalog. The
// validate pipeline step uses this to check proposal targets.
func (idx *DocIndex) HasPage(path string) bool {
	_, ok := idx.PageByPath(path)
	return ok
}
