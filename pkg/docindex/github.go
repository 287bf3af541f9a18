package docindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
)

// GitHubSource fetches a documentation snapshot over the GitHub API:
// the head commit via the commits endpoint, file listings via the
// Contents API and file bodies via their download URLs.
type GitHubSource struct {
	httpClient *http.Client
	token      string
	owner      string
	repo       string
	ref        string
	logger     *slog.Logger

	includeGlobs []string
	excludeGlobs []string
	maxFiles     int
}

// NewGitHubSource creates a source over a GitHub repository.
// token may be empty (public repos only, lower rate limits).
func NewGitHubSource(src *config.DocSourceConfig, filter *config.DocFilterConfig, token string) (*GitHubSource, error) {
	owner, repo, found := strings.Cut(src.Repo, "/")
	if !found || owner == "" || repo == "" {
		return nil, fmt.Errorf("github doc source requires repo as owner/name, got %q", src.Repo)
	}

	ref := src.Ref
	if ref == "" {
		ref = "main"
	}
	if filter == nil {
		filter = config.DefaultDocFilterConfig()
	}

	return &GitHubSource{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		token:        token,
		owner:        owner,
		repo:         repo,
		ref:          ref,
		logger:       slog.Default(),
		includeGlobs: filter.IncludeGlobs,
		excludeGlobs: filter.ExcludeGlobs,
		maxFiles:     filter.MaxPages,
	}, nil
}

// githubContentItem is a single item from the Contents API response.
type githubContentItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // "file" or "dir"
	DownloadURL string `json:"download_url"`
}

// Snapshot resolves the head commit of the configured ref and downloads
// every matching documentation file. Downloads are capped at the
// filter's max_pages so an oversized repository cannot exhaust the API
// budget.
func (s *GitHubSource) Snapshot(ctx context.Context) (string, []PageFile, error) {
	commit, err := s.headCommit(ctx)
	if err != nil {
		return "", nil, err
	}

	items, err := s.listFilesRecursive(ctx, "")
	if err != nil {
		return "", nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	if s.maxFiles > 0 && len(items) > s.maxFiles {
		s.logger.Warn("Doc listing truncated", "repo", s.owner+"/"+s.repo, "files", len(items), "cap", s.maxFiles)
		items = items[:s.maxFiles]
	}

	files := make([]PageFile, 0, len(items))
	for _, item := range items {
		content, err := s.download(ctx, item.DownloadURL)
		if err != nil {
			return "", nil, fmt.Errorf("download doc file %s: %w", item.Path, err)
		}
		files = append(files, PageFile{Path: item.Path, Content: content})
	}

	return commit, files, nil
}

func (s *GitHubSource) headCommit(ctx context.Context) (string, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/commits/%s", s.owner, s.repo, s.ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	s.setAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve head of %s/%s@%s: %w", s.owner, s.repo, s.ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub API returned HTTP %d for ref %q", resp.StatusCode, s.ref)
	}

	var payload struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode commit response: %w", err)
	}
	if payload.SHA == "" {
		return "", fmt.Errorf("GitHub returned no commit sha for ref %q", s.ref)
	}

	return payload.SHA, nil
}

func (s *GitHubSource) listFilesRecursive(ctx context.Context, path string) ([]githubContentItem, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/%s?ref=%s", s.owner, s.repo, path, s.ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	s.setAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list contents at %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned HTTP %d for path %q", resp.StatusCode, path)
	}

	var items []githubContentItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode contents response: %w", err)
	}

	var matched []githubContentItem
	for _, item := range items {
		switch item.Type {
		case "file":
			if passesFilters(s.includeGlobs, s.excludeGlobs, item.Path) {
				matched = append(matched, item)
			}
		case "dir":
			if pruneDir(s.excludeGlobs, item.Path) {
				continue
			}
			subItems, err := s.listFilesRecursive(ctx, item.Path)
			if err != nil {
				s.logger.Warn("Failed to list subdirectory", "path", item.Path, "error", err)
				continue
			}
			matched = append(matched, subItems...)
		}
	}

	return matched, nil
}

func (s *GitHubSource) download(ctx context.Context, downloadURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	s.setAuthHeader(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	return string(body), nil
}

func (s *GitHubSource) setAuthHeader(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}
