package config

import (
	"fmt"
	"sort"
	"sync"
)

// TenantConfig describes one documentation project served by the
// pipeline. Prompt-facing fields (project name, audience, style guide)
// flow into the generation prompts verbatim.
type TenantConfig struct {
	ProjectName        string `yaml:"project_name" validate:"required"`
	ProjectDescription string `yaml:"project_description,omitempty"`
	DocPurpose         string `yaml:"doc_purpose,omitempty"`
	TargetAudience     string `yaml:"target_audience,omitempty"`
	StyleGuide         string `yaml:"style_guide,omitempty"`

	// Documentation repository coordinates. The PR step consumes the
	// fork URL; the core only records it.
	DocumentationGitURL    string `yaml:"documentation_git_url,omitempty"`
	DocumentationGitBranch string `yaml:"documentation_git_branch,omitempty"`
	PRTargetForkURL        string `yaml:"pr_target_fork_url,omitempty"`

	// Docs controls snapshot access and index generation for the tenant.
	Docs *DocsConfig `yaml:"docs,omitempty"`

	// Redaction masks sensitive content before any prompt is built.
	Redaction *RedactionConfig `yaml:"redaction,omitempty"`
}

// DocsConfig couples a snapshot source with index-generation filters.
type DocsConfig struct {
	Source *DocSourceConfig `yaml:"source,omitempty"`
	Filter *DocFilterConfig `yaml:"filter,omitempty"`
}

// DocSourceConfig locates the documentation snapshot.
type DocSourceConfig struct {
	Kind DocSourceKind `yaml:"kind"`

	// Local checkout settings (kind: local)
	Path string `yaml:"path,omitempty"`

	// GitHub settings (kind: github)
	Repo     string `yaml:"repo,omitempty"` // owner/name
	Ref      string `yaml:"ref,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty"`
}

// DocFilterConfig shapes the generated doc index.
type DocFilterConfig struct {
	IncludeGlobs       []string       `yaml:"include_globs,omitempty"`
	ExcludeGlobs       []string       `yaml:"exclude_globs,omitempty"`
	ExcludeTitles      []string       `yaml:"exclude_titles,omitempty"`
	MaxPages           int            `yaml:"max_pages,omitempty"`
	MaxSectionsPerPage int            `yaml:"max_sections_per_page,omitempty"`
	MaxSummaryLength   int            `yaml:"max_summary_length,omitempty"`
	CompactFormat      *CompactFormat `yaml:"compact_format,omitempty"`
}

// CompactFormat controls the prompt-embeddable flat index rendering.
type CompactFormat struct {
	IncludeSummaries     bool `yaml:"include_summaries"`
	IncludeSections      bool `yaml:"include_sections"`
	MaxSectionsInCompact int  `yaml:"max_sections_in_compact,omitempty"`
}

// RedactionConfig controls message-content masking in the filter step.
type RedactionConfig struct {
	Enabled      bool   `yaml:"enabled"`
	PatternGroup string `yaml:"pattern_group,omitempty"`
}

// DefaultDocFilterConfig returns the built-in index filter defaults.
func DefaultDocFilterConfig() *DocFilterConfig {
	return &DocFilterConfig{
		IncludeGlobs:       []string{"**/*.md", "**/*.mdx"},
		ExcludeGlobs:       []string{"node_modules/**", ".git/**"},
		MaxPages:           500,
		MaxSectionsPerPage: 25,
		MaxSummaryLength:   240,
		CompactFormat: &CompactFormat{
			IncludeSummaries:     true,
			IncludeSections:      true,
			MaxSectionsInCompact: 8,
		},
	}
}

// TenantRegistry stores tenant configurations in memory with thread-safe access
type TenantRegistry struct {
	tenants map[string]*TenantConfig
	mu      sync.RWMutex
}

// NewTenantRegistry creates a new tenant registry
func NewTenantRegistry(tenants map[string]*TenantConfig) *TenantRegistry {
	// Defensive copy to prevent external mutation
	copied := make(map[string]*TenantConfig, len(tenants))
	for k, v := range tenants {
		copied[k] = v
	}
	return &TenantRegistry{tenants: copied}
}

// Get retrieves a tenant configuration by id (thread-safe)
func (r *TenantRegistry) Get(tenantID string) (*TenantConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenant, exists := r.tenants[tenantID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	return tenant, nil
}

// Has checks if a tenant exists in the registry (thread-safe)
func (r *TenantRegistry) Has(tenantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tenants[tenantID]
	return exists
}

// GetAll returns all tenant configurations (thread-safe, returns copy)
func (r *TenantRegistry) GetAll() map[string]*TenantConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*TenantConfig, len(r.tenants))
	for k, v := range r.tenants {
		result[k] = v
	}
	return result
}

// TenantIDs returns a sorted list of all configured tenant ids.
func (r *TenantRegistry) TenantIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered tenants
func (r *TenantRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants)
}
