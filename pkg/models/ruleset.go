package models

import "time"

// TenantRuleset is the single current markdown ruleset for a tenant.
type TenantRuleset struct {
	TenantID        string    `db:"tenant_id" json:"tenant_id"`
	ContentMarkdown string    `db:"content_markdown" json:"content_markdown"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// RulesetSections is the parsed view of a ruleset document. Missing
// sections are empty strings and act as no-ops.
type RulesetSections struct {
	PromptContext       string
	ReviewModifications string
	RejectionRules      string
	QualityGates        string
}

// Empty reports whether no section carries content.
func (s RulesetSections) Empty() bool {
	return s.PromptContext == "" && s.ReviewModifications == "" &&
		s.RejectionRules == "" && s.QualityGates == ""
}
