package models

import (
	"encoding/json"
	"time"
)

// ProposalLocation pins a proposal to a position within its page.
type ProposalLocation struct {
	AfterHeading   string `json:"after_heading,omitempty"`
	CharacterRange string `json:"character_range,omitempty"`
	LineStart      int    `json:"line_start,omitempty"`
	LineEnd        int    `json:"line_end,omitempty"`
}

// DocProposal is a reviewable documentation change. Once BatchID is
// set the record is frozen: text edits and status transitions fail.
type DocProposal struct {
	ID                 int64           `db:"id" json:"id"`
	TenantID           string          `db:"tenant_id" json:"tenant_id"`
	ConversationID     string          `db:"conversation_id" json:"conversation_id"`
	MessageIDs         json.RawMessage `db:"message_ids_json" json:"message_ids"`
	Page               string          `db:"page" json:"page"`
	UpdateType         UpdateType      `db:"update_type" json:"update_type"`
	Section            *string         `db:"section" json:"section,omitempty"`
	Location           json.RawMessage `db:"location_json" json:"location,omitempty"`
	SuggestedText      string          `db:"suggested_text" json:"suggested_text"`
	EditedText         *string         `db:"edited_text" json:"edited_text,omitempty"`
	Reasoning          string          `db:"reasoning" json:"reasoning"`
	Confidence         float64         `db:"confidence" json:"confidence"`
	Status             ProposalStatus  `db:"status" json:"status"`
	DiscardReason      *string         `db:"discard_reason" json:"discard_reason,omitempty"`
	Enrichment         json.RawMessage `db:"enrichment_json" json:"enrichment,omitempty"`
	QualityFlags       json.RawMessage `db:"quality_flags_json" json:"quality_flags,omitempty"`
	BatchID            *string         `db:"batch_id" json:"batch_id,omitempty"`
	PRApplicationState *string         `db:"pr_application_status" json:"pr_application_status,omitempty"`
	PRApplicationError *string         `db:"pr_application_error" json:"pr_application_error,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	ReviewedAt         *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy         *string         `db:"reviewed_by" json:"reviewed_by,omitempty"`
	EditedAt           *time.Time      `db:"edited_at" json:"edited_at,omitempty"`
	EditedBy           *string         `db:"edited_by" json:"edited_by,omitempty"`
}

// Frozen reports whether the proposal is attached to a batch and
// therefore immutable.
func (p *DocProposal) Frozen() bool {
	return p.BatchID != nil && *p.BatchID != ""
}

// EffectiveText returns the reviewer-edited text when present,
// otherwise the generated text.
func (p *DocProposal) EffectiveText() string {
	if p.EditedText != nil && *p.EditedText != "" {
		return *p.EditedText
	}
	return p.SuggestedText
}

// DecodedMessageIDs parses the source message id list.
func (p *DocProposal) DecodedMessageIDs() []int64 {
	var out []int64
	if len(p.MessageIDs) > 0 {
		_ = json.Unmarshal(p.MessageIDs, &out)
	}
	return out
}

// ProposalEnrichment is the decoded shape of DocProposal.Enrichment,
// produced by the context-enrich pipeline step.
type ProposalEnrichment struct {
	RelatedDocs        []RetrievedDoc     `json:"related_docs,omitempty"`
	DuplicationWarning *DuplicationCheck  `json:"duplication_warning,omitempty"`
	StyleAnalysis      *StyleAnalysis     `json:"style_analysis,omitempty"`
	ChangeImpact       *ChangeImpact      `json:"change_impact,omitempty"`
	SourceSummary      string             `json:"source_summary,omitempty"`
}

// DuplicationCheck flags near-duplicate content already on the page.
type DuplicationCheck struct {
	Similarity float64 `json:"similarity"`
	Excerpt    string  `json:"excerpt,omitempty"`
}

// StyleAnalysis captures cheap style heuristics over the target page.
type StyleAnalysis struct {
	MeanSentenceLength float64 `json:"mean_sentence_length"`
	FormatPattern      string  `json:"format_pattern,omitempty"`
	TechnicalDepth     string  `json:"technical_depth,omitempty"`
}

// ChangeImpact sizes the proposal against its target section.
type ChangeImpact struct {
	ProposalChars        int `json:"proposal_chars"`
	TargetSectionChars   int `json:"target_section_chars"`
	PendingSamePageCount int `json:"pending_same_page_count"`
}

// ProposalFilters narrows proposal listings.
type ProposalFilters struct {
	TenantID       string
	Status         ProposalStatus
	ConversationID string
	Page           string
	BatchID        string
	Unbatched      bool
	Limit          int
	Offset         int
}

// UpdateProposalTextRequest is the PATCH /proposals/:id payload.
type UpdateProposalTextRequest struct {
	SuggestedText string `json:"suggested_text"`
	EditedBy      string `json:"edited_by,omitempty"`
}

// SetProposalStatusRequest is the POST /proposals/:id/status payload.
type SetProposalStatusRequest struct {
	Status        ProposalStatus `json:"status"`
	ReviewedBy    string         `json:"reviewed_by,omitempty"`
	DiscardReason string         `json:"discard_reason,omitempty"`
}
