package ruleset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/llm"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// RejectReasonPrefix prefixes every ruleset-driven discard reason.
const RejectReasonPrefix = "rejected by ruleset: "

// Gateway is the subset of the LLM gateway the engine calls.
type Gateway interface {
	Call(ctx context.Context, in llm.CallInput) (*llm.CallResult, error)
}

// Engine applies a tenant's parsed ruleset to generated proposals.
// With an empty ruleset it makes no LLM calls.
type Engine struct {
	gateway Gateway
	order   config.ReviewOrder
	logger  *slog.Logger
}

// NewEngine creates a ruleset engine. Order sequences modifications
// against rejection rules; zero value means modify-first.
func NewEngine(gateway Gateway, order config.ReviewOrder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if !order.IsValid() {
		order = config.ReviewOrderModifyFirst
	}
	return &Engine{
		gateway: gateway,
		order:   order,
		logger:  logger.With("component", "ruleset_engine"),
	}
}

// Outcome is the result of reviewing one proposal. The proposal is
// mutated in place; Rejected proposals must be stored as ignored with
// DiscardReason set.
type Outcome struct {
	Rejected     bool
	RejectReason string
	QualityFlags []string
	Modified     bool
}

// Review runs the configured sections against one proposal. Enrichment
// is the proposal's context-enrichment payload, passed to the model so
// rules can reference duplication warnings and style findings. A
// rejected proposal skips the remaining LLM sections.
func (e *Engine) Review(ctx context.Context, sections models.RulesetSections, proposal *models.DocProposal, enrichment *models.ProposalEnrichment) (*Outcome, error) {
	outcome := &Outcome{}
	if sections.Empty() {
		return outcome, nil
	}

	first, second := e.applyModifications, e.applyRejection
	if e.order == config.ReviewOrderRejectFirst {
		first, second = e.applyRejection, e.applyModifications
	}

	if err := first(ctx, sections, proposal, enrichment, outcome); err != nil {
		return nil, err
	}
	if !outcome.Rejected {
		if err := second(ctx, sections, proposal, enrichment, outcome); err != nil {
			return nil, err
		}
	}
	if !outcome.Rejected {
		if err := e.applyQualityGates(ctx, sections, proposal, enrichment, outcome); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// modifiedRecord is the full-record echo REVIEW_MODIFICATIONS must emit.
type modifiedRecord struct {
	Page          string                   `json:"page"`
	UpdateType    string                   `json:"update_type"`
	Section       *string                  `json:"section,omitempty"`
	Location      *models.ProposalLocation `json:"location,omitempty"`
	SuggestedText string                   `json:"suggested_text"`
	Reasoning     string                   `json:"reasoning"`
	Confidence    float64                  `json:"confidence"`
	Changed       bool                     `json:"changed"`
}

func (e *Engine) applyModifications(ctx context.Context, sections models.RulesetSections, proposal *models.DocProposal, enrichment *models.ProposalEnrichment, outcome *Outcome) error {
	if sections.ReviewModifications == "" {
		return nil
	}

	res, err := e.gateway.Call(ctx, llm.CallInput{
		Purpose:        models.PurposeReview,
		Tier:           config.TierStrongAlt,
		System:         modificationSystemPrompt,
		User:           e.reviewPrompt(sections.ReviewModifications, proposal, enrichment),
		ResponseSchema: modificationSchema,
		MessageID:      firstMessageID(proposal),
	})
	if err != nil {
		return fmt.Errorf("ruleset modification call: %w", err)
	}

	var record modifiedRecord
	if err := json.Unmarshal(res.JSON, &record); err != nil {
		return fmt.Errorf("decode modification record: %w", err)
	}
	if !record.Changed {
		return nil
	}

	proposal.Page = record.Page
	if ut := models.UpdateType(record.UpdateType); ut.IsValid() {
		proposal.UpdateType = ut
	}
	proposal.Section = record.Section
	if record.Location != nil {
		if loc, err := json.Marshal(record.Location); err == nil {
			proposal.Location = loc
		}
	}
	proposal.SuggestedText = record.SuggestedText
	proposal.Reasoning = record.Reasoning
	if record.Confidence >= 0 && record.Confidence <= 1 {
		proposal.Confidence = record.Confidence
	}
	outcome.Modified = true
	return nil
}

func (e *Engine) applyRejection(ctx context.Context, sections models.RulesetSections, proposal *models.DocProposal, enrichment *models.ProposalEnrichment, outcome *Outcome) error {
	if sections.RejectionRules == "" {
		return nil
	}

	res, err := e.gateway.Call(ctx, llm.CallInput{
		Purpose:        models.PurposeReview,
		Tier:           config.TierStrongAlt,
		System:         rejectionSystemPrompt,
		User:           e.reviewPrompt(sections.RejectionRules, proposal, enrichment),
		ResponseSchema: rejectionSchema,
		MessageID:      firstMessageID(proposal),
	})
	if err != nil {
		return fmt.Errorf("ruleset rejection call: %w", err)
	}

	var verdict struct {
		Reject bool   `json:"reject"`
		Reason string `json:"reason,omitempty"`
	}
	if err := json.Unmarshal(res.JSON, &verdict); err != nil {
		return fmt.Errorf("decode rejection verdict: %w", err)
	}
	if verdict.Reject {
		reason := strings.TrimSpace(verdict.Reason)
		if reason == "" {
			reason = "matched a rejection rule"
		}
		outcome.Rejected = true
		outcome.RejectReason = RejectReasonPrefix + reason
	}
	return nil
}

func (e *Engine) applyQualityGates(ctx context.Context, sections models.RulesetSections, proposal *models.DocProposal, enrichment *models.ProposalEnrichment, outcome *Outcome) error {
	if sections.QualityGates == "" {
		return nil
	}

	res, err := e.gateway.Call(ctx, llm.CallInput{
		Purpose:        models.PurposeReview,
		Tier:           config.TierStrongAlt,
		System:         qualitySystemPrompt,
		User:           e.reviewPrompt(sections.QualityGates, proposal, enrichment),
		ResponseSchema: qualitySchema,
		MessageID:      firstMessageID(proposal),
	})
	if err != nil {
		return fmt.Errorf("ruleset quality call: %w", err)
	}

	var result struct {
		Flags []string `json:"flags"`
	}
	if err := json.Unmarshal(res.JSON, &result); err != nil {
		return fmt.Errorf("decode quality flags: %w", err)
	}
	for _, flag := range result.Flags {
		if f := strings.TrimSpace(flag); f != "" {
			outcome.QualityFlags = append(outcome.QualityFlags, f)
		}
	}
	return nil
}

// reviewPrompt renders one proposal plus its enrichment and the active
// rules into a user prompt.
func (e *Engine) reviewPrompt(rules string, proposal *models.DocProposal, enrichment *models.ProposalEnrichment) string {
	var b strings.Builder
	b.WriteString("## Rules\n\n")
	b.WriteString(rules)
	b.WriteString("\n\n## Proposal\n\n")

	record := map[string]any{
		"page":           proposal.Page,
		"update_type":    proposal.UpdateType,
		"suggested_text": proposal.SuggestedText,
		"reasoning":      proposal.Reasoning,
		"confidence":     proposal.Confidence,
	}
	if proposal.Section != nil {
		record["section"] = *proposal.Section
	}
	if len(proposal.Location) > 0 {
		record["location"] = json.RawMessage(proposal.Location)
	}
	encoded, _ := json.MarshalIndent(record, "", "  ")
	b.Write(encoded)

	if enrichment != nil {
		b.WriteString("\n\n## Enrichment\n\n")
		encodedEnrichment, _ := json.MarshalIndent(enrichment, "", "  ")
		b.Write(encodedEnrichment)
	}
	return b.String()
}

func firstMessageID(proposal *models.DocProposal) *int64 {
	ids := proposal.DecodedMessageIDs()
	if len(ids) == 0 {
		return nil
	}
	return &ids[0]
}
