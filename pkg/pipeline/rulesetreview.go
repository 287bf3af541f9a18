package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/ruleset"
)

// RulesetReviewStep runs the tenant ruleset over every generated
// proposal: modifications rewrite the record, rejections move it to the
// rejected list (stored as ignored), quality gates append advisory
// flags. An empty ruleset makes no LLM calls.
type RulesetReviewStep struct {
	engine *ruleset.Engine
}

func NewRulesetReviewStep(engine *ruleset.Engine) *RulesetReviewStep {
	return &RulesetReviewStep{engine: engine}
}

func (s *RulesetReviewStep) Name() string { return "ruleset-review" }

func (s *RulesetReviewStep) Run(ctx context.Context, st *State) error {
	if len(st.Proposals) == 0 || st.Ruleset.Empty() {
		return ErrSkipStep
	}

	kept := st.Proposals[:0]
	rejected, modified, flagged := 0, 0, 0
	for _, proposal := range st.Proposals {
		var enrichment *models.ProposalEnrichment
		if len(proposal.Enrichment) > 0 {
			enrichment = &models.ProposalEnrichment{}
			if err := json.Unmarshal(proposal.Enrichment, enrichment); err != nil {
				enrichment = nil
			}
		}

		outcome, err := s.engine.Review(ctx, st.Ruleset, proposal, enrichment)
		if err != nil {
			return fmt.Errorf("ruleset review: %w", err)
		}

		if outcome.Rejected {
			reason := outcome.RejectReason
			proposal.Status = models.ProposalStatusIgnored
			proposal.DiscardReason = &reason
			st.RejectedProposals = append(st.RejectedProposals, proposal)
			rejected++
			continue
		}
		if outcome.Modified {
			modified++
		}
		if len(outcome.QualityFlags) > 0 {
			flags, err := json.Marshal(outcome.QualityFlags)
			if err == nil {
				proposal.QualityFlags = flags
				flagged++
			}
		}
		kept = append(kept, proposal)
	}
	st.Proposals = kept

	st.SetSummary(s.Name(), map[string]int{
		"kept":     len(st.Proposals),
		"rejected": rejected,
		"modified": modified,
		"flagged":  flagged,
	})
	return nil
}
