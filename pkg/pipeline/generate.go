package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/llm"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// GenerateStep issues one STRONG-tier call per valuable conversation
// and turns the response into DocProposal records. Proposals below the
// configured confidence floor are dropped here.
type GenerateStep struct {
	gateway Gateway
}

func NewGenerateStep(gateway Gateway) *GenerateStep {
	return &GenerateStep{gateway: gateway}
}

func (s *GenerateStep) Name() string { return "generate" }

func (s *GenerateStep) Run(ctx context.Context, st *State) error {
	conversations := st.ValuableConversations()
	if len(conversations) == 0 {
		return ErrSkipStep
	}

	system := buildGenerateSystemPrompt(st.Tenant, st.Ruleset.PromptContext)
	minConfidence := st.pipelineConfig().MinConfidence

	belowFloor := 0
	now := time.Now().UTC()
	for _, conv := range conversations {
		firstID := conv.Messages[0].ID
		res, err := s.gateway.Call(ctx, llm.CallInput{
			Purpose:        models.PurposeChangeGeneration,
			Tier:           config.TierStrong,
			System:         system,
			User:           buildGeneratePrompt(st, conv, st.RagContexts[conv.ID]),
			ResponseSchema: proposalSchema,
			MessageID:      &firstID,
		})
		if err != nil {
			return fmt.Errorf("generate proposals for conversation %s: %w", conv.ID, err)
		}

		var response proposalResponse
		if err := json.Unmarshal(res.JSON, &response); err != nil {
			return fmt.Errorf("decode proposal response: %w", err)
		}

		memberIDs := make(map[int64]bool, len(conv.Messages))
		for _, m := range conv.Messages {
			memberIDs[m.ID] = true
		}

		for _, gp := range response.Proposals {
			updateType := models.UpdateType(gp.UpdateType)
			if !updateType.IsValid() {
				// Schema-validated enum; an unknown value here means a
				// logic error on this proposal only.
				continue
			}
			if gp.Confidence < minConfidence {
				belowFloor++
				continue
			}

			ids := gp.MessageIDs
			if len(ids) == 0 || !allMembers(ids, memberIDs) {
				ids = conv.MessageIDs()
			}
			encodedIDs, _ := json.Marshal(ids)

			var section *string
			if gp.Section != "" {
				sec := gp.Section
				section = &sec
			}
			st.Proposals = append(st.Proposals, &models.DocProposal{
				TenantID:       st.TenantID,
				ConversationID: conv.ID,
				MessageIDs:     encodedIDs,
				Page:           gp.Page,
				UpdateType:     updateType,
				Section:        section,
				Location:       gp.Location,
				SuggestedText:  gp.SuggestedText,
				Reasoning:      gp.Reasoning,
				Confidence:     gp.Confidence,
				Status:         models.ProposalStatusPending,
				CreatedAt:      now,
			})
		}
	}

	st.SetSummary(s.Name(), map[string]int{
		"conversations":   len(conversations),
		"proposals":       len(st.Proposals),
		"below_min_score": belowFloor,
	})
	return nil
}

func allMembers(ids []int64, members map[int64]bool) bool {
	for _, id := range ids {
		if !members[id] {
			return false
		}
	}
	return true
}
