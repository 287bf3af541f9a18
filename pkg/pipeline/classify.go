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

// ClassifyStep issues the single FAST-tier classification call for the
// batch and records one MessageClassification per valuable message.
// It also groups the surviving messages into conversations so the
// later steps can work per conversation.
type ClassifyStep struct {
	gateway Gateway
}

func NewClassifyStep(gateway Gateway) *ClassifyStep {
	return &ClassifyStep{gateway: gateway}
}

func (s *ClassifyStep) Name() string { return "classify" }

func (s *ClassifyStep) Run(ctx context.Context, st *State) error {
	if len(st.Messages) == 0 {
		return ErrSkipStep
	}

	res, err := s.gateway.Call(ctx, llm.CallInput{
		Purpose:        models.PurposeAnalysis,
		Tier:           config.TierFast,
		System:         classifySystemPrompt,
		User:           buildClassifyPrompt(st),
		ResponseSchema: classificationSchema,
	})
	if err != nil {
		return fmt.Errorf("classification call: %w", err)
	}

	var response classificationResponse
	if err := json.Unmarshal(res.JSON, &response); err != nil {
		return fmt.Errorf("decode classification response: %w", err)
	}

	batchIDs := make(map[int64]bool, len(st.Messages))
	for _, m := range st.Messages {
		batchIDs[m.ID] = true
	}

	now := time.Now().UTC()
	for _, cm := range response.MessagesWithDocValue {
		// The model occasionally hallucinates ids from the context
		// section; those never belong to this batch.
		if !batchIDs[cm.MessageID] {
			continue
		}
		category := models.MessageCategory(cm.Category)
		if !category.IsValid() {
			continue
		}

		criteria, _ := json.Marshal(cm.RagSearchCriteria)
		var suggested *string
		if cm.SuggestedDocPage != "" {
			page := cm.SuggestedDocPage
			suggested = &page
		}
		st.Classifications = append(st.Classifications, &models.MessageClassification{
			MessageID:         cm.MessageID,
			BatchID:           st.BatchID,
			Category:          category,
			DocValueReason:    cm.DocValueReason,
			SuggestedDocPage:  suggested,
			RagSearchCriteria: criteria,
			ModelUsed:         res.Model,
			CreatedAt:         now,
		})
	}

	if st.Conversations == nil {
		st.Conversations = GroupConversations(st.StreamID, st.Messages, st.pipelineConfig())
	}

	st.SetSummary(s.Name(), map[string]any{
		"analyzed":      len(st.Messages),
		"valuable":      len(st.Classifications),
		"conversations": len(st.Conversations),
		"cache_hit":     res.CacheHit,
	})
	return nil
}
