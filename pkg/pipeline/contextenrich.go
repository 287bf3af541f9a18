package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/embedding"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/llm"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/vectorstore"
)

// duplicationWarningThreshold is the cosine similarity above which
// existing same-page content is flagged as a near duplicate.
const duplicationWarningThreshold = 0.85

// relatedDocsLimit caps the related-docs list in enrichment.
const relatedDocsLimit = 3

// ProposalCounter counts pending proposals touching a page.
// *services.ProposalService satisfies this.
type ProposalCounter interface {
	PendingCountForPage(ctx context.Context, tenantID, page string, excludeID int64) (int, error)
}

// ContextEnrichStep attaches the enrichment payload to every generated
// proposal: related docs, a duplication warning, style analysis, change
// impact metrics, and a short source-conversation summary.
type ContextEnrichStep struct {
	gateway   Gateway
	engine    embedding.Engine
	store     *vectorstore.Store
	proposals ProposalCounter
}

// NewContextEnrichStep builds the step. proposals may be nil, which
// skips the pending-same-page metric (tests).
func NewContextEnrichStep(gateway Gateway, engine embedding.Engine, store *vectorstore.Store, proposals ProposalCounter) *ContextEnrichStep {
	return &ContextEnrichStep{gateway: gateway, engine: engine, store: store, proposals: proposals}
}

func (s *ContextEnrichStep) Name() string { return "context-enrich" }

func (s *ContextEnrichStep) Run(ctx context.Context, st *State) error {
	if len(st.Proposals) == 0 {
		return ErrSkipStep
	}

	// One summary per conversation, shared by its proposals.
	summaries := make(map[string]string)

	for _, proposal := range st.Proposals {
		enrichment := &models.ProposalEnrichment{}

		vector, err := s.engine.Embed(ctx, proposal.SuggestedText)
		if err != nil {
			return fmt.Errorf("embed proposal text: %w", err)
		}
		results, err := s.store.Search(ctx, vector, st.pipelineConfig().RagTopK, &vectorstore.Filter{
			TenantID: st.TenantID,
			Source:   DocSearchSource,
		})
		if err != nil {
			return fmt.Errorf("search related docs: %w", err)
		}

		samePageBest := vectorstore.Result{}
		samePageChars := 0
		for _, r := range results {
			path, section := splitChunkKey(r.Key)
			if len(enrichment.RelatedDocs) < relatedDocsLimit {
				enrichment.RelatedDocs = append(enrichment.RelatedDocs, models.RetrievedDoc{
					Path:    path,
					Section: section,
					Score:   r.Score,
					Excerpt: excerptOf(r.Content, 200),
				})
			}
			if path == proposal.Page {
				samePageChars += len(r.Content)
				if r.Score > samePageBest.Score {
					samePageBest = r
				}
			}
		}

		if samePageBest.Score >= duplicationWarningThreshold {
			enrichment.DuplicationWarning = &models.DuplicationCheck{
				Similarity: samePageBest.Score,
				Excerpt:    excerptOf(samePageBest.Content, 200),
			}
		}

		if samePageBest.Content != "" {
			enrichment.StyleAnalysis = analyzeStyle(samePageBest.Content)
		}

		impact := &models.ChangeImpact{
			ProposalChars:      len(proposal.SuggestedText),
			TargetSectionChars: samePageChars,
		}
		if s.proposals != nil {
			count, err := s.proposals.PendingCountForPage(ctx, st.TenantID, proposal.Page, 0)
			if err != nil {
				return fmt.Errorf("count pending proposals for %s: %w", proposal.Page, err)
			}
			impact.PendingSamePageCount = count
		}
		enrichment.ChangeImpact = impact

		summary, err := s.conversationSummary(ctx, st, proposal.ConversationID, summaries)
		if err != nil {
			return err
		}
		enrichment.SourceSummary = summary

		encoded, err := json.Marshal(enrichment)
		if err != nil {
			return fmt.Errorf("encode enrichment: %w", err)
		}
		proposal.Enrichment = encoded
	}

	st.SetSummary(s.Name(), map[string]int{"enriched": len(st.Proposals)})
	return nil
}

func (s *ContextEnrichStep) conversationSummary(ctx context.Context, st *State, conversationID string, cache map[string]string) (string, error) {
	if summary, ok := cache[conversationID]; ok {
		return summary, nil
	}
	conv := st.ConversationByID(conversationID)
	if conv == nil {
		return "", nil
	}

	firstID := conv.Messages[0].ID
	res, err := s.gateway.Call(ctx, llm.CallInput{
		Purpose:        models.PurposeAnalysis,
		Tier:           config.TierFast,
		System:         "You summarize chat conversations for documentation reviewers.",
		User:           summaryPrompt(conv),
		ResponseSchema: summarySchema,
		MessageID:      &firstID,
	})
	if err != nil {
		return "", fmt.Errorf("summarize conversation %s: %w", conversationID, err)
	}

	var payload struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(res.JSON, &payload); err != nil {
		return "", fmt.Errorf("decode conversation summary: %w", err)
	}
	cache[conversationID] = payload.Summary
	return payload.Summary, nil
}

var (
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s`)
	bulletPattern  = regexp.MustCompile(`(?m)^\s*[-*+]\s`)
	numberPattern  = regexp.MustCompile(`(?m)^\s*\d+\.\s`)
	sentenceSplit  = regexp.MustCompile(`[.!?]+\s`)
)

// analyzeStyle computes cheap heuristics over existing page content so
// reviewers can judge whether a proposal matches the page's voice.
func analyzeStyle(content string) *models.StyleAnalysis {
	analysis := &models.StyleAnalysis{}

	sentences := sentenceSplit.Split(content, -1)
	totalWords := 0
	counted := 0
	for _, sentence := range sentences {
		words := len(strings.Fields(sentence))
		if words > 0 {
			totalWords += words
			counted++
		}
	}
	if counted > 0 {
		analysis.MeanSentenceLength = float64(totalWords) / float64(counted)
	}

	switch {
	case numberPattern.MatchString(content):
		analysis.FormatPattern = "numbered-steps"
	case bulletPattern.MatchString(content):
		analysis.FormatPattern = "bulleted"
	case headingPattern.MatchString(content):
		analysis.FormatPattern = "sectioned-prose"
	default:
		analysis.FormatPattern = "prose"
	}

	codeDensity := float64(strings.Count(content, "`")) / float64(len(content)+1)
	switch {
	case strings.Contains(content, "```") || codeDensity > 0.01:
		analysis.TechnicalDepth = "code-heavy"
	case codeDensity > 0.002:
		analysis.TechnicalDepth = "technical"
	default:
		analysis.TechnicalDepth = "conceptual"
	}
	return analysis
}

func excerptOf(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max] + "…"
}
