package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/embedding"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/vectorstore"
)

// DocSearchSource is the vector-store source under which documentation
// chunks are indexed.
const DocSearchSource = "docs"

// EnrichStep performs one embed + vector search per valuable
// conversation and records a MessageRagContext with the retrieved
// documentation chunks.
type EnrichStep struct {
	engine embedding.Engine
	store  *vectorstore.Store
}

func NewEnrichStep(engine embedding.Engine, store *vectorstore.Store) *EnrichStep {
	return &EnrichStep{engine: engine, store: store}
}

func (s *EnrichStep) Name() string { return "enrich" }

func (s *EnrichStep) Run(ctx context.Context, st *State) error {
	conversations := st.ValuableConversations()
	if len(conversations) == 0 {
		return ErrSkipStep
	}
	if st.RagContexts == nil {
		st.RagContexts = make(map[string]*models.MessageRagContext, len(conversations))
	}

	topK := st.pipelineConfig().RagTopK
	retrievedTotal := 0
	for _, conv := range conversations {
		query := s.queryText(st, conv)
		vector, err := s.engine.Embed(ctx, query)
		if err != nil {
			return fmt.Errorf("embed conversation %s: %w", conv.ID, err)
		}

		results, err := s.store.Search(ctx, vector, topK, &vectorstore.Filter{
			TenantID: st.TenantID,
			Source:   DocSearchSource,
		})
		if err != nil {
			return fmt.Errorf("search docs for conversation %s: %w", conv.ID, err)
		}

		docs := make([]models.RetrievedDoc, 0, len(results))
		tokens := 0
		for _, r := range results {
			path, section := splitChunkKey(r.Key)
			docs = append(docs, models.RetrievedDoc{
				Path:    path,
				Section: section,
				Score:   r.Score,
				Excerpt: r.Content,
			})
			tokens += approxTokens(r.Content)
		}
		retrievedTotal += len(docs)

		encoded, err := json.Marshal(docs)
		if err != nil {
			return fmt.Errorf("encode retrieved docs: %w", err)
		}
		st.RagContexts[conv.ID] = &models.MessageRagContext{
			ConversationID: conv.ID,
			RetrievedDocs:  encoded,
			TotalTokens:    tokens,
			CreatedAt:      time.Now().UTC(),
		}
	}

	st.SetSummary(s.Name(), map[string]int{
		"conversations":  len(conversations),
		"retrieved_docs": retrievedTotal,
	})
	return nil
}

// queryText unions the conversation's message text with the
// classifications' search criteria into one retrieval query.
func (s *EnrichStep) queryText(st *State, conv *Conversation) string {
	var parts []string
	seen := make(map[string]bool)
	for _, m := range conv.Messages {
		parts = append(parts, m.Content)
		if c := st.ClassificationFor(m.ID); c != nil {
			for _, criterion := range c.SearchCriteria() {
				if criterion != "" && !seen[criterion] {
					seen[criterion] = true
					parts = append(parts, criterion)
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

// splitChunkKey undoes the "path#section" chunk addressing used by the
// doc index embedder.
func splitChunkKey(key string) (path, section string) {
	if i := strings.IndexByte(key, '#'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// approxTokens estimates the token count of a text at four characters
// per token, which is close enough for budget accounting.
func approxTokens(text string) int {
	return (len(text) + 3) / 4
}

func decodeRetrievedDocs(rag *models.MessageRagContext, out *[]models.RetrievedDoc) error {
	if rag == nil || len(rag.RetrievedDocs) == 0 {
		return nil
	}
	return json.Unmarshal(rag.RetrievedDocs, out)
}
