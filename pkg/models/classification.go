package models

import (
	"encoding/json"
	"time"
)

// MessageClassification is the classifier's verdict for one valuable
// message. Zero-or-one per message; batch_id groups messages classified
// in the same pipeline run.
type MessageClassification struct {
	ID                int64           `db:"id" json:"id"`
	MessageID         int64           `db:"message_id" json:"message_id"`
	BatchID           string          `db:"batch_id" json:"batch_id"`
	Category          MessageCategory `db:"category" json:"category"`
	DocValueReason    string          `db:"doc_value_reason" json:"doc_value_reason"`
	SuggestedDocPage  *string         `db:"suggested_doc_page" json:"suggested_doc_page,omitempty"`
	RagSearchCriteria json.RawMessage `db:"rag_search_criteria_json" json:"rag_search_criteria"`
	ModelUsed         string          `db:"model_used" json:"model_used"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// SearchCriteria decodes the stored criteria list.
func (c *MessageClassification) SearchCriteria() []string {
	var out []string
	if len(c.RagSearchCriteria) > 0 {
		_ = json.Unmarshal(c.RagSearchCriteria, &out)
	}
	return out
}

// MessageRagContext stores the retrieval result for one conversation.
type MessageRagContext struct {
	ID             int64           `db:"id" json:"id"`
	ConversationID string          `db:"conversation_id" json:"conversation_id"`
	RetrievedDocs  json.RawMessage `db:"retrieved_docs_json" json:"retrieved_docs"`
	TotalTokens    int             `db:"total_tokens" json:"total_tokens"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// RetrievedDoc is one entry inside MessageRagContext.RetrievedDocs.
type RetrievedDoc struct {
	Path    string  `json:"path"`
	Section string  `json:"section,omitempty"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt"`
}
