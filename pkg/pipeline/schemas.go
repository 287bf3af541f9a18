package pipeline

import "encoding/json"

// classificationSchema validates the classify step's response. The
// criteria bounds (3..6) match what the RAG step can usefully consume.
var classificationSchema = json.RawMessage(`{
  "type": "object",
  "required": ["messages_with_doc_value", "total_analyzed", "messages_with_value", "context_used"],
  "properties": {
    "messages_with_doc_value": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["message_id", "category", "doc_value_reason", "rag_search_criteria"],
        "properties": {
          "message_id": {"type": "integer"},
          "category": {
            "type": "string",
            "enum": ["information", "troubleshooting", "update", "announcement", "tutorial", "question_with_answer"]
          },
          "doc_value_reason": {"type": "string"},
          "suggested_doc_page": {"type": "string"},
          "rag_search_criteria": {
            "type": "array",
            "items": {"type": "string"},
            "minItems": 3,
            "maxItems": 6
          }
        }
      }
    },
    "total_analyzed": {"type": "integer"},
    "messages_with_value": {"type": "integer"},
    "context_used": {"type": "boolean"}
  }
}`)

// classificationResponse is the decoded classify payload.
type classificationResponse struct {
	MessagesWithDocValue []classifiedMessage `json:"messages_with_doc_value"`
	TotalAnalyzed        int                 `json:"total_analyzed"`
	MessagesWithValue    int                 `json:"messages_with_value"`
	ContextUsed          bool                `json:"context_used"`
}

type classifiedMessage struct {
	MessageID         int64    `json:"message_id"`
	Category          string   `json:"category"`
	DocValueReason    string   `json:"doc_value_reason"`
	SuggestedDocPage  string   `json:"suggested_doc_page,omitempty"`
	RagSearchCriteria []string `json:"rag_search_criteria"`
}

// proposalSchema validates the generate step's response.
var proposalSchema = json.RawMessage(`{
  "type": "object",
  "required": ["proposals"],
  "properties": {
    "proposals": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["message_ids", "page", "update_type", "suggested_text", "confidence", "reasoning"],
        "properties": {
          "message_ids": {"type": "array", "items": {"type": "integer"}, "minItems": 1},
          "page": {"type": "string"},
          "update_type": {"type": "string", "enum": ["INSERT", "UPDATE", "DELETE", "NONE"]},
          "section": {"type": "string"},
          "location": {
            "type": "object",
            "properties": {
              "after_heading": {"type": "string"},
              "character_range": {"type": "string"},
              "line_start": {"type": "integer"},
              "line_end": {"type": "integer"}
            }
          },
          "suggested_text": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "reasoning": {"type": "string"}
        }
      }
    }
  }
}`)

// proposalResponse is the decoded generate payload.
type proposalResponse struct {
	Proposals []generatedProposal `json:"proposals"`
}

type generatedProposal struct {
	MessageIDs    []int64         `json:"message_ids"`
	Page          string          `json:"page"`
	UpdateType    string          `json:"update_type"`
	Section       string          `json:"section,omitempty"`
	Location      json.RawMessage `json:"location,omitempty"`
	SuggestedText string          `json:"suggested_text"`
	Confidence    float64         `json:"confidence"`
	Reasoning     string          `json:"reasoning"`
}

// summarySchema validates the context-enrich step's conversation summary.
var summarySchema = json.RawMessage(`{
  "type": "object",
  "required": ["summary"],
  "properties": {
    "summary": {"type": "string"}
  }
}`)
