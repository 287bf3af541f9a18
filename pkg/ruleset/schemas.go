package ruleset

import "encoding/json"

// System prompts for the three review calls. The tenant's own rules
// arrive in the user prompt, so these stay generic.
const (
	modificationSystemPrompt = `You are a documentation reviewer. Apply the given modification rules to the proposal.
Emit the FULL modified record: echo every field, changed or not, and set "changed"
to true only when you altered at least one field. Never invent new pages.`

	rejectionSystemPrompt = `You are a documentation reviewer. Evaluate the given rejection rules against the
proposal. Reject only when a rule clearly applies; when rejecting, name the rule
that applied in the reason.`

	qualitySystemPrompt = `You are a documentation reviewer. Evaluate the given quality gates against the
proposal and emit a short flag string for each gate that fails. An empty list
means all gates pass.`
)

var modificationSchema = json.RawMessage(`{
  "type": "object",
  "required": ["page", "update_type", "suggested_text", "reasoning", "confidence", "changed"],
  "properties": {
    "page": {"type": "string"},
    "update_type": {"type": "string", "enum": ["INSERT", "UPDATE", "DELETE", "NONE"]},
    "section": {"type": ["string", "null"]},
    "location": {
      "type": ["object", "null"],
      "properties": {
        "after_heading": {"type": "string"},
        "character_range": {"type": "string"},
        "line_start": {"type": "integer"},
        "line_end": {"type": "integer"}
      }
    },
    "suggested_text": {"type": "string"},
    "reasoning": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "changed": {"type": "boolean"}
  }
}`)

var rejectionSchema = json.RawMessage(`{
  "type": "object",
  "required": ["reject"],
  "properties": {
    "reject": {"type": "boolean"},
    "reason": {"type": "string"}
  }
}`)

var qualitySchema = json.RawMessage(`{
  "type": "object",
  "required": ["flags"],
  "properties": {
    "flags": {"type": "array", "items": {"type": "string"}}
  }
}`)
