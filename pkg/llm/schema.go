package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ResponseSchema is a compiled JSON Schema a completion must satisfy.
type ResponseSchema struct {
	raw      json.RawMessage
	hash     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles raw JSON Schema bytes for validation and keys
// the schema by the sha256 of those bytes.
func CompileSchema(raw json.RawMessage) (*ResponseSchema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal response schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}

	sum := sha256.Sum256(raw)
	return &ResponseSchema{
		raw:      raw,
		hash:     hex.EncodeToString(sum[:]),
		compiled: compiled,
	}, nil
}

// Hash returns the sha256 of the raw schema bytes.
func (s *ResponseSchema) Hash() string {
	return s.hash
}

// Raw returns the original schema bytes, e.g. for embedding in prompts.
func (s *ResponseSchema) Raw() json.RawMessage {
	return s.raw
}

// Validate checks a decoded JSON value against the schema.
func (s *ResponseSchema) Validate(v any) error {
	return s.compiled.Validate(v)
}
