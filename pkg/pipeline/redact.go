package pipeline

import (
	"fmt"
	"regexp"
)

// Redaction masks credentials and addresses in message content before
// any prompt is built. Chat exports routinely carry pasted API keys and
// tokens; those must never reach a model provider or the cache table.

type redactionPattern struct {
	name    string
	regex   *regexp.Regexp
	replace string
}

var builtinRedactionPatterns = map[string][]redactionPattern{
	"basic": {
		{
			name:    "email",
			regex:   regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`),
			replace: "***MASKED_EMAIL***",
		},
		{
			name:    "api_key",
			regex:   regexp.MustCompile(`(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{20,}["']?`),
			replace: "***MASKED_API_KEY***",
		},
		{
			name:    "token",
			regex:   regexp.MustCompile(`(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-\.]{20,}["']?`),
			replace: "***MASKED_TOKEN***",
		},
	},
	"strict": {
		{
			name:    "email",
			regex:   regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`),
			replace: "***MASKED_EMAIL***",
		},
		{
			name:    "api_key",
			regex:   regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|key)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{20,}["']?`),
			replace: "***MASKED_API_KEY***",
		},
		{
			name:    "token",
			regex:   regexp.MustCompile(`(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-\.]{20,}["']?`),
			replace: "***MASKED_TOKEN***",
		},
		{
			name:    "password",
			regex:   regexp.MustCompile(`(?i)(?:password|pwd|pass)["']?\s*[:=]\s*["']?[^"'\s\n]{6,}["']?`),
			replace: "***MASKED_PASSWORD***",
		},
		{
			name:    "certificate",
			regex:   regexp.MustCompile(`(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`),
			replace: "***MASKED_CERTIFICATE***",
		},
	},
}

// Redactor applies one named pattern group to message content.
type Redactor struct {
	patterns []redactionPattern
}

// NewRedactor resolves a pattern group. The empty group name means
// "basic".
func NewRedactor(patternGroup string) (*Redactor, error) {
	if patternGroup == "" {
		patternGroup = "basic"
	}
	patterns, ok := builtinRedactionPatterns[patternGroup]
	if !ok {
		return nil, fmt.Errorf("unknown redaction pattern group %q", patternGroup)
	}
	return &Redactor{patterns: patterns}, nil
}

// Redact masks all configured patterns in the content.
func (r *Redactor) Redact(content string) string {
	for _, p := range r.patterns {
		content = p.regex.ReplaceAllString(content, p.replace)
	}
	return content
}
