package pipeline

import (
	"context"
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
)

// FilterStep drops obviously irrelevant messages (empty content, bot
// echoes) and applies content redaction before any prompt is built.
// Dropped ids are recorded so the commit can mark them COMPLETED
// without classification.
type FilterStep struct {
	redactor *Redactor
}

// NewFilterStep builds the filter step for one tenant. An invalid
// redaction group is a config error surfaced at construction.
func NewFilterStep(redaction *config.RedactionConfig) (*FilterStep, error) {
	step := &FilterStep{}
	if redaction != nil && redaction.Enabled {
		redactor, err := NewRedactor(redaction.PatternGroup)
		if err != nil {
			return nil, err
		}
		step.redactor = redactor
	}
	return step, nil
}

func (s *FilterStep) Name() string { return "filter" }

func (s *FilterStep) Run(_ context.Context, st *State) error {
	kept := st.Messages[:0]
	redacted := 0
	for _, m := range st.Messages {
		if irrelevant(m.Content, m.Author) {
			st.DroppedMessageIDs = append(st.DroppedMessageIDs, m.ID)
			continue
		}
		if s.redactor != nil {
			if masked := s.redactor.Redact(m.Content); masked != m.Content {
				m.Content = masked
				redacted++
			}
		}
		kept = append(kept, m)
	}
	st.Messages = kept

	if s.redactor != nil {
		for _, m := range st.ContextMessages {
			m.Content = s.redactor.Redact(m.Content)
		}
	}

	st.SetSummary(s.Name(), map[string]int{
		"kept":     len(st.Messages),
		"dropped":  len(st.DroppedMessageIDs),
		"redacted": redacted,
	})
	return nil
}

// irrelevant reports whether a message carries no documentation signal
// at all: blank content, bare commands, or bot command echoes.
func irrelevant(content, author string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	if strings.HasPrefix(trimmed, "/") && !strings.Contains(trimmed, " ") {
		return true
	}
	lowerAuthor := strings.ToLower(author)
	if strings.HasSuffix(lowerAuthor, "bot") && strings.HasPrefix(trimmed, "/") {
		return true
	}
	return false
}
