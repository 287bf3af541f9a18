package pipeline

import (
	"context"
	"regexp"
	"strings"
)

var (
	multiBlankLines = regexp.MustCompile(`\n{3,}`)
	trailingSpaces  = regexp.MustCompile(`[ \t]+\n`)

	// boilerplateOpeners are lead-ins models prepend despite being told
	// not to. Only a first line that is pure preamble is stripped.
	boilerplateOpeners = regexp.MustCompile(`(?i)^(here is|here's|sure[,!]|certainly[,!]|below is)[^\n]*:\s*\n`)
)

// CondenseStep deterministically normalises proposal text: collapses
// blank-line runs, trims trailing whitespace, and strips leading
// assistant boilerplate. No LLM involvement.
type CondenseStep struct{}

func NewCondenseStep() *CondenseStep { return &CondenseStep{} }

func (s *CondenseStep) Name() string { return "condense" }

func (s *CondenseStep) Run(_ context.Context, st *State) error {
	if len(st.Proposals) == 0 {
		return ErrSkipStep
	}

	changed := 0
	for _, proposal := range st.Proposals {
		condensed := Condense(proposal.SuggestedText)
		if condensed != proposal.SuggestedText {
			proposal.SuggestedText = condensed
			changed++
		}
	}

	st.SetSummary(s.Name(), map[string]int{"condensed": changed})
	return nil
}

// Condense normalises whitespace and trims boilerplate from one text.
func Condense(text string) string {
	out := boilerplateOpeners.ReplaceAllString(text, "")
	out = trailingSpaces.ReplaceAllString(out, "\n")
	out = multiBlankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
