package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// newPagePattern accepts plausible new-page paths: lowercase segments,
// no spaces, markdown extension.
var newPagePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-_/.]*\.(md|mdx)$`)

// ValidateStep structurally checks every proposal. Invalid proposals
// are dropped individually; the surrounding batch continues.
type ValidateStep struct{}

func NewValidateStep() *ValidateStep { return &ValidateStep{} }

func (s *ValidateStep) Name() string { return "validate" }

func (s *ValidateStep) Run(_ context.Context, st *State) error {
	if len(st.Proposals) == 0 {
		return ErrSkipStep
	}

	kept := st.Proposals[:0]
	var dropped []string
	for _, proposal := range st.Proposals {
		if reason := s.check(st, proposal); reason != "" {
			dropped = append(dropped, fmt.Sprintf("%s: %s", proposal.Page, reason))
			continue
		}
		kept = append(kept, proposal)
	}
	st.Proposals = kept

	st.SetSummary(s.Name(), map[string]any{
		"valid":   len(st.Proposals),
		"dropped": dropped,
	})
	return nil
}

// check returns a rejection reason, or "" for a valid proposal.
func (s *ValidateStep) check(st *State, proposal *models.DocProposal) string {
	if proposal.Confidence < 0 || proposal.Confidence > 1 {
		return "confidence out of range"
	}
	if proposal.UpdateType != models.UpdateTypeDelete && strings.TrimSpace(proposal.SuggestedText) == "" {
		return "empty suggested text"
	}

	page := strings.TrimSpace(proposal.Page)
	if page == "" {
		return "missing page"
	}
	if strings.Contains(page, "..") || strings.HasPrefix(page, "/") {
		return "page escapes the documentation root"
	}
	if st.DocIndex != nil && !st.DocIndex.HasPage(page) {
		if proposal.UpdateType != models.UpdateTypeInsert {
			return "page not in documentation index"
		}
		if !newPagePattern.MatchString(strings.ToLower(page)) {
			return "implausible new page path"
		}
	}

	if len(proposal.Location) > 0 {
		var loc models.ProposalLocation
		if err := json.Unmarshal(proposal.Location, &loc); err != nil {
			return "unparseable location"
		}
		if loc.LineStart < 0 || loc.LineEnd < 0 || (loc.LineEnd > 0 && loc.LineEnd < loc.LineStart) {
			return "invalid line range"
		}
	}
	return ""
}
