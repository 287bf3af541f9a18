// Package ruleset parses tenant rulesets and applies them to generated
// proposals. A ruleset is a markdown document with four recognised
// top-level sections: PROMPT_CONTEXT, REVIEW_MODIFICATIONS,
// REJECTION_RULES, and QUALITY_GATES. Missing sections are no-ops.
package ruleset

import (
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// Section heading names, matched case-insensitively after trimming and
// normalising spaces to underscores.
const (
	sectionPromptContext       = "PROMPT_CONTEXT"
	sectionReviewModifications = "REVIEW_MODIFICATIONS"
	sectionRejectionRules      = "REJECTION_RULES"
	sectionQualityGates        = "QUALITY_GATES"
)

// Parse splits a ruleset markdown document into its recognised
// sections. Content before the first recognised heading and content
// under unrecognised headings is discarded. Section bodies keep their
// internal markdown (sub-headings below level 1 stay in the body).
func Parse(markdown string) models.RulesetSections {
	var sections models.RulesetSections

	var current string
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		body.Reset()
		switch current {
		case sectionPromptContext:
			sections.PromptContext = text
		case sectionReviewModifications:
			sections.ReviewModifications = text
		case sectionRejectionRules:
			sections.RejectionRules = text
		case sectionQualityGates:
			sections.QualityGates = text
		}
		current = ""
	}

	for _, line := range strings.Split(markdown, "\n") {
		if name, ok := topLevelHeading(line); ok {
			flush()
			current = name
			continue
		}
		if current != "" {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()

	return sections
}

// topLevelHeading reports whether a line is a level-1 markdown heading
// naming a recognised section, returning the canonical section name.
func topLevelHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "##") {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	name = strings.ToUpper(strings.ReplaceAll(name, " ", "_"))
	switch name {
	case sectionPromptContext, sectionReviewModifications, sectionRejectionRules, sectionQualityGates:
		return name, true
	}
	return "", false
}
