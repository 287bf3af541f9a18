package pipeline

import (
	"fmt"
	"strings"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// classifySystemPrompt frames the FAST-tier batch classification call.
const classifySystemPrompt = `You analyze community chat messages for documentation value. Your job is to
find messages that should influence the project's documentation: answered
questions, troubleshooting outcomes, announced changes, tutorials, corrections.

Classify ONLY messages from the "Batch" section. The "Context" section shows
earlier messages for flow awareness and must not appear in your output.

For each valuable message emit its numeric id, a category, a one-sentence
reason, optionally the documentation page it relates to, and 3 to 6 short
search phrases for retrieving related documentation. Casual chatter, greetings,
and bot noise have no documentation value; an empty list is a valid answer.`

// generateSystemPrompt frames the STRONG-tier proposal generation call.
// Tenant project context and the ruleset's PROMPT_CONTEXT are appended.
const generateSystemPrompt = `You write documentation change proposals from community conversations. Given a
conversation, retrieved documentation excerpts, and the documentation index,
propose concrete edits: the target page, the update type (INSERT, UPDATE,
DELETE, or NONE), an optional section and location, the suggested text, your
confidence, and the reasoning.

Ground every proposal in what the conversation actually established. Prefer
updating existing pages over inventing new ones; use a new page path only when
no existing page fits. Emit an empty list when the conversation adds nothing
documentation-worthy.`

// buildClassifyPrompt renders the classifier user prompt: context
// messages, batch messages, and the compact documentation index.
func buildClassifyPrompt(st *State) string {
	var b strings.Builder

	b.WriteString("## Context (not classified)\n\n")
	if len(st.ContextMessages) == 0 {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(RenderMessages(st.ContextMessages))
	}

	b.WriteString("\n## Batch\n\n")
	b.WriteString(RenderMessages(st.Messages))

	if st.CompactIndex != "" {
		b.WriteString("\n## Documentation index\n\n")
		b.WriteString(st.CompactIndex)
		b.WriteString("\n")
	}
	return b.String()
}

// buildGenerateSystemPrompt appends tenant project context and the
// ruleset's PROMPT_CONTEXT to the base generation prompt.
func buildGenerateSystemPrompt(tenant *config.TenantConfig, promptContext string) string {
	var b strings.Builder
	b.WriteString(generateSystemPrompt)

	if tenant != nil {
		b.WriteString("\n\n## Project\n\n")
		fmt.Fprintf(&b, "Name: %s\n", tenant.ProjectName)
		if tenant.ProjectDescription != "" {
			fmt.Fprintf(&b, "Description: %s\n", tenant.ProjectDescription)
		}
		if tenant.DocPurpose != "" {
			fmt.Fprintf(&b, "Documentation purpose: %s\n", tenant.DocPurpose)
		}
		if tenant.TargetAudience != "" {
			fmt.Fprintf(&b, "Target audience: %s\n", tenant.TargetAudience)
		}
		if tenant.StyleGuide != "" {
			fmt.Fprintf(&b, "Style guide: %s\n", tenant.StyleGuide)
		}
	}

	if promptContext != "" {
		b.WriteString("\n\n## Tenant guidance\n\n")
		b.WriteString(promptContext)
	}
	return b.String()
}

// buildGeneratePrompt renders one conversation with its retrieved
// documentation and classifications into the generation user prompt.
func buildGeneratePrompt(st *State, conv *Conversation, rag *models.MessageRagContext) string {
	var b strings.Builder

	b.WriteString("## Conversation\n\n")
	if conv.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s", conv.Channel)
		if conv.Topic != "" {
			fmt.Fprintf(&b, " / %s", conv.Topic)
		}
		b.WriteString("\n\n")
	}
	b.WriteString(RenderConversation(conv, st.pipelineConfig().ReplyIndentDepthCap))

	b.WriteString("\n## Classifications\n\n")
	for _, m := range conv.Messages {
		if c := st.ClassificationFor(m.ID); c != nil {
			fmt.Fprintf(&b, "[%d] %s: %s\n", m.ID, c.Category, c.DocValueReason)
		}
	}

	if rag != nil {
		var docs []models.RetrievedDoc
		if err := decodeRetrievedDocs(rag, &docs); err == nil && len(docs) > 0 {
			b.WriteString("\n## Retrieved documentation\n\n")
			for _, d := range docs {
				header := d.Path
				if d.Section != "" {
					header += " § " + d.Section
				}
				fmt.Fprintf(&b, "### %s (similarity %.2f)\n\n%s\n\n", header, d.Score, d.Excerpt)
			}
		}
	}

	if st.CompactIndex != "" {
		b.WriteString("\n## Documentation index\n\n")
		b.WriteString(st.CompactIndex)
		b.WriteString("\n")
	}
	return b.String()
}

// summaryPrompt asks for the short source-conversation summary attached
// to proposal enrichment.
func summaryPrompt(conv *Conversation) string {
	return "Summarize this conversation in at most two sentences, focusing on what was asked and what was resolved:\n\n" +
		RenderConversation(conv, 5)
}
