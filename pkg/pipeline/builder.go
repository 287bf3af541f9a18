package pipeline

import (
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/config"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/embedding"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/ruleset"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/vectorstore"
)

// StepsConfig bundles the collaborators of the default step list.
type StepsConfig struct {
	Gateway       Gateway
	Embedding     embedding.Engine
	VectorStore   *vectorstore.Store
	RulesetEngine *ruleset.Engine
	Proposals     ProposalCounter
	Redaction     *config.RedactionConfig
}

// DefaultSteps assembles the standard batch pipeline:
// filter → classify → enrich → generate → context-enrich →
// ruleset-review → validate → condense.
func DefaultSteps(cfg StepsConfig) ([]Step, error) {
	filter, err := NewFilterStep(cfg.Redaction)
	if err != nil {
		return nil, err
	}
	return []Step{
		filter,
		NewClassifyStep(cfg.Gateway),
		NewEnrichStep(cfg.Embedding, cfg.VectorStore),
		NewGenerateStep(cfg.Gateway),
		NewContextEnrichStep(cfg.Gateway, cfg.Embedding, cfg.VectorStore, cfg.Proposals),
		NewRulesetReviewStep(cfg.RulesetEngine),
		NewValidateStep(),
		NewCondenseStep(),
	}, nil
}
