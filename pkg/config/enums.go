package config

// ModelTier selects a configured model class for a gateway call.
type ModelTier string

const (
	// TierFast is the cheap model used for batch classification and summaries
	TierFast ModelTier = "FAST"
	// TierStrong is the capable model used for proposal generation
	TierStrong ModelTier = "STRONG"
	// TierStrongAlt is the alternate strong model used for review and condensation
	TierStrongAlt ModelTier = "STRONG_ALT"
)

// IsValid checks if the model tier is valid
func (t ModelTier) IsValid() bool {
	switch t {
	case TierFast, TierStrong, TierStrongAlt:
		return true
	default:
		return false
	}
}

// LLMProviderType defines supported LLM provider protocols
type LLMProviderType string

const (
	// LLMProviderTypeOpenAI speaks the OpenAI-compatible chat completions API
	// (covers OpenAI, OpenRouter, and Ollama via base_url)
	LLMProviderTypeOpenAI LLMProviderType = "openai"
	// LLMProviderTypeAnthropic is the Anthropic Messages API
	LLMProviderTypeAnthropic LLMProviderType = "anthropic"
)

// IsValid checks if the LLM provider type is valid
func (t LLMProviderType) IsValid() bool {
	return t == LLMProviderTypeOpenAI || t == LLMProviderTypeAnthropic
}

// EmbeddingProviderType defines supported embedding backends
type EmbeddingProviderType string

const (
	// EmbeddingProviderOllama uses a local Ollama /api/embeddings endpoint
	EmbeddingProviderOllama EmbeddingProviderType = "ollama"
	// EmbeddingProviderOpenAI uses an OpenAI-compatible /v1/embeddings endpoint
	EmbeddingProviderOpenAI EmbeddingProviderType = "openai"
)

// IsValid checks if the embedding provider type is valid
func (t EmbeddingProviderType) IsValid() bool {
	return t == EmbeddingProviderOllama || t == EmbeddingProviderOpenAI
}

// ReviewOrder controls whether ruleset modifications run before or after
// rejection rules.
type ReviewOrder string

const (
	// ReviewOrderModifyFirst applies REVIEW_MODIFICATIONS, then REJECTION_RULES
	ReviewOrderModifyFirst ReviewOrder = "modify_first"
	// ReviewOrderRejectFirst applies REJECTION_RULES, then REVIEW_MODIFICATIONS
	ReviewOrderRejectFirst ReviewOrder = "reject_first"
)

// IsValid checks if the review order is valid
func (o ReviewOrder) IsValid() bool {
	return o == ReviewOrderModifyFirst || o == ReviewOrderRejectFirst
}

// DocSourceKind selects how the documentation snapshot is fetched.
type DocSourceKind string

const (
	// DocSourceLocal walks a local git checkout
	DocSourceLocal DocSourceKind = "local"
	// DocSourceGitHub fetches file listings and contents over the GitHub API
	DocSourceGitHub DocSourceKind = "github"
)

// IsValid checks if the doc source kind is valid
func (k DocSourceKind) IsValid() bool {
	return k == DocSourceLocal || k == DocSourceGitHub
}
