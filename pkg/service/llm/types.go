package llm

import (
	"context"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
)

// Generator produces the agent's reply for one turn
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userText string) (*Generation, error)
}

// Summarizer condenses an ordered run of turns into a short text
type Summarizer interface {
	Summarize(ctx context.Context, turns []model.WorkingMemoryItem) (string, error)
}

// FactExtractor pulls structured facts out of a conversation summary. The
// result may be incomplete; callers fill defaults.
type FactExtractor interface {
	ExtractFacts(ctx context.Context, summary string) ([]ExtractedFact, error)
}

// Embedder converts text into a fixed dimension vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service bundles every text-generation dependency of the agent
type Service interface {
	Generator
	Summarizer
	FactExtractor
	Embedder
}

// Generation is the reply of the generation call
type Generation struct {
	Text       string
	TokenUsage int
	Model      string
}

// ExtractedFact is one fact as returned by the extractor. Empty fields and
// a nil Confidence mean the model omitted them.
type ExtractedFact struct {
	Kind       string   `json:"fact_type"`
	Subject    string   `json:"subject"`
	Content    string   `json:"content"`
	Confidence *float64 `json:"confidence,omitempty"`
}
