package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// DefaultModelName is reported with generations when no name is configured
const DefaultModelName = "gemini-2.5-flash"

// client implements Service interface
type client struct {
	llmClient     gollem.LLMClient
	utilityClient gollem.LLMClient
	modelName     string
	dimension     int
}

// Option is a functional option for client configuration
type Option func(*client)

// WithUtilityClient sets a separate client for summarization and fact
// extraction, usually a smaller and cheaper model
func WithUtilityClient(llmClient gollem.LLMClient) Option {
	return func(c *client) {
		c.utilityClient = llmClient
	}
}

// WithModelName sets the model name reported with each generation
func WithModelName(name string) Option {
	return func(c *client) {
		c.modelName = name
	}
}

// WithEmbeddingDimension overrides model.EmbeddingDimension
func WithEmbeddingDimension(dim int) Option {
	return func(c *client) {
		c.dimension = dim
	}
}

// New creates a new LLM service with the provided gollem client
func New(llmClient gollem.LLMClient, opts ...Option) (Service, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	c := &client{
		llmClient: llmClient,
		modelName: DefaultModelName,
		dimension: model.EmbeddingDimension,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.utilityClient == nil {
		c.utilityClient = c.llmClient
	}

	return c, nil
}

func (c *client) Generate(ctx context.Context, systemPrompt, userText string) (*Generation, error) {
	session, err := c.llmClient.NewSession(ctx, gollem.WithSessionSystemPrompt(systemPrompt))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(userText))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content from LLM")
	}

	text := strings.TrimSpace(strings.Join(resp.Texts, ""))
	if text == "" {
		return nil, goerr.New("LLM returned empty response")
	}

	return &Generation{
		Text:       text,
		TokenUsage: resp.InputToken + resp.OutputToken,
		Model:      c.modelName,
	}, nil
}

const summarizeSystemPrompt = `You condense chat logs into memory notes.
Summarize the conversation briefly. Include the main topics, anything that was learned and any important facts about the participants.
Write in the same language as the conversation. Reply with the summary only.`

func (c *client) Summarize(ctx context.Context, turns []model.WorkingMemoryItem) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", turn.SpeakerName, turn.Text)
	}

	session, err := c.utilityClient.NewSession(ctx, gollem.WithSessionSystemPrompt(summarizeSystemPrompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(sb.String()))
	if err != nil {
		return "", goerr.Wrap(err, "failed to summarize conversation", goerr.V("turns", len(turns)))
	}

	summary := strings.TrimSpace(strings.Join(resp.Texts, ""))
	if summary == "" {
		return "", goerr.New("LLM returned empty summary", goerr.V("turns", len(turns)))
	}
	return summary, nil
}

const extractSystemPrompt = `You extract durable facts from conversation summaries.
Extract important facts such as user preferences, personal information and knowledge about the world.
For each fact provide:
- fact_type: one of user_preference, personal_info, world_knowledge
- subject: the name of the person the fact is about, or the topic for world knowledge
- content: the fact itself
- confidence: a number between 0.0 and 1.0
If there is nothing worth remembering, return an empty facts array.`

type extractResponse struct {
	Facts []ExtractedFact `json:"facts"`
}

func (c *client) ExtractFacts(ctx context.Context, summary string) ([]ExtractedFact, error) {
	if strings.TrimSpace(summary) == "" {
		return nil, nil
	}

	session, err := c.utilityClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(factSchema()),
		gollem.WithSessionSystemPrompt(extractSystemPrompt),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(summary))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to extract facts")
	}
	if len(resp.Texts) == 0 {
		return nil, goerr.New("LLM returned no text for fact extraction")
	}

	return ParseFacts(strings.Join(resp.Texts, ""))
}

// ParseFacts decodes extractor output. Code fences are stripped and both a
// bare array and an object with a "facts" array are accepted.
func ParseFacts(raw string) ([]ExtractedFact, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, goerr.New("empty fact extraction response")
	}

	if strings.HasPrefix(text, "[") {
		var facts []ExtractedFact
		if err := json.Unmarshal([]byte(text), &facts); err != nil {
			return nil, goerr.Wrap(err, "failed to parse fact array", goerr.V("response", text))
		}
		return facts, nil
	}

	var resp extractResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse fact response", goerr.V("response", text))
	}
	return resp.Facts, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		// drop the language tag line such as "json"
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func factSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "FactExtractionResponse",
		Description: "Facts extracted from a conversation summary",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"facts": {
				Type:        gollem.TypeArray,
				Description: "Extracted facts",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"fact_type": {
							Type:        gollem.TypeString,
							Description: "user_preference, personal_info or world_knowledge",
							Required:    true,
						},
						"subject": {
							Type:        gollem.TypeString,
							Description: "Who or what the fact is about",
							Required:    true,
						},
						"content": {
							Type:        gollem.TypeString,
							Description: "The fact itself",
							Required:    true,
						},
						"confidence": {
							Type:        gollem.TypeNumber,
							Description: "Confidence between 0.0 and 1.0",
						},
					},
				},
			},
		},
	}
}

func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.llmClient.GenerateEmbedding(ctx, c.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}

	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	// Convert float64 to float32
	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return result, nil
}
