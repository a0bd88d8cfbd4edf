package config

import (
	"context"
	"log/slog"

	"github.com/Dev-Marygold/Laffey/pkg/service/llm"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"
)

const (
	LLMProviderGemini = "gemini"
	LLMProviderOpenAI = "openai"
)

// LLM holds configuration for the generator, summarizer, fact extractor and
// embedder
type LLM struct {
	provider       string
	geminiProject  string
	geminiLocation string
	openaiAPIKey   string
	model          string
	utilityModel   string
	utilityRPS     float64
}

func (x *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "LLM provider (gemini, openai)",
			Category:    "LLM",
			Value:       LLMProviderGemini,
			Sources:     cli.EnvVars("LAFFEY_LLM_PROVIDER"),
			Destination: &x.provider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "LLM",
			Sources:     cli.EnvVars("LAFFEY_GEMINI_PROJECT"),
			Destination: &x.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Category:    "LLM",
			Value:       "us-central1",
			Sources:     cli.EnvVars("LAFFEY_GEMINI_LOCATION"),
			Destination: &x.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Category:    "LLM",
			Sources:     cli.EnvVars("LAFFEY_OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "llm-model",
			Usage:       "Model for replies. The provider default is used when empty",
			Category:    "LLM",
			Sources:     cli.EnvVars("LAFFEY_LLM_MODEL"),
			Destination: &x.model,
		},
		&cli.StringFlag{
			Name:        "llm-utility-model",
			Usage:       "Model for summaries and fact extraction. --llm-model is used when empty",
			Category:    "LLM",
			Sources:     cli.EnvVars("LAFFEY_LLM_UTILITY_MODEL"),
			Destination: &x.utilityModel,
		},
		&cli.FloatFlag{
			Name:        "llm-utility-rps",
			Usage:       "Max summarizer and extractor calls per second during consolidation (0 for unlimited)",
			Category:    "LLM",
			Value:       1,
			Sources:     cli.EnvVars("LAFFEY_LLM_UTILITY_RPS"),
			Destination: &x.utilityRPS,
		},
	}
}

func (x LLM) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", x.provider),
		slog.String("gemini_project", x.geminiProject),
		slog.String("gemini_location", x.geminiLocation),
		slog.Int("openai_api_key.len", len(x.openaiAPIKey)),
		slog.String("model", x.model),
		slog.String("utility_model", x.utilityModel),
		slog.Float64("utility_rps", x.utilityRPS),
	)
}

func (x *LLM) newClient(ctx context.Context, modelName string) (gollem.LLMClient, error) {
	switch x.provider {
	case LLMProviderGemini:
		if x.geminiProject == "" {
			return nil, goerr.New("--gemini-project is required for the gemini provider")
		}
		var opts []gemini.Option
		if modelName != "" {
			opts = append(opts, gemini.WithModel(modelName))
		}
		client, err := gemini.New(ctx, x.geminiProject, x.geminiLocation, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil

	case LLMProviderOpenAI:
		if x.openaiAPIKey == "" {
			return nil, goerr.New("--openai-api-key is required for the openai provider")
		}
		var opts []openai.Option
		if modelName != "" {
			opts = append(opts, openai.WithModel(modelName))
		}
		client, err := openai.New(ctx, x.openaiAPIKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	default:
		return nil, goerr.New("invalid LLM provider", goerr.V("provider", x.provider))
	}
}

// Configure creates the LLM service. A missing credential is an error.
func (x *LLM) Configure(ctx context.Context) (llm.Service, error) {
	main, err := x.newClient(ctx, x.model)
	if err != nil {
		return nil, err
	}

	opts := []llm.Option{}
	if x.model != "" {
		opts = append(opts, llm.WithModelName(x.model))
	}
	if x.utilityModel != "" && x.utilityModel != x.model {
		utility, err := x.newClient(ctx, x.utilityModel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithUtilityClient(utility))
	}

	svc, err := llm.New(main, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM service")
	}
	return svc, nil
}

// Limiter paces consolidation calls to the utility model
func (x *LLM) Limiter() *rate.Limiter {
	if x.utilityRPS <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(x.utilityRPS), 1)
}
