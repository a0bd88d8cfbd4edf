package usecase

import (
	"context"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model/config"
	"github.com/Dev-Marygold/Laffey/pkg/service/llm"
	"github.com/Dev-Marygold/Laffey/pkg/service/persona"
	"github.com/Dev-Marygold/Laffey/pkg/service/slack"
	"github.com/Dev-Marygold/Laffey/pkg/service/vectorindex"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

type UseCases struct {
	repo    interfaces.Repository
	wm      *workingmemory.Store
	index   *vectorindex.Index
	llm     llm.Service
	persona *persona.Service

	cfg          config.AgentConfig
	identitySeed *model.CoreIdentity
	creatorName  string
	limiter      *rate.Limiter
	slackService slack.Service
	wipeTimeout  time.Duration

	Consolidation *ConsolidationUseCase
	Assembler     *ContextAssembler
	Orchestrator  *OrchestratorUseCase
	Admin         *AdminUseCase
	Slack         *SlackUseCases
}

type Option func(*UseCases)

// WithAgentConfig sets pipeline tunables
func WithAgentConfig(cfg config.AgentConfig) Option {
	return func(uc *UseCases) {
		uc.cfg = cfg
	}
}

// WithPersona sets the persona service. The built-in persona is used
// otherwise.
func WithPersona(p *persona.Service) Option {
	return func(uc *UseCases) {
		uc.persona = p
	}
}

// WithCreatorName sets the creator written into a seeded default identity
func WithCreatorName(name string) Option {
	return func(uc *UseCases) {
		uc.creatorName = name
	}
}

// WithIdentitySeed sets the identity stored when the repository has none
func WithIdentitySeed(identity *model.CoreIdentity) Option {
	return func(uc *UseCases) {
		uc.identitySeed = identity
	}
}

// WithLLMLimiter paces summarizer and extractor calls during consolidation
func WithLLMLimiter(limiter *rate.Limiter) Option {
	return func(uc *UseCases) {
		uc.limiter = limiter
	}
}

// WithSlackService enables the Slack chat binding
func WithSlackService(svc slack.Service) Option {
	return func(uc *UseCases) {
		uc.slackService = svc
	}
}

// WithWipeTimeout overrides WipeConfirmTimeout. Values below or equal to
// zero are ignored.
func WithWipeTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		if d > 0 {
			uc.wipeTimeout = d
		}
	}
}

// New wires the memory pipeline. The core identity is loaded, or seeded, from
// repo.
func New(ctx context.Context, repo interfaces.Repository, wm *workingmemory.Store, index *vectorindex.Index, llmSvc llm.Service, opts ...Option) (*UseCases, error) {
	if repo == nil || wm == nil || index == nil || llmSvc == nil {
		return nil, goerr.New("repository, working memory, vector index and LLM service are required")
	}

	uc := &UseCases{
		repo:        repo,
		wm:          wm,
		index:       index,
		llm:         llmSvc,
		creatorName: "Unknown",
		wipeTimeout: WipeConfirmTimeout,
	}
	for _, opt := range opts {
		opt(uc)
	}
	uc.cfg = uc.cfg.WithDefaults()
	if uc.persona == nil {
		uc.persona = persona.New(ctx, nil)
	}

	identity, err := loadIdentity(ctx, repo.Identity(), uc.identitySeed, uc.creatorName)
	if err != nil {
		return nil, err
	}

	uc.Consolidation = NewConsolidationUseCase(wm, index, repo.Fact(), llmSvc, uc.limiter, uc.cfg)
	uc.Assembler = newContextAssembler(wm, index, repo.Fact(), identity, uc.cfg)
	uc.Orchestrator = &OrchestratorUseCase{
		wm:            wm,
		index:         index,
		assembler:     uc.Assembler,
		generator:     llmSvc,
		persona:       uc.persona,
		consolidation: uc.Consolidation,
		cfg:           uc.cfg,
	}
	uc.Admin = newAdminUseCase(uc, identity, uc.wipeTimeout)

	if uc.slackService != nil {
		uc.Slack = NewSlackUseCases(uc.Orchestrator, uc.Admin, uc.slackService)
	}

	return uc, nil
}
