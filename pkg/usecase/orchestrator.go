package usecase

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model/config"
	"github.com/Dev-Marygold/Laffey/pkg/service/llm"
	"github.com/Dev-Marygold/Laffey/pkg/service/persona"
	"github.com/Dev-Marygold/Laffey/pkg/service/vectorindex"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/Dev-Marygold/Laffey/pkg/utils/errutil"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/Dev-Marygold/Laffey/pkg/utils/metrics"
	"github.com/m-mizutani/goerr/v2"
)

const (
	// FallbackResponse is the in-character reply used when generation fails
	FallbackResponse = "Hmm... something got tangled in my head. Sometimes I don't understand myself either."

	// AgentSpeakerID is the speaker id of the agent's own working memory items
	AgentSpeakerID = "agent"
)

// OrchestratorUseCase runs one chat turn through every memory layer
type OrchestratorUseCase struct {
	wm            *workingmemory.Store
	index         *vectorindex.Index
	assembler     *ContextAssembler
	generator     llm.Generator
	persona       *persona.Service
	consolidation *ConsolidationUseCase
	cfg           config.AgentConfig

	promptMu   sync.RWMutex
	lastPrompt string
}

// ProcessTurn returns the agent's reply to turn. It never fails: generation
// errors and panics are logged and answered with FallbackResponse.
func (uc *OrchestratorUseCase) ProcessTurn(ctx context.Context, turn Turn) (reply string) {
	started := time.Now()
	logger := logging.From(ctx).With(ChannelIDKey, turn.ChannelID, "user_id", turn.UserID)

	defer func() {
		if r := recover(); r != nil {
			errutil.Handle(ctx, goerr.New("panic while processing turn", goerr.V("panic", r)), "turn failed")
			metrics.TurnsTotal.WithLabelValues("fallback").Inc()
			reply = FallbackResponse
		}
		metrics.TurnLatency.Observe(time.Since(started).Seconds())
	}()

	uc.wm.Append(turn.ChannelID, model.WorkingMemoryItem{
		SpeakerID:   turn.UserID,
		SpeakerName: turn.UserName,
		Text:        turn.Message,
		Timestamp:   time.Now().UTC(),
	})

	cc := uc.assembler.Assemble(ctx, turn)

	gen, err := uc.generate(ctx, cc)
	if err != nil {
		errutil.Handle(ctx, err, "generation failed, replying with fallback")
		metrics.ExternalFailures.WithLabelValues("generator").Inc()
		metrics.TurnsTotal.WithLabelValues("fallback").Inc()

		uc.appendAgentTurn(turn.ChannelID, FallbackResponse)
		return FallbackResponse
	}

	uc.appendAgentTurn(turn.ChannelID, gen.Text)
	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	metrics.GenerationTokens.WithLabelValues(gen.Model).Add(float64(gen.TokenUsage))

	if uc.consolidation.IsRunning(turn.ChannelID) {
		logger.Debug("consolidation running, skipping episodic write-back")
		return gen.Text
	}

	uc.writeBack(ctx, turn, cc.IsPrivateChannel, gen, time.Since(started))
	return gen.Text
}

func (uc *OrchestratorUseCase) generate(ctx context.Context, cc *model.ConversationContext) (*llm.Generation, error) {
	prompt, err := buildSystemPrompt(uc.persona.Text(), uc.cfg.AgentName, uc.cfg.HistoryLimit, cc)
	if err != nil {
		return nil, err
	}

	uc.promptMu.Lock()
	uc.lastPrompt = prompt
	uc.promptMu.Unlock()

	gen, err := uc.generator.Generate(ctx, prompt, cc.CurrentMessage)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(gen.Text) == "" {
		return nil, goerr.New("generator returned empty text", goerr.V("model", gen.Model))
	}
	return gen, nil
}

func (uc *OrchestratorUseCase) appendAgentTurn(channelID, text string) {
	uc.wm.Append(channelID, model.WorkingMemoryItem{
		SpeakerID:       AgentSpeakerID,
		SpeakerName:     uc.cfg.AgentName,
		Text:            text,
		Timestamp:       time.Now().UTC(),
		IsAgentResponse: true,
	})
}

func (uc *OrchestratorUseCase) writeBack(ctx context.Context, turn Turn, isPrivate bool, gen *llm.Generation, elapsed time.Duration) {
	mem := &model.EpisodicMemory{
		SpeakerID:      turn.UserID,
		SpeakerName:    turn.UserName,
		ChannelID:      turn.ChannelID,
		UserText:       turn.Message,
		AgentText:      gen.Text,
		Timestamp:      time.Now().UTC(),
		RelevanceScore: 1.0,
		Kind:           model.MemoryKindEpisodic,
		Metadata: map[string]string{
			"tokens_used":        strconv.Itoa(gen.TokenUsage),
			"model":              gen.Model,
			"processing_time":    strconv.FormatFloat(elapsed.Seconds(), 'f', 3, 64),
			"is_private_channel": strconv.FormatBool(isPrivate),
		},
	}
	if isPrivate {
		mem.RelevanceScore = uc.cfg.PrivateRelevanceBoost
	}

	// Insert logs its own failures
	_, _ = uc.index.Insert(ctx, mem)
}

// LastPrompt returns the most recent system prompt sent to the generator
func (uc *OrchestratorUseCase) LastPrompt() string {
	uc.promptMu.RLock()
	defer uc.promptMu.RUnlock()
	return uc.lastPrompt
}
