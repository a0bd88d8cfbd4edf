package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/interfaces"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/domain/model/config"
	"github.com/Dev-Marygold/Laffey/pkg/service/llm"
	"github.com/Dev-Marygold/Laffey/pkg/service/vectorindex"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/Dev-Marygold/Laffey/pkg/utils/errutil"
	"github.com/Dev-Marygold/Laffey/pkg/utils/logging"
	"github.com/Dev-Marygold/Laffey/pkg/utils/metrics"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

const (
	// FallbackSummary replaces a summary the summarizer could not produce
	FallbackSummary = "A conversation took place, but its summary could not be produced."

	defaultFactKind       = "general"
	defaultFactSubject    = "unknown"
	defaultFactConfidence = 0.8
)

// ConsolidationUseCase promotes a channel's working memory into episodic
// memory and semantic facts.
type ConsolidationUseCase struct {
	wm         *workingmemory.Store
	index      *vectorindex.Index
	facts      interfaces.FactRepository
	summarizer llm.Summarizer
	extractor  llm.FactExtractor
	limiter    *rate.Limiter
	locks      *channelLocks
	cfg        config.AgentConfig

	// wipeGate orders the writes of a pass against a full wipe. Passes hold
	// the read side while writing; a wipe holds the write side and bumps
	// epoch so that passes started before it discard their results.
	wipeGate sync.RWMutex
	epoch    uint64
}

// NewConsolidationUseCase creates a ConsolidationUseCase. limiter paces the
// summarizer and extractor calls; nil means unlimited.
func NewConsolidationUseCase(wm *workingmemory.Store, index *vectorindex.Index, facts interfaces.FactRepository, llmSvc llm.Service, limiter *rate.Limiter, cfg config.AgentConfig) *ConsolidationUseCase {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &ConsolidationUseCase{
		wm:         wm,
		index:      index,
		facts:      facts,
		summarizer: llmSvc,
		extractor:  llmSvc,
		limiter:    limiter,
		locks:      newChannelLocks(),
		cfg:        cfg.WithDefaults(),
	}
}

// Channels returns channels with pending working memory
func (uc *ConsolidationUseCase) Channels() []string {
	return uc.wm.Channels()
}

// IsRunning reports whether a pass currently holds the channel's lock
func (uc *ConsolidationUseCase) IsRunning(channelID string) bool {
	return uc.locks.isLocked(channelID)
}

// Consolidate runs one pass over channelID. It never returns an error; every
// failure is reported in the result. Working memory is cleared only when the
// whole backlog was processed, and items appended during the pass are kept.
func (uc *ConsolidationUseCase) Consolidate(ctx context.Context, channelID string) *model.ConsolidationResult {
	started := time.Now()
	result := &model.ConsolidationResult{ChannelID: channelID}
	defer func() {
		result.Elapsed = time.Since(started)
	}()

	logger := logging.From(ctx).With(ChannelIDKey, channelID)

	if !uc.locks.tryLock(channelID) {
		result.AddError("%s", ErrConsolidationRunning.Error())
		result.Summary = "Consolidation is already running for this channel"
		metrics.ConsolidationRuns.WithLabelValues("busy").Inc()
		return result
	}
	defer uc.locks.unlock(channelID)

	uc.wipeGate.RLock()
	items, cursor := uc.wm.Snapshot(channelID)
	epoch := uc.epoch
	uc.wipeGate.RUnlock()

	// A trailing user turn may still wait for its reply. It stays in working
	// memory and is paired on a later pass.
	items, cursor = holdPendingTurn(items, cursor)
	if len(items) == 0 {
		result.Summary = "No memories to consolidate"
		metrics.ConsolidationRuns.WithLabelValues("empty").Inc()
		return result
	}
	result.MessagesProcessed = len(items)

	for _, segment := range partitionSegments(items, uc.cfg.SegmentGap) {
		err := uc.consolidateSegment(ctx, channelID, epoch, segment, result)
		if errors.Is(err, ErrMemoryWiped) {
			return discardWiped(ctx, result)
		}
		if err != nil {
			errutil.Handle(ctx, goerr.Wrap(err, "consolidation aborted", goerr.V(ChannelIDKey, channelID)), "consolidation aborted, working memory kept")
			result.AddError("%s", err.Error())
			result.Summary = fmt.Sprintf("Consolidation aborted after %d episodic memories and %d semantic facts; working memory kept",
				result.EpisodicCreated, result.FactsExtracted)
			metrics.ConsolidationRuns.WithLabelValues("aborted").Inc()
			return result
		}
	}

	var cleared int
	if err := uc.writeSince(epoch, func() error {
		cleared = uc.wm.ClearUntil(channelID, cursor)
		return nil
	}); err != nil {
		return discardWiped(ctx, result)
	}
	result.Summary = fmt.Sprintf("Consolidated %d messages into %d episodic memories and %d semantic facts",
		result.MessagesProcessed, result.EpisodicCreated, result.FactsExtracted)

	metrics.ConsolidationRuns.WithLabelValues("ok").Inc()
	metrics.ConsolidatedRecords.WithLabelValues("episodic").Add(float64(result.EpisodicCreated))
	metrics.ConsolidatedRecords.WithLabelValues("semantic").Add(float64(result.FactsExtracted))

	logger.Info("consolidation completed",
		"messages", result.MessagesProcessed,
		"episodic", result.EpisodicCreated,
		"facts", result.FactsExtracted,
		"cleared", cleared,
		"soft_errors", len(result.Errors))
	return result
}

func discardWiped(ctx context.Context, result *model.ConsolidationResult) *model.ConsolidationResult {
	logging.From(ctx).Info("memory was wiped during consolidation, pass discarded", ChannelIDKey, result.ChannelID)
	result.AddError("%s", ErrMemoryWiped.Error())
	result.Summary = "Consolidation discarded because memory was wiped during the pass"
	metrics.ConsolidationRuns.WithLabelValues("wiped").Inc()
	return result
}

// writeSince runs fn unless a wipe happened after epoch was read. A wipe
// waits for fn to return.
func (uc *ConsolidationUseCase) writeSince(epoch uint64, fn func() error) error {
	uc.wipeGate.RLock()
	defer uc.wipeGate.RUnlock()
	if uc.epoch != epoch {
		return goerr.Wrap(ErrMemoryWiped, "pass started before the wipe", goerr.V("epoch", epoch))
	}
	return fn()
}

// blockForWipe runs wipe while no pass is writing. Passes that started
// before it stop writing.
func (uc *ConsolidationUseCase) blockForWipe(wipe func()) {
	uc.wipeGate.Lock()
	defer uc.wipeGate.Unlock()
	uc.epoch++
	wipe()
}

// consolidateSegment returns an error only for conditions that must abort
// the pass: cancellation, a wipe, an unavailable vector index and fact
// store errors.
func (uc *ConsolidationUseCase) consolidateSegment(ctx context.Context, channelID string, epoch uint64, segment []model.WorkingMemoryItem, result *model.ConsolidationResult) error {
	summary, err := uc.summarize(ctx, segment, result)
	if err != nil {
		return err
	}

	var sourceIDs []model.MemoryID
	for _, pair := range pairTurns(segment) {
		if err := ctx.Err(); err != nil {
			return goerr.Wrap(err, "consolidation cancelled")
		}

		mem := &model.EpisodicMemory{
			SpeakerID:      pair.user.SpeakerID,
			SpeakerName:    pair.user.SpeakerName,
			ChannelID:      channelID,
			UserText:       pair.user.Text,
			AgentText:      pair.agent.Text,
			Timestamp:      pair.user.Timestamp,
			RelevanceScore: 1.0,
			Kind:           model.MemoryKindEpisodic,
			Metadata: map[string]string{
				"summary":      summary,
				"consolidated": "true",
			},
		}

		var id model.MemoryID
		err := uc.writeSince(epoch, func() error {
			var err error
			id, err = uc.index.Insert(ctx, mem)
			return err
		})
		if errors.Is(err, ErrMemoryWiped) {
			return err
		}
		if err != nil {
			if isIndexUnavailable(ctx, err) {
				return goerr.Wrap(err, "vector index unavailable")
			}
			result.AddError("failed to store episodic memory of %s: %s", pair.user.SpeakerID, err.Error())
			continue
		}
		sourceIDs = append(sourceIDs, id)
		result.EpisodicCreated++
	}

	extracted, err := uc.extract(ctx, summary, result)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	subjects := participantSubjects(segment)
	for _, ef := range extracted {
		fact := newSemanticFact(ef, sourceIDs, now)
		if fact == nil {
			continue
		}
		if subject, ok := subjects[strings.ToLower(fact.Subject)]; ok {
			fact.Subject = subject
		}
		err := uc.writeSince(epoch, func() error {
			_, err := uc.facts.Upsert(ctx, fact)
			return err
		})
		if errors.Is(err, ErrMemoryWiped) {
			return err
		}
		if err != nil {
			return goerr.Wrap(err, "failed to store semantic fact",
				goerr.V("subject", fact.Subject),
				goerr.V("fact_type", fact.Kind))
		}
		result.FactsExtracted++
	}

	return nil
}

// summarize substitutes FallbackSummary for any summarizer failure. Only
// cancellation is returned.
func (uc *ConsolidationUseCase) summarize(ctx context.Context, segment []model.WorkingMemoryItem, result *model.ConsolidationResult) (string, error) {
	if err := uc.limiter.Wait(ctx); err != nil {
		return "", goerr.Wrap(err, "consolidation cancelled while waiting for rate limiter")
	}

	summary, err := uc.summarizer.Summarize(ctx, segment)
	if err != nil {
		if ctx.Err() != nil {
			return "", goerr.Wrap(ctx.Err(), "consolidation cancelled")
		}
		metrics.ExternalFailures.WithLabelValues("summarizer").Inc()
		logging.From(ctx).Warn("summarizer failed, using fallback summary", "error", err.Error())
		result.AddError("summarizer failed: %s", err.Error())
		return FallbackSummary, nil
	}
	return summary, nil
}

// extract substitutes an empty result for any extractor failure. Only
// cancellation is returned.
func (uc *ConsolidationUseCase) extract(ctx context.Context, summary string, result *model.ConsolidationResult) ([]llm.ExtractedFact, error) {
	if err := uc.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(err, "consolidation cancelled while waiting for rate limiter")
	}

	facts, err := uc.extractor.ExtractFacts(ctx, summary)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "consolidation cancelled")
		}
		metrics.ExternalFailures.WithLabelValues("extractor").Inc()
		logging.From(ctx).Warn("fact extraction failed, no facts stored", "error", err.Error())
		result.AddError("fact extraction failed: %s", err.Error())
		return nil, nil
	}
	return facts, nil
}

// newSemanticFact fills defaults for fields the extractor omitted. A fact
// without content carries nothing and yields nil.
func newSemanticFact(ef llm.ExtractedFact, sourceIDs []model.MemoryID, now time.Time) *model.SemanticFact {
	content := strings.TrimSpace(ef.Content)
	if content == "" {
		return nil
	}

	fact := &model.SemanticFact{
		Kind:            strings.TrimSpace(ef.Kind),
		Subject:         strings.TrimSpace(ef.Subject),
		Content:         content,
		Confidence:      defaultFactConfidence,
		SourceMemoryIDs: append([]model.MemoryID(nil), sourceIDs...),
		CreatedAt:       now,
		LastUpdated:     now,
	}
	if fact.Kind == "" {
		fact.Kind = defaultFactKind
	}
	if fact.Subject == "" {
		fact.Subject = defaultFactSubject
	}
	if ef.Confidence != nil {
		fact.Confidence = *ef.Confidence
	}
	fact.ClampConfidence()
	return fact
}

// participantSubjects maps the lowercased names and ids of the users in
// segment to their fact subject. The extractor only sees the summary, so it
// names people rather than using their ids.
func participantSubjects(segment []model.WorkingMemoryItem) map[string]string {
	subjects := make(map[string]string)
	for _, item := range segment {
		if item.IsAgentResponse || item.SpeakerID == "" {
			continue
		}
		subject := model.SubjectForUser(item.SpeakerID)
		subjects[strings.ToLower(item.SpeakerID)] = subject
		if name := strings.TrimSpace(item.SpeakerName); name != "" {
			subjects[strings.ToLower(name)] = subject
		}
	}
	return subjects
}

func isIndexUnavailable(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, vectorindex.ErrNotReady) ||
		errors.Is(err, vectorindex.ErrInitFailed)
}
