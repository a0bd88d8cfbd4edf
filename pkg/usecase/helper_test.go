package usecase_test

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dev-Marygold/Laffey/pkg/domain/model"
	"github.com/Dev-Marygold/Laffey/pkg/repository/memory"
	"github.com/Dev-Marygold/Laffey/pkg/service/llm"
	"github.com/Dev-Marygold/Laffey/pkg/service/vectorindex"
	"github.com/Dev-Marygold/Laffey/pkg/service/workingmemory"
	"github.com/Dev-Marygold/Laffey/pkg/usecase"
	"github.com/m-mizutani/gt"
)

const testDim = 64

// mockLLM implements llm.Service. Nil functions fall back to fixed behavior.
type mockLLM struct {
	generateFn  func(ctx context.Context, systemPrompt, userText string) (*llm.Generation, error)
	summarizeFn func(ctx context.Context, turns []model.WorkingMemoryItem) (string, error)
	extractFn   func(ctx context.Context, summary string) ([]llm.ExtractedFact, error)

	summarizeCalls atomic.Int32
	extractCalls   atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (m *mockLLM) Generate(ctx context.Context, systemPrompt, userText string) (*llm.Generation, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, systemPrompt)
	m.mu.Unlock()

	if m.generateFn != nil {
		return m.generateFn(ctx, systemPrompt, userText)
	}
	return &llm.Generation{Text: "reply to " + userText, TokenUsage: 42, Model: "mock-model"}, nil
}

func (m *mockLLM) Summarize(ctx context.Context, turns []model.WorkingMemoryItem) (string, error) {
	m.summarizeCalls.Add(1)
	if m.summarizeFn != nil {
		return m.summarizeFn(ctx, turns)
	}
	return "a short chat", nil
}

func (m *mockLLM) ExtractFacts(ctx context.Context, summary string) ([]llm.ExtractedFact, error) {
	m.extractCalls.Add(1)
	if m.extractFn != nil {
		return m.extractFn(ctx, summary)
	}
	return nil, nil
}

// Embed hashes words so that texts sharing words are similar
func (m *mockLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!:[]")))
		v[h.Sum32()%testDim] += 1
	}
	return v, nil
}

func (m *mockLLM) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

type fixture struct {
	uc    *usecase.UseCases
	repo  *memory.Memory
	wm    *workingmemory.Store
	index *vectorindex.Index
	llm   *mockLLM
}

func newFixture(t *testing.T, mock *mockLLM, opts ...usecase.Option) *fixture {
	t.Helper()
	if mock == nil {
		mock = &mockLLM{}
	}

	repo := memory.New()
	wm := workingmemory.New()
	index, err := vectorindex.NewWithStore(memory.NewVectorStore(), mock)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = index.Close() })

	opts = append([]usecase.Option{usecase.WithCreatorName("Mary")}, opts...)
	uc, err := usecase.New(context.Background(), repo, wm, index, mock, opts...)
	gt.NoError(t, err).Required()

	return &fixture{uc: uc, repo: repo, wm: wm, index: index, llm: mock}
}

func userItem(userID, text string, ts time.Time) model.WorkingMemoryItem {
	return model.WorkingMemoryItem{
		SpeakerID:   userID,
		SpeakerName: "name-" + userID,
		Text:        text,
		Timestamp:   ts,
	}
}

func agentItem(text string, ts time.Time) model.WorkingMemoryItem {
	return model.WorkingMemoryItem{
		SpeakerID:       usecase.AgentSpeakerID,
		SpeakerName:     "Laffey",
		Text:            text,
		Timestamp:       ts,
		IsAgentResponse: true,
	}
}

func ptr[T any](v T) *T { return &v }
