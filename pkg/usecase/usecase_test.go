package usecase_test

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/memory"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/action"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/analyzer"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/retry"
)

const testDimension = 4

var fastRetry = retry.Policy{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     2 * time.Millisecond,
}

// mockEmbedder returns vectorFn(text) for every text, or unitVector when
// vectorFn is nil
type mockEmbedder struct {
	calls    atomic.Int32
	vectorFn func(text string) []float32
	err      error
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.vectorFn != nil {
			out[i] = m.vectorFn(text)
		} else {
			out[i] = unitVector()
		}
	}
	return out, nil
}

func unitVector() []float32 {
	return []float32{1, 0, 0, 0}
}

// vectorWithSimilarity returns a unit vector whose cosine similarity to
// unitVector is s
func vectorWithSimilarity(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s)), 0, 0}
}

type mockAnalyzer struct {
	calls atomic.Int32
	fn    func(in analyzer.Input) (*model.AnalysisResult, error)
}

func (m *mockAnalyzer) Analyze(ctx context.Context, in analyzer.Input) (*model.AnalysisResult, error) {
	m.calls.Add(1)
	if m.fn != nil {
		return m.fn(in)
	}
	return &model.AnalysisResult{
		Summary:       "Customer asked for pricing by email.",
		Sentiment:     types.SentimentPositive,
		InterestLevel: types.InterestLevelHigh,
		Topics:        []string{"pricing"},
		Actions: []model.Action{
			{Type: types.ActionTypeSendEmail, Reason: "asked for pricing", Priority: 1},
		},
	}, nil
}

type mockReranker struct {
	calls atomic.Int32
	fn    func(candidates []*model.SearchResult) ([]*model.SearchResult, error)
}

func (m *mockReranker) Rerank(ctx context.Context, query string, candidates []*model.SearchResult) ([]*model.SearchResult, error) {
	m.calls.Add(1)
	return m.fn(candidates)
}

// countingRepo counts vector store searches
type countingRepo struct {
	interfaces.Repository
	searches atomic.Int32
}

func (r *countingRepo) Embedding() interfaces.EmbeddingRepository {
	return &countingEmbeddingRepo{EmbeddingRepository: r.Repository.Embedding(), searches: &r.searches}
}

type countingEmbeddingRepo struct {
	interfaces.EmbeddingRepository
	searches *atomic.Int32
}

func (r *countingEmbeddingRepo) Search(ctx context.Context, q model.SearchQuery) ([]*model.SearchResult, error) {
	r.searches.Add(1)
	return r.EmbeddingRepository.Search(ctx, q)
}

// recordingHandler counts invocations per action type
type recordingHandler struct {
	mu    sync.Mutex
	calls []types.ActionType
	errFn func(attempt int) error
}

func (h *recordingHandler) Handle(ctx context.Context, req interfaces.ActionRequest) error {
	h.mu.Lock()
	h.calls = append(h.calls, req.Action.Type)
	n := len(h.calls)
	h.mu.Unlock()

	if h.errFn != nil {
		return h.errFn(n)
	}
	return nil
}

func (h *recordingHandler) count(t types.ActionType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c == t {
			n++
		}
	}
	return n
}

func (h *recordingHandler) order() []types.ActionType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.ActionType{}, h.calls...)
}

// newRegistry registers h for every action type
func newRegistry(t *testing.T, h interfaces.ActionHandler, opts ...action.RegisterOption) *action.Registry {
	t.Helper()
	reg := action.NewRegistry()
	for _, at := range types.AllActionTypes() {
		gt.NoError(t, reg.Register(at, h, opts...)).Required()
	}
	return reg
}

func newRepo() *memory.Memory {
	return memory.New(memory.WithDimension(testDimension))
}

func seedCustomer(t *testing.T, repo interfaces.Repository, id model.CustomerID) *model.Customer {
	t.Helper()
	c, err := repo.Customer().Upsert(context.Background(), &model.Customer{
		ID:          id,
		Name:        "Dana",
		CompanyName: "Acme",
		Email:       "dana@example.com",
	})
	gt.NoError(t, err).Required()
	return c
}
