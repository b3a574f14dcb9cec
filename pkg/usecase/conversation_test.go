package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/analyzer"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/embedding"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
)

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	return s.generateContentFn(ctx, input...)
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient answers every session with response and every embedding
// request with vectors of embeddingDim
type mockLLMClient struct {
	response     string
	embeddingDim int
	sessions     atomic.Int32
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return &mockLLMSession{
		generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
			c.sessions.Add(1)
			return &gollem.Response{Texts: []string{c.response}}, nil
		},
	}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	out := make([][]float64, len(input))
	for i := range input {
		vec := make([]float64, c.embeddingDim)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func newConversation(id model.ConversationID, body string) *model.Conversation {
	now := time.Now().UTC()
	return &model.Conversation{
		ID:         id,
		CustomerID: "cust-1",
		Channel:    types.ChannelVoice,
		Body:       body,
		StartedAt:  now.Add(-5 * time.Minute),
		EndedAt:    now,
	}
}

func ingest(t *testing.T, uc *usecase.UseCases, conv *model.Conversation) {
	t.Helper()
	_, _, err := uc.Conversation.Ingest(context.Background(), usecase.IngestInput{
		Conversation: conv,
		Customer:     &model.Customer{Name: "Dana", CompanyName: "Acme"},
	})
	gt.NoError(t, err).Required()
}

func TestConversation_Ingest(t *testing.T) {
	uc := usecase.New(newRepo())
	ctx := context.Background()

	stored, created, err := uc.Conversation.Ingest(ctx, usecase.IngestInput{
		Conversation: newConversation("conv-1", "Hello, I'd like a demo."),
		Customer:     &model.Customer{Name: "Dana", Email: "dana@example.com"},
	})
	gt.NoError(t, err).Required()
	gt.Bool(t, created).True()
	gt.Value(t, stored.Status).Equal(types.ConversationStatusReceived)

	_, created, err = uc.Conversation.Ingest(ctx, usecase.IngestInput{
		Conversation: newConversation("conv-1", "Hello, I'd like a demo."),
	})
	gt.NoError(t, err).Required()
	gt.Bool(t, created).False()

	_, _, err = uc.Conversation.Ingest(ctx, usecase.IngestInput{
		Conversation: newConversation("conv-2", "   "),
	})
	gt.Error(t, err).Is(model.ErrValidation)
}

func TestConversation_Process(t *testing.T) {
	repo := newRepo()
	handler := &recordingHandler{}
	embedder := &mockEmbedder{}
	uc := usecase.New(repo,
		usecase.WithAnalyzer(&mockAnalyzer{}),
		usecase.WithEmbedder(embedder),
		usecase.WithHandlerRegistry(newRegistry(t, handler)),
		usecase.WithDispatchConfig(fastDispatchConfig()),
	)
	ctx := context.Background()
	ingest(t, uc, newConversation("conv-1", "Customer: can you email me your pricing?"))

	out, err := uc.Conversation.Process(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Value(t, out.Conversation.Status).Equal(types.ConversationStatusIndexed)
	gt.Array(t, out.Dispatches).Length(1).Required()
	gt.Value(t, out.Dispatches[0].Status).Equal(types.DispatchStatusExecuted)

	conv, analysis, err := uc.Conversation.Get(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Value(t, conv.Status).Equal(types.ConversationStatusIndexed)
	gt.Value(t, analysis.Summary).Equal("Customer asked for pricing by email.")

	t.Run("conversation and summary are retrievable", func(t *testing.T) {
		results, err := repo.Embedding().Search(ctx, model.SearchQuery{
			CustomerID:  "cust-1",
			Vector:      unitVector(),
			SourceTypes: []types.SourceType{types.SourceTypeConversationFull, types.SourceTypeConversationSummary},
			TopK:        10,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(2)
	})

	t.Run("analysis insight is recorded", func(t *testing.T) {
		facts, err := uc.Memory.List(ctx, "cust-1", types.MemoryTypeAnalysisInsight)
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(1).Required()
		gt.String(t, facts[0].Content).Contains("pricing")
	})
}

// insightObserver counts analysis insights visible while a handler runs
type insightObserver struct {
	uc   *usecase.UseCases
	seen atomic.Int32
}

func (h *insightObserver) Handle(ctx context.Context, req interfaces.ActionRequest) error {
	facts, err := h.uc.Memory.List(ctx, req.Customer.ID, types.MemoryTypeAnalysisInsight)
	if err != nil {
		return err
	}
	h.seen.Add(int32(len(facts)))
	return nil
}

// brokenLedgerRepo fails every dispatch ledger claim
type brokenLedgerRepo struct {
	interfaces.Repository
}

func (r *brokenLedgerRepo) Dispatch() interfaces.DispatchRepository {
	return &brokenLedger{DispatchRepository: r.Repository.Dispatch()}
}

type brokenLedger struct {
	interfaces.DispatchRepository
}

func (l *brokenLedger) Acquire(ctx context.Context, record *model.DispatchRecord) (*model.DispatchRecord, bool, error) {
	return nil, false, errors.New("ledger offline")
}

func TestConversation_InsightFollowsDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("insight is not visible while actions run", func(t *testing.T) {
		repo := newRepo()
		observer := &insightObserver{}
		uc := usecase.New(repo,
			usecase.WithAnalyzer(&mockAnalyzer{}),
			usecase.WithEmbedder(&mockEmbedder{}),
			usecase.WithHandlerRegistry(newRegistry(t, observer)),
			usecase.WithDispatchConfig(fastDispatchConfig()),
		)
		observer.uc = uc
		ingest(t, uc, newConversation("conv-1", "Customer: can you email me your pricing?"))

		_, err := uc.Conversation.Process(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Number(t, observer.seen.Load()).Equal(0)

		facts, err := uc.Memory.List(ctx, "cust-1", types.MemoryTypeAnalysisInsight)
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(1)

		// Processing again records nothing new
		_, err = uc.Conversation.Process(ctx, "conv-1")
		gt.NoError(t, err).Required()
		facts, err = uc.Memory.List(ctx, "cust-1", types.MemoryTypeAnalysisInsight)
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(1)
	})

	t.Run("ledger failure leaves no insight", func(t *testing.T) {
		base := newRepo()
		uc := usecase.New(&brokenLedgerRepo{Repository: base},
			usecase.WithAnalyzer(&mockAnalyzer{}),
			usecase.WithEmbedder(&mockEmbedder{}),
			usecase.WithHandlerRegistry(newRegistry(t, &recordingHandler{})),
			usecase.WithDispatchConfig(fastDispatchConfig()),
		)
		ingest(t, uc, newConversation("conv-1", "Customer: can you email me your pricing?"))

		_, err := uc.Conversation.Process(ctx, "conv-1")
		gt.Error(t, err)

		facts, err := uc.Memory.List(ctx, "cust-1", types.MemoryTypeAnalysisInsight)
		gt.NoError(t, err).Required()
		gt.Array(t, facts).Length(0)

		results, err := base.Embedding().Search(ctx, model.SearchQuery{
			CustomerID:  "cust-1",
			Vector:      unitVector(),
			SourceTypes: []types.SourceType{types.SourceTypeMemoryEntry},
			TopK:        10,
		})
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(0)
	})
}

func TestConversation_DuplicateDelivery(t *testing.T) {
	repo := newRepo()
	handler := &recordingHandler{}
	an := &mockAnalyzer{}
	uc := usecase.New(repo,
		usecase.WithAnalyzer(an),
		usecase.WithEmbedder(&mockEmbedder{}),
		usecase.WithHandlerRegistry(newRegistry(t, handler)),
		usecase.WithDispatchConfig(fastDispatchConfig()),
	)
	ctx := context.Background()

	conv := newConversation("conv-1", "Customer: please email me the brochure.")
	ingest(t, uc, conv)
	ingest(t, uc, newConversation("conv-1", "Customer: please email me the brochure."))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Conversation.Process(ctx, "conv-1")
			gt.NoError(t, err)
		}()
	}
	wg.Wait()

	gt.Number(t, handler.count(types.ActionTypeSendEmail)).Equal(1)
	gt.Number(t, an.calls.Load()).Equal(1)

	rows, err := uc.Dispatch.List(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Array(t, rows).Length(1)
}

func TestConversation_Negation(t *testing.T) {
	// The model is asked for both an opt-out and an email; the opt-out runs
	// first and suppresses the email.
	llm := &mockLLMClient{
		embeddingDim: testDimension,
		response: `{
			"summary": "Customer asked not to be emailed and to be removed from the list.",
			"sentiment": "negative",
			"interest_level": "low",
			"topics": ["opt-out"],
			"next_steps": [],
			"actions": [
				{"type": "send_email", "reason": "mentioned email", "priority": 2},
				{"type": "add_to_dnc", "reason": "asked to stop contact", "priority": 1},
				{"type": "no_action", "reason": "", "priority": 3}
			]
		}`,
	}
	an, err := analyzer.New(llm, analyzer.WithRetryPolicy(fastRetry))
	gt.NoError(t, err).Required()
	gen, err := embedding.New(llm, testDimension, embedding.WithRetryPolicy(fastRetry))
	gt.NoError(t, err).Required()

	repo := newRepo()
	handler := &recordingHandler{}
	uc := usecase.New(repo,
		usecase.WithAnalyzer(an),
		usecase.WithEmbedder(gen),
		usecase.WithHandlerRegistry(newRegistry(t, handler)),
		usecase.WithDispatchConfig(fastDispatchConfig()),
	)
	ctx := context.Background()
	ingest(t, uc, newConversation("conv-1", "Customer: Don't email me. Take me off your list."))

	out, err := uc.Conversation.Process(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Number(t, handler.count(types.ActionTypeSendEmail)).Equal(0)
	gt.Number(t, handler.count(types.ActionTypeAddToDoNotContact)).Equal(1)
	gt.Array(t, out.Dispatches).Length(2).Required()
	gt.Value(t, out.Dispatches[0].ActionType).Equal(types.ActionTypeAddToDoNotContact)
	gt.Value(t, out.Dispatches[1].Status).Equal(types.DispatchStatusSkipped)
	gt.Value(t, out.Conversation.Status).Equal(types.ConversationStatusIndexed)
}

func TestConversation_DimensionEnforcement(t *testing.T) {
	repo := newRepo()
	handler := &recordingHandler{}
	llm := &mockLLMClient{embeddingDim: testDimension - 1}
	gen, err := embedding.New(llm, testDimension-1, embedding.WithRetryPolicy(fastRetry))
	gt.NoError(t, err).Required()

	uc := usecase.New(repo,
		usecase.WithAnalyzer(&mockAnalyzer{}),
		usecase.WithEmbedder(gen),
		usecase.WithHandlerRegistry(newRegistry(t, handler)),
		usecase.WithDispatchConfig(fastDispatchConfig()),
	)
	ctx := context.Background()
	ingest(t, uc, newConversation("conv-1", "Customer: send pricing please."))

	_, err = uc.Conversation.Process(ctx, "conv-1")
	gt.Error(t, err).Is(model.ErrDimensionMismatch)

	conv, _, err := uc.Conversation.Get(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Value(t, conv.Status).Equal(types.ConversationStatusNeedsReembedding)

	// Dispatch ran before indexing and is not repeated on recovery.
	gt.Number(t, handler.count(types.ActionTypeSendEmail)).Equal(1)

	results, err := repo.Embedding().Search(ctx, model.SearchQuery{
		CustomerID: "cust-1",
		Vector:     unitVector(),
		SourceTypes: []types.SourceType{
			types.SourceTypeConversationFull,
			types.SourceTypeConversationSummary,
		},
		TopK: 10,
	})
	gt.NoError(t, err).Required()
	gt.Array(t, results).Length(0)

	pending, err := uc.Conversation.ListByStatus(ctx, types.ConversationStatusNeedsReembedding)
	gt.NoError(t, err).Required()
	gt.Array(t, pending).Length(1)

	t.Run("reembed with a matching embedder recovers", func(t *testing.T) {
		fixed := usecase.New(repo,
			usecase.WithAnalyzer(&mockAnalyzer{}),
			usecase.WithEmbedder(&mockEmbedder{}),
			usecase.WithHandlerRegistry(newRegistry(t, handler)),
		)
		conv, err := fixed.Conversation.Reembed(ctx, "conv-1")
		gt.NoError(t, err).Required()
		gt.Value(t, conv.Status).Equal(types.ConversationStatusIndexed)
		gt.Number(t, handler.count(types.ActionTypeSendEmail)).Equal(1)
	})
}

func TestConversation_AnalysisFailure(t *testing.T) {
	repo := newRepo()
	var broken atomic.Bool
	broken.Store(true)
	an := &mockAnalyzer{}
	an.fn = func(in analyzer.Input) (*model.AnalysisResult, error) {
		if broken.Load() {
			return nil, model.ErrValidation
		}
		return &model.AnalysisResult{
			Summary:       "Follow up next month.",
			Sentiment:     types.SentimentNeutral,
			InterestLevel: types.InterestLevelMedium,
		}, nil
	}

	uc := usecase.New(repo,
		usecase.WithAnalyzer(an),
		usecase.WithEmbedder(&mockEmbedder{}),
		usecase.WithHandlerRegistry(newRegistry(t, &recordingHandler{})),
	)
	ctx := context.Background()
	ingest(t, uc, newConversation("conv-1", "Customer: maybe next month."))

	_, err := uc.Conversation.Process(ctx, "conv-1")
	gt.Error(t, err).Is(model.ErrValidation)

	conv, analysis, err := uc.Conversation.Get(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Value(t, conv.Status).Equal(types.ConversationStatusUnanalyzed)
	gt.Value(t, analysis).Nil()

	broken.Store(false)
	out, err := uc.Conversation.Process(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Value(t, out.Conversation.Status).Equal(types.ConversationStatusIndexed)
}

func TestConversation_Reanalyze(t *testing.T) {
	run := func(t *testing.T, redispatch bool) (*usecase.ProcessResult, int) {
		repo := newRepo()
		handler := &recordingHandler{}
		cfg := fastDispatchConfig()
		cfg.RedispatchOnReanalysis = redispatch
		uc := usecase.New(repo,
			usecase.WithAnalyzer(&mockAnalyzer{}),
			usecase.WithEmbedder(&mockEmbedder{}),
			usecase.WithHandlerRegistry(newRegistry(t, handler)),
			usecase.WithDispatchConfig(cfg),
		)
		ctx := context.Background()
		ingest(t, uc, newConversation("conv-1", "Customer: email me."))

		_, err := uc.Conversation.Process(ctx, "conv-1")
		gt.NoError(t, err).Required()

		out, err := uc.Conversation.Reanalyze(ctx, "conv-1")
		gt.NoError(t, err).Required()

		// A later redelivery must not dispatch the new epoch again.
		_, err = uc.Conversation.Process(ctx, "conv-1")
		gt.NoError(t, err).Required()

		return out, handler.count(types.ActionTypeSendEmail)
	}

	t.Run("default keeps executed actions suppressed", func(t *testing.T) {
		out, calls := run(t, false)
		gt.Value(t, out.Analysis.Epoch).Equal(1)
		gt.Value(t, out.Conversation.Status).Equal(types.ConversationStatusIndexed)
		gt.Array(t, out.Dispatches).Length(0)
		gt.Number(t, calls).Equal(1)
	})

	t.Run("redispatch runs actions once more", func(t *testing.T) {
		out, calls := run(t, true)
		gt.Value(t, out.Analysis.Epoch).Equal(1)
		gt.Array(t, out.Dispatches).Length(1)
		gt.Number(t, calls).Equal(2)
	})
}

func TestConversation_EmailChunks(t *testing.T) {
	repo := newRepo()
	cfg := usecase.DefaultIndexConfig()
	cfg.ChunkWords = 10
	cfg.ChunkOverlap = 2
	uc := usecase.New(repo,
		usecase.WithAnalyzer(&mockAnalyzer{}),
		usecase.WithEmbedder(&mockEmbedder{}),
		usecase.WithIndexConfig(cfg),
	)
	ctx := context.Background()

	conv := newConversation("conv-1", strings.Repeat("word ", 30))
	conv.Channel = types.ChannelEmail
	conv.Subject = "Quote"
	ingest(t, uc, conv)

	_, err := uc.Conversation.Process(ctx, "conv-1")
	gt.NoError(t, err).Required()

	chunks, err := repo.Embedding().Search(ctx, model.SearchQuery{
		CustomerID:  "cust-1",
		Vector:      unitVector(),
		SourceTypes: []types.SourceType{types.SourceTypeEmailChunk},
		TopK:        100,
	})
	gt.NoError(t, err).Required()
	gt.Number(t, len(chunks)).Greater(1)
}

func TestConversation_ProcessUnknown(t *testing.T) {
	uc := usecase.New(newRepo(), usecase.WithAnalyzer(&mockAnalyzer{}))
	_, err := uc.Conversation.Process(context.Background(), "missing")
	gt.Error(t, err).Is(model.ErrNotFound)
	gt.Bool(t, errors.Is(err, model.ErrValidation)).False()
}
