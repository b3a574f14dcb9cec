package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/action"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/slack"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
)

func newAnalysis(convID model.ConversationID, custID model.CustomerID, actions ...model.Action) *model.AnalysisResult {
	return &model.AnalysisResult{
		ID:             model.NewAnalysisID(),
		ConversationID: convID,
		CustomerID:     custID,
		Summary:        "summary",
		Sentiment:      types.SentimentNeutral,
		InterestLevel:  types.InterestLevelMedium,
		Actions:        actions,
	}
}

func newDispatchUseCase(repo *countingRepo, reg usecase.HandlerRegistry, cfg usecase.DispatchConfig) *usecase.UseCases {
	return usecase.New(repo,
		usecase.WithHandlerRegistry(reg),
		usecase.WithDispatchConfig(cfg),
	)
}

func fastDispatchConfig() usecase.DispatchConfig {
	cfg := usecase.DefaultDispatchConfig()
	cfg.RetryPolicy = fastRetry
	return cfg
}

func TestDispatch_Idempotent(t *testing.T) {
	repo := &countingRepo{Repository: newRepo()}
	customer := seedCustomer(t, repo, "cust-1")
	handler := &recordingHandler{}
	uc := newDispatchUseCase(repo, newRegistry(t, handler), fastDispatchConfig())
	ctx := context.Background()

	result := newAnalysis("conv-1", customer.ID,
		model.Action{Type: types.ActionTypeSendEmail, Priority: 1},
		model.Action{Type: types.ActionTypeScheduleMeeting, Priority: 2},
	)

	first, err := uc.Dispatch.Dispatch(ctx, result, customer)
	gt.NoError(t, err).Required()
	gt.Array(t, first).Length(2).Required()
	gt.Value(t, first[0].Status).Equal(types.DispatchStatusExecuted)
	gt.Value(t, first[1].Status).Equal(types.DispatchStatusExecuted)
	gt.Value(t, first[0].ExecutedAt != nil).Equal(true)

	second, err := uc.Dispatch.Dispatch(ctx, result, customer)
	gt.NoError(t, err).Required()
	gt.Array(t, second).Length(2).Required()
	gt.Value(t, second[0].Status).Equal(types.DispatchStatusSkipped)
	gt.Value(t, second[1].Status).Equal(types.DispatchStatusSkipped)

	gt.Number(t, handler.count(types.ActionTypeSendEmail)).Equal(1)
	gt.Number(t, handler.count(types.ActionTypeScheduleMeeting)).Equal(1)

	rows, err := uc.Dispatch.List(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Array(t, rows).Length(2)
}

func TestDispatch_Concurrent(t *testing.T) {
	repo := &countingRepo{Repository: newRepo()}
	customer := seedCustomer(t, repo, "cust-1")
	handler := &recordingHandler{}
	uc := newDispatchUseCase(repo, newRegistry(t, handler), fastDispatchConfig())

	result := newAnalysis("conv-1", customer.ID,
		model.Action{Type: types.ActionTypeSendEmail, Priority: 1},
		model.Action{Type: types.ActionTypeAddToFollowup, Priority: 2},
	)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Dispatch.Dispatch(context.Background(), result, customer)
			gt.NoError(t, err)
		}()
	}
	wg.Wait()

	gt.Number(t, handler.count(types.ActionTypeSendEmail)).Equal(1)
	gt.Number(t, handler.count(types.ActionTypeAddToFollowup)).Equal(1)
}

func TestDispatch_OrderAndDuplicates(t *testing.T) {
	repo := &countingRepo{Repository: newRepo()}
	customer := seedCustomer(t, repo, "cust-1")
	handler := &recordingHandler{}
	uc := newDispatchUseCase(repo, newRegistry(t, handler), fastDispatchConfig())

	result := newAnalysis("conv-1", customer.ID,
		model.Action{Type: types.ActionTypeSendProposal, Priority: 3},
		model.Action{Type: types.ActionTypeSendEmail, Priority: 1, Reason: "first"},
		model.Action{Type: types.ActionTypeScheduleCallback, Priority: 2},
		model.Action{Type: types.ActionTypeSendEmail, Priority: 1, Reason: "duplicate"},
	)

	records, err := uc.Dispatch.Dispatch(context.Background(), result, customer)
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(3)
	gt.Value(t, handler.order()).Equal([]types.ActionType{
		types.ActionTypeSendEmail,
		types.ActionTypeScheduleCallback,
		types.ActionTypeSendProposal,
	})
}

func TestDispatch_HandlerFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("smtp unavailable")

	t.Run("failure is recorded and later actions still run", func(t *testing.T) {
		repo := &countingRepo{Repository: newRepo()}
		customer := seedCustomer(t, repo, "cust-1")

		failing := &recordingHandler{errFn: func(int) error { return boom }}
		ok := &recordingHandler{}
		reg := action.NewRegistry()
		gt.NoError(t, reg.Register(types.ActionTypeSendEmail, failing)).Required()
		gt.NoError(t, reg.Register(types.ActionTypeAddToFollowup, ok)).Required()

		uc := newDispatchUseCase(repo, reg, fastDispatchConfig())
		records, err := uc.Dispatch.Dispatch(ctx, newAnalysis("conv-1", customer.ID,
			model.Action{Type: types.ActionTypeSendEmail, Priority: 1},
			model.Action{Type: types.ActionTypeAddToFollowup, Priority: 2},
		), customer)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(2).Required()

		gt.Value(t, records[0].Status).Equal(types.DispatchStatusFailed)
		gt.Value(t, records[0].Reason).Equal("smtp unavailable")
		gt.Value(t, records[0].Attempts).Equal(1)
		gt.Value(t, records[1].Status).Equal(types.DispatchStatusExecuted)
	})

	t.Run("retryable handler is retried before failing", func(t *testing.T) {
		repo := &countingRepo{Repository: newRepo()}
		customer := seedCustomer(t, repo, "cust-1")

		flaky := &recordingHandler{errFn: func(n int) error {
			if n < 3 {
				return boom
			}
			return nil
		}}
		reg := action.NewRegistry()
		gt.NoError(t, reg.Register(types.ActionTypeSendEmail, flaky, action.Retryable())).Required()

		uc := newDispatchUseCase(repo, reg, fastDispatchConfig())
		records, err := uc.Dispatch.Dispatch(ctx, newAnalysis("conv-1", customer.ID,
			model.Action{Type: types.ActionTypeSendEmail, Priority: 1},
		), customer)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(1).Required()
		gt.Value(t, records[0].Status).Equal(types.DispatchStatusExecuted)
		gt.Value(t, records[0].Attempts).Equal(3)
	})
}

func TestDispatch_NoHandler(t *testing.T) {
	repo := &countingRepo{Repository: newRepo()}
	customer := seedCustomer(t, repo, "cust-1")
	reg := action.NewRegistry()
	gt.NoError(t, reg.Register(types.ActionTypeSendEmail, &recordingHandler{})).Required()
	uc := newDispatchUseCase(repo, reg, fastDispatchConfig())
	ctx := context.Background()

	records, err := uc.Dispatch.Dispatch(ctx, newAnalysis("conv-1", customer.ID,
		model.Action{Type: types.ActionTypeRequestPayment, Priority: 1},
	), customer)
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(1).Required()
	gt.Value(t, records[0].Status).Equal(types.DispatchStatusSkipped)

	rows, err := uc.Dispatch.List(ctx, "conv-1")
	gt.NoError(t, err).Required()
	gt.Array(t, rows).Length(0)
}

func TestDispatch_DoNotContact(t *testing.T) {
	ctx := context.Background()

	t.Run("outbound actions are suppressed for flagged customers", func(t *testing.T) {
		repo := &countingRepo{Repository: newRepo()}
		customer := seedCustomer(t, repo, "cust-1")
		gt.NoError(t, repo.Customer().SetDoNotContact(ctx, customer.ID, true)).Required()
		customer.DoNotContact = true

		handler := &recordingHandler{}
		uc := newDispatchUseCase(repo, newRegistry(t, handler), fastDispatchConfig())
		records, err := uc.Dispatch.Dispatch(ctx, newAnalysis("conv-1", customer.ID,
			model.Action{Type: types.ActionTypeSendEmail, Priority: 1},
			model.Action{Type: types.ActionTypeAddToFollowup, Priority: 2},
		), customer)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(2).Required()
		gt.Value(t, records[0].Status).Equal(types.DispatchStatusSkipped)
		gt.Value(t, records[1].Status).Equal(types.DispatchStatusExecuted)
		gt.Number(t, handler.count(types.ActionTypeSendEmail)).Equal(0)

		row, err := repo.Dispatch().Get(ctx, model.IdempotencyKey("conv-1", types.ActionTypeSendEmail, 0))
		gt.NoError(t, err).Required()
		gt.Value(t, row.Status).Equal(types.DispatchStatusSkipped)
	})

	t.Run("opt-out in the same result suppresses later outbound actions", func(t *testing.T) {
		repo := &countingRepo{Repository: newRepo()}
		customer := seedCustomer(t, repo, "cust-1")

		handler := &recordingHandler{}
		uc := newDispatchUseCase(repo, newRegistry(t, handler), fastDispatchConfig())
		records, err := uc.Dispatch.Dispatch(ctx, newAnalysis("conv-1", customer.ID,
			model.Action{Type: types.ActionTypeAddToDoNotContact, Priority: 1},
			model.Action{Type: types.ActionTypeSendEmail, Priority: 2},
		), customer)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(2).Required()
		gt.Value(t, records[0].Status).Equal(types.DispatchStatusExecuted)
		gt.Value(t, records[1].Status).Equal(types.DispatchStatusSkipped)
		gt.Number(t, handler.count(types.ActionTypeSendEmail)).Equal(0)
	})
}

func TestDispatch_Retry(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{Repository: newRepo()}
	customer := seedCustomer(t, repo, "cust-1")

	var healthy bool
	handler := &recordingHandler{errFn: func(int) error {
		if healthy {
			return nil
		}
		return errors.New("calendar API down")
	}}
	uc := newDispatchUseCase(repo, newRegistry(t, handler), fastDispatchConfig())

	result := newAnalysis("conv-1", customer.ID,
		model.Action{Type: types.ActionTypeScheduleMeeting, Priority: 1, Reason: "demo next week"},
	)
	gt.NoError(t, repo.Analysis().Put(ctx, result)).Required()

	records, err := uc.Dispatch.Dispatch(ctx, result, customer)
	gt.NoError(t, err).Required()
	gt.Value(t, records[0].Status).Equal(types.DispatchStatusFailed)

	failed, err := uc.Dispatch.ListByStatus(ctx, types.DispatchStatusFailed)
	gt.NoError(t, err).Required()
	gt.Array(t, failed).Length(1)

	healthy = true
	rec, err := uc.Dispatch.Retry(ctx, "conv-1", types.ActionTypeScheduleMeeting)
	gt.NoError(t, err).Required()
	gt.Value(t, rec.Status).Equal(types.DispatchStatusExecuted)
	gt.Value(t, rec.Attempts).Equal(2)

	_, err = uc.Dispatch.Retry(ctx, "conv-1", types.ActionTypeScheduleMeeting)
	gt.Error(t, err).Is(model.ErrValidation)
	gt.Number(t, handler.count(types.ActionTypeScheduleMeeting)).Equal(2)
}

func TestDispatch_Epoch(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, redispatch bool) int {
		repo := &countingRepo{Repository: newRepo()}
		customer := seedCustomer(t, repo, "cust-1")
		handler := &recordingHandler{}
		cfg := fastDispatchConfig()
		cfg.RedispatchOnReanalysis = redispatch
		uc := newDispatchUseCase(repo, newRegistry(t, handler), cfg)

		result := newAnalysis("conv-1", customer.ID, model.Action{Type: types.ActionTypeSendEmail, Priority: 1})
		_, err := uc.Dispatch.Dispatch(ctx, result, customer)
		gt.NoError(t, err).Required()

		result.Epoch = 1
		_, err = uc.Dispatch.Dispatch(ctx, result, customer)
		gt.NoError(t, err).Required()
		return handler.count(types.ActionTypeSendEmail)
	}

	t.Run("executed actions stay suppressed by default", func(t *testing.T) {
		gt.Number(t, run(t, false)).Equal(1)
	})
	t.Run("a new epoch dispatches again when enabled", func(t *testing.T) {
		gt.Number(t, run(t, true)).Equal(2)
	})
}

type countingSlack struct {
	mu       sync.Mutex
	posts    int
	failures int
}

func (s *countingSlack) Notify(ctx context.Context, n slack.Notification) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return "", errors.New("slack timeout")
	}
	s.posts++
	return "1700000000.000100", nil
}

func (s *countingSlack) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts
}

// flakyRecorder fails the first failures calls, then writes to the repository
type flakyRecorder struct {
	repo     interfaces.MemoryRepository
	failures int
}

func (r *flakyRecorder) Record(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error) {
	if r.failures != 0 {
		if r.failures > 0 {
			r.failures--
		}
		return nil, errors.New("memory store down")
	}
	return r.repo.Create(ctx, entry)
}

func TestDispatch_DefaultHandlersPostOnce(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, recorderFailures, slackFailures int) (*usecase.UseCases, *countingRepo, *model.Customer, *countingSlack, *flakyRecorder) {
		repo := &countingRepo{Repository: newRepo()}
		customer := seedCustomer(t, repo, "cust-1")
		svc := &countingSlack{failures: slackFailures}
		rec := &flakyRecorder{repo: repo.Memory(), failures: recorderFailures}

		reg, err := action.NewDefaultRegistry(action.Deps{
			Customers: repo.Customer(),
			Memory:    rec,
			Slack:     svc,
		}, action.DefaultRoutes())
		gt.NoError(t, err).Required()

		return newDispatchUseCase(repo, reg, fastDispatchConfig()), repo, customer, svc, rec
	}

	emailFacts := func(t *testing.T, repo *countingRepo, customer *model.Customer) int {
		facts, err := repo.Memory().List(ctx, customer.ID, types.MemoryTypeEmailSent)
		gt.NoError(t, err).Required()
		return len(facts)
	}

	t.Run("failing fact store never reaches Slack", func(t *testing.T) {
		uc, repo, customer, svc, rec := setup(t, -1, 0)
		result := newAnalysis("conv-1", customer.ID, model.Action{Type: types.ActionTypeSendEmail, Priority: 1})
		gt.NoError(t, repo.Analysis().Put(ctx, result)).Required()

		records, err := uc.Dispatch.Dispatch(ctx, result, customer)
		gt.NoError(t, err).Required()
		gt.Value(t, records[0].Status).Equal(types.DispatchStatusFailed)
		gt.Number(t, svc.count()).Equal(0)

		rec.failures = 0
		retried, err := uc.Dispatch.Retry(ctx, "conv-1", types.ActionTypeSendEmail)
		gt.NoError(t, err).Required()
		gt.Value(t, retried.Status).Equal(types.DispatchStatusExecuted)
		gt.Number(t, svc.count()).Equal(1)
		gt.Number(t, emailFacts(t, repo, customer)).Equal(1)
	})

	t.Run("transient fact store failure posts once", func(t *testing.T) {
		uc, repo, customer, svc, _ := setup(t, 1, 0)
		result := newAnalysis("conv-1", customer.ID, model.Action{Type: types.ActionTypeSendEmail, Priority: 1})

		records, err := uc.Dispatch.Dispatch(ctx, result, customer)
		gt.NoError(t, err).Required()
		gt.Value(t, records[0].Status).Equal(types.DispatchStatusExecuted)
		gt.Number(t, svc.count()).Equal(1)
		gt.Number(t, emailFacts(t, repo, customer)).Equal(1)
	})

	t.Run("Slack retry does not duplicate the fact", func(t *testing.T) {
		uc, repo, customer, svc, _ := setup(t, 0, 1)
		result := newAnalysis("conv-1", customer.ID, model.Action{Type: types.ActionTypeSendEmail, Priority: 1})

		records, err := uc.Dispatch.Dispatch(ctx, result, customer)
		gt.NoError(t, err).Required()
		gt.Value(t, records[0].Status).Equal(types.DispatchStatusExecuted)
		gt.Value(t, records[0].Attempts).Equal(2)
		gt.Number(t, svc.count()).Equal(1)
		gt.Number(t, emailFacts(t, repo, customer)).Equal(1)
	})
}
