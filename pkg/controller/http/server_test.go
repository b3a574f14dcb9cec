package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	httpctrl "github.com/anishgillella/Voice-Receptionist/pkg/controller/http"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/repository/memory"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/action"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/analyzer"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/async"
)

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

type mockAnalyzer struct{}

func (m *mockAnalyzer) Analyze(ctx context.Context, in analyzer.Input) (*model.AnalysisResult, error) {
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

type countingHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *countingHandler) Handle(ctx context.Context, req interfaces.ActionRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type testEnv struct {
	srv     *httpctrl.Server
	uc      *usecase.UseCases
	handler *countingHandler
}

func newTestEnv(t *testing.T, embedder usecase.Embedder, opts ...httpctrl.Options) *testEnv {
	t.Helper()

	repo := memory.New(memory.WithDimension(4))
	h := &countingHandler{}
	reg := action.NewRegistry()
	gt.NoError(t, reg.Register(types.ActionTypeSendEmail, h)).Required()

	uc := usecase.New(repo,
		usecase.WithEmbedder(embedder),
		usecase.WithAnalyzer(&mockAnalyzer{}),
		usecase.WithHandlerRegistry(reg),
	)
	opts = append([]httpctrl.Options{httpctrl.WithProcessPool(async.NewPool(2))}, opts...)
	return &testEnv{
		srv:     httpctrl.New(uc, opts...),
		uc:      uc,
		handler: h,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case []byte:
			buf.Write(v)
		default:
			gt.NoError(t, json.NewEncoder(&buf).Encode(v)).Required()
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) waitIndexed(t *testing.T, id model.ConversationID) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conv, _, err := e.uc.Conversation.Get(context.Background(), id)
		gt.NoError(t, err).Required()
		if conv.Status == types.ConversationStatusIndexed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("conversation %s was not indexed in time", id)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var v map[string]any
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v)).Required()
	return v
}

func ingestBody(id string) map[string]any {
	return map[string]any{
		"conversation_id": id,
		"customer_id":     "cust-1",
		"channel":         "voice",
		"body":            "Hi, could you send me your pricing by email?",
		"customer": map[string]any{
			"name":         "Dana",
			"company_name": "Acme",
		},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &mockEmbedder{})
	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
}

func TestIngestConversation(t *testing.T) {
	t.Run("accepted and processed in background", func(t *testing.T) {
		env := newTestEnv(t, &mockEmbedder{})

		rec := env.do(t, http.MethodPost, "/api/conversations", ingestBody("conv-1"), nil)
		gt.Value(t, rec.Code).Equal(http.StatusAccepted)
		resp := decode(t, rec)
		gt.Value(t, resp["conversation_id"]).Equal("conv-1")
		gt.Value(t, resp["created"]).Equal(true)

		env.waitIndexed(t, "conv-1")
		gt.Value(t, env.handler.count()).Equal(1)

		rec = env.do(t, http.MethodGet, "/api/conversations/conv-1", nil, nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		conv := decode(t, rec)
		gt.Value(t, conv["status"]).Equal("indexed")
		analysis, ok := conv["analysis"].(map[string]any)
		gt.Bool(t, ok).True()
		gt.Value(t, analysis["summary"]).Equal("Customer asked for pricing by email.")

		rec = env.do(t, http.MethodGet, "/api/conversations/conv-1/dispatches", nil, nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		dispatches, ok := decode(t, rec)["dispatches"].([]any)
		gt.Bool(t, ok).True()
		gt.Array(t, dispatches).Length(1).Required()
		gt.Value(t, dispatches[0].(map[string]any)["status"]).Equal("executed")
	})

	t.Run("redelivery does not repeat side effects", func(t *testing.T) {
		env := newTestEnv(t, &mockEmbedder{})

		rec := env.do(t, http.MethodPost, "/api/conversations", ingestBody("conv-1"), nil)
		gt.Value(t, rec.Code).Equal(http.StatusAccepted)
		env.waitIndexed(t, "conv-1")

		rec = env.do(t, http.MethodPost, "/api/conversations", ingestBody("conv-1"), nil)
		gt.Value(t, rec.Code).Equal(http.StatusAccepted)
		resp := decode(t, rec)
		gt.Value(t, resp["created"]).Equal(false)
		gt.Value(t, resp["status"]).Equal("indexed")

		time.Sleep(50 * time.Millisecond)
		gt.Value(t, env.handler.count()).Equal(1)
	})

	t.Run("invalid payloads are rejected", func(t *testing.T) {
		env := newTestEnv(t, &mockEmbedder{})

		rec := env.do(t, http.MethodPost, "/api/conversations", []byte("{not json"), nil)
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)

		body := ingestBody("conv-2")
		body["channel"] = "fax"
		rec = env.do(t, http.MethodPost, "/api/conversations", body, nil)
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)

		body = ingestBody("conv-3")
		body["body"] = "  "
		rec = env.do(t, http.MethodPost, "/api/conversations", body, nil)
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("signature is enforced when a secret is set", func(t *testing.T) {
		secret := "s3cret"
		env := newTestEnv(t, &mockEmbedder{}, httpctrl.WithWebhookSecret(secret))

		payload, err := json.Marshal(ingestBody("conv-1"))
		gt.NoError(t, err).Required()

		rec := env.do(t, http.MethodPost, "/api/conversations", payload, nil)
		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)

		ts := strconv.FormatInt(time.Now().Unix(), 10)
		rec = env.do(t, http.MethodPost, "/api/conversations", payload, map[string]string{
			httpctrl.HeaderWebhookTimestamp: ts,
			httpctrl.HeaderWebhookSignature: httpctrl.SignWebhook(secret, ts, payload),
		})
		gt.Value(t, rec.Code).Equal(http.StatusAccepted)
		env.waitIndexed(t, "conv-1")
	})
}

func TestGetConversation_NotFound(t *testing.T) {
	env := newTestEnv(t, &mockEmbedder{})
	rec := env.do(t, http.MethodGet, "/api/conversations/missing", nil, nil)
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)
}

func TestGetContext(t *testing.T) {
	t.Run("returns indexed history", func(t *testing.T) {
		env := newTestEnv(t, &mockEmbedder{})
		rec := env.do(t, http.MethodPost, "/api/conversations", ingestBody("conv-1"), nil)
		gt.Value(t, rec.Code).Equal(http.StatusAccepted)
		env.waitIndexed(t, "conv-1")

		rec = env.do(t, http.MethodGet, "/api/customers/cust-1/context?q=pricing&top_k=5", nil, nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		resp := decode(t, rec)
		snippets, ok := resp["snippets"].([]any)
		gt.Bool(t, ok).True()
		gt.Number(t, len(snippets)).Greater(0)
		gt.Value(t, resp["profile"]).Equal("Dana at Acme")
		gt.String(t, resp["formatted"].(string)).Contains("CUSTOMER PROFILE: Dana at Acme")
	})

	t.Run("bad parameters", func(t *testing.T) {
		env := newTestEnv(t, &mockEmbedder{})
		gt.Value(t, env.do(t, http.MethodGet, "/api/customers/cust-1/context", nil, nil).Code).Equal(http.StatusBadRequest)
		gt.Value(t, env.do(t, http.MethodGet, "/api/customers/cust-1/context?q=x&top_k=zero", nil, nil).Code).Equal(http.StatusBadRequest)
		gt.Value(t, env.do(t, http.MethodGet, "/api/customers/cust-1/context?q=x&min_similarity=1.5", nil, nil).Code).Equal(http.StatusBadRequest)
	})

	t.Run("retrieval failure degrades to empty context", func(t *testing.T) {
		env := newTestEnv(t, &mockEmbedder{err: model.ErrServiceUnavailable})
		rec := env.do(t, http.MethodGet, "/api/customers/cust-1/context?q=pricing", nil, nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		resp := decode(t, rec)
		snippets, ok := resp["snippets"].([]any)
		gt.Bool(t, ok).True()
		gt.Array(t, snippets).Length(0)
		gt.Value(t, resp["formatted"]).Equal("")
	})
}

func TestMemories(t *testing.T) {
	env := newTestEnv(t, &mockEmbedder{})

	rec := env.do(t, http.MethodPost, "/api/customers/cust-1/memories", map[string]string{
		"type":    "preference",
		"content": "prefers email over phone",
	}, nil)
	gt.Value(t, rec.Code).Equal(http.StatusCreated)
	created := decode(t, rec)
	gt.Value(t, created["type"]).Equal("preference")

	rec = env.do(t, http.MethodPost, "/api/customers/cust-1/memories", map[string]string{
		"type":    "gossip",
		"content": "x",
	}, nil)
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)

	rec = env.do(t, http.MethodGet, "/api/customers/cust-1/memories?type=preference", nil, nil)
	gt.Value(t, rec.Code).Equal(http.StatusOK)
	memories, ok := decode(t, rec)["memories"].([]any)
	gt.Bool(t, ok).True()
	gt.Array(t, memories).Length(1).Required()
	gt.Value(t, memories[0].(map[string]any)["content"]).Equal("prefers email over phone")

	rec = env.do(t, http.MethodGet, "/api/customers/cust-1/memories?type=gossip", nil, nil)
	gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
}
