package analyzer_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/analyzer"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/retry"
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

type mockLLMClient struct {
	calls     atomic.Int32
	responses []string
	err       error
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return &mockLLMSession{
		generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
			n := int(c.calls.Add(1)) - 1
			if c.err != nil {
				return nil, c.err
			}
			if n >= len(c.responses) {
				n = len(c.responses) - 1
			}
			return &gollem.Response{Texts: []string{c.responses[n]}}, nil
		},
	}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

func newInput() analyzer.Input {
	return analyzer.Input{
		ConversationID: "conv-1",
		CustomerID:     "cust-1",
		Channel:        types.ChannelVoice,
		Text:           "Customer: Please send me a proposal for 40 seats and call me back on Friday.",
	}
}

var fastRetry = retry.Policy{
	MaxAttempts:  2,
	InitialDelay: time.Millisecond,
	MaxDelay:     time.Millisecond,
}.On(model.ErrServiceUnavailable)

func TestAnalyze(t *testing.T) {
	t.Run("parses a complete response", func(t *testing.T) {
		client := &mockLLMClient{responses: []string{`{
			"summary": "Customer wants a proposal for 40 seats.",
			"sentiment": "positive",
			"interest_level": "high",
			"topics": ["pricing", " seats "],
			"next_steps": ["send proposal"],
			"actions": [
				{"type": "send_proposal", "reason": "asked for a quote", "priority": 1, "metadata": {"seats": 40, "product": "pro"}},
				{"type": "schedule_callback", "reason": "call back Friday", "priority": 2, "metadata": {"when": "Friday"}}
			]
		}`}}

		a, err := analyzer.New(client)
		gt.NoError(t, err).Required()

		result, err := a.Analyze(context.Background(), newInput())
		gt.NoError(t, err).Required()

		gt.Value(t, result.ConversationID).Equal(model.ConversationID("conv-1"))
		gt.Value(t, result.CustomerID).Equal(model.CustomerID("cust-1"))
		gt.Value(t, result.Sentiment).Equal(types.SentimentPositive)
		gt.Value(t, result.InterestLevel).Equal(types.InterestLevelHigh)
		gt.Array(t, result.Topics).Length(2).Required()
		gt.Value(t, result.Topics[1]).Equal("seats")
		gt.Array(t, result.Actions).Length(2).Required()
		gt.Value(t, result.Actions[0].Type).Equal(types.ActionTypeSendProposal)
		gt.Value(t, result.Actions[0].Metadata["seats"]).Equal("40")
		gt.Value(t, result.Actions[1].Metadata["when"]).Equal("Friday")
		gt.Value(t, client.calls.Load()).Equal(int32(1))
	})

	t.Run("drops unknown and no_action types and maps the legacy alias", func(t *testing.T) {
		client := &mockLLMClient{responses: []string{`{
			"summary": "Customer asked to stop calling.",
			"sentiment": "negative",
			"interest_level": "low",
			"actions": [
				{"type": "launch_rocket", "reason": "?"},
				{"type": "no_action", "reason": "nothing"},
				{"type": "ADD_TO_DNC", "reason": "asked to stop calling"}
			]
		}`}}

		a, err := analyzer.New(client)
		gt.NoError(t, err).Required()

		result, err := a.Analyze(context.Background(), newInput())
		gt.NoError(t, err).Required()
		gt.Array(t, result.Actions).Length(1).Required()
		gt.Value(t, result.Actions[0].Type).Equal(types.ActionTypeAddToDoNotContact)
		gt.Value(t, result.Actions[0].Priority).Equal(1)
	})

	t.Run("missing sentiment and interest default to neutral and medium", func(t *testing.T) {
		client := &mockLLMClient{responses: []string{`{"summary": "Short check-in.", "actions": []}`}}

		a, err := analyzer.New(client)
		gt.NoError(t, err).Required()

		result, err := a.Analyze(context.Background(), newInput())
		gt.NoError(t, err).Required()
		gt.Value(t, result.Sentiment).Equal(types.SentimentNeutral)
		gt.Value(t, result.InterestLevel).Equal(types.InterestLevelMedium)
		gt.Array(t, result.Actions).Length(0)
	})

	t.Run("tolerates a fenced response", func(t *testing.T) {
		client := &mockLLMClient{responses: []string{"```json\n{\"summary\": \"ok\", \"sentiment\": \"neutral\", \"interest_level\": \"medium\", \"actions\": []}\n```"}}

		a, err := analyzer.New(client)
		gt.NoError(t, err).Required()

		result, err := a.Analyze(context.Background(), newInput())
		gt.NoError(t, err).Required()
		gt.Value(t, result.Summary).Equal("ok")
	})

	t.Run("malformed output is retried once with strict instruction", func(t *testing.T) {
		client := &mockLLMClient{responses: []string{
			"I think the customer wants a proposal",
			`{"summary": "Wants a proposal.", "sentiment": "positive", "interest_level": "high", "actions": [{"type": "send_proposal", "reason": "quote"}]}`,
		}}

		a, err := analyzer.New(client)
		gt.NoError(t, err).Required()

		result, err := a.Analyze(context.Background(), newInput())
		gt.NoError(t, err).Required()
		gt.Array(t, result.Actions).Length(1)
		gt.Value(t, client.calls.Load()).Equal(int32(2))
	})

	t.Run("second malformed output is a validation error", func(t *testing.T) {
		client := &mockLLMClient{responses: []string{
			`{"summary": "", "sentiment": "positive"}`,
			`{"summary": "x", "sentiment": "ecstatic"}`,
		}}

		a, err := analyzer.New(client)
		gt.NoError(t, err).Required()

		_, err = a.Analyze(context.Background(), newInput())
		gt.Error(t, err).Is(model.ErrValidation)
		gt.Value(t, client.calls.Load()).Equal(int32(2))
	})

	t.Run("transport failure is service unavailable after retries", func(t *testing.T) {
		client := &mockLLMClient{err: errors.New("upstream 503")}

		a, err := analyzer.New(client, analyzer.WithRetryPolicy(fastRetry))
		gt.NoError(t, err).Required()

		_, err = a.Analyze(context.Background(), newInput())
		gt.Error(t, err).Is(model.ErrServiceUnavailable)
		gt.Value(t, client.calls.Load()).Equal(int32(2))
	})

	t.Run("empty text is rejected without calling the LLM", func(t *testing.T) {
		client := &mockLLMClient{responses: []string{"{}"}}

		a, err := analyzer.New(client)
		gt.NoError(t, err).Required()

		in := newInput()
		in.Text = "  "
		_, err = a.Analyze(context.Background(), in)
		gt.Error(t, err).Is(model.ErrValidation)
		gt.Value(t, client.calls.Load()).Equal(int32(0))
	})
}

func TestAnalyze_TopicsDeduplicated(t *testing.T) {
	client := &mockLLMClient{responses: []string{`{
		"summary": "Customer asked about pricing twice.",
		"sentiment": "neutral",
		"interest_level": "medium",
		"topics": ["Pricing", "pricing ", "PRICING", "onboarding", "Onboarding"],
		"actions": []
	}`}}

	a, err := analyzer.New(client)
	gt.NoError(t, err).Required()

	result, err := a.Analyze(context.Background(), newInput())
	gt.NoError(t, err).Required()
	gt.Value(t, result.Topics).Equal([]string{"Pricing", "onboarding"})
}

func TestResponseSchema(t *testing.T) {
	schema := analyzer.ResponseSchema()
	gt.NoError(t, schema.Validate()).Required()

	for _, name := range []string{"summary", "sentiment", "interest_level", "actions"} {
		gt.Bool(t, schema.Properties[name].Required).True()
	}
	for _, name := range []string{"topics", "next_steps"} {
		gt.Bool(t, schema.Properties[name].Required).False()
	}
	item := schema.Properties["actions"].Items
	gt.Bool(t, item.Properties["type"].Required).True()
	gt.Bool(t, item.Properties["reason"].Required).True()
	gt.Bool(t, item.Properties["priority"].Required).False()

	t.Run("accepts a complete document", func(t *testing.T) {
		var doc map[string]any
		gt.NoError(t, json.Unmarshal([]byte(`{
			"summary": "ok",
			"sentiment": "positive",
			"interest_level": "high",
			"actions": [{"type": "send_email", "reason": "asked", "priority": 1}]
		}`), &doc)).Required()
		gt.NoError(t, schema.ValidateValue("analysis", doc))
	})

	t.Run("rejects a document without a summary", func(t *testing.T) {
		doc := map[string]any{
			"sentiment":      "positive",
			"interest_level": "high",
			"actions":        []any{},
		}
		gt.Error(t, schema.ValidateValue("analysis", doc))
	})

	t.Run("rejects an action without a reason", func(t *testing.T) {
		doc := map[string]any{
			"summary":        "ok",
			"sentiment":      "positive",
			"interest_level": "high",
			"actions":        []any{map[string]any{"type": "send_email"}},
		}
		gt.Error(t, schema.ValidateValue("analysis", doc))
	})
}

func TestNew(t *testing.T) {
	_, err := analyzer.New(nil)
	gt.Value(t, err).NotNil()
}
