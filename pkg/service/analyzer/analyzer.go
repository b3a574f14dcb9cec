// Package analyzer turns a finished conversation into a structured
// model.AnalysisResult using an LLM with a JSON response schema.
package analyzer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/retry"
)

//go:embed prompt/system.md
var systemPromptTmpl string

var systemPrompt = template.Must(template.New("analyzer_system").Parse(systemPromptTmpl))

const defaultPriority = 1

var actionDescriptions = map[types.ActionType]string{
	types.ActionTypeSendEmail:         "the customer asked for information by email",
	types.ActionTypeScheduleMeeting:   "the customer wants a meeting or demo",
	types.ActionTypeScheduleCallback:  "the customer asked to be called back later",
	types.ActionTypeAddToFollowup:     "the customer is interested but undecided and needs a later follow-up",
	types.ActionTypeAddToDoNotContact: "the customer explicitly refused further contact",
	types.ActionTypeSendProposal:      "the customer asked for a proposal or quote",
	types.ActionTypeRequestPayment:    "the customer is ready to purchase",
}

// Input is one conversation to analyze
type Input struct {
	ConversationID model.ConversationID
	CustomerID     model.CustomerID
	Channel        types.Channel
	Text           string
}

// Analyzer is safe for concurrent use
type Analyzer struct {
	llmClient gollem.LLMClient
	policy    retry.Policy
}

type Option func(*Analyzer)

// WithRetryPolicy sets the policy for transport failures. Malformed output
// is handled separately with a single stricter retry.
func WithRetryPolicy(p retry.Policy) Option {
	return func(a *Analyzer) {
		a.policy = p
	}
}

func New(llmClient gollem.LLMClient, opts ...Option) (*Analyzer, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	a := &Analyzer{
		llmClient: llmClient,
		policy:    retry.DefaultPolicy.On(model.ErrServiceUnavailable),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze returns the analysis of in. Output that cannot be parsed or
// violates the closed enums is retried once with a stricter instruction and
// then reported as model.ErrValidation. Transport failures are
// model.ErrServiceUnavailable.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*model.AnalysisResult, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "conversation text is empty",
			goerr.V("conversation_id", in.ConversationID))
	}

	result, err := a.attempt(ctx, in, false)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, model.ErrValidation) {
		return nil, err
	}

	logging.From(ctx).Warn("analysis output rejected, retrying with strict instruction",
		"conversation_id", in.ConversationID,
		logging.ErrAttr(err),
	)

	result, err = a.attempt(ctx, in, true)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (a *Analyzer) attempt(ctx context.Context, in Input, strict bool) (*model.AnalysisResult, error) {
	var result *model.AnalysisResult
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		raw, err := a.generate(ctx, in, strict)
		if err != nil {
			return err
		}
		result, err = parseResponse(ctx, in, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type promptAction struct {
	Type        types.ActionType
	Description string
}

func buildSystemPrompt(channel types.Channel, strict bool) (string, error) {
	actions := make([]promptAction, 0, len(actionDescriptions))
	for _, t := range types.AllActionTypes() {
		actions = append(actions, promptAction{Type: t, Description: actionDescriptions[t]})
	}

	var buf bytes.Buffer
	if err := systemPrompt.Execute(&buf, map[string]any{
		"Channel": channel.String(),
		"Strict":  strict,
		"Actions": actions,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render analyzer prompt")
	}
	return buf.String(), nil
}

func (a *Analyzer) generate(ctx context.Context, in Input, strict bool) (string, error) {
	prompt, err := buildSystemPrompt(in.Channel, strict)
	if err != nil {
		return "", err
	}

	session, err := a.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(responseSchema()),
		gollem.WithSessionSystemPrompt(prompt),
	)
	if err != nil {
		return "", goerr.Wrap(model.ErrServiceUnavailable, "failed to create LLM session",
			goerr.V("conversation_id", in.ConversationID),
			goerr.V("cause", err.Error()))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(in.Text))
	if err != nil {
		return "", goerr.Wrap(model.ErrServiceUnavailable, "failed to generate analysis",
			goerr.V("conversation_id", in.ConversationID),
			goerr.V("cause", err.Error()))
	}
	if resp == nil || len(resp.Texts) == 0 {
		return "", goerr.Wrap(model.ErrValidation, "LLM returned no content",
			goerr.V("conversation_id", in.ConversationID))
	}
	return strings.Join(resp.Texts, ""), nil
}

func responseSchema() *gollem.Parameter {
	actionTypes := make([]string, 0, len(actionDescriptions)+1)
	for _, t := range types.AllActionTypes() {
		actionTypes = append(actionTypes, t.String())
	}
	actionTypes = append(actionTypes, types.ActionTypeNone.String())

	return &gollem.Parameter{
		Title:       "ConversationAnalysis",
		Description: "Structured analysis of a finished sales conversation",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"summary": {
				Type:        gollem.TypeString,
				Description: "Two or three sentence summary of the conversation",
				Required:    true,
			},
			"sentiment": {
				Type:        gollem.TypeString,
				Description: "Overall customer sentiment",
				Required:    true,
				Enum:        []string{"positive", "neutral", "negative"},
			},
			"interest_level": {
				Type:        gollem.TypeString,
				Description: "Customer buying interest",
				Required:    true,
				Enum:        []string{"high", "medium", "low"},
			},
			"topics": {
				Type:        gollem.TypeArray,
				Description: "Main subjects discussed",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
			},
			"next_steps": {
				Type:        gollem.TypeArray,
				Description: "Concrete follow-ups agreed or implied",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
			},
			"actions": {
				Type:        gollem.TypeArray,
				Description: "Follow-up actions to execute",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"type": {
							Type:        gollem.TypeString,
							Description: "Action type",
							Required:    true,
							Enum:        actionTypes,
						},
						"reason": {
							Type:        gollem.TypeString,
							Description: "Why this action should be taken",
							Required:    true,
						},
						"priority": {
							Type:        gollem.TypeInteger,
							Description: "1 is most urgent, 5 least",
						},
						"metadata": {
							Type:        gollem.TypeObject,
							Description: "Action specific details such as a callback time",
							Properties:  map[string]*gollem.Parameter{},
						},
					},
				},
			},
		},
	}
}

type llmResponse struct {
	Summary       string      `json:"summary"`
	Sentiment     string      `json:"sentiment"`
	InterestLevel string      `json:"interest_level"`
	Topics        []string    `json:"topics"`
	NextSteps     []string    `json:"next_steps"`
	Actions       []llmAction `json:"actions"`
}

type llmAction struct {
	Type     string         `json:"type"`
	Reason   string         `json:"reason"`
	Priority *int           `json:"priority"`
	Metadata map[string]any `json:"metadata"`
}

// extractJSON tolerates models that wrap the object in prose or a code fence
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func parseResponse(ctx context.Context, in Input, raw string) (*model.AnalysisResult, error) {
	var resp llmResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, goerr.Wrap(model.ErrValidation, "failed to parse analysis response",
			goerr.V("conversation_id", in.ConversationID),
			goerr.V("cause", err.Error()))
	}

	sentiment := types.SentimentNeutral
	if s := strings.ToLower(strings.TrimSpace(resp.Sentiment)); s != "" {
		sentiment = types.Sentiment(s)
	}
	interest := types.InterestLevelMedium
	if s := strings.ToLower(strings.TrimSpace(resp.InterestLevel)); s != "" {
		interest = types.InterestLevel(s)
	}

	result := &model.AnalysisResult{
		ConversationID: in.ConversationID,
		CustomerID:     in.CustomerID,
		Summary:        strings.TrimSpace(resp.Summary),
		Sentiment:      sentiment,
		InterestLevel:  interest,
		Topics:         uniqueFold(nonEmpty(resp.Topics)),
		NextSteps:      nonEmpty(resp.NextSteps),
		Actions:        parseActions(ctx, in.ConversationID, resp.Actions),
		CreatedAt:      time.Now().UTC(),
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

func parseActions(ctx context.Context, conversationID model.ConversationID, raw []llmAction) []model.Action {
	logger := logging.From(ctx)

	actions := make([]model.Action, 0, len(raw))
	for _, a := range raw {
		actionType, err := types.ParseActionType(a.Type)
		if err != nil {
			logger.Warn("dropping unknown action type",
				"conversation_id", conversationID,
				"action_type", a.Type,
			)
			continue
		}
		if actionType == types.ActionTypeNone {
			continue
		}

		priority := defaultPriority
		if a.Priority != nil {
			priority = *a.Priority
		}

		actions = append(actions, model.Action{
			Type:     actionType,
			Reason:   strings.TrimSpace(a.Reason),
			Priority: priority,
			Metadata: stringifyMetadata(a.Metadata),
		})
	}
	return actions
}

func stringifyMetadata(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case float64, bool:
			out[k] = fmt.Sprint(val)
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(encoded)
		}
	}
	return out
}

// uniqueFold drops case-insensitive repeats, keeping the first spelling
func uniqueFold(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, s := range items {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
