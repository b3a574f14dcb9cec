package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// AnalysisID is a UUID-based identifier for AnalysisResult
type AnalysisID string

// NewAnalysisID generates a new UUID v4 AnalysisID
func NewAnalysisID() AnalysisID {
	return AnalysisID(uuid.New().String())
}

// AnalysisResult is the structured reading of one conversation. There is at
// most one current result per conversation; Epoch increases on forced
// re-analysis.
type AnalysisResult struct {
	ID             AnalysisID
	ConversationID ConversationID
	CustomerID     CustomerID
	Summary        string
	Sentiment      types.Sentiment
	InterestLevel  types.InterestLevel
	Topics         []string
	NextSteps      []string
	Actions        []Action
	Epoch          int
	CreatedAt      time.Time
}

// Validate checks the result against the closed enums
func (a *AnalysisResult) Validate() error {
	if strings.TrimSpace(a.Summary) == "" {
		return goerr.Wrap(ErrValidation, "summary is empty", goerr.V("conversation_id", a.ConversationID))
	}
	if !a.Sentiment.IsValid() {
		return goerr.Wrap(ErrValidation, "invalid sentiment",
			goerr.V("conversation_id", a.ConversationID),
			goerr.V("sentiment", a.Sentiment))
	}
	if !a.InterestLevel.IsValid() {
		return goerr.Wrap(ErrValidation, "invalid interest level",
			goerr.V("conversation_id", a.ConversationID),
			goerr.V("interest_level", a.InterestLevel))
	}
	for _, act := range a.Actions {
		if !act.Type.IsValid() {
			return goerr.Wrap(ErrValidation, "invalid action type",
				goerr.V("conversation_id", a.ConversationID),
				goerr.V("action_type", act.Type))
		}
	}
	return nil
}

// Copy returns a deep copy
func (a *AnalysisResult) Copy() *AnalysisResult {
	c := *a
	c.Topics = append([]string(nil), a.Topics...)
	c.NextSteps = append([]string(nil), a.NextSteps...)
	c.Actions = make([]Action, len(a.Actions))
	for i, act := range a.Actions {
		c.Actions[i] = act
		if act.Metadata != nil {
			c.Actions[i].Metadata = make(map[string]string, len(act.Metadata))
			for k, v := range act.Metadata {
				c.Actions[i].Metadata[k] = v
			}
		}
	}
	return &c
}

// Insight renders the durable fact recorded to the memory store
func (a *AnalysisResult) Insight() string {
	var sb strings.Builder
	sb.WriteString("Interest: ")
	sb.WriteString(a.InterestLevel.String())
	sb.WriteString(", sentiment: ")
	sb.WriteString(a.Sentiment.String())
	if len(a.Topics) > 0 {
		sb.WriteString(". Topics: ")
		sb.WriteString(strings.Join(a.Topics, ", "))
	}
	if len(a.NextSteps) > 0 {
		sb.WriteString(". Next steps: ")
		sb.WriteString(strings.Join(a.NextSteps, "; "))
	}
	return sb.String()
}
