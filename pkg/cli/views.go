package cli

import (
	"time"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/usecase"
)

type dispatchOutput struct {
	ConversationID string     `json:"conversation_id"`
	ActionType     string     `json:"action_type"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	Attempts       int        `json:"attempts"`
	Epoch          int        `json:"epoch"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
}

type memoryOutput struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func dispatchViews(records []*model.DispatchRecord) []dispatchOutput {
	out := make([]dispatchOutput, 0, len(records))
	for _, r := range records {
		out = append(out, dispatchOutput{
			ConversationID: r.ConversationID.String(),
			ActionType:     r.ActionType.String(),
			Status:         r.Status.String(),
			Reason:         r.Reason,
			Attempts:       r.Attempts,
			Epoch:          r.Epoch,
			ExecutedAt:     r.ExecutedAt,
		})
	}
	return out
}

func memoryViews(entries []*model.MemoryEntry) []memoryOutput {
	out := make([]memoryOutput, 0, len(entries))
	for _, e := range entries {
		out = append(out, memoryOutput{
			ID:             string(e.ID),
			Type:           e.Type.String(),
			Content:        e.Content,
			ConversationID: e.ConversationID.String(),
			CreatedAt:      e.CreatedAt,
		})
	}
	return out
}

func processView(result *usecase.ProcessResult, created bool) map[string]any {
	v := map[string]any{
		"conversation_id": result.Conversation.ID,
		"status":          result.Conversation.Status,
		"created":         created,
		"dispatches":      dispatchViews(result.Dispatches),
	}
	if a := result.Analysis; a != nil {
		v["analysis"] = map[string]any{
			"summary":        a.Summary,
			"sentiment":      a.Sentiment,
			"interest_level": a.InterestLevel,
			"topics":         a.Topics,
			"next_steps":     a.NextSteps,
			"epoch":          a.Epoch,
		}
	}
	return v
}
