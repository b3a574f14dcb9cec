package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

type conversationRepository struct {
	db *sql.DB
}

const conversationColumns = "id, customer_id, channel, subject, body, status, started_at, ended_at, created_at, updated_at, reembed_attempts"

func scanConversation(row interface{ Scan(...any) error }) (*model.Conversation, error) {
	var (
		c                                        model.Conversation
		startedAt, endedAt, createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.CustomerID, &c.Channel, &c.Subject, &c.Body, &c.Status,
		&startedAt, &endedAt, &createdAt, &updatedAt, &c.ReembedAttempts); err != nil {
		return nil, err
	}
	c.StartedAt = fromUnix(startedAt)
	c.EndedAt = fromUnix(endedAt)
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return &c, nil
}

func (r *conversationRepository) CreateIfAbsent(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	if err := conv.Validate(); err != nil {
		return nil, false, err
	}

	status := conv.Status
	if status == "" {
		status = types.ConversationStatusReceived
	}
	now := toUnix(time.Now())

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO NOTHING`,
		conv.ID, conv.CustomerID, conv.Channel, conv.Subject, conv.Body, status,
		toUnix(conv.StartedAt), toUnix(conv.EndedAt), now, now)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to insert conversation", goerr.V("conversation_id", conv.ID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to read affected rows")
	}

	stored, err := r.Get(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (r *conversationRepository) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE id = ?", id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}
	return c, nil
}

func (r *conversationRepository) ListByCustomer(ctx context.Context, customerID model.CustomerID) ([]*model.Conversation, error) {
	return r.list(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE customer_id = ? ORDER BY created_at DESC", customerID)
}

func (r *conversationRepository) ListByStatus(ctx context.Context, status types.ConversationStatus) ([]*model.Conversation, error) {
	return r.list(ctx, "SELECT "+conversationColumns+" FROM conversations WHERE status = ? ORDER BY created_at ASC", status)
}

func (r *conversationRepository) list(ctx context.Context, query string, arg any) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	result := make([]*model.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan conversation")
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate conversations")
	}
	return result, nil
}

func (r *conversationRepository) UpdateStatus(ctx context.Context, id model.ConversationID, status types.ConversationStatus) error {
	if !status.IsValid() {
		return goerr.Wrap(model.ErrValidation, "invalid conversation status", goerr.V("status", status))
	}

	res, err := r.db.ExecContext(ctx, "UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?",
		status, toUnix(time.Now()), id)
	if err != nil {
		return goerr.Wrap(err, "failed to update conversation status", goerr.V("conversation_id", id))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
	}
	return nil
}

func (r *conversationRepository) IncrementReembedAttempts(ctx context.Context, id model.ConversationID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"UPDATE conversations SET reembed_attempts = reembed_attempts + 1 WHERE id = ? RETURNING reembed_attempts", id).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, goerr.Wrap(model.ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return 0, goerr.Wrap(err, "failed to count re-embed attempt", goerr.V("conversation_id", id))
	}
	return n, nil
}

type analysisRepository struct {
	db *sql.DB
}

type actionRow struct {
	Type     types.ActionType  `json:"type"`
	Reason   string            `json:"reason,omitempty"`
	Priority int               `json:"priority"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (r *analysisRepository) Put(ctx context.Context, result *model.AnalysisResult) error {
	id := result.ID
	if id == "" {
		id = model.NewAnalysisID()
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	actions := make([]actionRow, 0, len(result.Actions))
	for _, a := range result.Actions {
		actions = append(actions, actionRow(a))
	}

	topics, err := json.Marshal(nonNil(result.Topics))
	if err != nil {
		return goerr.Wrap(err, "failed to encode topics")
	}
	nextSteps, err := json.Marshal(nonNil(result.NextSteps))
	if err != nil {
		return goerr.Wrap(err, "failed to encode next steps")
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return goerr.Wrap(err, "failed to encode actions")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analyses (conversation_id, id, customer_id, summary, sentiment, interest_level, topics, next_steps, actions, epoch, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			id = excluded.id,
			customer_id = excluded.customer_id,
			summary = excluded.summary,
			sentiment = excluded.sentiment,
			interest_level = excluded.interest_level,
			topics = excluded.topics,
			next_steps = excluded.next_steps,
			actions = excluded.actions,
			epoch = excluded.epoch,
			created_at = excluded.created_at`,
		result.ConversationID, id, result.CustomerID, result.Summary, result.Sentiment, result.InterestLevel,
		string(topics), string(nextSteps), string(actionsJSON), result.Epoch, toUnix(createdAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put analysis", goerr.V("conversation_id", result.ConversationID))
	}
	return nil
}

func (r *analysisRepository) Get(ctx context.Context, conversationID model.ConversationID) (*model.AnalysisResult, error) {
	var (
		a                          model.AnalysisResult
		topics, nextSteps, actions string
		createdAt                  int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT conversation_id, id, customer_id, summary, sentiment, interest_level, topics, next_steps, actions, epoch, created_at
		FROM analyses WHERE conversation_id = ?`, conversationID).
		Scan(&a.ConversationID, &a.ID, &a.CustomerID, &a.Summary, &a.Sentiment, &a.InterestLevel,
			&topics, &nextSteps, &actions, &a.Epoch, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "analysis not found", goerr.V("conversation_id", conversationID))
		}
		return nil, goerr.Wrap(err, "failed to get analysis", goerr.V("conversation_id", conversationID))
	}

	if err := json.Unmarshal([]byte(topics), &a.Topics); err != nil {
		return nil, goerr.Wrap(err, "failed to decode topics")
	}
	if err := json.Unmarshal([]byte(nextSteps), &a.NextSteps); err != nil {
		return nil, goerr.Wrap(err, "failed to decode next steps")
	}
	var rows []actionRow
	if err := json.Unmarshal([]byte(actions), &rows); err != nil {
		return nil, goerr.Wrap(err, "failed to decode actions")
	}
	a.Actions = make([]model.Action, 0, len(rows))
	for _, row := range rows {
		a.Actions = append(a.Actions, model.Action(row))
	}
	a.CreatedAt = fromUnix(createdAt)
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
