package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

type dispatchRepository struct {
	db *sql.DB
}

const dispatchColumns = "idempotency_key, conversation_id, customer_id, action_type, epoch, status, reason, attempts, executed_at, created_at, updated_at"

func scanDispatch(row interface{ Scan(...any) error }) (*model.DispatchRecord, error) {
	var (
		d                    model.DispatchRecord
		executedAt           sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&d.IdempotencyKey, &d.ConversationID, &d.CustomerID, &d.ActionType, &d.Epoch,
		&d.Status, &d.Reason, &d.Attempts, &executedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if executedAt.Valid {
		t := fromUnix(executedAt.Int64)
		d.ExecutedAt = &t
	}
	d.CreatedAt = fromUnix(createdAt)
	d.UpdatedAt = fromUnix(updatedAt)
	return &d, nil
}

// Acquire relies on the primary key: ON CONFLICT DO NOTHING inserts for
// exactly one caller per key.
func (r *dispatchRepository) Acquire(ctx context.Context, record *model.DispatchRecord) (*model.DispatchRecord, bool, error) {
	now := time.Now()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_records (`+dispatchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING`,
		record.IdempotencyKey, record.ConversationID, record.CustomerID, record.ActionType, record.Epoch,
		record.Status, record.Reason, record.Attempts, toUnix(createdAt), toUnix(now))
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to acquire dispatch record", goerr.V("key", record.IdempotencyKey))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to read affected rows")
	}

	stored, err := r.Get(ctx, record.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (r *dispatchRepository) Finish(ctx context.Context, key string, status types.DispatchStatus, reason string, attempts int) (*model.DispatchRecord, error) {
	now := toUnix(time.Now())
	var executedAt any
	if status == types.DispatchStatusExecuted {
		executedAt = now
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_records
		SET status = ?, reason = ?, attempts = ?, executed_at = COALESCE(?, executed_at), updated_at = ?
		WHERE idempotency_key = ?`,
		status, reason, attempts, executedAt, now, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to finish dispatch record", goerr.V("key", key))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return nil, goerr.Wrap(model.ErrNotFound, "dispatch record not found", goerr.V("key", key))
	}
	return r.Get(ctx, key)
}

func (r *dispatchRepository) Reclaim(ctx context.Context, key string) (*model.DispatchRecord, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_records SET status = ?, updated_at = ?
		WHERE idempotency_key = ? AND status = ?`,
		types.DispatchStatusPending, toUnix(time.Now()), key, types.DispatchStatusFailed)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to reclaim dispatch record", goerr.V("key", key))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to read affected rows")
	}

	rec, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return rec, n == 1, nil
}

func (r *dispatchRepository) Get(ctx context.Context, key string) (*model.DispatchRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+dispatchColumns+" FROM dispatch_records WHERE idempotency_key = ?", key)
	d, err := scanDispatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrNotFound, "dispatch record not found", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to get dispatch record", goerr.V("key", key))
	}
	return d, nil
}

func (r *dispatchRepository) ListByConversation(ctx context.Context, conversationID model.ConversationID) ([]*model.DispatchRecord, error) {
	return r.list(ctx, "SELECT "+dispatchColumns+" FROM dispatch_records WHERE conversation_id = ? ORDER BY created_at, idempotency_key", conversationID)
}

func (r *dispatchRepository) ListByStatus(ctx context.Context, status types.DispatchStatus) ([]*model.DispatchRecord, error) {
	return r.list(ctx, "SELECT "+dispatchColumns+" FROM dispatch_records WHERE status = ? ORDER BY created_at, idempotency_key", status)
}

func (r *dispatchRepository) list(ctx context.Context, query string, arg any) ([]*model.DispatchRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list dispatch records")
	}
	defer rows.Close()

	result := make([]*model.DispatchRecord, 0)
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan dispatch record")
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate dispatch records")
	}
	return result, nil
}
