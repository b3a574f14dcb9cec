package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

type memoryRepository struct {
	db *sql.DB
}

func (r *memoryRepository) Create(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	created := *entry
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO memory_entries (id, customer_id, conversation_id, type, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		created.ID, created.CustomerID, created.ConversationID, created.Type, created.Content, toUnix(created.CreatedAt))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory entry", goerr.V("customer_id", entry.CustomerID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return nil, goerr.Wrap(model.ErrAlreadyExists, "memory entry already exists", goerr.V("memory_id", created.ID))
	}
	created.CreatedAt = fromUnix(toUnix(created.CreatedAt))
	return &created, nil
}

func (r *memoryRepository) List(ctx context.Context, customerID model.CustomerID, memoryType types.MemoryType) ([]*model.MemoryEntry, error) {
	query := `SELECT id, customer_id, conversation_id, type, content, created_at
		FROM memory_entries WHERE customer_id = ?`
	args := []any{customerID}
	if memoryType != "" {
		query += " AND type = ?"
		args = append(args, memoryType)
	}
	query += " ORDER BY created_at DESC, seq DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memory entries", goerr.V("customer_id", customerID))
	}
	defer rows.Close()

	result := make([]*model.MemoryEntry, 0)
	for rows.Next() {
		var (
			m         model.MemoryEntry
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.ConversationID, &m.Type, &m.Content, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory entry")
		}
		m.CreatedAt = fromUnix(createdAt)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memory entries")
	}
	return result, nil
}
