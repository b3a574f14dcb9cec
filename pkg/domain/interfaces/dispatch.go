package interfaces

import (
	"context"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// DispatchRepository is the idempotency ledger for action side effects
type DispatchRepository interface {
	// Acquire atomically inserts record if no row with its IdempotencyKey
	// exists. It returns the stored row and true when this call inserted it;
	// otherwise the existing row and false. Exactly one concurrent caller per
	// key observes true.
	Acquire(ctx context.Context, record *model.DispatchRecord) (*model.DispatchRecord, bool, error)

	// Finish records the outcome of an acquired row
	Finish(ctx context.Context, key string, status types.DispatchStatus, reason string, attempts int) (*model.DispatchRecord, error)

	// Reclaim moves a failed row back to pending for an explicit retry. It
	// returns false when the row is not in failed state.
	Reclaim(ctx context.Context, key string) (*model.DispatchRecord, bool, error)

	Get(ctx context.Context, key string) (*model.DispatchRecord, error)

	// ListByConversation returns rows ordered by CreatedAt
	ListByConversation(ctx context.Context, conversationID model.ConversationID) ([]*model.DispatchRecord, error)

	ListByStatus(ctx context.Context, status types.DispatchStatus) ([]*model.DispatchRecord, error)
}
