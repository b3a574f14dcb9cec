package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

type dispatchRepository struct {
	mu      sync.Mutex
	records map[string]*model.DispatchRecord
}

func newDispatchRepository() *dispatchRepository {
	return &dispatchRepository{
		records: make(map[string]*model.DispatchRecord),
	}
}

func (r *dispatchRepository) Acquire(ctx context.Context, record *model.DispatchRecord) (*model.DispatchRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[record.IdempotencyKey]; ok {
		return existing.Copy(), false, nil
	}

	stored := record.Copy()
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.records[stored.IdempotencyKey] = stored
	return stored.Copy(), true, nil
}

func (r *dispatchRepository) Finish(ctx context.Context, key string, status types.DispatchStatus, reason string, attempts int) (*model.DispatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "dispatch record not found", goerr.V("key", key))
	}

	now := time.Now().UTC()
	rec.Status = status
	rec.Reason = reason
	rec.Attempts = attempts
	rec.UpdatedAt = now
	if status == types.DispatchStatusExecuted {
		rec.ExecutedAt = &now
	}
	return rec.Copy(), nil
}

func (r *dispatchRepository) Reclaim(ctx context.Context, key string) (*model.DispatchRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, false, goerr.Wrap(model.ErrNotFound, "dispatch record not found", goerr.V("key", key))
	}
	if rec.Status != types.DispatchStatusFailed {
		return rec.Copy(), false, nil
	}

	rec.Status = types.DispatchStatusPending
	rec.UpdatedAt = time.Now().UTC()
	return rec.Copy(), true, nil
}

func (r *dispatchRepository) Get(ctx context.Context, key string) (*model.DispatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "dispatch record not found", goerr.V("key", key))
	}
	return rec.Copy(), nil
}

func (r *dispatchRepository) ListByConversation(ctx context.Context, conversationID model.ConversationID) ([]*model.DispatchRecord, error) {
	return r.list(func(rec *model.DispatchRecord) bool {
		return rec.ConversationID == conversationID
	}), nil
}

func (r *dispatchRepository) ListByStatus(ctx context.Context, status types.DispatchStatus) ([]*model.DispatchRecord, error) {
	return r.list(func(rec *model.DispatchRecord) bool {
		return rec.Status == status
	}), nil
}

func (r *dispatchRepository) list(match func(*model.DispatchRecord) bool) []*model.DispatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*model.DispatchRecord, 0)
	for _, rec := range r.records {
		if match(rec) {
			result = append(result, rec.Copy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].IdempotencyKey < result[j].IdempotencyKey
	})
	return result
}
