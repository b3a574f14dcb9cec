package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

type dispatchDoc struct {
	IdempotencyKey string     `firestore:"IdempotencyKey"`
	ConversationID string     `firestore:"ConversationID"`
	CustomerID     string     `firestore:"CustomerID"`
	ActionType     string     `firestore:"ActionType"`
	Epoch          int        `firestore:"Epoch"`
	Status         string     `firestore:"Status"`
	Reason         string     `firestore:"Reason"`
	Attempts       int        `firestore:"Attempts"`
	ExecutedAt     *time.Time `firestore:"ExecutedAt"`
	CreatedAt      time.Time  `firestore:"CreatedAt"`
	UpdatedAt      time.Time  `firestore:"UpdatedAt"`
}

func toDispatchDoc(d *model.DispatchRecord) *dispatchDoc {
	return &dispatchDoc{
		IdempotencyKey: d.IdempotencyKey,
		ConversationID: string(d.ConversationID),
		CustomerID:     string(d.CustomerID),
		ActionType:     string(d.ActionType),
		Epoch:          d.Epoch,
		Status:         string(d.Status),
		Reason:         d.Reason,
		Attempts:       d.Attempts,
		ExecutedAt:     d.ExecutedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDispatchDoc(d *dispatchDoc) *model.DispatchRecord {
	return &model.DispatchRecord{
		IdempotencyKey: d.IdempotencyKey,
		ConversationID: model.ConversationID(d.ConversationID),
		CustomerID:     model.CustomerID(d.CustomerID),
		ActionType:     types.ActionType(d.ActionType),
		Epoch:          d.Epoch,
		Status:         types.DispatchStatus(d.Status),
		Reason:         d.Reason,
		Attempts:       d.Attempts,
		ExecutedAt:     d.ExecutedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func docToDispatch(snap *firestore.DocumentSnapshot) (*model.DispatchRecord, error) {
	var d dispatchDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return fromDispatchDoc(&d), nil
}

type dispatchRepository struct {
	client     *firestore.Client
	collection string
}

func (r *dispatchRepository) doc(key string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(key)
}

// Acquire uses DocumentRef.Create so the server enforces insert-if-absent
func (r *dispatchRepository) Acquire(ctx context.Context, record *model.DispatchRecord) (*model.DispatchRecord, bool, error) {
	stored := record.Copy()
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if _, err := r.doc(record.IdempotencyKey).Create(ctx, toDispatchDoc(stored)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			existing, err := r.Get(ctx, record.IdempotencyKey)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, goerr.Wrap(err, "failed to acquire dispatch record", goerr.V("key", record.IdempotencyKey))
	}
	return stored, true, nil
}

func (r *dispatchRepository) Finish(ctx context.Context, key string, st types.DispatchStatus, reason string, attempts int) (*model.DispatchRecord, error) {
	now := time.Now().UTC()
	updates := []firestore.Update{
		{Path: "Status", Value: string(st)},
		{Path: "Reason", Value: reason},
		{Path: "Attempts", Value: attempts},
		{Path: "UpdatedAt", Value: now},
	}
	if st == types.DispatchStatusExecuted {
		updates = append(updates, firestore.Update{Path: "ExecutedAt", Value: now})
	}

	if _, err := r.doc(key).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "dispatch record not found", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to finish dispatch record", goerr.V("key", key))
	}
	return r.Get(ctx, key)
}

// Reclaim is a compare-and-set from failed to pending inside a transaction
func (r *dispatchRepository) Reclaim(ctx context.Context, key string) (*model.DispatchRecord, bool, error) {
	ref := r.doc(key)
	var (
		result    *model.DispatchRecord
		reclaimed bool
	)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		reclaimed = false
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(model.ErrNotFound, "dispatch record not found", goerr.V("key", key))
			}
			return goerr.Wrap(err, "failed to get dispatch record")
		}

		rec, err := docToDispatch(snap)
		if err != nil {
			return goerr.Wrap(err, "failed to decode dispatch record")
		}
		result = rec
		if rec.Status != types.DispatchStatusFailed {
			return nil
		}

		rec.Status = types.DispatchStatusPending
		rec.UpdatedAt = time.Now().UTC()
		reclaimed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "Status", Value: string(rec.Status)},
			{Path: "UpdatedAt", Value: rec.UpdatedAt},
		})
	})
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to reclaim dispatch record", goerr.V("key", key))
	}
	return result, reclaimed, nil
}

func (r *dispatchRepository) Get(ctx context.Context, key string) (*model.DispatchRecord, error) {
	snap, err := r.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "dispatch record not found", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to get dispatch record", goerr.V("key", key))
	}
	rec, err := docToDispatch(snap)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode dispatch record", goerr.V("key", key))
	}
	return rec, nil
}

func (r *dispatchRepository) ListByConversation(ctx context.Context, conversationID model.ConversationID) ([]*model.DispatchRecord, error) {
	iter := r.client.Collection(r.collection).
		Where("ConversationID", "==", string(conversationID)).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	return collectDispatches(iter)
}

func (r *dispatchRepository) ListByStatus(ctx context.Context, st types.DispatchStatus) ([]*model.DispatchRecord, error) {
	iter := r.client.Collection(r.collection).
		Where("Status", "==", string(st)).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	return collectDispatches(iter)
}

func collectDispatches(iter *firestore.DocumentIterator) ([]*model.DispatchRecord, error) {
	defer iter.Stop()

	result := make([]*model.DispatchRecord, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate dispatch records")
		}
		rec, err := docToDispatch(snap)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode dispatch record")
		}
		result = append(result, rec)
	}
	return result, nil
}
