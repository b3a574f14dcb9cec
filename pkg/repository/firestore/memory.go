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

type memoryDoc struct {
	ID             string    `firestore:"ID"`
	CustomerID     string    `firestore:"CustomerID"`
	ConversationID string    `firestore:"ConversationID"`
	Type           string    `firestore:"Type"`
	Content        string    `firestore:"Content"`
	CreatedAt      time.Time `firestore:"CreatedAt"`
}

type memoryRepository struct {
	client     *firestore.Client
	collection string
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

	d := &memoryDoc{
		ID:             string(created.ID),
		CustomerID:     string(created.CustomerID),
		ConversationID: string(created.ConversationID),
		Type:           string(created.Type),
		Content:        created.Content,
		CreatedAt:      created.CreatedAt,
	}
	if _, err := r.client.Collection(r.collection).Doc(d.ID).Create(ctx, d); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrAlreadyExists, "memory entry already exists", goerr.V("memory_id", d.ID))
		}
		return nil, goerr.Wrap(err, "failed to create memory entry", goerr.V("customer_id", entry.CustomerID))
	}
	return &created, nil
}

func (r *memoryRepository) List(ctx context.Context, customerID model.CustomerID, memoryType types.MemoryType) ([]*model.MemoryEntry, error) {
	q := r.client.Collection(r.collection).Where("CustomerID", "==", string(customerID))
	if memoryType != "" {
		q = q.Where("Type", "==", string(memoryType))
	}
	iter := q.OrderBy("CreatedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	result := make([]*model.MemoryEntry, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory entries", goerr.V("customer_id", customerID))
		}

		var d memoryDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory entry")
		}
		result = append(result, &model.MemoryEntry{
			ID:             model.MemoryID(d.ID),
			CustomerID:     model.CustomerID(d.CustomerID),
			ConversationID: model.ConversationID(d.ConversationID),
			Type:           types.MemoryType(d.Type),
			Content:        d.Content,
			CreatedAt:      d.CreatedAt,
		})
	}
	return result, nil
}
