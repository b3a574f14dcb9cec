package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/errutil"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// MemoryUseCase stores durable customer facts and makes them retrievable
type MemoryUseCase struct {
	repo     interfaces.Repository
	embedder Embedder
}

func NewMemoryUseCase(repo interfaces.Repository, embedder Embedder) *MemoryUseCase {
	return &MemoryUseCase{
		repo:     repo,
		embedder: embedder,
	}
}

// Record appends entry and then embeds its content as a memory_entry
// record. An embedding failure is logged and does not fail the call: the
// fact itself is already durable.
func (uc *MemoryUseCase) Record(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error) {
	if entry.ID == "" {
		entry.ID = model.NewMemoryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	created, err := uc.repo.Memory().Create(ctx, entry)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create memory entry",
			goerr.V("customer_id", entry.CustomerID),
			goerr.V("type", entry.Type))
	}

	if err := uc.index(ctx, created); err != nil {
		_ = errutil.Handle(ctx, err, "failed to embed memory entry")
	}

	return created, nil
}

func (uc *MemoryUseCase) index(ctx context.Context, entry *model.MemoryEntry) error {
	if uc.embedder == nil {
		logging.From(ctx).Debug("no embedder configured, memory entry not indexed", "memory_id", entry.ID)
		return nil
	}

	vectors, err := uc.embedder.Embed(ctx, []string{entry.Content})
	if err != nil {
		return goerr.Wrap(err, "failed to embed memory entry", goerr.V("memory_id", entry.ID))
	}

	record := &model.EmbeddingRecord{
		ID:         model.NewEmbeddingID(),
		CustomerID: entry.CustomerID,
		OwnerID:    string(entry.ID),
		SourceType: types.SourceTypeMemoryEntry,
		Content:    entry.Content,
		Vector:     vectors[0],
		Metadata: map[string]string{
			"memory_type": entry.Type.String(),
		},
		CreatedAt: time.Now().UTC(),
	}
	if entry.ConversationID != "" {
		record.Metadata["conversation_id"] = entry.ConversationID.String()
	}

	if err := uc.repo.Embedding().Insert(ctx, record); err != nil {
		return goerr.Wrap(err, "failed to insert memory embedding", goerr.V("memory_id", entry.ID))
	}
	return nil
}

// List returns facts newest first. An empty memoryType lists every type.
func (uc *MemoryUseCase) List(ctx context.Context, customerID model.CustomerID, memoryType types.MemoryType) ([]*model.MemoryEntry, error) {
	if memoryType != "" && !memoryType.IsValid() {
		return nil, goerr.Wrap(model.ErrValidation, "invalid memory type", goerr.V("type", memoryType))
	}

	entries, err := uc.repo.Memory().List(ctx, customerID, memoryType)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memory entries", goerr.V("customer_id", customerID))
	}
	return entries, nil
}
