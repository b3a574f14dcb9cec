package interfaces

import (
	"context"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// MemoryRepository defines the interface for durable customer facts
type MemoryRepository interface {
	// Create fails with model.ErrAlreadyExists when an entry with the same ID
	// is already stored
	Create(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error)

	// List returns entries newest first. An empty memoryType matches all types.
	List(ctx context.Context, customerID model.CustomerID, memoryType types.MemoryType) ([]*model.MemoryEntry, error)
}
