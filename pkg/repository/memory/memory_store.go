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

type memoryRepository struct {
	mu      sync.RWMutex
	entries map[model.CustomerID][]*model.MemoryEntry
	ids     map[model.MemoryID]struct{}
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		entries: make(map[model.CustomerID][]*model.MemoryEntry),
		ids:     make(map[model.MemoryID]struct{}),
	}
}

func copyMemoryEntry(m *model.MemoryEntry) *model.MemoryEntry {
	copied := *m
	return &copied
}

func (r *memoryRepository) Create(ctx context.Context, entry *model.MemoryEntry) (*model.MemoryEntry, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyMemoryEntry(entry)
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	if _, exists := r.ids[created.ID]; exists {
		return nil, goerr.Wrap(model.ErrAlreadyExists, "memory entry already exists", goerr.V("memory_id", created.ID))
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	r.ids[created.ID] = struct{}{}
	r.entries[created.CustomerID] = append(r.entries[created.CustomerID], created)
	return copyMemoryEntry(created), nil
}

func (r *memoryRepository) List(ctx context.Context, customerID model.CustomerID, memoryType types.MemoryType) ([]*model.MemoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.entries[customerID]
	result := make([]*model.MemoryEntry, 0, len(bucket))
	// Walk newest insertion first so the stable sort keeps the latest write
	// ahead on CreatedAt ties.
	for i := len(bucket) - 1; i >= 0; i-- {
		m := bucket[i]
		if memoryType != "" && m.Type != memoryType {
			continue
		}
		result = append(result, copyMemoryEntry(m))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}
