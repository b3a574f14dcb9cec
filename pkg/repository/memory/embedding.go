package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

type embeddingRepository struct {
	dimension int

	mu      sync.RWMutex
	records map[model.CustomerID][]*model.EmbeddingRecord
}

func newEmbeddingRepository() *embeddingRepository {
	return &embeddingRepository{
		records: make(map[model.CustomerID][]*model.EmbeddingRecord),
	}
}

func (r *embeddingRepository) Insert(ctx context.Context, records ...*model.EmbeddingRecord) error {
	if err := checkDimensions(r.dimension, records); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, rec := range records {
		stored := rec.Copy()
		if stored.ID == "" {
			stored.ID = model.NewEmbeddingID()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		r.records[stored.CustomerID] = append(r.records[stored.CustomerID], stored)
	}
	return nil
}

func (r *embeddingRepository) Search(ctx context.Context, query model.SearchQuery) ([]*model.SearchResult, error) {
	if r.dimension > 0 && len(query.Vector) != r.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector dimension mismatch",
			goerr.V("expected", r.dimension),
			goerr.V("actual", len(query.Vector)))
	}

	r.mu.RLock()
	candidates := make([]*model.EmbeddingRecord, 0, len(r.records[query.CustomerID]))
	for _, rec := range r.records[query.CustomerID] {
		candidates = append(candidates, rec.Copy())
	}
	r.mu.RUnlock()

	return model.RankCandidates(candidates, query), nil
}

func checkDimensions(dimension int, records []*model.EmbeddingRecord) error {
	for _, rec := range records {
		if len(rec.Vector) == 0 {
			return goerr.Wrap(model.ErrValidation, "embedding vector is empty", goerr.V("owner_id", rec.OwnerID))
		}
		if dimension > 0 && len(rec.Vector) != dimension {
			return goerr.Wrap(model.ErrDimensionMismatch, "embedding dimension mismatch",
				goerr.V("owner_id", rec.OwnerID),
				goerr.V("expected", dimension),
				goerr.V("actual", len(rec.Vector)))
		}
	}
	return nil
}
