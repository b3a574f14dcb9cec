package interfaces

import (
	"context"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

// EmbeddingRepository is the vector store. Records are append-only.
type EmbeddingRepository interface {
	// Insert appends records. Implementations reject vectors that do not match
	// their configured dimension with model.ErrDimensionMismatch and insert
	// nothing in that case.
	Insert(ctx context.Context, records ...*model.EmbeddingRecord) error

	// Search returns results ordered as model.RankCandidates defines
	Search(ctx context.Context, query model.SearchQuery) ([]*model.SearchResult, error)
}
