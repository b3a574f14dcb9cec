package interfaces

import (
	"context"
	"time"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

// ContextCache is a non-authoritative cache of retrieval results. Backend
// failures surface as misses, never as errors.
type ContextCache interface {
	Get(ctx context.Context, key string) (*model.ContextBundle, bool)
	Put(ctx context.Context, key string, bundle *model.ContextBundle, ttl time.Duration)
}
