// Package contextcache holds formatted retrieval results keyed by
// model.ContextCacheKey. Every backend is best effort: failures are logged and
// reported as misses.
package contextcache

import (
	"context"
	"time"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

// DefaultTTL applies when Put is called with a non-positive ttl
const DefaultTTL = time.Hour

// Noop never stores anything
type Noop struct{}

var _ interfaces.ContextCache = Noop{}

func (Noop) Get(ctx context.Context, key string) (*model.ContextBundle, bool) {
	return nil, false
}

func (Noop) Put(ctx context.Context, key string, bundle *model.ContextBundle, ttl time.Duration) {}
