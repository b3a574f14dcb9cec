package contextcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// Ristretto is an in-process cache. Bundles are stored as JSON so callers
// can never mutate a cached value.
type Ristretto struct {
	cache *ristretto.Cache
}

var _ interfaces.ContextCache = &Ristretto{}

// NewRistretto creates a cache bounded to roughly maxBytes of encoded bundles
func NewRistretto(maxBytes int64) (*Ristretto, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create context cache")
	}
	return &Ristretto{cache: cache}, nil
}

func (r *Ristretto) Get(ctx context.Context, key string) (*model.ContextBundle, bool) {
	v, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	raw, ok := v.([]byte)
	if !ok {
		return nil, false
	}

	var bundle model.ContextBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		logging.From(ctx).Warn("dropping undecodable context cache entry", "key", key, logging.ErrAttr(err))
		r.cache.Del(key)
		return nil, false
	}
	return &bundle, true
}

func (r *Ristretto) Put(ctx context.Context, key string, bundle *model.ContextBundle, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		logging.From(ctx).Warn("failed to encode context bundle", "key", key, logging.ErrAttr(err))
		return
	}
	if !r.cache.SetWithTTL(key, raw, int64(len(raw)), ttl) {
		logging.From(ctx).Warn("context cache rejected entry", "key", key, "bytes", len(raw))
		return
	}
	// Writes are buffered; wait so that an identical request right after
	// this one is a hit.
	r.cache.Wait()
}

func (r *Ristretto) Close() {
	r.cache.Close()
}
