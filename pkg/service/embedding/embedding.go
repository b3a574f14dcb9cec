// Package embedding turns text into fixed-dimension vectors through a gollem
// LLM client.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"golang.org/x/sync/errgroup"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/retry"
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
	DefaultCacheTTL    = 24 * time.Hour
)

// Generator embeds text in batches. It is safe for concurrent use.
type Generator struct {
	client      gollem.LLMClient
	dimension   int
	batchSize   int
	concurrency int
	policy      retry.Policy

	cache    *ristretto.Cache
	cacheTTL time.Duration
}

type Option func(*Generator)

func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of batches in flight
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(g *Generator) {
		g.policy = p
	}
}

// WithCache reuses vectors of identical text for ttl. The cache is keyed by
// sha256 of the text so it never holds the text itself.
func WithCache(cache *ristretto.Cache, ttl time.Duration) Option {
	return func(g *Generator) {
		g.cache = cache
		if ttl > 0 {
			g.cacheTTL = ttl
		}
	}
}

// NewCache builds a ristretto cache sized for about maxEntries vectors
func NewCache(maxEntries int64) (*ristretto.Cache, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache")
	}
	return cache, nil
}

// New creates a Generator producing vectors of exactly dimension elements
func New(client gollem.LLMClient, dimension int, opts ...Option) (*Generator, error) {
	if client == nil {
		return nil, goerr.New("LLM client is required")
	}
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.V("dimension", dimension))
	}

	g := &Generator{
		client:      client,
		dimension:   dimension,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		policy:      retry.DefaultPolicy.On(model.ErrServiceUnavailable),
		cacheTTL:    DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dimension returns the configured vector length
func (g *Generator) Dimension() int {
	return g.dimension
}

// Embed returns one vector per text, in input order. Empty texts are rejected
// with model.ErrValidation. A backend failure that survives the retry policy
// is model.ErrServiceUnavailable; a vector of the wrong length is
// model.ErrDimensionMismatch and is never retried.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, goerr.Wrap(model.ErrValidation, "text to embed is empty", goerr.V("index", i))
		}
	}

	vectors := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if v, ok := g.cached(text); ok {
			vectors[i] = v
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return vectors, nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for start := 0; start < len(pending); start += g.batchSize {
		indices := pending[start:min(start+g.batchSize, len(pending))]
		batch := make([]string, len(indices))
		for j, idx := range indices {
			batch[j] = texts[idx]
		}

		eg.Go(func() error {
			var result [][]float32
			err := g.policy.Do(ctx, func(ctx context.Context) error {
				var err error
				result, err = g.embedBatch(ctx, batch)
				return err
			})
			if err != nil {
				return err
			}

			for j, idx := range indices {
				vectors[idx] = result[j]
				g.store(batch[j], result[j])
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logging.From(ctx).Debug("embedded texts",
		"count", len(texts),
		"cached", len(texts)-len(pending),
	)
	return vectors, nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	raw, err := g.client.GenerateEmbedding(ctx, g.dimension, batch)
	if err != nil {
		return nil, goerr.Wrap(model.ErrServiceUnavailable, "embedding backend failed",
			goerr.V("batch_size", len(batch)),
			goerr.V("cause", err.Error()))
	}
	if len(raw) != len(batch) {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedding count does not match input",
			goerr.V("expected", len(batch)),
			goerr.V("actual", len(raw)))
	}

	result := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != g.dimension {
			return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedding backend returned wrong dimension",
				goerr.V("expected", g.dimension),
				goerr.V("actual", len(v)),
				goerr.V("index", i))
		}
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		result[i] = vec
	}
	return result, nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func (g *Generator) cached(text string) ([]float32, bool) {
	if g.cache == nil {
		return nil, false
	}
	v, ok := g.cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok || len(vec) != g.dimension {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

func (g *Generator) store(text string, vec []float32) {
	if g.cache == nil {
		return
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	if g.cache.SetWithTTL(cacheKey(text), stored, 1, g.cacheTTL) {
		g.cache.Wait()
	}
}

// ChunkText splits text into windows of size words that overlap by overlap
// words. Text that fits in one window is returned unchanged.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	words := strings.Fields(text)
	if len(words) <= size {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(words); start += size - overlap {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
