package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/contextcache"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// RetrievalConfig tunes context retrieval
type RetrievalConfig struct {
	TopK          int
	MinSimilarity float64
	// RerankMargin skips re-ranking when the best candidate leads the second
	// by more than this similarity gap
	RerankMargin    float64
	MaxContextChars int
	Timeout         time.Duration
	CacheTTL        time.Duration
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:            3,
		MinSimilarity:   0.7,
		RerankMargin:    0.2,
		MaxContextChars: 4000,
		Timeout:         800 * time.Millisecond,
		CacheTTL:        contextcache.DefaultTTL,
	}
}

// RetrieveInput is one retrieval request. Zero TopK and nil MinSimilarity
// fall back to the configured defaults.
type RetrieveInput struct {
	CustomerID    model.CustomerID
	Query         string
	TopK          int
	MinSimilarity *float64
}

// RetrievalUseCase finds the customer history most relevant to a query
type RetrievalUseCase struct {
	repo     interfaces.Repository
	embedder Embedder
	cache    interfaces.ContextCache
	reranker Reranker
	cfg      RetrievalConfig
}

func NewRetrievalUseCase(repo interfaces.Repository, embedder Embedder, cache interfaces.ContextCache, reranker Reranker, cfg RetrievalConfig) *RetrievalUseCase {
	if cache == nil {
		cache = contextcache.Noop{}
	}
	return &RetrievalUseCase{
		repo:     repo,
		embedder: embedder,
		cache:    cache,
		reranker: reranker,
		cfg:      cfg,
	}
}

// Config returns the effective retrieval configuration
func (uc *RetrievalUseCase) Config() RetrievalConfig {
	return uc.cfg
}

// RetrieveContext returns the formatted context bundle for in. A cached
// bundle is returned without touching the embedder or the vector store.
// Failures of the embedder or the store are model.ErrRetrievalUnavailable.
func (uc *RetrievalUseCase) RetrieveContext(ctx context.Context, in RetrieveInput) (*model.ContextBundle, error) {
	if strings.TrimSpace(string(in.CustomerID)) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "customer id is required")
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, goerr.Wrap(model.ErrValidation, "query is empty", goerr.V("customer_id", in.CustomerID))
	}

	topK := in.TopK
	if topK <= 0 {
		topK = uc.cfg.TopK
	}
	minSim := uc.cfg.MinSimilarity
	if in.MinSimilarity != nil {
		minSim = *in.MinSimilarity
	}

	if _, ok := ctx.Deadline(); !ok && uc.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.Timeout)
		defer cancel()
	}

	key := model.ContextCacheKey(in.CustomerID, in.Query, topK, minSim)
	if bundle, ok := uc.cache.Get(ctx, key); ok {
		logging.From(ctx).Debug("context cache hit", "customer_id", in.CustomerID)
		return bundle, nil
	}

	if uc.embedder == nil {
		return nil, goerr.Wrap(model.ErrRetrievalUnavailable, "no embedder configured")
	}

	vectors, err := uc.embedder.Embed(ctx, []string{in.Query})
	if err != nil {
		return nil, goerr.Wrap(model.ErrRetrievalUnavailable, "failed to embed query",
			goerr.V("customer_id", in.CustomerID),
			goerr.V("cause", err.Error()))
	}

	candidates, err := uc.repo.Embedding().Search(ctx, model.SearchQuery{
		CustomerID:    in.CustomerID,
		Vector:        vectors[0],
		TopK:          topK,
		MinSimilarity: minSim,
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrRetrievalUnavailable, "failed to search vector store",
			goerr.V("customer_id", in.CustomerID),
			goerr.V("cause", err.Error()))
	}

	bundle := model.NewEmptyContextBundle(in.CustomerID, in.Query)
	candidates, bundle.Reranked = uc.rerank(ctx, in.Query, candidates)
	for _, c := range candidates {
		bundle.Snippets = append(bundle.Snippets, model.SnippetFromResult(c))
	}
	bundle.Profile = uc.profile(ctx, in.CustomerID)
	bundle.ApplyCharBudget(uc.cfg.MaxContextChars)

	uc.cache.Put(ctx, key, bundle, uc.cfg.CacheTTL)
	return bundle, nil
}

// RetrieveContextOrEmpty never fails: any error yields an empty bundle so a
// live conversation can continue without history.
func (uc *RetrievalUseCase) RetrieveContextOrEmpty(ctx context.Context, in RetrieveInput) *model.ContextBundle {
	bundle, err := uc.RetrieveContext(ctx, in)
	if err != nil {
		logging.From(ctx).Warn("context unavailable, continuing without history",
			"customer_id", in.CustomerID,
			logging.ErrAttr(err),
		)
		return model.NewEmptyContextBundle(in.CustomerID, in.Query)
	}
	return bundle
}

// ShouldRerank reports whether candidates are close enough at the top for
// re-ranking to change anything
func ShouldRerank(candidates []*model.SearchResult, margin float64) bool {
	if len(candidates) < 2 {
		return false
	}
	return candidates[0].Similarity-candidates[1].Similarity <= margin
}

func (uc *RetrievalUseCase) rerank(ctx context.Context, query string, candidates []*model.SearchResult) ([]*model.SearchResult, bool) {
	if uc.reranker == nil || !ShouldRerank(candidates, uc.cfg.RerankMargin) {
		return candidates, false
	}

	reranked, err := uc.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		logging.From(ctx).Warn("re-rank failed, keeping similarity order", logging.ErrAttr(err))
		return candidates, false
	}
	return reranked, true
}

func (uc *RetrievalUseCase) profile(ctx context.Context, customerID model.CustomerID) string {
	customer, err := uc.repo.Customer().Get(ctx, customerID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			logging.From(ctx).Warn("failed to load customer profile", "customer_id", customerID, logging.ErrAttr(err))
		}
		return ""
	}
	return customer.Profile()
}
