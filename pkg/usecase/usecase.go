package usecase

import (
	"context"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/action"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/analyzer"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/contextcache"
)

// Embedder turns text into vectors of a fixed dimension
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ConversationAnalyzer extracts the structured reading of a conversation
type ConversationAnalyzer interface {
	Analyze(ctx context.Context, in analyzer.Input) (*model.AnalysisResult, error)
}

// Reranker reorders and filters retrieval candidates. It must not invent
// candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []*model.SearchResult) ([]*model.SearchResult, error)
}

// HandlerRegistry resolves the handler registered for an action type
type HandlerRegistry interface {
	Lookup(t types.ActionType) (action.Registration, bool)
}

type UseCases struct {
	repo     interfaces.Repository
	embedder Embedder
	analyzer ConversationAnalyzer
	reranker Reranker
	cache    interfaces.ContextCache
	registry HandlerRegistry

	retrievalConfig RetrievalConfig
	dispatchConfig  DispatchConfig
	indexConfig     IndexConfig

	Retrieval    *RetrievalUseCase
	Conversation *ConversationUseCase
	Dispatch     *DispatchUseCase
	Memory       *MemoryUseCase
}

type Option func(*UseCases)

func WithEmbedder(e Embedder) Option {
	return func(uc *UseCases) {
		uc.embedder = e
	}
}

func WithAnalyzer(a ConversationAnalyzer) Option {
	return func(uc *UseCases) {
		uc.analyzer = a
	}
}

// WithReranker enables LLM re-ranking of close retrieval candidates
func WithReranker(r Reranker) Option {
	return func(uc *UseCases) {
		uc.reranker = r
	}
}

func WithContextCache(c interfaces.ContextCache) Option {
	return func(uc *UseCases) {
		uc.cache = c
	}
}

func WithHandlerRegistry(r HandlerRegistry) Option {
	return func(uc *UseCases) {
		uc.registry = r
	}
}

// WithMemoryUseCase shares a memory use case that was built before the
// handler registry, since built-in handlers record facts through it.
func WithMemoryUseCase(m *MemoryUseCase) Option {
	return func(uc *UseCases) {
		uc.Memory = m
	}
}

func WithRetrievalConfig(cfg RetrievalConfig) Option {
	return func(uc *UseCases) {
		uc.retrievalConfig = cfg
	}
}

func WithDispatchConfig(cfg DispatchConfig) Option {
	return func(uc *UseCases) {
		uc.dispatchConfig = cfg
	}
}

func WithIndexConfig(cfg IndexConfig) Option {
	return func(uc *UseCases) {
		uc.indexConfig = cfg
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:            repo,
		cache:           contextcache.Noop{},
		retrievalConfig: DefaultRetrievalConfig(),
		dispatchConfig:  DefaultDispatchConfig(),
		indexConfig:     DefaultIndexConfig(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.Memory == nil {
		uc.Memory = NewMemoryUseCase(repo, uc.embedder)
	}
	uc.Retrieval = NewRetrievalUseCase(repo, uc.embedder, uc.cache, uc.reranker, uc.retrievalConfig)
	uc.Dispatch = NewDispatchUseCase(repo, uc.registry, uc.dispatchConfig)
	uc.Conversation = NewConversationUseCase(repo, uc.analyzer, uc.embedder, uc.Dispatch, uc.Memory, uc.indexConfig)

	return uc
}
