package chromem

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

const (
	metaCustomerID = "customer_id"
	metaOwnerID    = "owner_id"
	metaSourceType = "source_type"
	metaChunkIndex = "chunk_index"
	metaCreatedAt  = "created_at"
	metaPrefix     = "meta."
)

// Store is an embedded vector index backed by chromem-go with one collection
// per customer. It only implements the embedding contract; the relational
// data stays in the base repository.
type Store struct {
	db        *chromem.DB
	dimension int

	mu          sync.RWMutex
	collections map[model.CustomerID]*chromem.Collection
}

var _ interfaces.EmbeddingRepository = &Store{}

type Option func(*Store)

// WithDimension makes the store reject vectors of any other length
func WithDimension(dim int) Option {
	return func(s *Store) {
		s.dimension = dim
	}
}

// New creates an in-memory index, or a persistent one when path is not empty
func New(path string, opts ...Option) (*Store, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		pdb, err := chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open chromem database", goerr.V("path", path))
		}
		db = pdb
	}

	s := &Store{
		db:          db,
		collections: make(map[model.CustomerID]*chromem.Collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) collection(customerID model.CustomerID) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[customerID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[customerID]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection("customer_"+string(customerID), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create collection", goerr.V("customer_id", customerID))
	}
	s.collections[customerID] = col
	return col, nil
}

func (s *Store) Insert(ctx context.Context, records ...*model.EmbeddingRecord) error {
	for _, rec := range records {
		if len(rec.Vector) == 0 {
			return goerr.Wrap(model.ErrValidation, "embedding vector is empty", goerr.V("owner_id", rec.OwnerID))
		}
		if s.dimension > 0 && len(rec.Vector) != s.dimension {
			return goerr.Wrap(model.ErrDimensionMismatch, "embedding dimension mismatch",
				goerr.V("owner_id", rec.OwnerID),
				goerr.V("expected", s.dimension),
				goerr.V("actual", len(rec.Vector)))
		}
	}

	now := time.Now().UTC()
	for _, rec := range records {
		col, err := s.collection(rec.CustomerID)
		if err != nil {
			return err
		}

		id := rec.ID
		if id == "" {
			id = model.NewEmbeddingID()
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		meta := map[string]string{
			metaCustomerID: string(rec.CustomerID),
			metaOwnerID:    rec.OwnerID,
			metaSourceType: string(rec.SourceType),
			metaChunkIndex: strconv.Itoa(rec.ChunkIndex),
			metaCreatedAt:  createdAt.Format(time.RFC3339Nano),
		}
		for k, v := range rec.Metadata {
			meta[metaPrefix+k] = v
		}

		vector := make([]float32, len(rec.Vector))
		copy(vector, rec.Vector)

		if err := col.AddDocument(ctx, chromem.Document{
			ID:        string(id),
			Content:   rec.Content,
			Embedding: vector,
			Metadata:  meta,
		}); err != nil {
			return goerr.Wrap(model.ErrServiceUnavailable, "failed to add document",
				goerr.V("owner_id", rec.OwnerID),
				goerr.V("cause", err.Error()))
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query model.SearchQuery) ([]*model.SearchResult, error) {
	if s.dimension > 0 && len(query.Vector) != s.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector dimension mismatch",
			goerr.V("expected", s.dimension),
			goerr.V("actual", len(query.Vector)))
	}

	col, err := s.collection(query.CustomerID)
	if err != nil {
		return nil, err
	}

	// QueryEmbedding fails when asked for more results than documents exist
	n := col.Count()
	if n == 0 {
		return []*model.SearchResult{}, nil
	}

	// Generation collapsing needs every version, so the whole customer
	// collection is ranked rather than the chromem top-n.
	results, err := col.QueryEmbedding(ctx, query.Vector, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(model.ErrServiceUnavailable, "failed to query collection",
			goerr.V("customer_id", query.CustomerID),
			goerr.V("cause", err.Error()))
	}

	candidates := make([]*model.EmbeddingRecord, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, fromResult(r))
	}
	return model.RankCandidates(candidates, query), nil
}

func fromResult(r chromem.Result) *model.EmbeddingRecord {
	rec := &model.EmbeddingRecord{
		ID:         model.EmbeddingID(r.ID),
		CustomerID: model.CustomerID(r.Metadata[metaCustomerID]),
		OwnerID:    r.Metadata[metaOwnerID],
		SourceType: types.SourceType(r.Metadata[metaSourceType]),
		Content:    r.Content,
		Vector:     r.Embedding,
	}
	rec.ChunkIndex, _ = strconv.Atoi(r.Metadata[metaChunkIndex])
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.Metadata[metaCreatedAt])

	for k, v := range r.Metadata {
		if name, ok := strings.CutPrefix(k, metaPrefix); ok && name != "" {
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]string)
			}
			rec.Metadata[name] = v
		}
	}
	return rec
}

// repository overrides the embedding store of a base repository
type repository struct {
	interfaces.Repository
	store *Store
}

// Wrap returns base with its Embedding() served by store
func Wrap(base interfaces.Repository, store *Store) interfaces.Repository {
	return &repository{Repository: base, store: store}
}

func (r *repository) Embedding() interfaces.EmbeddingRepository {
	return r.store
}
