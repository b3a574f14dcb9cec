package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// DefaultEmbeddingDimension is used when no dimension is configured
const DefaultEmbeddingDimension = 768

// EmbeddingID is a UUID-based identifier for EmbeddingRecord
type EmbeddingID string

// NewEmbeddingID generates a new UUID v4 EmbeddingID
func NewEmbeddingID() EmbeddingID {
	return EmbeddingID(uuid.New().String())
}

// EmbeddingRecord is one vectorised piece of customer history. Records are
// append-only; re-embedding an owner inserts a newer generation and
// retrieval only considers the newest generation of each owner.
type EmbeddingRecord struct {
	ID         EmbeddingID
	CustomerID CustomerID
	// OwnerID is the conversation or memory entry the text came from
	OwnerID    string
	SourceType types.SourceType
	ChunkIndex int
	Content    string
	Vector     []float32
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Copy returns a deep copy
func (r *EmbeddingRecord) Copy() *EmbeddingRecord {
	c := *r
	if r.Vector != nil {
		c.Vector = make([]float32, len(r.Vector))
		copy(c.Vector, r.Vector)
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// GenerationKey identifies the records one indexing pass writes for an
// owner. Whole conversations and email chunks hold the same body, so they
// share a key.
type GenerationKey struct {
	OwnerID string
	Source  types.SourceType
}

// GenerationKey returns the key r belongs to
func (r *EmbeddingRecord) GenerationKey() GenerationKey {
	src := r.SourceType
	if src == types.SourceTypeEmailChunk {
		src = types.SourceTypeConversationFull
	}
	return GenerationKey{OwnerID: r.OwnerID, Source: src}
}

// GenerationSources returns every source type whose records can replace
// records of st
func GenerationSources(st types.SourceType) []types.SourceType {
	switch st {
	case types.SourceTypeConversationFull, types.SourceTypeEmailChunk:
		return []types.SourceType{types.SourceTypeConversationFull, types.SourceTypeEmailChunk}
	}
	return []types.SourceType{st}
}

// SearchQuery scopes a similarity search to one customer
type SearchQuery struct {
	CustomerID    CustomerID
	Vector        []float32
	SourceTypes   []types.SourceType // empty means all
	TopK          int
	MinSimilarity float64
}

// AllowsSource reports whether records of st are in scope
func (q SearchQuery) AllowsSource(st types.SourceType) bool {
	if len(q.SourceTypes) == 0 {
		return true
	}
	for _, s := range q.SourceTypes {
		if s == st {
			return true
		}
	}
	return false
}

// CandidateSourceTypes widens SourceTypes by the types sharing a generation
// with them. Backends load these so superseded records can be recognised.
// Empty means all.
func (q SearchQuery) CandidateSourceTypes() []types.SourceType {
	if len(q.SourceTypes) == 0 {
		return nil
	}
	seen := make(map[types.SourceType]struct{})
	var out []types.SourceType
	for _, st := range q.SourceTypes {
		for _, g := range GenerationSources(st) {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	return out
}

func (q SearchQuery) allowsCandidate(st types.SourceType) bool {
	if len(q.SourceTypes) == 0 {
		return true
	}
	for _, s := range q.CandidateSourceTypes() {
		if s == st {
			return true
		}
	}
	return false
}

// SearchResult is a record with its cosine similarity to the query
type SearchResult struct {
	Record     *EmbeddingRecord
	Similarity float64
}
