package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// maxNearestNeighbors is the FindNearest limit enforced by Firestore
const maxNearestNeighbors = 1000

// candidateFactor over-fetches so that superseded versions of a record and
// results below the similarity floor do not starve TopK.
const candidateFactor = 4

// embeddingDoc stores Vector as firestore.Vector32 so FindNearest can use it
type embeddingDoc struct {
	ID         string             `firestore:"ID"`
	CustomerID string             `firestore:"CustomerID"`
	OwnerID    string             `firestore:"OwnerID"`
	SourceType string             `firestore:"SourceType"`
	ChunkIndex int                `firestore:"ChunkIndex"`
	Content    string             `firestore:"Content"`
	Vector     firestore.Vector32 `firestore:"Vector"`
	Metadata   map[string]string  `firestore:"Metadata,omitempty"`
	CreatedAt  time.Time          `firestore:"CreatedAt"`
}

func fromEmbeddingDoc(d *embeddingDoc) *model.EmbeddingRecord {
	return &model.EmbeddingRecord{
		ID:         model.EmbeddingID(d.ID),
		CustomerID: model.CustomerID(d.CustomerID),
		OwnerID:    d.OwnerID,
		SourceType: types.SourceType(d.SourceType),
		ChunkIndex: d.ChunkIndex,
		Content:    d.Content,
		Vector:     []float32(d.Vector),
		Metadata:   d.Metadata,
		CreatedAt:  d.CreatedAt,
	}
}

type embeddingRepository struct {
	client     *firestore.Client
	collection string
	dimension  int
}

// Insert writes all records in one batch so a partial set never becomes visible
func (r *embeddingRepository) Insert(ctx context.Context, records ...*model.EmbeddingRecord) error {
	for _, rec := range records {
		if len(rec.Vector) == 0 {
			return goerr.Wrap(model.ErrValidation, "embedding vector is empty", goerr.V("owner_id", rec.OwnerID))
		}
		if r.dimension > 0 && len(rec.Vector) != r.dimension {
			return goerr.Wrap(model.ErrDimensionMismatch, "embedding dimension mismatch",
				goerr.V("owner_id", rec.OwnerID),
				goerr.V("expected", r.dimension),
				goerr.V("actual", len(rec.Vector)))
		}
	}

	now := time.Now().UTC()
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, rec := range records {
			id := rec.ID
			if id == "" {
				id = model.NewEmbeddingID()
			}
			createdAt := rec.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			d := &embeddingDoc{
				ID:         string(id),
				CustomerID: string(rec.CustomerID),
				OwnerID:    rec.OwnerID,
				SourceType: string(rec.SourceType),
				ChunkIndex: rec.ChunkIndex,
				Content:    rec.Content,
				Vector:     firestore.Vector32(rec.Vector),
				Metadata:   rec.Metadata,
				CreatedAt:  createdAt,
			}
			if err := tx.Create(r.client.Collection(r.collection).Doc(d.ID), d); err != nil {
				return goerr.Wrap(err, "failed to stage embedding", goerr.V("owner_id", rec.OwnerID))
			}
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(model.ErrServiceUnavailable, "failed to insert embeddings", goerr.V("cause", err.Error()))
	}
	return nil
}

func (r *embeddingRepository) Search(ctx context.Context, query model.SearchQuery) ([]*model.SearchResult, error) {
	if r.dimension > 0 && len(query.Vector) != r.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector dimension mismatch",
			goerr.V("expected", r.dimension),
			goerr.V("actual", len(query.Vector)))
	}

	limit := query.TopK * candidateFactor
	if limit <= 0 || limit > maxNearestNeighbors {
		limit = maxNearestNeighbors
	}

	q := r.client.Collection(r.collection).Where("CustomerID", "==", string(query.CustomerID))
	if len(query.SourceTypes) > 0 {
		sts := make([]string, len(query.SourceTypes))
		for i, st := range query.SourceTypes {
			sts[i] = string(st)
		}
		q = q.Where("SourceType", "in", sts)
	}

	vq := q.FindNearest("Vector", firestore.Vector32(query.Vector), limit, firestore.DistanceMeasureCosine, nil)
	iter := vq.Documents(ctx)
	defer iter.Stop()

	candidates := make([]*model.EmbeddingRecord, 0, limit)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrServiceUnavailable, "failed to iterate vector search results",
				goerr.V("customer_id", query.CustomerID),
				goerr.V("cause", err.Error()))
		}

		var d embeddingDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode embedding")
		}
		candidates = append(candidates, fromEmbeddingDoc(&d))
	}

	// FindNearest sees only the closest documents, which can include a
	// superseded pass without the pass that replaced it.
	newest, err := r.newestGenerations(ctx, query.CustomerID, candidates)
	if err != nil {
		return nil, err
	}
	return model.RankCandidates(model.DropSuperseded(candidates, newest), query), nil
}

// newestGenerations looks up the CreatedAt of the latest pass of every
// generation present in candidates
func (r *embeddingRepository) newestGenerations(ctx context.Context, customerID model.CustomerID, candidates []*model.EmbeddingRecord) (map[model.GenerationKey]time.Time, error) {
	newest := make(map[model.GenerationKey]time.Time)
	for _, c := range candidates {
		key := c.GenerationKey()
		if _, ok := newest[key]; ok {
			continue
		}

		sources := model.GenerationSources(key.Source)
		sts := make([]string, len(sources))
		for i, st := range sources {
			sts[i] = string(st)
		}

		iter := r.client.Collection(r.collection).
			Where("CustomerID", "==", string(customerID)).
			Where("OwnerID", "==", key.OwnerID).
			Where("SourceType", "in", sts).
			OrderBy("CreatedAt", firestore.Desc).
			Limit(1).
			Documents(ctx)
		snap, err := iter.Next()
		iter.Stop()
		if err == iterator.Done {
			newest[key] = c.CreatedAt
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(model.ErrServiceUnavailable, "failed to look up newest embedding",
				goerr.V("customer_id", customerID),
				goerr.V("owner_id", key.OwnerID),
				goerr.V("cause", err.Error()))
		}

		var d embeddingDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode embedding")
		}
		newest[key] = d.CreatedAt
	}
	return newest, nil
}
