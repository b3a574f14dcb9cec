package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
)

type embeddingRepository struct {
	db        *sql.DB
	dimension int
}

// Insert writes all records in one transaction
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

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin embedding insert")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = model.NewEmbeddingID()
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		vector, err := json.Marshal(rec.Vector)
		if err != nil {
			return goerr.Wrap(err, "failed to encode vector")
		}
		metadata := rec.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		meta, err := json.Marshal(metadata)
		if err != nil {
			return goerr.Wrap(err, "failed to encode metadata")
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings (id, customer_id, owner_id, source_type, chunk_index, content, vector, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, rec.CustomerID, rec.OwnerID, rec.SourceType, rec.ChunkIndex, rec.Content,
			string(vector), string(meta), toUnix(createdAt)); err != nil {
			return goerr.Wrap(err, "failed to insert embedding", goerr.V("owner_id", rec.OwnerID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit embeddings")
	}
	return nil
}

func (r *embeddingRepository) Search(ctx context.Context, query model.SearchQuery) ([]*model.SearchResult, error) {
	if r.dimension > 0 && len(query.Vector) != r.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query vector dimension mismatch",
			goerr.V("expected", r.dimension),
			goerr.V("actual", len(query.Vector)))
	}

	sqlQuery := `SELECT id, customer_id, owner_id, source_type, chunk_index, content, vector, metadata, created_at
		FROM embeddings WHERE customer_id = ?`
	args := []any{query.CustomerID}
	if sources := query.CandidateSourceTypes(); len(sources) > 0 {
		placeholders := make([]string, len(sources))
		for i, st := range sources {
			placeholders[i] = "?"
			args = append(args, st)
		}
		sqlQuery += " AND source_type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, goerr.Wrap(model.ErrServiceUnavailable, "failed to query embeddings",
			goerr.V("customer_id", query.CustomerID),
			goerr.V("cause", err.Error()))
	}
	defer rows.Close()

	candidates := make([]*model.EmbeddingRecord, 0)
	for rows.Next() {
		var (
			rec          model.EmbeddingRecord
			vector, meta string
			createdAt    int64
		)
		if err := rows.Scan(&rec.ID, &rec.CustomerID, &rec.OwnerID, &rec.SourceType, &rec.ChunkIndex,
			&rec.Content, &vector, &meta, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan embedding")
		}
		if err := json.Unmarshal([]byte(vector), &rec.Vector); err != nil {
			return nil, goerr.Wrap(err, "failed to decode vector", goerr.V("id", rec.ID))
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, goerr.Wrap(err, "failed to decode metadata", goerr.V("id", rec.ID))
		}
		rec.CreatedAt = fromUnix(createdAt)
		candidates = append(candidates, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate embeddings")
	}

	return model.RankCandidates(candidates, query), nil
}
