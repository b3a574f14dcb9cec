package model

import (
	"math"
	"sort"
	"time"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/types"
)

// CosineSimilarity returns the cosine of the angle between a and b in [-1, 1].
// Vectors of different length or zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	sim := dot / denom
	// Clamp rounding drift so identical vectors never exceed 1.
	return math.Max(-1, math.Min(1, sim))
}

type slotKey struct {
	ownerID    string
	sourceType types.SourceType
	chunkIndex int
}

// CurrentGeneration keeps only the records of the newest indexing pass of
// each owner. A pass stamps all its records with one CreatedAt, so a
// re-embed that yields fewer chunks hides the old tail too. Within a pass a
// repeated (SourceType, ChunkIndex) keeps the larger ID.
func CurrentGeneration(records []*EmbeddingRecord) []*EmbeddingRecord {
	newest := make(map[GenerationKey]time.Time, len(records))
	for _, r := range records {
		k := r.GenerationKey()
		if cur, ok := newest[k]; !ok || r.CreatedAt.After(cur) {
			newest[k] = r.CreatedAt
		}
	}
	return DropSuperseded(records, newest)
}

// DropSuperseded removes records older than the newest pass recorded for
// their generation. Records whose generation is absent from newest are kept.
func DropSuperseded(records []*EmbeddingRecord, newest map[GenerationKey]time.Time) []*EmbeddingRecord {
	picked := make(map[slotKey]*EmbeddingRecord, len(records))
	order := make([]slotKey, 0, len(records))

	for _, r := range records {
		if t, ok := newest[r.GenerationKey()]; ok && r.CreatedAt.Before(t) {
			continue
		}
		k := slotKey{ownerID: r.OwnerID, sourceType: r.SourceType, chunkIndex: r.ChunkIndex}
		cur, ok := picked[k]
		if !ok {
			order = append(order, k)
			picked[k] = r
			continue
		}
		if r.CreatedAt.After(cur.CreatedAt) ||
			(r.CreatedAt.Equal(cur.CreatedAt) && r.ID > cur.ID) {
			picked[k] = r
		}
	}

	result := make([]*EmbeddingRecord, 0, len(order))
	for _, k := range order {
		result = append(result, picked[k])
	}
	return result
}

// RankCandidates applies the vector store's ordering contract to a candidate
// set: scope to the query's customer, collapse to the newest generation of
// each owner, keep the requested source types, drop anything below
// MinSimilarity, order by similarity then recency then ID, and cut to TopK.
// Every backend funnels through here.
func RankCandidates(candidates []*EmbeddingRecord, q SearchQuery) []*SearchResult {
	scoped := make([]*EmbeddingRecord, 0, len(candidates))
	for _, r := range candidates {
		if r.CustomerID != q.CustomerID || !q.allowsCandidate(r.SourceType) {
			continue
		}
		scoped = append(scoped, r)
	}

	results := make([]*SearchResult, 0, len(scoped))
	for _, r := range CurrentGeneration(scoped) {
		if !q.AllowsSource(r.SourceType) {
			continue
		}
		if len(r.Vector) != len(q.Vector) {
			continue
		}
		sim := CosineSimilarity(q.Vector, r.Vector)
		if sim < q.MinSimilarity {
			continue
		}
		results = append(results, &SearchResult{Record: r, Similarity: sim})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ID < b.Record.ID
	})

	if q.TopK > 0 && len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results
}
