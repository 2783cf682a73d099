package data

import (
	"context"
	"fmt"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	"github.com/enterprise-data-agent/server/pkg/qdrant"
)

// keywordOverfetch widens the scroll window since scroll results are unranked.
const keywordOverfetch = 10

// QdrantIndex stores cached queries in a Qdrant collection.
type QdrantIndex struct {
	client *qdrant.Client
}

func NewQdrantIndex(client *qdrant.Client) *QdrantIndex {
	return &QdrantIndex{client: client}
}

func (q *QdrantIndex) Upsert(ctx context.Context, entries []IndexedQuery) error {
	if len(entries) == 0 {
		return nil
	}
	if err := q.client.EnsureCollection(ctx, len(entries[0].Vector), "question"); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	points := make([]qdrant.Point, 0, len(entries))
	for _, e := range entries {
		points = append(points, qdrant.Point{
			ID:     e.ID,
			Vector: e.Vector,
			Payload: map[string]any{
				"question":  e.Question,
				"query":     e.Query,
				"reasoning": e.Reasoning,
			},
		})
	}
	return q.client.Upsert(ctx, points)
}

func (q *QdrantIndex) VectorSearch(ctx context.Context, vector []float64, k int) ([]model.CachedQuery, error) {
	hits, err := q.client.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	out := make([]model.CachedQuery, 0, len(hits))
	for _, h := range hits {
		cq := fromPayload(h)
		cq.Score = clamp01(h.Score)
		out = append(out, cq)
	}
	return topK(out, k), nil
}

func (q *QdrantIndex) KeywordSearch(ctx context.Context, text string, k int) ([]model.CachedQuery, error) {
	terms := Tokenize(text)
	hits, err := q.client.ScrollText(ctx, "question", terms, k*keywordOverfetch)
	if err != nil {
		return nil, err
	}
	out := make([]model.CachedQuery, 0, len(hits))
	for _, h := range hits {
		cq := fromPayload(h)
		if cq.Score = KeywordScore(terms, cq.Question); cq.Score > 0 {
			out = append(out, cq)
		}
	}
	return topK(out, k), nil
}

func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	return q.client.Delete(ctx, ids)
}

// Collection names the Qdrant collection backing the index.
func (q *QdrantIndex) Collection() string {
	return q.client.Collection()
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	return q.client.Count(ctx)
}

func (q *QdrantIndex) Ping(ctx context.Context) error {
	return q.client.Ping(ctx)
}

func fromPayload(p qdrant.ScoredPoint) model.CachedQuery {
	str := func(key string) string {
		v, _ := p.Payload[key].(string)
		return v
	}
	return model.CachedQuery{
		ID:        p.ID,
		Question:  str("question"),
		Query:     str("query"),
		Reasoning: str("reasoning"),
	}
}
