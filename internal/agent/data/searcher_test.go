package data

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	"github.com/enterprise-data-agent/server/pkg/metrics"
)

// fakeEmbedder returns fixed vectors per text and a default for unknown text.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float64{0, 0, 1}
	}
	return out, nil
}

type failingIndex struct{ *MemoryIndex }

func (failingIndex) KeywordSearch(context.Context, string, int) ([]model.CachedQuery, error) {
	return nil, errors.New("index unavailable")
}

func TestHybridScoresByVectorAndRerank(t *testing.T) {
	idx := seedIndex(t)
	emb := &fakeEmbedder{vectors: map[string][]float64{"sales by region": {0.7, 0.7, 0}}}
	s := NewSearcher(idx, emb, 3)

	res, err := s.Hybrid(context.Background(), "sales by region")
	require.NoError(t, err)
	require.Len(t, res, 3)

	// "c" matches the vector exactly; "a" and "b" tie on the vector and the
	// keyword overlap puts "a" first without changing its score.
	assert.Equal(t, []string{"c", "a", "b"}, []string{res[0].ID, res[1].ID, res[2].ID})
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.InDelta(t, res[2].Score, res[1].Score, 1e-9)
	assert.Less(t, res[1].Score, 0.75)
}

func TestKeywordOverlapNeverPassesGate(t *testing.T) {
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(context.Background(), []IndexedQuery{{
		CachedQuery: model.CachedQuery{ID: "region", Question: "What were total sales by region last year?", Query: "SELECT region"},
		Vector:      []float64{1, 0, 0},
	}}))
	// every question embeds orthogonally to the cached one
	emb := &fakeEmbedder{}

	for _, mode := range []string{ModeHybrid, ModeKeyword} {
		cq := NewCachedQueries(NewSearcher(idx, emb, 3), model.SearchConfig{ConfidenceThreshold: 0.75, Mode: mode}, nil)
		for _, q := range []string{"sales", "total sales by product last year"} {
			out := cq.Lookup(context.Background(), q)
			assert.False(t, out.HasHighConfidenceMatch, "%s: %s", mode, q)
			assert.Nil(t, out.BestMatch, "%s: %s", mode, q)
			require.Len(t, out.AllMatches, 1)
			assert.Equal(t, "region", out.AllMatches[0].ID)
			assert.Zero(t, out.AllMatches[0].Score)
		}
	}
}

func TestSearchModes(t *testing.T) {
	idx := seedIndex(t)
	emb := &fakeEmbedder{vectors: map[string][]float64{"customers": {0, 1, 0}}}
	s := NewSearcher(idx, emb, 1)

	res, err := s.Search(context.Background(), "customers", ModeVector)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)

	res, err = s.Search(context.Background(), "customers", ModeKeyword)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)
	assert.Equal(t, 1, emb.calls)
}

func TestHybridPropagatesLegError(t *testing.T) {
	s := NewSearcher(failingIndex{seedIndex(t)}, &fakeEmbedder{}, 3)

	_, err := s.Hybrid(context.Background(), "sales")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestLoadAssignsStableIDs(t *testing.T) {
	idx := NewMemoryIndex()
	s := NewSearcher(idx, &fakeEmbedder{}, 3)
	entries := []model.CachedQuery{{Question: "Revenue by month", Query: "SELECT 1"}}

	n, err := s.Load(context.Background(), nil, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, QueryID("revenue by month "), entries[0].ID)

	_, err = s.Load(context.Background(), nil, entries)
	require.NoError(t, err)
	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLookupGate(t *testing.T) {
	idx := seedIndex(t)
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"total sales by region": {1, 0, 0},
		"weather":               {0, 0, 1},
		"customers":             {0.5, 0.5, 0.7},
	}}
	m := metrics.NewCollector(metrics.Config{Namespace: "test"})
	cq := NewCachedQueries(NewSearcher(idx, emb, 3), model.SearchConfig{ConfidenceThreshold: 0.75, Mode: ModeVector}, m)

	t.Run("high confidence", func(t *testing.T) {
		out := cq.Lookup(context.Background(), "total sales by region")
		assert.True(t, out.HasHighConfidenceMatch)
		require.NotNil(t, out.BestMatch)
		assert.Equal(t, "a", out.BestMatch.ID)
		assert.Equal(t, 0.75, out.Threshold)
		assert.Empty(t, out.Error)
	})

	t.Run("below threshold", func(t *testing.T) {
		out := cq.Lookup(context.Background(), "customers")
		assert.False(t, out.HasHighConfidenceMatch)
		assert.Nil(t, out.BestMatch)
		assert.NotEmpty(t, out.AllMatches)
	})

	t.Run("score equal to threshold passes", func(t *testing.T) {
		exact := NewMemoryIndex()
		require.NoError(t, exact.Upsert(context.Background(), []IndexedQuery{
			{CachedQuery: model.CachedQuery{ID: "k", Question: "revenue"}, Vector: []float64{3, 4, 0}},
		}))
		emb := &fakeEmbedder{vectors: map[string][]float64{"revenue": {1, 0, 0}}}
		gate := NewCachedQueries(NewSearcher(exact, emb, 3), model.SearchConfig{ConfidenceThreshold: 0.6, Mode: ModeVector}, nil)
		out := gate.Lookup(context.Background(), "revenue")
		assert.True(t, out.HasHighConfidenceMatch)
		require.NotNil(t, out.BestMatch)
		assert.Equal(t, 0.6, out.BestMatch.Score)
	})

	t.Run("empty index", func(t *testing.T) {
		gate := NewCachedQueries(NewSearcher(NewMemoryIndex(), emb, 3), model.SearchConfig{ConfidenceThreshold: 0.75}, m)
		out := gate.Lookup(context.Background(), "weather")
		assert.False(t, out.HasHighConfidenceMatch)
		assert.Equal(t, NoMatchesMessage, out.Message)
		assert.NotNil(t, out.AllMatches)
	})

	t.Run("embedding failure", func(t *testing.T) {
		gate := NewCachedQueries(NewSearcher(idx, &fakeEmbedder{err: errors.New("quota")}, 3), model.SearchConfig{ConfidenceThreshold: 0.75, Mode: ModeVector}, m)
		out := gate.Lookup(context.Background(), "weather")
		assert.False(t, out.HasHighConfidenceMatch)
		assert.Contains(t, out.Error, "quota")
	})

	for _, result := range []string{"hit", "miss", "empty", "error"} {
		assert.Equal(t, 1.0, lookupCount(t, m, result), result)
	}
}

func lookupCount(t *testing.T, m *metrics.Collector, result string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "test_cached_query_lookups_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
