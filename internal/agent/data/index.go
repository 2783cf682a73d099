package data

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/enterprise-data-agent/server/internal/agent/model"
)

// IndexedQuery is a cached query with its question embedding.
type IndexedQuery struct {
	model.CachedQuery
	Vector []float64
}

// Index stores cached queries and answers similarity and keyword lookups.
// Scores are normalised to [0, 1].
type Index interface {
	Upsert(ctx context.Context, entries []IndexedQuery) error
	VectorSearch(ctx context.Context, vector []float64, k int) ([]model.CachedQuery, error)
	KeywordSearch(ctx context.Context, text string, k int) ([]model.CachedQuery, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// MemoryIndex is an in-process Index for local runs and tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]IndexedQuery
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: map[string]IndexedQuery{}}
}

func (m *MemoryIndex) Upsert(_ context.Context, entries []IndexedQuery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return nil
}

func (m *MemoryIndex) VectorSearch(_ context.Context, vector []float64, k int) ([]model.CachedQuery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CachedQuery, 0, len(m.entries))
	for _, e := range m.entries {
		q := e.CachedQuery
		q.Score = clamp01(cosine(vector, e.Vector))
		out = append(out, q)
	}
	return topK(out, k), nil
}

func (m *MemoryIndex) KeywordSearch(_ context.Context, text string, k int) ([]model.CachedQuery, error) {
	terms := Tokenize(text)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CachedQuery, 0)
	for _, e := range m.entries {
		if s := KeywordScore(terms, e.Question); s > 0 {
			q := e.CachedQuery
			q.Score = s
			out = append(out, q)
		}
	}
	return topK(out, k), nil
}

func (m *MemoryIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *MemoryIndex) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryIndex) Ping(context.Context) error {
	return nil
}

// Tokenize lower-cases text and splits it into unique terms of two or more characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// KeywordScore is the fraction of query terms present in candidate.
func KeywordScore(terms []string, candidate string) float64 {
	if len(terms) == 0 {
		return 0
	}
	have := make(map[string]bool)
	for _, t := range Tokenize(candidate) {
		have[t] = true
	}
	hits := 0
	for _, t := range terms {
		if have[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// topK sorts by score descending, then id, and keeps k entries.
func topK(in []model.CachedQuery, k int) []model.CachedQuery {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Score != in[j].Score {
			return in[i].Score > in[j].Score
		}
		return in[i].ID < in[j].ID
	})
	if k > 0 && len(in) > k {
		in = in[:k]
	}
	return in
}
