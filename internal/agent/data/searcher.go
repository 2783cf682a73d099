package data

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	errx "github.com/enterprise-data-agent/server/internal/core/error"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
	"github.com/enterprise-data-agent/server/pkg/metrics"
)

// Search modes.
const (
	ModeHybrid  = "hybrid"
	ModeVector  = "vector"
	ModeKeyword = "keyword"
)

// NoMatchesMessage is reported when the index returned nothing.
const NoMatchesMessage = "No cached queries found"

// Searcher runs cached query lookups against an Index.
type Searcher struct {
	index    Index
	embedder embedding.Embedder
	topK     int
}

func NewSearcher(index Index, embedder embedding.Embedder, topK int) *Searcher {
	if topK <= 0 {
		topK = 3
	}
	return &Searcher{index: index, embedder: embedder, topK: topK}
}

// Search dispatches on mode; unknown modes fall back to hybrid.
func (s *Searcher) Search(ctx context.Context, text, mode string) ([]model.CachedQuery, error) {
	switch strings.ToLower(mode) {
	case ModeVector:
		return s.Vector(ctx, text)
	case ModeKeyword:
		return s.Keyword(ctx, text)
	default:
		return s.Hybrid(ctx, text)
	}
}

func (s *Searcher) Vector(ctx context.Context, text string) ([]model.CachedQuery, error) {
	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	res, err := s.index.VectorSearch(ctx, vec, s.topK)
	if err != nil {
		return nil, errx.WrapSearch(err)
	}
	return res, nil
}

func (s *Searcher) Keyword(ctx context.Context, text string) ([]model.CachedQuery, error) {
	res, err := s.index.KeywordSearch(ctx, text, s.topK)
	if err != nil {
		return nil, errx.WrapSearch(err)
	}
	return res, nil
}

// KeywordBoost weights keyword overlap when ordering hybrid results.
const KeywordBoost = 0.1

// Hybrid runs the vector and keyword legs concurrently. The reported score of
// every hit is its vector similarity; keyword overlap only re-ranks, and hits
// found by the keyword leg alone score 0, so they never pass the confidence gate.
func (s *Searcher) Hybrid(ctx context.Context, text string) ([]model.CachedQuery, error) {
	var vectorHits, keywordHits []model.CachedQuery
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorHits, err = s.Vector(gctx, text)
		return err
	})
	g.Go(func() error {
		var err error
		keywordHits, err = s.Keyword(gctx, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]model.CachedQuery, len(vectorHits)+len(keywordHits))
	for _, h := range vectorHits {
		merged[h.ID] = h
	}
	for _, h := range keywordHits {
		if _, ok := merged[h.ID]; !ok {
			h.Score = 0
			merged[h.ID] = h
		}
	}

	terms := Tokenize(text)
	rank := make(map[string]float64, len(merged))
	out := make([]model.CachedQuery, 0, len(merged))
	for id, h := range merged {
		rank[id] = h.Score + KeywordBoost*KeywordScore(terms, h.Question)
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank[out[i].ID], rank[out[j].ID]
		if ri != rj {
			return ri > rj
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > s.topK {
		out = out[:s.topK]
	}
	return out, nil
}

func (s *Searcher) embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, errx.WrapSearch(fmt.Errorf("failed to generate embeddings: %w", err))
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, errx.WrapSearch(fmt.Errorf("failed to generate embeddings: empty vector"))
	}
	return vecs[0], nil
}

// Load embeds the questions of entries and upserts them. Entries without an id
// get one derived from the question, so reloading a seed file is idempotent.
func (s *Searcher) Load(ctx context.Context, embedder embedding.Embedder, entries []model.CachedQuery) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if embedder == nil {
		embedder = s.embedder
	}
	texts := make([]string, len(entries))
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = QueryID(entries[i].Question)
		}
		texts[i] = entries[i].Question
	}
	vecs, err := embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return 0, errx.WrapSearch(fmt.Errorf("failed to generate embeddings: %w", err))
	}
	if len(vecs) != len(entries) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d entries", len(vecs), len(entries))
	}
	indexed := make([]IndexedQuery, len(entries))
	for i := range entries {
		indexed[i] = IndexedQuery{CachedQuery: entries[i], Vector: vecs[i]}
	}
	if err := s.index.Upsert(ctx, indexed); err != nil {
		return 0, errx.WrapSearch(err)
	}
	return len(indexed), nil
}

// Ping checks the index.
func (s *Searcher) Ping(ctx context.Context) error {
	return s.index.Ping(ctx)
}

// QueryID derives a stable id from a question.
func QueryID(question string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.TrimSpace(strings.ToLower(question)))).String()
}

// CachedQueries applies the confidence gate on top of a Searcher.
type CachedQueries struct {
	searcher  *Searcher
	threshold float64
	mode      string
	metrics   *metrics.Collector
}

// NewCachedQueries builds the gate. Keyword scores are not similarities, so a
// keyword mode is replaced by hybrid.
func NewCachedQueries(searcher *Searcher, cfg model.SearchConfig, m *metrics.Collector) *CachedQueries {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == ModeKeyword {
		logx.Warn().Str("mode", cfg.Mode).Msg("Keyword search cannot gate cached queries - using hybrid")
		mode = ModeHybrid
	}
	return &CachedQueries{searcher: searcher, threshold: cfg.ConfidenceThreshold, mode: mode, metrics: m}
}

// Threshold returns the configured confidence threshold.
func (c *CachedQueries) Threshold() float64 {
	return c.threshold
}

// Lookup searches for cached queries similar to question. The best match is
// returned only when its vector similarity reaches the threshold. Failures are reported in
// the outcome so the agent can fall back to writing SQL itself.
func (c *CachedQueries) Lookup(ctx context.Context, question string) model.SearchOutcome {
	start := time.Now()
	out := model.SearchOutcome{AllMatches: []model.CachedQuery{}, Threshold: c.threshold}

	matches, err := c.searcher.Search(ctx, question, c.mode)
	if err != nil {
		logx.Error().Err(err).Str("question", question).Msg("Cached query search failed")
		c.metrics.RecordCacheLookup("error")
		out.Error = err.Error()
		return out
	}
	if len(matches) == 0 {
		c.metrics.RecordCacheLookup("empty")
		out.Message = NoMatchesMessage
		return out
	}

	out.AllMatches = matches
	best := matches[0]
	out.HasHighConfidenceMatch = best.Score >= c.threshold
	if out.HasHighConfidenceMatch {
		out.BestMatch = &best
		c.metrics.RecordCacheLookup("hit")
	} else {
		c.metrics.RecordCacheLookup("miss")
	}

	logx.Debug().
		Float64("best_score", best.Score).
		Float64("threshold", c.threshold).
		Bool("high_confidence", out.HasHighConfidenceMatch).
		Dur("elapsed", time.Since(start)).
		Msg("Cached query search")
	return out
}
