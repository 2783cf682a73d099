package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
	"gorm.io/gorm"

	"github.com/enterprise-data-agent/server/internal/agent/data"
	"github.com/enterprise-data-agent/server/internal/agent/graph"
	"github.com/enterprise-data-agent/server/internal/agent/graph/nodes"
	"github.com/enterprise-data-agent/server/internal/agent/repo"
	"github.com/enterprise-data-agent/server/internal/agent/threads"
	"github.com/enterprise-data-agent/server/pkg/database"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
	"github.com/enterprise-data-agent/server/pkg/metrics"
	"github.com/enterprise-data-agent/server/pkg/qdrant"
	"github.com/enterprise-data-agent/server/pkg/telemetry"
)

// app holds the process-wide dependencies. Connections are opened on first use
// so each command only touches the services it needs.
type app struct {
	cfg      AppConfig
	metrics  *metrics.Collector
	tracer   trace.Tracer
	shutdown telemetry.Shutdown

	rdb      *redis.Client
	db       *gorm.DB
	gc       *genai.Client
	index    data.Index
	searcher *data.Searcher
}

func newApp(ctx context.Context, cfg AppConfig) (*app, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return &app{
		cfg:      cfg,
		metrics:  metrics.NewCollector(cfg.Metrics),
		tracer:   telemetry.Tracer(),
		shutdown: shutdown,
	}, nil
}

func (a *app) redis(ctx context.Context) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := a.cfg.Redis.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
	}
	logx.Debug().Msg("Connected to Redis successfully")
	a.rdb = rdb
	return rdb, nil
}

func (a *app) threadRepo(ctx context.Context) (*repo.RedisThreadRepository, error) {
	rdb, err := a.redis(ctx)
	if err != nil {
		return nil, err
	}
	return repo.NewRedisThreadRepository(rdb, a.cfg.Redis.KeyPrefix, a.cfg.Thread.TTL), nil
}

func (a *app) threadService(ctx context.Context) (*threads.Service, error) {
	r, err := a.threadRepo(ctx)
	if err != nil {
		return nil, err
	}
	return threads.NewService(r), nil
}

// database returns nil without error when DATABASE_URL is unset; the executor
// then reports that the database is not configured.
func (a *app) database(ctx context.Context) (*gorm.DB, error) {
	if a.db != nil || !a.cfg.Database.Configured() {
		return a.db, nil
	}
	db, err := a.cfg.Database.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *app) genai(ctx context.Context) (*genai.Client, error) {
	if a.gc != nil {
		return a.gc, nil
	}
	if a.cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	gc, err := nodes.NewGenAIClient(ctx, a.cfg.APIKey, a.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	a.gc = gc
	return gc, nil
}

func (a *app) embedder(ctx context.Context) (*data.GeminiEmbedder, error) {
	gc, err := a.genai(ctx)
	if err != nil {
		return nil, err
	}
	return data.NewGeminiEmbedder(gc, a.cfg.Embedding.Model, a.cfg.Embedding.Dimensions), nil
}

func (a *app) cachedQueryIndex() data.Index {
	if a.index != nil {
		return a.index
	}
	switch strings.ToLower(a.cfg.Search.Backend) {
	case "memory":
		a.index = data.NewMemoryIndex()
	default:
		a.index = data.NewQdrantIndex(qdrant.New(a.cfg.Qdrant))
	}
	return a.index
}

func (a *app) cachedQuerySearcher(ctx context.Context) (*data.Searcher, error) {
	if a.searcher != nil {
		return a.searcher, nil
	}
	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	s := data.NewSearcher(a.cachedQueryIndex(), emb, a.cfg.Search.TopK)
	if _, ok := a.index.(*data.MemoryIndex); ok && a.cfg.SeedFile != "" {
		n, err := loadSeed(ctx, s, emb.ForDocuments(), a.cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		logx.Info().Int("count", n).Str("file", a.cfg.SeedFile).Msg("Seeded in-memory query index")
	}
	a.searcher = s
	return s, nil
}

func loadSeed(ctx context.Context, s *data.Searcher, emb *data.GeminiEmbedder, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	entries, err := data.ParseSeed(f)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return s.Load(ctx, emb, entries)
}

func (a *app) workflow(ctx context.Context) (graph.Runner, error) {
	gc, err := a.genai(ctx)
	if err != nil {
		return nil, err
	}
	cms, err := nodes.NewChatModels(ctx, gc, nodes.ChatModelConfig{
		APIKey:       a.cfg.APIKey,
		BaseURL:      a.cfg.BaseURL,
		QueryConfig:  &a.cfg.QueryModel,
		RenderConfig: &a.cfg.RenderModel,
	})
	if err != nil {
		return nil, err
	}
	threadRepo, err := a.threadRepo(ctx)
	if err != nil {
		return nil, err
	}
	searcher, err := a.cachedQuerySearcher(ctx)
	if err != nil {
		return nil, err
	}
	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}

	return graph.BuildWorkflow(ctx, graph.Config{
		ChatModels:    cms,
		Threads:       threadRepo,
		Thread:        a.cfg.Thread,
		Search:        data.NewCachedQueries(searcher, a.cfg.Search, a.metrics),
		SQL:           data.NewExecutor(db, a.cfg.SQL, a.metrics),
		Dialect:       a.cfg.QueryModel.Dialect,
		AssistantName: a.cfg.AssistantName,
		Metrics:       a.metrics,
		Tracer:        a.tracer,
	})
}

// Close pushes metrics, flushes traces and releases connections.
func (a *app) Close(ctx context.Context) {
	if err := a.metrics.Push(ctx); err != nil {
		logx.Warn().Err(err).Msg("Failed to push metrics")
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			logx.Warn().Err(err).Msg("Failed to shut down tracing")
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			logx.Warn().Err(err).Msg("Failed to close database")
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
