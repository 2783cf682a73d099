package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-data-agent/server/internal/agent/data"
	"github.com/enterprise-data-agent/server/internal/agent/model"
	"github.com/enterprise-data-agent/server/internal/core"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ENVIRONMENT", "prod")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, core.Production, cfg.Environment)
	assert.Equal(t, "Data Agent", cfg.AssistantName)
	assert.Equal(t, 0.75, cfg.Search.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.Search.TopK)
	assert.Equal(t, 8, cfg.Thread.Tools.MaxCalls)
	assert.Equal(t, "queries", cfg.Qdrant.Collection)
	assert.Equal(t, "gemini-embedding-001", cfg.Embedding.Model)
	assert.Equal(t, int32(768), cfg.Embedding.Dimensions)
	assert.False(t, cfg.Database.Configured())
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("QUERY_SEARCH_TOP_K=7\n"), 0o600))
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Cleanup(func() { os.Unsetenv("QUERY_SEARCH_TOP_K") })

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.TopK)

	_, err = loadConfig(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}

func TestCheckHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("INDEX_BACKEND", "memory")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })

	report := checkHealth(context.Background(), a)
	assert.Equal(t, "healthy", report.Status)
	assert.False(t, report.AgentReady)
	assert.Equal(t, "ok", report.Checks["redis"])
	assert.Equal(t, "ok", report.Checks["index"])
	assert.Equal(t, "not configured", report.Checks["database"])
	assert.Equal(t, "memory index", report.Index)
	assert.Zero(t, report.IndexedQueries)
	_, isMemory := a.cachedQueryIndex().(*data.MemoryIndex)
	assert.True(t, isMemory)

	mr.Close()
	report = checkHealth(context.Background(), a)
	assert.Equal(t, "degraded", report.Status)
	assert.NotEqual(t, "ok", report.Checks["redis"])
}

func TestThreadsCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())

	cfg, err := loadConfig("")
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	rt = a
	t.Cleanup(func() {
		a.Close(context.Background())
		rt = nil
	})

	r, err := a.threadRepo(context.Background())
	require.NoError(t, err)
	th, err := r.Create(context.Background(), map[string]string{"user_id": "cli"})
	require.NoError(t, err)

	var out bytes.Buffer
	threadsListCmd.SetOut(&out)
	threadsListCmd.SetContext(context.Background())
	require.NoError(t, threadsListCmd.RunE(threadsListCmd, nil))
	assert.Contains(t, out.String(), th.ID)
	assert.Contains(t, out.String(), "New Chat")

	out.Reset()
	threadsArchiveCmd.SetOut(&out)
	threadsArchiveCmd.SetContext(context.Background())
	require.NoError(t, threadsArchiveCmd.RunE(threadsArchiveCmd, []string{th.ID}))
	assert.Contains(t, out.String(), "archived")
}

func TestQueriesDeleteCommand(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("INDEX_BACKEND", "memory")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	rt = a
	t.Cleanup(func() {
		a.Close(context.Background())
		rt = nil
		deleteByQuestion = false
	})

	ctx := context.Background()
	idx := a.cachedQueryIndex()
	require.NoError(t, idx.Upsert(ctx, []data.IndexedQuery{
		{CachedQuery: model.CachedQuery{ID: data.QueryID("Total sales by region"), Question: "Total sales by region"}, Vector: []float64{1, 0}},
		{CachedQuery: model.CachedQuery{ID: "keep", Question: "Top customers"}, Vector: []float64{0, 1}},
	}))

	var out bytes.Buffer
	queriesDeleteCmd.SetOut(&out)
	queriesDeleteCmd.SetContext(ctx)
	deleteByQuestion = true
	require.NoError(t, queriesDeleteCmd.RunE(queriesDeleteCmd, []string{"total sales by region"}))
	assert.Contains(t, out.String(), "Deleted 1 cached queries from memory index")

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
