package data

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise-data-agent/server/pkg/qdrant"
)

func TestQdrantIndexAdmin(t *testing.T) {
	var (
		mu      sync.Mutex
		deleted []any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /collections/cached/points/delete":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			deleted, _ = body["points"].([]any)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
		case "POST /collections/cached/points/count":
			_, _ = w.Write([]byte(`{"result":{"count":4},"status":"ok"}`))
		case "GET /collections/cached":
			_, _ = w.Write([]byte(`{"result":{},"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	idx := NewQdrantIndex(qdrant.New(qdrant.Config{URL: srv.URL, Collection: "cached"}))
	ctx := context.Background()

	assert.Equal(t, "cached", idx.Collection())
	require.NoError(t, idx.Ping(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	id := QueryID("Total sales by region")
	require.NoError(t, idx.Delete(ctx, []string{id}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{qdrant.PointID(id)}, deleted)
}
