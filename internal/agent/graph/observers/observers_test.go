package observers

import (
	"context"
	"errors"
	"strings"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/enterprise-data-agent/server/pkg/metrics"
)

func TestTracingCallbacksSpanPerRun(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	h := NewTracingCallbacks(tp.Tracer("test"))
	info := &einocb.RunInfo{Name: "query_model", Type: "Gemini", Component: components.ComponentOfChatModel}

	ctx := h.OnStart(context.Background(), info, nil)
	h.OnEnd(ctx, info, nil)

	ctx = h.OnStart(context.Background(), &einocb.RunInfo{Name: "execute_sql", Component: components.ComponentOfTool}, nil)
	h.OnError(ctx, info, errors.New("boom"))

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "ChatModel/query_model", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, "Tool/execute_sql", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestTracingCallbacksEndWithoutStart(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	h := NewTracingCallbacks(tp.Tracer("test"))
	assert.NotPanics(t, func() {
		h.OnEnd(context.Background(), &einocb.RunInfo{}, nil)
	})
	assert.Empty(t, rec.Ended())
}

func TestMetricsCallbacksRecordUsage(t *testing.T) {
	m := metrics.NewCollector(metrics.Config{Namespace: "obs"})
	h := NewMetricsCallbacks(m)
	info := &einocb.RunInfo{Name: "render_model", Component: components.ComponentOfChatModel}

	h.OnEnd(context.Background(), info, &model.CallbackOutput{
		Message:    schema.AssistantMessage("hi", nil),
		Config:     &model.Config{Model: "gemini-2.5-flash"},
		TokenUsage: &model.TokenUsage{PromptTokens: 1000, CompletionTokens: 100, TotalTokens: 1100},
	})

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var tokens float64
	for _, f := range families {
		if f.GetName() != "obs_llm_tokens_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			tokens += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1100.0, tokens)
}

func TestNewAllCallbacks(t *testing.T) {
	assert.Len(t, NewAllCallbacks(nil, nil), 1)

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	assert.Len(t, NewAllCallbacks(metrics.NewCollector(metrics.Config{}), tp.Tracer("t")), 3)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short"))
	long := strings.Repeat("x", maxLogContent+10)
	assert.Len(t, truncate(long), maxLogContent+3)
}
