package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel/trace"

	"github.com/enterprise-data-agent/server/pkg/metrics"
)

// maxLogContent bounds message content written to logs.
const maxLogContent = 500

// NewAllCallbacks aggregates the logging handlers (prompt, model, tool) into one
// callbacks.Handler and appends metrics and tracing handlers when configured.
func NewAllCallbacks(m *metrics.Collector, tracer trace.Tracer) []einocb.Handler {
	handlers := []einocb.Handler{
		callbackHelper.NewHandlerHelper().
			Tool(newToolHandler()).
			ChatModel(newModelHandler()).
			Prompt(newPromptHandler()).
			Handler(),
	}
	if m != nil {
		handlers = append(handlers, NewMetricsCallbacks(m))
	}
	if tracer != nil {
		handlers = append(handlers, NewTracingCallbacks(tracer))
	}
	return handlers
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxLogContent {
		return s
	}
	return string(r[:maxLogContent]) + "..."
}
