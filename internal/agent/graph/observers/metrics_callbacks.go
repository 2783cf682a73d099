package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	agentmodel "github.com/enterprise-data-agent/server/internal/agent/model"
	"github.com/enterprise-data-agent/server/pkg/metrics"
)

// NewMetricsCallbacks records token usage and estimated cost of every chat
// model call.
func NewMetricsCallbacks(m *metrics.Collector) einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		ChatModel(&callbackHelper.ModelCallbackHandler{
			OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
				if output == nil || output.TokenUsage == nil {
					return ctx
				}
				name := info.Name
				if output.Config != nil && output.Config.Model != "" {
					name = output.Config.Model
				}
				usage := &schema.TokenUsage{
					PromptTokens:     output.TokenUsage.PromptTokens,
					CompletionTokens: output.TokenUsage.CompletionTokens,
					TotalTokens:      output.TokenUsage.TotalTokens,
				}
				_, _, cost := agentmodel.ComputeCost(usage, agentmodel.ResolvePricing(name))
				m.RecordLLMUsage(name, usage.PromptTokens, usage.CompletionTokens, cost)
				return ctx
			},
		}).
		Handler()
}
