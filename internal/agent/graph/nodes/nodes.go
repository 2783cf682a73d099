package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/graph/conversations"
	"github.com/enterprise-data-agent/server/internal/agent/graph/parsers"
	"github.com/enterprise-data-agent/server/internal/agent/graph/prompts"
	"github.com/enterprise-data-agent/server/internal/agent/model"
	errx "github.com/enterprise-data-agent/server/internal/core/error"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

// ================ Render agent: intake ================

// NewRenderIntakePreHandler copies the caller identity into the workflow state.
func NewRenderIntakePreHandler() func(context.Context, model.ChatInput, *model.WorkflowState) (model.ChatInput, error) {
	return func(ctx context.Context, in model.ChatInput, s *model.WorkflowState) (model.ChatInput, error) {
		s.UserID = in.UserID
		s.Title = in.Title
		s.Question = strings.TrimSpace(in.Message)
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewRenderIntakeNode validates the message, resolves the thread through the
// shared state, records the user turn and forwards the question.
func NewRenderIntakeNode(mm *conversations.MessagesManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.ChatInput) (string, error) {
		question := strings.TrimSpace(input.Message)
		if question == "" {
			return "", errx.BadRequest(errx.ErrEmptyMessage)
		}

		threadID, err := ResolveThread(ctx, mm, input.ThreadID)
		if err != nil {
			return "", err
		}

		if err := mm.SaveUser(ctx, threadID, question); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Msg("Error saving user message")
			return "", fmt.Errorf("save user message: %w", err)
		}
		logx.Debug().Str("thread_id", threadID).Str("node", NodeRenderIntake).Msg("Forwarding question to query agent")
		return question, nil
	})
}

// ResolveThread returns the thread id held in the shared state, or resolves
// requested (verifying it exists) or creates a new thread and stores its id.
// Once stored the id never changes for the rest of the run.
func ResolveThread(ctx context.Context, mm *conversations.MessagesManager, requested string) (string, error) {
	var current, userID, title string
	if err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
		current, userID, title = s.ThreadID, s.UserID, s.Title
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to access state: %w", err)
	}
	if current != "" {
		return current, nil
	}

	threadID, created, err := mm.EnsureThread(ctx, requested, userID, title)
	if err != nil {
		if errors.Is(err, errx.ErrThreadNotFound) {
			logx.Warn().Str("thread_id", requested).Msg("Requested thread does not exist")
		}
		return "", err
	}

	err = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
		if s.ThreadID == "" {
			s.ThreadID = threadID
			s.CreatedAt = created
		}
		threadID = s.ThreadID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to access state: %w", err)
	}
	return threadID, nil
}

// ================ Query agent (outer node) ================

// AgentRunner runs the query agent tool loop.
type AgentRunner interface {
	Invoke(ctx context.Context, in model.AgentInput, opts ...compose.Option) (model.AgentOutput, error)
}

// NewQueryAgentNode runs the query agent on the question. Agent failures are
// turned into a QueryResult carrying the error so the render agent can explain it.
func NewQueryAgentNode(agent AgentRunner, opts ...compose.Option) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, question string) (model.QueryResult, error) {
		var threadID string
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			threadID = s.ThreadID
			return nil
		}); err != nil {
			return model.QueryResult{}, fmt.Errorf("failed to access state: %w", err)
		}

		out, err := agent.Invoke(ctx, model.AgentInput{ThreadID: threadID, Question: question}, opts...)
		if err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Str("node", NodeQueryAgent).Msg("Query agent failed")
			return model.QueryResult{Error: err.Error()}, nil
		}

		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			s.TotalCostUSD += out.CostUSD
			return nil
		})

		res := out.Result
		logx.Info().
			Str("thread_id", threadID).
			Int("row_count", res.RowCount).
			Bool("used_cached_query", res.UsedCachedQuery).
			Float64("confidence", res.ConfidenceScore).
			Bool("failed", res.Failed()).
			Msg("Query agent completed")
		return res, nil
	})
}

// ================ Query agent (inner graph) ================

// NewQueryInputPreHandler resets the per-run agent state.
func NewQueryInputPreHandler() func(context.Context, model.AgentInput, *model.AgentState) (model.AgentInput, error) {
	return func(ctx context.Context, in model.AgentInput, s *model.AgentState) (model.AgentInput, error) {
		resetRun(s, in.ThreadID)
		return in, nil
	}
}

// NewQueryInputNode builds the query agent context from the thread.
func NewQueryInputNode(mm *conversations.MessagesManager, dialect string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.AgentInput) ([]*schema.Message, error) {
		systemPrompt, err := prompts.RenderQuerySystem(ctx, dialect)
		if err != nil {
			return nil, fmt.Errorf("render query system prompt: %w", err)
		}
		messages, err := mm.BuildQueryContext(ctx, input.ThreadID, systemPrompt, input.Question)
		if err != nil {
			return nil, fmt.Errorf("build query context: %w", err)
		}
		return messages, nil
	})
}

// NewQueryModelPreHandler appends the input to the agent history and asks the
// model to wrap up once the tool call limit is reached.
func NewQueryModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AgentState) ([]*schema.Message, error) {
	budget := newToolBudget(maxToolCalls)
	return func(ctx context.Context, in []*schema.Message, state *model.AgentState) ([]*schema.Message, error) {
		// tool results must carry the id of the call they answer
		for _, msg := range in {
			if msg == nil || msg.Role != schema.Tool || strings.TrimSpace(msg.ToolCallID) != "" {
				continue
			}
			if id := lastToolCallID(state.History); id != "" {
				msg.ToolCallID = id
			}
		}

		state.History = append(state.History, in...)

		if budget.exhausted(state) {
			state.History = append(state.History, schema.SystemMessage(fmt.Sprintf(
				"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
					"Stop calling tools and finish with the results you already have.",
				int(budget),
			)))
		}

		return state.History, nil
	}
}

// NewQueryModelPostHandler accounts usage cost, fills missing tool call ids and
// records the model output in the agent history.
func NewQueryModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AgentState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AgentState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("query model returned no message")
		}
		accountUsage(out, modelName, NodeQueryModel, state.ThreadID, &state.TotalCostUSD)

		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)
		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Str("thread_id", state.ThreadID).Msg("Calling tools")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes to the tools node while the model asks for
// tools and the limit has not been reached.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AgentState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached previously - routing to parser")
			return NodeQueryParser, nil
		}
		if input != nil && len(input.ToolCalls) > 0 {
			return NodeToolExecutor, nil
		}
		return NodeQueryParser, nil
	}
}

// NewToolExecutorPreHandler counts tool node runs against the limit.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AgentState) (*schema.Message, error) {
	budget := newToolBudget(maxToolCalls)
	return func(ctx context.Context, in *schema.Message, state *model.AgentState) (*schema.Message, error) {
		exceeded := budget.spend(state)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("thread_id", state.ThreadID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", int(budget)).
				Str("thread_id", state.ThreadID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}

// NewQueryParserNode folds the agent transcript into the structured result.
func NewQueryParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (model.AgentOutput, error) {
		var out model.AgentOutput
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AgentState) error {
			out.Result = parsers.ParseTranscript(state.History)
			out.CostUSD = state.TotalCostUSD
			return nil
		})
		if err != nil {
			return model.AgentOutput{}, fmt.Errorf("failed to access state: %w", err)
		}
		return out, nil
	})
}

// ================ Render agent: output ================

// NewRenderOutputNode presents the query result. The deterministic renderer is
// used when the render model fails or returns no text.
func NewRenderOutputNode(mm *conversations.MessagesManager, cms *ChatModels, assistantName string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, res model.QueryResult) (*model.ChatResponse, error) {
		threadID, err := ResolveThread(ctx, mm, "")
		if err != nil {
			return nil, err
		}

		text, cost := renderWithModel(ctx, mm, cms, assistantName, threadID, res)
		if strings.TrimSpace(text) == "" {
			logx.Warn().Str("thread_id", threadID).Msg("Render model returned no text - using fallback renderer")
			text = prompts.FallbackRender(res)
		}

		if err := mm.SaveAssistant(ctx, threadID, text); err != nil {
			logx.Error().Err(err).Str("thread_id", threadID).Msg("Error saving assistant response")
		}

		var total float64
		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.WorkflowState) error {
			s.TotalCostUSD += cost
			total = s.TotalCostUSD
			return nil
		})

		result := res
		return &model.ChatResponse{
			Text:     text,
			ThreadID: threadID,
			Result:   &result,
			CostUSD:  total,
		}, nil
	})
}

func renderWithModel(
	ctx context.Context,
	mm *conversations.MessagesManager,
	cms *ChatModels,
	assistantName, threadID string,
	res model.QueryResult,
) (string, float64) {
	systemPrompt, err := prompts.RenderSystem(ctx, assistantName)
	if err != nil {
		logx.Error().Err(err).Msg("Error rendering render system prompt")
		return "", 0
	}
	messages, err := mm.BuildRenderContext(ctx, threadID, systemPrompt, prompts.BuildRenderPrompt(res))
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("Error building render context")
		return "", 0
	}

	out, err := cms.Render.Generate(ctx, messages)
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Str("node", NodeRenderOutput).Msg("Render model failed")
		return "", 0
	}
	var cost float64
	accountUsage(out, cms.RenderModelName, NodeRenderOutput, threadID, &cost)
	if out == nil {
		return "", cost
	}
	return out.Content, cost
}

// accountUsage attaches the usage cost to the message Extra and adds it to total.
func accountUsage(out *schema.Message, modelName, node, threadID string, total *float64) {
	usage := model.UsageFor(modelName, out)
	if usage == nil {
		return
	}
	*total += usage.TotalCost
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = usage
	out.Extra["usage_cost_total_usd"] = *total

	logx.Debug().
		Str("thread_id", threadID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("total_cost_usd", usage.TotalCost).
		Msg("LLM usage")
}
