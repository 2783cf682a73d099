package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/enterprise-data-agent/server/internal/agent/graph/conversations"
	"github.com/enterprise-data-agent/server/internal/agent/graph/nodes"
	"github.com/enterprise-data-agent/server/internal/agent/graph/observers"
	"github.com/enterprise-data-agent/server/internal/agent/graph/tools"
	"github.com/enterprise-data-agent/server/internal/agent/model"
	errx "github.com/enterprise-data-agent/server/internal/core/error"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
	"github.com/enterprise-data-agent/server/pkg/metrics"
)

// Runner executes the compiled workflow.
type Runner interface {
	Invoke(ctx context.Context, in model.ChatInput) (*model.ChatResponse, error)
	Stream(ctx context.Context, in model.ChatInput) <-chan model.StreamEvent
}

// Config holds everything needed to compose the workflow end-to-end.
type Config struct {
	ChatModels    *nodes.ChatModels
	Threads       model.ThreadRepository
	Thread        model.ThreadConfig
	Search        tools.CachedQuerySearcher
	SQL           tools.SQLExecutor
	Dialect       string
	AssistantName string

	Metrics *metrics.Collector
	Tracer  trace.Tracer
}

func (c *Config) validate() error {
	if c.ChatModels == nil || c.ChatModels.Query == nil || c.ChatModels.Render == nil {
		return fmt.Errorf("chat models are not properly initialized")
	}
	if c.Threads == nil {
		return fmt.Errorf("thread repository is nil")
	}
	if c.Search == nil {
		return fmt.Errorf("cached query searcher is nil")
	}
	if c.SQL == nil {
		return fmt.Errorf("sql executor is nil")
	}
	return nil
}

type graphRunner struct {
	runnable  compose.Runnable[model.ChatInput, *model.ChatResponse]
	callbacks []einocb.Handler
	metrics   *metrics.Collector
	tracer    trace.Tracer
}

// BuildWorkflow composes the query agent and the render agent into one
// workflow: render_intake -> query_agent -> render_output.
func BuildWorkflow(ctx context.Context, cfg Config) (Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	handlers := observers.NewAllCallbacks(cfg.Metrics, cfg.Tracer)
	mm := conversations.NewMessagesManager(cfg.Threads, cfg.Thread)

	agent, err := BuildQueryAgent(ctx, &QueryAgentConfig{
		ChatModels:      cfg.ChatModels,
		MessagesManager: mm,
		Tools:           tools.Deps{Search: cfg.Search, SQL: cfg.SQL, Metrics: cfg.Metrics, Dialect: cfg.Dialect},
		Dialect:         cfg.Dialect,
		ToolMaxCalls:    cfg.Thread.Tools.MaxCalls,
	})
	if err != nil {
		return nil, err
	}

	g := compose.NewGraph[model.ChatInput, *model.ChatResponse](
		compose.WithGenLocalState(func(ctx context.Context) *model.WorkflowState {
			return &model.WorkflowState{}
		}),
	)

	if err := g.AddLambdaNode(nodes.NodeRenderIntake,
		nodes.NewRenderIntakeNode(mm),
		compose.WithNodeName(nodes.NodeRenderIntake),
		compose.WithStatePreHandler(nodes.NewRenderIntakePreHandler()),
	); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode(nodes.NodeQueryAgent,
		nodes.NewQueryAgentNode(agent, compose.WithCallbacks(handlers...)),
		compose.WithNodeName(nodes.NodeQueryAgent),
	); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode(nodes.NodeRenderOutput,
		nodes.NewRenderOutputNode(mm, cfg.ChatModels, cfg.AssistantName),
		compose.WithNodeName(nodes.NodeRenderOutput),
	); err != nil {
		return nil, err
	}

	edges := [][2]string{
		{compose.START, nodes.NodeRenderIntake},
		{nodes.NodeRenderIntake, nodes.NodeQueryAgent},
		{nodes.NodeQueryAgent, nodes.NodeRenderOutput},
		{nodes.NodeRenderOutput, compose.END},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}

	runnable, err := g.Compile(ctx, compose.WithMaxRunSteps(10), compose.WithGraphName("workflow"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling workflow")
		return nil, fmt.Errorf("error compiling workflow: %w", err)
	}

	logx.Debug().Msg("Workflow built successfully")
	return &graphRunner{runnable: runnable, callbacks: handlers, metrics: cfg.Metrics, tracer: cfg.Tracer}, nil
}

func (r *graphRunner) Invoke(ctx context.Context, in model.ChatInput) (resp *model.ChatResponse, err error) {
	start := time.Now()
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "workflow", trace.WithAttributes(
			attribute.String("thread_id", in.ThreadID),
			attribute.String("user_id", in.UserID),
		))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if resp != nil {
				span.SetAttributes(attribute.String("thread_id", resp.ThreadID))
			}
			span.End()
		}()
	}

	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(r.callbacks...))
	if err != nil {
		r.metrics.RecordWorkflow("error", time.Since(start))
		logx.Error().Err(err).Str("thread_id", in.ThreadID).Msg("Workflow failed")
		return nil, unwrapNodeError(err)
	}
	if out == nil {
		r.metrics.RecordWorkflow("empty", time.Since(start))
		return &model.ChatResponse{}, nil
	}

	status := "ok"
	if out.Result != nil && out.Result.Failed() {
		status = "query_error"
	}
	r.metrics.RecordWorkflow(status, time.Since(start))
	logx.Info().
		Str("thread_id", out.ThreadID).
		Str("status", status).
		Float64("cost_usd", out.CostUSD).
		Dur("elapsed", time.Since(start)).
		Msg("Workflow completed")
	return out, nil
}

// unwrapNodeError surfaces an AppError raised inside a node so callers can map
// its status.
func unwrapNodeError(err error) error {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return err
}

// QueryAgentConfig holds all configuration needed to build the query agent.
type QueryAgentConfig struct {
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager
	Tools           tools.Deps
	Dialect         string
	ToolMaxCalls    int
}

// QueryAgentBuilder handles the construction of the query agent tool loop.
type QueryAgentBuilder struct {
	config *QueryAgentConfig
	graph  *compose.Graph[model.AgentInput, model.AgentOutput]
}

// BuildQueryAgent compiles the query agent: the model calls tools until it stops
// or hits the limit, then the transcript is parsed into a QueryResult.
func BuildQueryAgent(ctx context.Context, config *QueryAgentConfig) (compose.Runnable[model.AgentInput, model.AgentOutput], error) {
	if config == nil {
		return nil, fmt.Errorf("query agent config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Query == nil {
		return nil, fmt.Errorf("query model is not initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}

	b := &QueryAgentBuilder{
		config: config,
		graph: compose.NewGraph[model.AgentInput, model.AgentOutput](
			compose.WithGenLocalState(func(ctx context.Context) *model.AgentState {
				return &model.AgentState{}
			}),
		),
	}

	if err := b.setupTools(ctx); err != nil {
		return nil, err
	}
	if err := b.addNodes(); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	if err := b.addBranches(); err != nil {
		return nil, err
	}
	return b.compile(ctx)
}

// setupTools binds the query tools to the model and adds the tools node.
func (b *QueryAgentBuilder) setupTools(ctx context.Context) error {
	queryTools := tools.GetQueryTools(b.config.Tools)
	toolInfos, err := tools.GetToolInfos(ctx, queryTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindToolsToQueryModel(ctx, toolInfos); err != nil {
		return err
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               queryTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return tools.UnknownToolResult(name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return tools.SanitizeArguments(name, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	return b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithNodeName(nodes.NodeToolExecutor),
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.ToolMaxCalls)),
	)
}

func (b *QueryAgentBuilder) addNodes() error {
	if err := b.graph.AddLambdaNode(nodes.NodeQueryInput,
		nodes.NewQueryInputNode(b.config.MessagesManager, b.config.Dialect),
		compose.WithNodeName(nodes.NodeQueryInput),
		compose.WithStatePreHandler(nodes.NewQueryInputPreHandler()),
	); err != nil {
		return err
	}

	if err := b.graph.AddChatModelNode(nodes.NodeQueryModel,
		b.config.ChatModels.Query,
		compose.WithNodeName(nodes.NodeQueryModel),
		compose.WithStatePreHandler(nodes.NewQueryModelPreHandler(b.config.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewQueryModelPostHandler(b.config.ChatModels.QueryModelName)),
	); err != nil {
		return err
	}

	return b.graph.AddLambdaNode(nodes.NodeQueryParser, nodes.NewQueryParserNode(),
		compose.WithNodeName(nodes.NodeQueryParser),
	)
}

func (b *QueryAgentBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeQueryInput},
		{nodes.NodeQueryInput, nodes.NodeQueryModel},
		{nodes.NodeToolExecutor, nodes.NodeQueryModel},
		{nodes.NodeQueryParser, compose.END},
	}
	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

func (b *QueryAgentBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeQueryParser:  true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeQueryModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

func (b *QueryAgentBuilder) compile(ctx context.Context) (compose.Runnable[model.AgentInput, model.AgentOutput], error) {
	// every tool round is two steps; leave room for the wrap-up call
	maxSteps := 10 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps), compose.WithGraphName("query_agent"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling query agent")
		return nil, fmt.Errorf("error compiling query agent: %w", err)
	}
	return runnable, nil
}

