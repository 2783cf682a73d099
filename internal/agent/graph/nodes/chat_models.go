package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey       string
	BaseURL      string
	QueryConfig  *model.QueryModelConfig
	RenderConfig *model.RenderModelConfig
}

// ChatModels holds the query agent and render agent models.
type ChatModels struct {
	Query           einomodel.ChatModel
	Render          einomodel.BaseChatModel
	QueryModelName  string
	RenderModelName string
}

// NewGenAIClient creates the Gemini API client shared by chat models and the embedder.
func NewGenAIClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates both chat models on one client.
func NewChatModels(ctx context.Context, client *genai.Client, config ChatModelConfig) (*ChatModels, error) {
	if config.QueryConfig == nil || config.RenderConfig == nil {
		return nil, fmt.Errorf("chat model config is nil")
	}

	queryModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:         client,
		Model:          config.QueryConfig.Model,
		Temperature:    &config.QueryConfig.Temperature,
		MaxTokens:      &config.QueryConfig.MaxTokens,
		ThinkingConfig: thinking(config.QueryConfig.ThinkingBudget),
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating query model")
		return nil, fmt.Errorf("error creating query model: %w", err)
	}

	renderModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:         client,
		Model:          config.RenderConfig.Model,
		Temperature:    &config.RenderConfig.Temperature,
		MaxTokens:      &config.RenderConfig.MaxTokens,
		ThinkingConfig: thinking(config.RenderConfig.ThinkingBudget),
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating render model")
		return nil, fmt.Errorf("error creating render model: %w", err)
	}

	return &ChatModels{
		Query:           queryModel,
		Render:          renderModel,
		QueryModelName:  config.QueryConfig.Model,
		RenderModelName: config.RenderConfig.Model,
	}, nil
}

func thinking(budget int32) *genai.ThinkingConfig {
	if budget <= 0 {
		return nil
	}
	return &genai.ThinkingConfig{
		IncludeThoughts: false,
		ThinkingBudget:  genai.Ptr(budget),
	}
}

// BindToolsToQueryModel binds tools to the query chat model
func (cm *ChatModels) BindToolsToQueryModel(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Query.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to query model")
	return nil
}
