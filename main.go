package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	"github.com/enterprise-data-agent/server/internal/core"
	"github.com/enterprise-data-agent/server/pkg/database"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
	"github.com/enterprise-data-agent/server/pkg/metrics"
	"github.com/enterprise-data-agent/server/pkg/qdrant"
	pkgredis "github.com/enterprise-data-agent/server/pkg/redis"
	"github.com/enterprise-data-agent/server/pkg/telemetry"
)

// AppConfig defines all configurable parameters of the agent, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment   core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel      string           `envconfig:"LOG_LEVEL"`
	AssistantName string           `envconfig:"ASSISTANT_NAME" default:"Data Agent"`
	// SeedFile is loaded into the in-memory index on startup.
	SeedFile string `envconfig:"QUERIES_SEED_FILE"`

	// Infrastructure
	Redis     pkgredis.Config
	Database  database.Config
	Qdrant    qdrant.Config
	Telemetry telemetry.Config
	Metrics   metrics.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	QueryModel  model.QueryModelConfig
	RenderModel model.RenderModelConfig
	Embedding   model.EmbeddingConfig
	Search      model.SearchConfig
	SQL         model.SQLConfig
	Thread      model.ThreadConfig
}

var (
	envFile string
	timeout time.Duration

	rt *app
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "data-agent",
	Short: "Ask questions about your data in plain language",
	Long: `data-agent answers natural-language questions by searching validated
cached queries, running read-only SQL and rendering the results.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(envFile)
		if err != nil {
			return err
		}
		logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		rt = a
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(queriesCmd)
	rootCmd.AddCommand(healthCmd)
}

func loadConfig(path string) (AppConfig, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return AppConfig{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to process environment config: %w", err)
	}
	return cfg, nil
}

// commandContext bounds a command by the --timeout flag.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if rt != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		rt.Close(closeCtx)
		cancel()
	}
	if err != nil {
		os.Exit(1)
	}
}
