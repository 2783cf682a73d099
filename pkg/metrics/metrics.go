package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Config binds METRICS_* environment variables. Metrics are only pushed when
// PushgatewayURL is set; the CLI runs too briefly to be scraped.
type Config struct {
	PushgatewayURL string `envconfig:"METRICS_PUSHGATEWAY_URL"`
	Job            string `envconfig:"METRICS_JOB" default:"data_agent"`
	Namespace      string `envconfig:"METRICS_NAMESPACE" default:"dataagent"`
}

// Collector owns a private registry with the agent's counters and histograms.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry
	cfg      Config

	workflowRuns     *prometheus.CounterVec
	workflowDuration prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	sqlExecutions    *prometheus.CounterVec
	sqlDuration      prometheus.Histogram
	llmTokens        *prometheus.CounterVec
	llmCost          *prometheus.CounterVec
	toolCalls        *prometheus.CounterVec
}

func NewCollector(cfg Config) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "dataagent"
	}
	if cfg.Job == "" {
		cfg.Job = "data_agent"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	ns := cfg.Namespace

	return &Collector{
		registry: reg,
		cfg:      cfg,
		workflowRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "workflow_runs_total", Help: "Workflow runs by outcome",
		}, []string{"status"}),
		workflowDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "workflow_duration_seconds", Help: "End-to-end workflow latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "cached_query_lookups_total", Help: "Cached query searches by result",
		}, []string{"result"}),
		sqlExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "sql_executions_total", Help: "SQL executions by outcome",
		}, []string{"status"}),
		sqlDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "sql_duration_seconds", Help: "SQL execution latency",
			Buckets: prometheus.DefBuckets,
		}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "llm_tokens_total", Help: "LLM tokens by model and kind",
		}, []string{"model", "kind"}),
		llmCost: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "llm_cost_usd_total", Help: "Estimated LLM cost in USD",
		}, []string{"model"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "tool_calls_total", Help: "Tool invocations by tool and outcome",
		}, []string{"tool", "status"}),
	}
}

// Registry exposes the private registry for gathering.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordWorkflow(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.workflowRuns.WithLabelValues(status).Inc()
	c.workflowDuration.Observe(d.Seconds())
}

// RecordCacheLookup takes "hit", "miss", "empty" or "error".
func (c *Collector) RecordCacheLookup(result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordSQL takes "ok", "rejected" or "error".
func (c *Collector) RecordSQL(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.sqlExecutions.WithLabelValues(status).Inc()
	if status != "rejected" {
		c.sqlDuration.Observe(d.Seconds())
	}
}

func (c *Collector) RecordLLMUsage(model string, promptTokens, completionTokens int, costUSD float64) {
	if c == nil {
		return
	}
	c.llmTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	c.llmTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	c.llmCost.WithLabelValues(model).Add(costUSD)
}

func (c *Collector) RecordToolCall(tool string, failed bool) {
	if c == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	c.toolCalls.WithLabelValues(tool, status).Inc()
}

// Push sends the registry to the configured Pushgateway. No-op without a URL.
func (c *Collector) Push(ctx context.Context) error {
	if c == nil || c.cfg.PushgatewayURL == "" {
		return nil
	}
	if err := push.New(c.cfg.PushgatewayURL, c.cfg.Job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
