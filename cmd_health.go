package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/enterprise-data-agent/server/pkg/database"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

// HealthReport is printed by the health command.
type HealthReport struct {
	Status         string            `json:"status"`
	AgentReady     bool              `json:"agent_ready"`
	Index          string            `json:"index"`
	IndexedQueries int               `json:"indexed_queries"`
	Checks         map[string]string `json:"checks"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the agent and its backing services",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		return printJSON(cmd, checkHealth(ctx, rt))
	},
}

func checkHealth(ctx context.Context, a *app) HealthReport {
	report := HealthReport{Status: "healthy", Checks: map[string]string{}}
	record := func(name string, err error) {
		if err != nil {
			logx.Warn().Err(err).Str("check", name).Msg("Health check failed")
			report.Checks[name] = err.Error()
			report.Status = "degraded"
			return
		}
		report.Checks[name] = "ok"
	}

	rdb, err := a.redis(ctx)
	if err == nil {
		err = rdb.Ping(ctx).Err()
	}
	record("redis", err)

	if a.cfg.Database.Configured() {
		db, err := a.database(ctx)
		if err == nil {
			err = database.Ping(ctx, db)
		}
		record("database", err)
	} else {
		report.Checks["database"] = "not configured"
	}

	idx := a.cachedQueryIndex()
	report.Index = indexName(idx)
	err = idx.Ping(ctx)
	if err == nil {
		report.IndexedQueries, err = idx.Count(ctx)
	}
	record("index", err)

	_, err = a.workflow(ctx)
	report.AgentReady = err == nil
	if err != nil {
		logx.Warn().Err(err).Msg("Agent not ready")
	}
	return report
}
