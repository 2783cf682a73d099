package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/data"
	"github.com/enterprise-data-agent/server/internal/agent/model"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

type ExecuteSQLInput struct {
	Query string `json:"query"`
}

func createExecuteSQLTool(deps Deps) tool.BaseTool {
	dialect := deps.Dialect
	if dialect == "" {
		dialect = "SQL"
	}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolExecuteSQL,
			Desc: fmt.Sprintf("Execute a read-only %s SELECT query against the database and return "+
				"columns, rows and row_count. Statements that modify data are rejected.", dialect),
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "A single SELECT statement.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *ExecuteSQLInput) (*model.SQLResult, error) {
			var res model.SQLResult
			if deps.SQL == nil {
				res = model.SQLResult{Error: data.NotConfiguredMessage}
			} else {
				res = deps.SQL.Execute(ctx, in.Query)
			}
			deps.Metrics.RecordToolCall(ToolExecuteSQL, !res.Success)
			logx.Debug().
				Str("tool", ToolExecuteSQL).
				Bool("success", res.Success).
				Int("row_count", res.RowCount).
				Msg("Tool finished")
			return &res, nil
		},
	)
}
