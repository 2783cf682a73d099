package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	"github.com/enterprise-data-agent/server/pkg/metrics"
)

const (
	ToolSearchCachedQueries = "search_cached_queries"
	ToolExecuteSQL          = "execute_sql"
)

// CachedQuerySearcher looks up validated queries similar to a question.
type CachedQuerySearcher interface {
	Lookup(ctx context.Context, question string) model.SearchOutcome
}

// SQLExecutor runs a read-only query.
type SQLExecutor interface {
	Execute(ctx context.Context, query string) model.SQLResult
}

// Deps are the backends the query tools call into.
type Deps struct {
	Search  CachedQuerySearcher
	SQL     SQLExecutor
	Metrics *metrics.Collector
	// Dialect is advertised in the execute_sql description.
	Dialect string
}

// GetQueryTools returns the tools bound to the query agent.
func GetQueryTools(deps Deps) []tool.BaseTool {
	return []tool.BaseTool{
		createSearchCachedQueriesTool(deps),
		createExecuteSQLTool(deps),
	}
}

// GetToolInfos collects the schema of each tool for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SanitizeArguments trims string arguments and coerces scalars to strings.
// Arguments that are not a JSON object are returned unchanged.
func SanitizeArguments(name, arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil {
		return arguments
	}

	var field string
	switch name {
	case ToolSearchCachedQueries:
		field = "user_question"
	case ToolExecuteSQL:
		field = "query"
	default:
		return arguments
	}

	if v, ok := m[field]; ok {
		switch vv := v.(type) {
		case string:
			m[field] = strings.TrimSpace(vv)
		case nil:
			m[field] = ""
		default:
			m[field] = strings.TrimSpace(fmt.Sprint(v))
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

// UnknownToolResult is returned to the model for hallucinated tool names.
func UnknownToolResult(name string) string {
	b, _ := json.Marshal(map[string]string{"error": "unknown_tool", "name": name, "note": "ignored"})
	return string(b)
}
