package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/graph/tools"
	"github.com/enterprise-data-agent/server/internal/agent/model"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

// tool results larger than this are not decoded
const maxToolResultLen = 4 * 1024 * 1024

// ParseTranscript folds the query agent's transcript into a QueryResult.
// Messages are applied in order so later tool results win. A successful
// execute_sql result clears an error reported by an earlier attempt.
func ParseTranscript(messages []*schema.Message) (res model.QueryResult) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "query_parser").Msgf("panic recovered: %v", r)
			res = model.QueryResult{Error: fmt.Sprintf("failed to parse agent response: %v", r)}
		}
	}()

	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.Tool:
			applyToolResult(&res, msg.Content)
		case schema.Assistant:
			for _, call := range msg.ToolCalls {
				if call.Function.Name != tools.ToolExecuteSQL {
					continue
				}
				if q, ok := queryArgument(call.Function.Arguments); ok {
					res.SQLQuery = q
				}
			}
		}
	}

	res.ConfidenceScore = clampUnit(res.ConfidenceScore)
	if res.RowCount < 0 {
		res.RowCount = 0
	}
	return res
}

func applyToolResult(res *model.QueryResult, content string) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxToolResultLen {
		return
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return
	}

	success, hasSuccess := m["success"].(bool)
	if _, hasRows := m["rows"]; hasRows && success {
		res.Rows = toRows(m["rows"])
		res.Columns = toStrings(m["columns"])
		if n, ok := m["row_count"].(float64); ok {
			res.RowCount = int(n)
		} else {
			res.RowCount = len(res.Rows)
		}
		res.Error = ""
	}

	if v, ok := m["has_high_confidence_match"]; ok {
		res.UsedCachedQuery, _ = v.(bool)
		if best, ok := m["best_match"].(map[string]any); ok {
			if score, ok := best["score"].(float64); ok {
				res.ConfidenceScore = score
			}
			if res.UsedCachedQuery {
				if q, ok := best["query"].(string); ok {
					res.SQLQuery = q
				}
			}
		}
	}

	if hasSuccess && !success {
		if e, ok := m["error"]; ok && e != nil {
			res.Error = fmt.Sprint(e)
		}
	}
}

func queryArgument(arguments string) (string, bool) {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", false
	}
	q, ok := args["query"].(string)
	return q, ok
}

func toRows(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return []map[string]any{}
	}
	rows := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func toStrings(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
