package prompts

import (
	"fmt"
	"strings"

	"github.com/enterprise-data-agent/server/internal/agent/model"
)

// FallbackRender formats a result without the render model.
func FallbackRender(res model.QueryResult) string {
	if res.Failed() {
		return "**Error:** " + res.Error
	}

	lines := []string{fmt.Sprintf("**Query Results** (%d rows)\n", res.RowCount)}
	if len(res.Columns) > 0 && len(res.Rows) > 0 {
		lines = append(lines, "| "+strings.Join(res.Columns, " | ")+" |")
		sep := make([]string, len(res.Columns))
		for i := range sep {
			sep[i] = "---"
		}
		lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
		for _, row := range sample(res.Rows) {
			values := make([]string, len(res.Columns))
			for i, col := range res.Columns {
				values[i] = cell(row[col])
			}
			lines = append(lines, "| "+strings.Join(values, " | ")+" |")
		}
	}
	if res.SQLQuery != "" {
		lines = append(lines, fmt.Sprintf("\n<details><summary>SQL Query</summary>\n\n```sql\n%s\n```\n</details>", res.SQLQuery))
	}
	return strings.Join(lines, "\n")
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
