package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/model"
)

// SampleRows is the number of rows shown to the render model and in the fallback table.
const SampleRows = 10

//go:embed template/render_prompt.txt
var renderSystemPrompt string

// RenderSystem renders the render agent system prompt.
func RenderSystem(ctx context.Context, assistantName string) (string, error) {
	if assistantName == "" {
		assistantName = "Data Agent"
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(renderSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"AssistantName": assistantName,
		"MaxRows":       SampleRows,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("render prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// BuildRenderPrompt turns a query result into the request sent to the render model.
func BuildRenderPrompt(res model.QueryResult) string {
	if res.Failed() {
		attempted := res.SQLQuery
		if attempted == "" {
			attempted = "None"
		}
		return fmt.Sprintf(`Please help the user understand this error from the data query:

Error: %s

SQL Query attempted: %s

Provide a helpful explanation of what went wrong and suggest how they might rephrase their question.`,
			res.Error, attempted)
	}

	preview := ""
	if len(res.Rows) > 0 {
		b, err := json.MarshalIndent(sample(res.Rows), "", "  ")
		if err == nil {
			preview = string(b)
		}
	}

	cacheInfo := "This query was generated for this specific question."
	if res.UsedCachedQuery {
		cacheInfo = fmt.Sprintf("This used a pre-tested cached query with confidence score: %.2f", res.ConfidenceScore)
	}

	var sb strings.Builder
	sb.WriteString("Please present these data query results to the user in a clear, well-formatted way:\n\n")
	sb.WriteString("**Query Results Summary:**\n")
	fmt.Fprintf(&sb, "- Total rows returned: %d\n", res.RowCount)
	fmt.Fprintf(&sb, "- Columns: %s\n", strings.Join(res.Columns, ", "))
	fmt.Fprintf(&sb, "- %s\n\n", cacheInfo)
	sb.WriteString("**SQL Query Used:**\n```sql\n")
	sb.WriteString(res.SQLQuery)
	sb.WriteString("\n```\n\n")
	fmt.Fprintf(&sb, "**Data (sample of up to %d rows):**\n```json\n", SampleRows)
	sb.WriteString(preview)
	sb.WriteString("\n```\n\n")
	sb.WriteString("Format this nicely with a markdown table and helpful context. If the data is empty, explain that no matching records were found.")
	return sb.String()
}

func sample(rows []map[string]any) []map[string]any {
	if len(rows) > SampleRows {
		return rows[:SampleRows]
	}
	return rows
}
