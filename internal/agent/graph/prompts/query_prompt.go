package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/graph/tools"
)

//go:embed template/query_prompt.txt
var querySystemPrompt string

// RenderQuerySystem renders the query agent system prompt via the Eino prompt
// component so prompt callbacks fire.
func RenderQuerySystem(ctx context.Context, dialect string) (string, error) {
	if dialect == "" {
		dialect = "SQL"
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(querySystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Dialect":     dialect,
		"SearchTool":  tools.ToolSearchCachedQueries,
		"ExecuteTool": tools.ToolExecuteSQL,
	})
	if err != nil {
		return "", fmt.Errorf("query prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("query prompt render: empty result")
	}
	return msgs[0].Content, nil
}
