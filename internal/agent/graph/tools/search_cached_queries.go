package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	logx "github.com/enterprise-data-agent/server/pkg/logger"
)

type SearchCachedQueriesInput struct {
	UserQuestion string `json:"user_question"`
}

func createSearchCachedQueriesTool(deps Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchCachedQueries,
			Desc: "Search for pre-tested SQL queries that answer questions similar to the user's question. " +
				"Always call this first. If has_high_confidence_match is true, execute best_match.query as-is; " +
				"otherwise write a new query, using all_matches as examples of the schema.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"user_question": {
					Type:     schema.String,
					Desc:     "The user's question in natural language, unchanged.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *SearchCachedQueriesInput) (*model.SearchOutcome, error) {
			if deps.Search == nil {
				out := model.SearchOutcome{AllMatches: []model.CachedQuery{}, Error: "cached query search is not configured"}
				deps.Metrics.RecordToolCall(ToolSearchCachedQueries, true)
				return &out, nil
			}
			out := deps.Search.Lookup(ctx, in.UserQuestion)
			if out.AllMatches == nil {
				out.AllMatches = []model.CachedQuery{}
			}
			deps.Metrics.RecordToolCall(ToolSearchCachedQueries, out.Error != "")
			logx.Debug().
				Str("tool", ToolSearchCachedQueries).
				Bool("high_confidence", out.HasHighConfidenceMatch).
				Int("matches", len(out.AllMatches)).
				Msg("Tool finished")
			return &out, nil
		},
	)
}
