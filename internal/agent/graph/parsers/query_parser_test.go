package parsers

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCall(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func TestParseTranscriptGeneratedQuery(t *testing.T) {
	msgs := []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("total sales by region"),
		toolCall("c1", "search_cached_queries", `{"user_question":"total sales by region"}`),
		schema.ToolMessage(`{"has_high_confidence_match":false,"best_match":null,"all_matches":[],"threshold":0.75,"message":"No cached queries found"}`, "c1"),
		toolCall("c2", "execute_sql", `{"query":"SELECT region, SUM(total) AS total FROM sales GROUP BY region"}`),
		schema.ToolMessage(`{"success":true,"columns":["region","total"],"rows":[{"region":"EU","total":10},{"region":"US","total":20}],"row_count":2}`, "c2"),
		schema.AssistantMessage("done", nil),
	}

	res := ParseTranscript(msgs)
	assert.Equal(t, "SELECT region, SUM(total) AS total FROM sales GROUP BY region", res.SQLQuery)
	assert.Equal(t, []string{"region", "total"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "EU", res.Rows[0]["region"])
	assert.Equal(t, 2, res.RowCount)
	assert.False(t, res.UsedCachedQuery)
	assert.Zero(t, res.ConfidenceScore)
	assert.Empty(t, res.Error)
}

func TestParseTranscriptCachedQuery(t *testing.T) {
	msgs := []*schema.Message{
		toolCall("c1", "search_cached_queries", `{"user_question":"q"}`),
		schema.ToolMessage(`{"has_high_confidence_match":true,"best_match":{"query":"SELECT 1","score":0.92},"all_matches":[],"threshold":0.75}`, "c1"),
	}

	res := ParseTranscript(msgs)
	assert.True(t, res.UsedCachedQuery)
	assert.Equal(t, "SELECT 1", res.SQLQuery)
	assert.InDelta(t, 0.92, res.ConfidenceScore, 1e-9)
}

func TestParseTranscriptErrorThenRecovery(t *testing.T) {
	failed := []*schema.Message{
		toolCall("c1", "execute_sql", `{"query":"DELETE FROM t"}`),
		schema.ToolMessage(`{"success":false,"columns":null,"rows":null,"row_count":0,"error":"Query contains forbidden keyword: DELETE. Only read-only SELECT queries are allowed."}`, "c1"),
	}
	res := ParseTranscript(failed)
	assert.Equal(t, "DELETE FROM t", res.SQLQuery)
	assert.Contains(t, res.Error, "forbidden keyword: DELETE")
	assert.True(t, res.Failed())

	recovered := append(failed,
		toolCall("c2", "execute_sql", `{"query":"SELECT 1 AS n"}`),
		schema.ToolMessage(`{"success":true,"columns":["n"],"rows":[{"n":1}],"row_count":1}`, "c2"),
	)
	res = ParseTranscript(recovered)
	assert.Equal(t, "SELECT 1 AS n", res.SQLQuery)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, res.RowCount)
}

func TestParseTranscriptClampsAndIgnoresGarbage(t *testing.T) {
	msgs := []*schema.Message{
		nil,
		schema.ToolMessage("not json", "x"),
		schema.ToolMessage(`{"has_high_confidence_match":true,"best_match":{"query":"SELECT 2","score":1.7}}`, "y"),
		schema.ToolMessage(`{"success":true,"rows":[],"row_count":-3}`, "z"),
		toolCall("c", "execute_sql", `not json`),
	}

	res := ParseTranscript(msgs)
	assert.Equal(t, 1.0, res.ConfidenceScore)
	assert.Equal(t, 0, res.RowCount)
	assert.Equal(t, "SELECT 2", res.SQLQuery)
	assert.NotNil(t, res.Rows)
}

func TestParseTranscriptSearchErrorIsNotQueryError(t *testing.T) {
	msgs := []*schema.Message{
		schema.ToolMessage(`{"has_high_confidence_match":false,"best_match":null,"all_matches":[],"error":"index down"}`, "c1"),
	}
	res := ParseTranscript(msgs)
	assert.Empty(t, res.Error)
	assert.False(t, res.UsedCachedQuery)
}

func TestParseTranscriptEmpty(t *testing.T) {
	res := ParseTranscript(nil)
	assert.Equal(t, 0, res.RowCount)
	assert.Empty(t, res.SQLQuery)
	assert.False(t, res.Failed())
}
