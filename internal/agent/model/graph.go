package model

import (
	"github.com/cloudwego/eino/schema"
)

// WorkflowState is the local state of the outer workflow graph.
// ThreadID is the single key shared between the render and query agents:
// the first handler that needs a thread resolves or creates it and stores it
// here, every later handler reuses it.
// Access it only inside eino state handlers or compose.ProcessState.
type WorkflowState struct {
	ThreadID  string
	UserID    string
	Title     string
	Question  string
	CreatedAt bool // thread was created during this run

	TotalCostUSD float64
}

// AgentState is the local state of the query agent's tool loop.
type AgentState struct {
	ThreadID             string
	History              []*schema.Message // mutated only inside eino state handlers
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // synthesizes tool_call_id when the provider omits it

	TotalCostUSD float64
}

// ChatInput is one user turn.
type ChatInput struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Title    string `json:"title,omitempty"`
}

// ChatResponse is the workflow output.
type ChatResponse struct {
	Text     string       `json:"text"`
	ThreadID string       `json:"thread_id"`
	Result   *QueryResult `json:"result,omitempty"`
	CostUSD  float64      `json:"cost_usd,omitempty"`
}

// StreamEvent is emitted by the streaming runner. The final event has Done set.
type StreamEvent struct {
	Content  string `json:"content,omitempty"`
	Done     bool   `json:"done"`
	ThreadID string `json:"thread_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AgentInput is the query agent input.
type AgentInput struct {
	ThreadID string
	Question string
}

// AgentOutput is the query agent output.
type AgentOutput struct {
	Result  QueryResult
	CostUSD float64
}
