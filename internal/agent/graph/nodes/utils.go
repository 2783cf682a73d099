package nodes

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/enterprise-data-agent/server/internal/agent/model"
)

const DefaultMaxToolCalls = 8

// toolBudget caps the tools node runs of one query agent run.
type toolBudget int

func newToolBudget(n int) toolBudget {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return toolBudget(n)
}

// exhausted flags the state once every run is used. It reports true only on
// the call that sets the flag.
func (b toolBudget) exhausted(s *model.AgentState) bool {
	if s.ToolCallLimitReached || s.ToolCallCount < int(b) {
		return false
	}
	s.ToolCallLimitReached = true
	return true
}

// spend counts one tools node run and reports whether it went over budget.
func (b toolBudget) spend(s *model.AgentState) bool {
	s.ToolCallCount++
	if s.ToolCallCount <= int(b) {
		return false
	}
	s.ToolCallLimitReached = true
	return true
}

func resetRun(s *model.AgentState, threadID string) {
	*s = model.AgentState{ThreadID: threadID}
}

func lastToolCallID(history []*schema.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
			continue
		}
		return strings.TrimSpace(msg.ToolCalls[0].ID)
	}
	return ""
}
