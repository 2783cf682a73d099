package nodes

// Workflow nodes.
const (
	NodeRenderIntake = "render_intake"
	NodeQueryAgent   = "query_agent"
	NodeRenderOutput = "render_output"
)

// Query agent nodes.
const (
	NodeQueryInput   = "query_input"
	NodeQueryModel   = "query_model"
	NodeToolExecutor = "tool_executor"
	NodeQueryParser  = "query_parser"
)
