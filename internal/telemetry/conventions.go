package telemetry

// Attribute names used on spans and metrics

const (
	// MCP attributes
	AttrMCPOperationKind = "mcp.operation.kind"    // tool, prompt or resource
	AttrMCPOperationName = "mcp.operation.name"    // e.g. "pdf-to-text"
	AttrMCPSuccess       = "mcp.result.success"    // Execution success (boolean)
	AttrMCPErrorKind     = "mcp.result.error_kind" // NotFound, OutOfRange, ...
	AttrMCPError         = "mcp.result.error"      // Error message if failed (string)
	AttrMCPTransport     = "mcp.transport"         // stdio/sse/http
	AttrMCPArguments     = "mcp.arguments"

	// PDF attributes
	AttrPDFID        = "pdf.id"
	AttrPDFPageCount = "pdf.page_count"
)

// Operation kinds
const (
	KindTool     = "tool"
	KindPrompt   = "prompt"
	KindResource = "resource"
)

// Span names
const (
	SpanNameToolExecute  = "mcp.tool.execute"
	SpanNamePromptGet    = "mcp.prompt.get"
	SpanNameResourceRead = "mcp.resource.read"
)
