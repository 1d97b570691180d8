// Package pdf implements the PDF inspection tools. Each tool validates its raw arguments
// into a typed request, then calls the session registry or the extraction service.
package pdf

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/extract"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
)

// Deps are the services the tools operate on
type Deps struct {
	Store *session.Store
	Text  *extract.Service
	// Images is nil in the text-only configuration
	Images *extract.ImageExtractor
}

// NewTools returns every tool available for the configuration described by deps.
// extract-images is only present when image extraction is configured.
func NewTools(deps Deps) []tools.Tool {
	list := []tools.Tool{
		&OpenTool{store: deps.Store},
		&CloseTool{store: deps.Store},
		&MetadataTool{store: deps.Store},
		&PageCountTool{store: deps.Store},
		&PageTextTool{text: deps.Text, images: deps.Images},
		&ToTextTool{text: deps.Text},
	}
	if deps.Images != nil {
		list = append(list, &ExtractImagesTool{images: deps.Images})
	}
	return list
}

// readOnly marks tools that only inspect an open session
func readOnly() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func pdfIDParam() mcp.ToolOption {
	return mcp.WithString("pdf_id",
		mcp.Required(),
		mcp.Description("ID of the open PDF, as returned by open-pdf"),
	)
}

func pageNumberParam() mcp.ToolOption {
	return mcp.WithNumber("page_number",
		mcp.Required(),
		mcp.Description("Page number (0-based integer)"),
	)
}
