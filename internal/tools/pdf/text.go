package pdf

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/extract"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	"github.com/sirupsen/logrus"
)

// PageTextTool implements get-pdf-page-text
type PageTextTool struct {
	text *extract.Service
	// images is nil in the text-only configuration, which omits the image count
	images *extract.ImageExtractor
}

// Definition returns the tool's definition for MCP registration
func (t *PageTextTool) Definition() mcp.Tool {
	description := "Get the text of a single page of an open PDF"
	if t.images != nil {
		description += ", with the number of images on the page"
	}
	return mcp.NewTool(
		"get-pdf-page-text",
		append([]mcp.ToolOption{
			mcp.WithDescription(description),
			pdfIDParam(),
			pageNumberParam(),
		}, readOnly()...)...,
	)
}

// Execute extracts the page text
func (t *PageTextTool) Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := ParsePageTextRequest(args)
	if err != nil {
		return nil, err
	}

	page, err := t.text.PageText(ctx, req.PDFID, req.PageNumber)
	if err != nil {
		return nil, err
	}

	text := page.Text
	if text == "" {
		text = fmt.Sprintf("No extractable text found on page %d", req.PageNumber)
	}
	out := fmt.Sprintf("Text from page %d of '%s':\n\n%s", req.PageNumber, page.Session.Name(), text)

	if t.images != nil && page.Images != nil {
		out += fmt.Sprintf("\n\nImages on page: %d", *page.Images)
	}

	logger.WithFields(logrus.Fields{
		"pdf_id": req.PDFID,
		"page":   req.PageNumber,
		"chars":  len(page.Text),
	}).Debug("Page text extracted")

	return mcp.NewToolResultText(out), nil
}

// ToTextTool implements pdf-to-text
type ToTextTool struct {
	text *extract.Service
}

// Definition returns the tool's definition for MCP registration
func (t *ToTextTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"pdf-to-text",
		append([]mcp.ToolOption{
			mcp.WithDescription("Extract the text of an open PDF, optionally limited to an inclusive page range, with page markers"),
			pdfIDParam(),
			mcp.WithBoolean("include_page_numbers",
				mcp.Description("Precede each page with a '--- PAGE n/total ---' marker (default: true)"),
				mcp.DefaultBool(true),
			),
			mcp.WithNumber("start_page",
				mcp.Description("First page to extract (0-based, inclusive, default: first page)"),
			),
			mcp.WithNumber("end_page",
				mcp.Description("Last page to extract (0-based, inclusive, default: last page)"),
			),
		}, readOnly()...)...,
	)
}

// Execute extracts the text of the requested range
func (t *ToTextTool) Execute(ctx context.Context, _ *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := ParseToTextRequest(args)
	if err != nil {
		return nil, err
	}

	result, err := t.text.FullText(ctx, req.PDFID, extract.TextOptions{
		IncludePageNumbers: req.IncludePageNumbers,
		Pages:              extract.Range(req.StartPage, req.EndPage),
	})
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Text extracted from %s of '%s'\n\n%s",
		result.Description(), result.Session.Name(), result.Text)), nil
}

// ProvideExtendedInfo provides detailed usage information for pdf-to-text
func (t *ToTextTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description:    "Whole document with page markers",
				Arguments:      map[string]any{"pdf_id": "3f9c2a1b7d4e"},
				ExpectedResult: "Text extracted from all pages (1-12) of 'report.pdf' followed by one '--- PAGE n/12 ---' section per page",
			},
			{
				Description:    "Second and third page without markers",
				Arguments:      map[string]any{"pdf_id": "3f9c2a1b7d4e", "start_page": 1, "end_page": 2, "include_page_numbers": false},
				ExpectedResult: "Text extracted from pages 2-3 of 'report.pdf'",
			},
		},
		ParameterDetails: map[string]string{
			"start_page": "0-based; must be within the document. Omit to start at the first page.",
			"end_page":   "0-based; must be within the document and not before start_page. Omit to end at the last page.",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "[InvalidArgument] start_page is greater than end_page",
				Solution: "Swap the bounds; ranges are never reordered or clamped",
			},
			{
				Problem:  "[OutOfRange] page is out of range",
				Solution: "Use get-pdf-page-count; valid pages are 0 to count-1",
			},
		},
		WhenToUse:    "Reading several pages or a whole document at once",
		WhenNotToUse: "A single page with its image count; use get-pdf-page-text",
	}
}
