package pdf

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	"github.com/sirupsen/logrus"
)

// OpenTool implements open-pdf
type OpenTool struct {
	store *session.Store
}

// Definition returns the tool's definition for MCP registration
func (t *OpenTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"open-pdf",
		mcp.WithDescription("Open a PDF file for reading. Returns the PDF ID used by every other PDF tool, prompt and the pdf:// resource."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF file (~ is expanded, relative paths resolve against the server's working directory)"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute opens the PDF and registers a session
func (t *OpenTool) Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := ParseOpenRequest(args)
	if err != nil {
		return nil, err
	}

	logger.WithField("path", req.Path).Debug("Opening PDF")

	info, err := t.store.Open(ctx, req.Path)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Opened PDF '%s' with %d pages. PDF ID: %s", info.Name(), info.PageCount, info.ID)), nil
}

// ProvideExtendedInfo provides detailed usage information for open-pdf
func (t *OpenTool) ProvideExtendedInfo() *tools.ExtendedHelp {
	return &tools.ExtendedHelp{
		Examples: []tools.ToolExample{
			{
				Description:    "Open a report in the home directory",
				Arguments:      map[string]any{"path": "~/Documents/report.pdf"},
				ExpectedResult: "Opened PDF 'report.pdf' with 12 pages. PDF ID: 3f9c2a1b7d4e",
			},
		},
		CommonPatterns: []string{
			"Open once, then pass the returned PDF ID to the other tools",
			"Close the PDF with close-pdf when finished to release memory and extracted images",
		},
		Troubleshooting: []tools.TroubleshootingTip{
			{
				Problem:  "[NotFound] file not found",
				Solution: "Check the path; relative paths resolve against the server's working directory, not the client's",
			},
			{
				Problem:  "[IOError] access denied by policy",
				Solution: "The path is excluded by the access policy file (PDF_READER_ACCESS_CONFIG)",
			},
			{
				Problem:  "[InvalidDocument] failed to parse",
				Solution: "The file is not a PDF or is encrypted or damaged beyond repair",
			},
		},
		ParameterDetails: map[string]string{
			"path": "Absolute, relative or ~-prefixed path. Files larger than PDF_MAX_FILE_SIZE are rejected.",
		},
		WhenToUse:    "Before any other PDF tool or prompt",
		WhenNotToUse: "When the PDF is already open; reuse its PDF ID instead",
	}
}

// CloseTool implements close-pdf
type CloseTool struct {
	store *session.Store
}

// Definition returns the tool's definition for MCP registration
func (t *CloseTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"close-pdf",
		mcp.WithDescription("Close an open PDF file, releasing it and any images extracted from it"),
		pdfIDParam(),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute closes the session
func (t *CloseTool) Execute(_ context.Context, _ *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := ParseCloseRequest(args)
	if err != nil {
		return nil, err
	}

	info, err := t.store.Close(req.PDFID)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Closed PDF '%s'", info.Name())), nil
}

// MetadataTool implements list-pdf-metadata
type MetadataTool struct {
	store *session.Store
}

// Definition returns the tool's definition for MCP registration
func (t *MetadataTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"list-pdf-metadata",
		append([]mcp.ToolOption{
			mcp.WithDescription("List the document information fields (title, author, dates, producer...) declared by an open PDF"),
			pdfIDParam(),
		}, readOnly()...)...,
	)
}

// Execute lists the declared metadata fields in key order
func (t *MetadataTool) Execute(_ context.Context, _ *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := ParseMetadataRequest(args)
	if err != nil {
		return nil, err
	}

	info, metadata, err := t.store.Metadata(req.PDFID)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("Metadata for '%s':\n\n%s", info.Name(), FormatMetadata(metadata))), nil
}

// FormatMetadata renders metadata as sorted "key: value" lines
func FormatMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return "No metadata available"
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, metadata[k]))
	}
	return strings.Join(lines, "\n")
}

// PageCountTool implements get-pdf-page-count
type PageCountTool struct {
	store *session.Store
}

// Definition returns the tool's definition for MCP registration
func (t *PageCountTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"get-pdf-page-count",
		append([]mcp.ToolOption{
			mcp.WithDescription("Get the page count of an open PDF"),
			pdfIDParam(),
		}, readOnly()...)...,
	)
}

// Execute returns the page count
func (t *PageCountTool) Execute(_ context.Context, _ *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := ParsePageCountRequest(args)
	if err != nil {
		return nil, err
	}

	info, count, err := t.store.PageCount(req.PDFID)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultText(fmt.Sprintf("'%s' has %d pages", info.Name(), count)), nil
}
