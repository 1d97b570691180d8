package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/extract"
	"github.com/sirupsen/logrus"
)

// ExtractImagesTool implements extract-images
type ExtractImagesTool struct {
	images *extract.ImageExtractor
}

// Definition returns the tool's definition for MCP registration
func (t *ExtractImagesTool) Definition() mcp.Tool {
	return mcp.NewTool(
		"extract-images",
		mcp.WithDescription("Extract the images of a page of an open PDF to temporary files and list their paths. The files are removed when the PDF is closed."),
		pdfIDParam(),
		pageNumberParam(),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

// Execute writes the page images and lists them
func (t *ExtractImagesTool) Execute(ctx context.Context, logger *logrus.Logger, args map[string]any) (*mcp.CallToolResult, error) {
	req, err := ParseExtractImagesRequest(args)
	if err != nil {
		return nil, err
	}

	result, err := t.images.ExtractImages(ctx, req.PDFID, req.PageNumber)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"pdf_id": req.PDFID,
		"page":   req.PageNumber,
		"images": len(result.Paths),
	}).Debug("Images extracted")

	if len(result.Paths) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No images found on page %d", req.PageNumber)), nil
	}

	lines := make([]string, len(result.Paths))
	for i, path := range result.Paths {
		lines[i] = "- " + path
	}
	return mcp.NewToolResultText(fmt.Sprintf("Extracted %d image(s) from page %d:\n%s",
		len(result.Paths), req.PageNumber, strings.Join(lines, "\n"))), nil
}
