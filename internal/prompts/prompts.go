// Package prompts provides the PDF prompt templates. Prompts only compose: they resolve
// their session and page selection through the extraction service and embed the result in
// a fixed template.
package prompts

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/extract"
)

// Prompt is a named template rendered from string arguments
type Prompt interface {
	// Definition returns the prompt's definition for MCP registration
	Definition() mcp.Prompt

	// Get renders the prompt
	Get(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)
}

// NewPrompts returns every prompt
func NewPrompts(text *extract.Service) []Prompt {
	return []Prompt{
		&SummarizePrompt{text: text},
		&ExtractTextPrompt{text: text},
		&AnalyzePrompt{text: text},
	}
}

func pdfIDArgument() mcp.PromptOption {
	return mcp.WithArgument("pdf_id",
		mcp.ArgumentDescription("ID of the open PDF, as returned by open-pdf"),
		mcp.RequiredArgument(),
	)
}

func requiredArg(op string, args map[string]string, name string) (string, error) {
	v := strings.TrimSpace(args[name])
	if v == "" {
		return "", docerr.Argument(op, name, "missing required argument %s", name)
	}
	return v, nil
}

// optionalIntArg parses an integer prompt argument; prompt arguments always arrive as strings
func optionalIntArg(op string, args map[string]string, name string) (*int, error) {
	raw, ok := args[name]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, docerr.Argument(op, name, "%s must be an integer, got %q", name, raw)
	}
	return &n, nil
}

// metadataBlock renders declared metadata as a "Document Metadata" list, or nothing
func metadataBlock(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	sb.WriteString("\nDocument Metadata:")
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n- %s: %s", k, metadata[k])
	}
	return sb.String()
}

// fullText reads the declared metadata and the selected pages of a session
func fullText(ctx context.Context, text *extract.Service, id string, pages extract.Selector) (*extract.TextResult, map[string]string, error) {
	if err := pages.Validate(); err != nil {
		return nil, nil, err
	}
	_, metadata, err := text.Store().Metadata(id)
	if err != nil {
		return nil, nil, err
	}
	result, err := text.FullText(ctx, id, extract.TextOptions{IncludePageNumbers: true, Pages: pages})
	if err != nil {
		return nil, nil, err
	}
	return result, metadata, nil
}

func userMessage(description, text string) *mcp.GetPromptResult {
	return mcp.NewGetPromptResult(description, []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
	})
}
