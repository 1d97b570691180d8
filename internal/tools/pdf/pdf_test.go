package pdf

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/document"
	"github.com/sammcj/mcp-pdf-reader/internal/extract"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/testutils"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeps(t *testing.T, images bool) Deps {
	t.Helper()
	logger := testutils.CreateTestLogger()
	store := session.NewStore(document.NewOpener(logger, images), logger)
	t.Cleanup(store.CloseAll)

	deps := Deps{Store: store, Text: extract.NewService(store, logger)}
	if images {
		deps.Images = extract.NewImageExtractor(store, t.TempDir(), logger)
	}
	return deps
}

func toolByName(t *testing.T, list []tools.Tool, name string) tools.Tool {
	t.Helper()
	for _, tool := range list {
		if tool.Definition().Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

var idPattern = regexp.MustCompile(`PDF ID: (\S+)$`)

func openFixture(t *testing.T, list []tools.Tool, pages ...string) string {
	t.Helper()
	path := testutils.WriteTestPDF(t, "report.pdf", map[string]string{"Title": "Annual Report", "Author": "Jane"}, pages...)

	result, err := toolByName(t, list, "open-pdf").Execute(context.Background(), testutils.CreateTestLogger(), map[string]any{"path": path})
	require.NoError(t, err)
	text := resultText(t, result)

	match := idPattern.FindStringSubmatch(text)
	require.Len(t, match, 2, text)
	return match[1]
}

func TestToolSetDependsOnConfiguration(t *testing.T) {
	names := func(list []tools.Tool) []string {
		var out []string
		for _, tool := range list {
			out = append(out, tool.Definition().Name)
		}
		return out
	}

	textOnly := names(NewTools(newDeps(t, false)))
	assert.NotContains(t, textOnly, "extract-images")
	assert.Len(t, textOnly, 6)

	withImages := names(NewTools(newDeps(t, true)))
	assert.Contains(t, withImages, "extract-images")
	assert.ElementsMatch(t, []string{
		"open-pdf", "close-pdf", "list-pdf-metadata", "get-pdf-page-count",
		"get-pdf-page-text", "pdf-to-text", "extract-images",
	}, withImages)
}

func TestDefinitionsDeclareRequiredArguments(t *testing.T) {
	for _, tool := range NewTools(newDeps(t, true)) {
		def := tool.Definition()
		t.Run(def.Name, func(t *testing.T) {
			assert.NotEmpty(t, def.Description)
			if def.Name == "open-pdf" {
				assert.Equal(t, []string{"path"}, def.InputSchema.Required)
				return
			}
			assert.Contains(t, def.InputSchema.Required, "pdf_id")
			if def.Name == "get-pdf-page-text" || def.Name == "extract-images" {
				assert.Contains(t, def.InputSchema.Required, "page_number")
			}
		})
	}
}

func TestSessionTools(t *testing.T) {
	list := NewTools(newDeps(t, false))
	ctx := context.Background()
	logger := testutils.CreateTestLogger()

	id := openFixture(t, list, "Intro", "Body", "End")

	result, err := toolByName(t, list, "get-pdf-page-count").Execute(ctx, logger, map[string]any{"pdf_id": id})
	require.NoError(t, err)
	assert.Equal(t, "'report.pdf' has 3 pages", resultText(t, result))

	result, err = toolByName(t, list, "list-pdf-metadata").Execute(ctx, logger, map[string]any{"pdf_id": id})
	require.NoError(t, err)
	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Metadata for 'report.pdf':\n\n"))
	assert.Contains(t, text, "Author: Jane\n")
	assert.Contains(t, text, "Title: Annual Report")

	result, err = toolByName(t, list, "close-pdf").Execute(ctx, logger, map[string]any{"pdf_id": id})
	require.NoError(t, err)
	assert.Equal(t, "Closed PDF 'report.pdf'", resultText(t, result))

	_, err = toolByName(t, list, "get-pdf-page-count").Execute(ctx, logger, map[string]any{"pdf_id": id})
	assert.Equal(t, docerr.NotFound, docerr.KindOf(err))
}

func TestOpenNonexistentFile(t *testing.T) {
	list := NewTools(newDeps(t, false))
	_, err := toolByName(t, list, "open-pdf").Execute(context.Background(), testutils.CreateTestLogger(), map[string]any{"path": "/nonexistent.pdf"})
	assert.Equal(t, docerr.NotFound, docerr.KindOf(err))
}

func TestPageTextTool(t *testing.T) {
	ctx := context.Background()
	logger := testutils.CreateTestLogger()

	t.Run("text only omits image count", func(t *testing.T) {
		list := NewTools(newDeps(t, false))
		id := openFixture(t, list, "Intro", "")

		result, err := toolByName(t, list, "get-pdf-page-text").Execute(ctx, logger, map[string]any{"pdf_id": id, "page_number": float64(0)})
		require.NoError(t, err)
		text := resultText(t, result)
		assert.True(t, strings.HasPrefix(text, "Text from page 0 of 'report.pdf':\n\n"))
		assert.Contains(t, text, "Intro")
		assert.NotContains(t, text, "Images on page")

		result, err = toolByName(t, list, "get-pdf-page-text").Execute(ctx, logger, map[string]any{"pdf_id": id, "page_number": float64(1)})
		require.NoError(t, err)
		assert.Contains(t, resultText(t, result), "No extractable text found on page 1")
	})

	t.Run("image capable includes image count", func(t *testing.T) {
		list := NewTools(newDeps(t, true))
		id := openFixture(t, list, "Intro")

		result, err := toolByName(t, list, "get-pdf-page-text").Execute(ctx, logger, map[string]any{"pdf_id": id, "page_number": float64(0)})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(resultText(t, result), "\n\nImages on page: 0"))
	})

	t.Run("image count of a page with images", func(t *testing.T) {
		list := NewTools(newDeps(t, true))
		path := testutils.WriteTestPages(t, "figures.pdf", testutils.Page{Text: "Figure 1", Images: 1})

		opened, err := toolByName(t, list, "open-pdf").Execute(ctx, logger, map[string]any{"path": path})
		require.NoError(t, err)
		match := idPattern.FindStringSubmatch(resultText(t, opened))
		require.Len(t, match, 2)

		result, err := toolByName(t, list, "get-pdf-page-text").Execute(ctx, logger, map[string]any{"pdf_id": match[1], "page_number": float64(0)})
		require.NoError(t, err)
		text := resultText(t, result)
		assert.Contains(t, text, "Figure 1")
		assert.True(t, strings.HasSuffix(text, "\n\nImages on page: 1"), text)
	})

	t.Run("page bounds", func(t *testing.T) {
		list := NewTools(newDeps(t, false))
		id := openFixture(t, list, "a", "b")

		for _, page := range []float64{-1, 2, 50} {
			_, err := toolByName(t, list, "get-pdf-page-text").Execute(ctx, logger, map[string]any{"pdf_id": id, "page_number": page})
			assert.Equal(t, docerr.OutOfRange, docerr.KindOf(err), "page %v", page)
		}
	})
}

func TestToTextTool(t *testing.T) {
	list := NewTools(newDeps(t, false))
	ctx := context.Background()
	logger := testutils.CreateTestLogger()
	id := openFixture(t, list, "One", "Two", "Three")
	tool := toolByName(t, list, "pdf-to-text")

	result, err := tool.Execute(ctx, logger, map[string]any{"pdf_id": id})
	require.NoError(t, err)
	text := resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Text extracted from all pages (1-3) of 'report.pdf'\n\n"))
	assert.Equal(t, 3, strings.Count(text, "--- PAGE "))

	result, err = tool.Execute(ctx, logger, map[string]any{"pdf_id": id, "start_page": float64(1), "end_page": float64(2), "include_page_numbers": false})
	require.NoError(t, err)
	text = resultText(t, result)
	assert.True(t, strings.HasPrefix(text, "Text extracted from pages 2-3 of 'report.pdf'"))
	assert.NotContains(t, text, "--- PAGE")
	assert.NotContains(t, text, "One")

	_, err = tool.Execute(ctx, logger, map[string]any{"pdf_id": id, "end_page": float64(3)})
	assert.Equal(t, docerr.OutOfRange, docerr.KindOf(err))
}

func TestToTextStartAfterEndIsInvalidArgumentForAnyDocument(t *testing.T) {
	list := NewTools(newDeps(t, false))
	_, err := toolByName(t, list, "pdf-to-text").Execute(context.Background(), testutils.CreateTestLogger(),
		map[string]any{"pdf_id": "never-opened", "start_page": float64(2), "end_page": float64(1)})

	require.Error(t, err)
	assert.Equal(t, docerr.InvalidArgument, docerr.KindOf(err))
	assert.Contains(t, err.Error(), "start_page")
}

func TestExtractImagesTool(t *testing.T) {
	list := NewTools(newDeps(t, true))
	id := openFixture(t, list, "No pictures here")

	result, err := toolByName(t, list, "extract-images").Execute(context.Background(), testutils.CreateTestLogger(),
		map[string]any{"pdf_id": id, "page_number": float64(0)})
	require.NoError(t, err)
	assert.Equal(t, "No images found on page 0", resultText(t, result))
}

func TestParseRequests(t *testing.T) {
	tests := []struct {
		name  string
		parse func(map[string]any) error
		args  map[string]any
		arg   string
	}{
		{
			name:  "open without path",
			parse: func(a map[string]any) error { _, err := ParseOpenRequest(a); return err },
			args:  map[string]any{},
			arg:   "path",
		},
		{
			name:  "open with numeric path",
			parse: func(a map[string]any) error { _, err := ParseOpenRequest(a); return err },
			args:  map[string]any{"path": 12},
			arg:   "path",
		},
		{
			name:  "close with empty id",
			parse: func(a map[string]any) error { _, err := ParseCloseRequest(a); return err },
			args:  map[string]any{"pdf_id": ""},
			arg:   "pdf_id",
		},
		{
			name:  "page text without page",
			parse: func(a map[string]any) error { _, err := ParsePageTextRequest(a); return err },
			args:  map[string]any{"pdf_id": "abc123"},
			arg:   "page_number",
		},
		{
			name:  "page text with fractional page",
			parse: func(a map[string]any) error { _, err := ParsePageTextRequest(a); return err },
			args:  map[string]any{"pdf_id": "abc123", "page_number": 1.5},
			arg:   "page_number",
		},
		{
			name:  "page text with string page",
			parse: func(a map[string]any) error { _, err := ParsePageTextRequest(a); return err },
			args:  map[string]any{"pdf_id": "abc123", "page_number": "1"},
			arg:   "page_number",
		},
		{
			name:  "to-text with string flag",
			parse: func(a map[string]any) error { _, err := ParseToTextRequest(a); return err },
			args:  map[string]any{"pdf_id": "abc123", "include_page_numbers": "yes"},
			arg:   "include_page_numbers",
		},
		{
			name:  "extract images without id",
			parse: func(a map[string]any) error { _, err := ParseExtractImagesRequest(a); return err },
			args:  map[string]any{"page_number": float64(0)},
			arg:   "pdf_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse(tt.args)
			require.Error(t, err)
			assert.Equal(t, docerr.InvalidArgument, docerr.KindOf(err))
			assert.Contains(t, err.Error(), "(argument: "+tt.arg+")")
		})
	}
}

func TestParseToTextRequestDefaults(t *testing.T) {
	req, err := ParseToTextRequest(map[string]any{"pdf_id": "abc123"})
	require.NoError(t, err)
	assert.True(t, req.IncludePageNumbers)
	assert.Nil(t, req.StartPage)
	assert.Nil(t, req.EndPage)

	req, err = ParseToTextRequest(map[string]any{"pdf_id": "abc123", "start_page": 2, "end_page": float64(2)})
	require.NoError(t, err)
	require.NotNil(t, req.StartPage)
	assert.Equal(t, 2, *req.StartPage)
	assert.Equal(t, 2, *req.EndPage)
}

func TestFormatMetadata(t *testing.T) {
	assert.Equal(t, "No metadata available", FormatMetadata(nil))
	assert.Equal(t, "Author: Jane\nTitle: Report", FormatMetadata(map[string]string{"Title": "Report", "Author": "Jane"}))
}
