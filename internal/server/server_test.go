package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/document"
	"github.com/sammcj/mcp-pdf-reader/internal/extract"
	"github.com/sammcj/mcp-pdf-reader/internal/prompts"
	"github.com/sammcj/mcp-pdf-reader/internal/registry"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/testutils"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	pdftools "github.com/sammcj/mcp-pdf-reader/internal/tools/pdf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panickingTool struct{}

func (panickingTool) Definition() mcp.Tool {
	return mcp.NewTool("explode", mcp.WithDescription("always panics"))
}

func (panickingTool) Execute(context.Context, *logrus.Logger, map[string]any) (*mcp.CallToolResult, error) {
	panic("boom")
}

type testServer struct {
	*Server
	store *session.Store
}

func newTestServer(t *testing.T, errorLog *tools.ToolErrorLogger, storeOpts ...session.Option) testServer {
	t.Helper()
	logger := testutils.CreateTestLogger()

	store := session.NewStore(document.NewOpener(logger, true), logger, storeOpts...)
	t.Cleanup(store.CloseAll)

	text := extract.NewService(store, logger)
	reg := registry.New(logger, nil)
	reg.RegisterAll(pdftools.NewTools(pdftools.Deps{
		Store:  store,
		Text:   text,
		Images: extract.NewImageExtractor(store, t.TempDir(), logger),
	}))
	reg.Register(panickingTool{})

	srv := New(Options{
		Name:      "mcp-pdf-reader",
		Version:   "test",
		Transport: "stdio",
		Registry:  reg,
		Prompts:   prompts.NewPrompts(text),
		Store:     store,
		ErrorLog:  errorLog,
		Logger:    logger,
	})
	return testServer{Server: srv, store: store}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestScenarioSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, nil, session.WithIDGenerator(func() string { return "abc123" }))
	ctx := context.Background()

	path := testutils.WriteTestPDF(t, "sample.pdf", nil, "First page text", "Second", "Third")

	result := srv.CallTool(ctx, "open-pdf", map[string]any{"path": path})
	require.False(t, result.IsError, textOf(t, result))
	assert.Equal(t, "Opened PDF 'sample.pdf' with 3 pages. PDF ID: abc123", textOf(t, result))

	result = srv.CallTool(ctx, "get-pdf-page-count", map[string]any{"pdf_id": "abc123"})
	require.False(t, result.IsError)
	assert.Equal(t, "'sample.pdf' has 3 pages", textOf(t, result))

	result = srv.CallTool(ctx, "get-pdf-page-text", map[string]any{"pdf_id": "abc123", "page_number": float64(0)})
	require.False(t, result.IsError)
	assert.Contains(t, textOf(t, result), "First page text")

	result = srv.CallTool(ctx, "get-pdf-page-text", map[string]any{"pdf_id": "abc123", "page_number": float64(3)})
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(textOf(t, result), "[OutOfRange] "), textOf(t, result))

	result = srv.CallTool(ctx, "close-pdf", map[string]any{"pdf_id": "abc123"})
	require.False(t, result.IsError)
	assert.Equal(t, "Closed PDF 'sample.pdf'", textOf(t, result))

	result = srv.CallTool(ctx, "get-pdf-page-count", map[string]any{"pdf_id": "abc123"})
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(textOf(t, result), "[NotFound] "), textOf(t, result))
}

func TestErrorResults(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		tool   string
		args   map[string]any
		prefix string
	}{
		{"missing file", "open-pdf", map[string]any{"path": "/nonexistent.pdf"}, "[NotFound] "},
		{"missing argument", "open-pdf", nil, "[InvalidArgument] "},
		{"inverted range", "pdf-to-text", map[string]any{"pdf_id": "x", "start_page": float64(2), "end_page": float64(1)}, "[InvalidArgument] "},
		{"unknown tool", "no-such-tool", nil, "[InvalidArgument] "},
		{"panic", "explode", nil, "[IOError] internal error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := srv.CallTool(ctx, tt.tool, tt.args)
			assert.True(t, result.IsError)
			assert.True(t, strings.HasPrefix(textOf(t, result), tt.prefix), textOf(t, result))
		})
	}

	invalid := testutils.WriteTestFile(t, "broken.pdf", []byte("this is not a PDF"))
	result := srv.CallTool(ctx, "open-pdf", map[string]any{"path": invalid})
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(textOf(t, result), "[InvalidDocument] "), textOf(t, result))
}

func TestToolErrorsAreLogged(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tool-errors.log")
	errorLog, err := tools.NewToolErrorLogger(logPath, testutils.CreateTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = errorLog.Close() })

	srv := newTestServer(t, errorLog)
	srv.CallTool(context.Background(), "close-pdf", map[string]any{"pdf_id": "gone"})

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && strings.Contains(string(data), `"kind":"NotFound"`) &&
			strings.Contains(string(data), `"tool_name":"close-pdf"`)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPrompts(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx := context.Background()

	info, err := srv.store.Open(ctx, testutils.WriteTestPDF(t, "notes.pdf", nil, "Alpha", "Beta"))
	require.NoError(t, err)

	result, err := srv.GetPrompt(ctx, "summarize-pdf", map[string]string{"pdf_id": info.ID})
	require.NoError(t, err)
	assert.Equal(t, "Summarize PDF: notes.pdf", result.Description)

	_, err = srv.GetPrompt(ctx, "summarize-pdf", map[string]string{"pdf_id": "unknown"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "[NotFound] "), err.Error())
	assert.Equal(t, docerr.NotFound, docerr.KindOf(err))

	_, err = srv.GetPrompt(ctx, "no-such-prompt", nil)
	assert.Equal(t, docerr.InvalidArgument, docerr.KindOf(err))
}

func TestResources(t *testing.T) {
	srv := newTestServer(t, nil, session.WithIDGenerator(func() string { return "res1" }))
	ctx := context.Background()

	path := testutils.WriteTestPDF(t, "doc.pdf", nil, "Hello")
	_, err := srv.store.Open(ctx, path)
	require.NoError(t, err)

	contents, err := srv.ReadResource(ctx, "pdf://res1")
	require.NoError(t, err)
	require.Len(t, contents, 1)
	blob, ok := contents[0].(mcp.BlobResourceContents)
	require.True(t, ok)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), blob.Blob)

	_, err = srv.store.Close("res1")
	require.NoError(t, err)

	_, err = srv.ReadResource(ctx, "pdf://res1")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "[NotFound] "), err.Error())
}

func TestHealthzAndCORS(t *testing.T) {
	srv := newTestServer(t, nil)
	handler := Handler(srv.router(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","open_documents":0}`, rec.Body.String())

	preflight := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, preflight)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	preflight.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, preflight)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
