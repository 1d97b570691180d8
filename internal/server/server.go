// Package server wires the PDF tools, prompts and resources into an MCP server. It is the
// only place where errors are turned into transport responses.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sammcj/mcp-pdf-reader/internal/docerr"
	"github.com/sammcj/mcp-pdf-reader/internal/prompts"
	"github.com/sammcj/mcp-pdf-reader/internal/registry"
	"github.com/sammcj/mcp-pdf-reader/internal/resources"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/telemetry"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	"github.com/sirupsen/logrus"
)

const instructions = "Open a PDF with open-pdf to get a PDF ID, pass that ID to the other tools and prompts, " +
	"and close it with close-pdf when done. Page numbers start at 0."

// Options configures New
type Options struct {
	Name      string
	Version   string
	Transport string
	Registry  *registry.Registry
	Prompts   []prompts.Prompt
	Store     *session.Store
	// ErrorLog may be nil
	ErrorLog *tools.ToolErrorLogger
	Logger   *logrus.Logger
}

// Server dispatches MCP requests to tools, prompts and resources
type Server struct {
	mcp       *mcpserver.MCPServer
	registry  *registry.Registry
	prompts   map[string]prompts.Prompt
	publisher *resources.Publisher
	store     *session.Store
	errorLog  *tools.ToolErrorLogger
	transport string
	logger    *logrus.Logger
}

// New builds the MCP server and registers every tool, prompt and open-session resource
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		mcp: mcpserver.NewMCPServer(opts.Name, opts.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithPromptCapabilities(true),
			mcpserver.WithResourceCapabilities(false, true),
			mcpserver.WithInstructions(instructions),
		),
		registry:  opts.Registry,
		prompts:   make(map[string]prompts.Prompt, len(opts.Prompts)),
		store:     opts.Store,
		errorLog:  opts.ErrorLog,
		transport: opts.Transport,
		logger:    logger,
	}

	for name, tool := range s.registry.Tools() {
		s.mcp.AddTool(tool.Definition(), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, ok := request.Params.Arguments.(map[string]any)
			if !ok && request.Params.Arguments != nil {
				return mcp.NewToolResultError(docerr.Tagged(docerr.Argument(name, "arguments",
					"invalid arguments type: expected an object, got %T", request.Params.Arguments))), nil
			}
			return s.CallTool(ctx, name, args), nil
		})
		logger.WithField("tool", name).Debug("Tool added to MCP server")
	}

	for _, p := range opts.Prompts {
		def := p.Definition()
		s.prompts[def.Name] = p
		s.mcp.AddPrompt(def, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return s.GetPrompt(ctx, def.Name, request.Params.Arguments)
		})
	}

	s.publisher = resources.NewPublisher(opts.Store, &instrumentedRegistrar{server: s}, logger)

	opts.Store.AddObserver(session.Observer{
		OnOpen:  func(session.Info) { telemetry.RecordDocumentOpened(context.Background()) },
		OnClose: func(session.Info) { telemetry.RecordDocumentClosed(context.Background()) },
	})

	return s
}

// MCPServer returns the underlying mcp-go server
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// CallTool runs a tool and converts any failure into an error result tagged with its kind
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	if args == nil {
		args = map[string]any{}
	}

	tool, ok := s.registry.Get(name)
	if !ok {
		return mcp.NewToolResultError(docerr.Tagged(docerr.Argument("call-tool", "name", "unknown tool %q", name)))
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.KindTool, name, args)

	result, err := s.execute(ctx, name, func(ctx context.Context) (*mcp.CallToolResult, error) {
		return tool.Execute(ctx, s.logger, args)
	})

	errKind := ""
	if err != nil {
		errKind = string(docerr.KindOrDefault(err))
		s.logFailure(telemetry.KindTool, name, err)
		s.errorLog.LogToolError(name, args, errKind, err, s.transport)
		result = mcp.NewToolResultError(docerr.Tagged(err))
	}

	telemetry.EndSpan(span, errKind, err)
	telemetry.RecordOperation(ctx, telemetry.KindTool, name, errKind, time.Since(start))
	return result
}

// execute runs fn, turning panics and empty results into errors
func (s *Server) execute(ctx context.Context, name string, fn func(context.Context) (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"tool":  name,
				"panic": r,
			}).Error("Tool panicked")
			result, err = nil, docerr.New(docerr.IOError, name, "internal error: %v", r)
		}
	}()

	result, err = fn(ctx)
	if err == nil && result == nil {
		err = docerr.New(docerr.IOError, name, "tool returned no result")
	}
	return result, err
}

// GetPrompt renders a prompt. Failures are returned as errors whose text is "[Kind] message".
func (s *Server) GetPrompt(ctx context.Context, name string, args map[string]string) (result *mcp.GetPromptResult, err error) {
	p, ok := s.prompts[name]
	if !ok {
		return nil, &TaggedError{Err: docerr.Argument("get-prompt", "name", "unknown prompt %q", name)}
	}
	if args == nil {
		args = map[string]string{}
	}

	spanArgs := make(map[string]any, len(args))
	for k, v := range args {
		spanArgs[k] = v
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.KindPrompt, name, spanArgs)

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithFields(logrus.Fields{"prompt": name, "panic": r}).Error("Prompt panicked")
				result, err = nil, docerr.New(docerr.IOError, name, "internal error: %v", r)
			}
		}()
		result, err = p.Get(ctx, args)
	}()

	errKind := ""
	if err != nil {
		errKind = string(docerr.KindOrDefault(err))
		s.logFailure(telemetry.KindPrompt, name, err)
		err = &TaggedError{Err: err}
	}

	telemetry.EndSpan(span, errKind, err)
	telemetry.RecordOperation(ctx, telemetry.KindPrompt, name, errKind, time.Since(start))
	return result, err
}

// ReadResource reads a pdf:// resource
func (s *Server) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.KindResource, uri, nil)

	contents, err := s.publisher.Read(ctx, uri)

	errKind := ""
	if err != nil {
		errKind = string(docerr.KindOrDefault(err))
		s.logFailure(telemetry.KindResource, uri, err)
		err = &TaggedError{Err: err}
	}

	telemetry.EndSpan(span, errKind, err)
	telemetry.RecordOperation(ctx, telemetry.KindResource, "read-resource", errKind, time.Since(start))
	return contents, err
}

func (s *Server) logFailure(kind, name string, err error) {
	entry := s.logger.WithFields(logrus.Fields{
		kind:   name,
		"kind": docerr.KindOrDefault(err),
	}).WithError(err)

	if docerr.KindOf(err) == "" {
		entry.Error("Operation failed")
		return
	}
	entry.Debug("Operation failed")
}

// TaggedError carries a failure across the protocol boundary as "[Kind] message"
type TaggedError struct {
	Err error
}

func (e *TaggedError) Error() string {
	return docerr.Tagged(e.Err)
}

func (e *TaggedError) Unwrap() error {
	return e.Err
}

// instrumentedRegistrar routes resource reads through the server so they are traced
type instrumentedRegistrar struct {
	server *Server
}

func (r *instrumentedRegistrar) AddResource(resource mcp.Resource, _ mcpserver.ResourceHandlerFunc) {
	r.server.mcp.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return r.server.ReadResource(ctx, request.Params.URI)
	})
}

func (r *instrumentedRegistrar) RemoveResource(uri string) {
	r.server.mcp.RemoveResource(uri)
}

// Describe summarises the registered surface for startup logging
func (s *Server) Describe() string {
	return fmt.Sprintf("%d tools, %d prompts", len(s.registry.Names()), len(s.prompts))
}
