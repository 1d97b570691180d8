package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/cli"
	"github.com/sammcj/mcp-pdf-reader/internal/config"
	"github.com/sammcj/mcp-pdf-reader/internal/document"
	"github.com/sammcj/mcp-pdf-reader/internal/extract"
	"github.com/sammcj/mcp-pdf-reader/internal/prompts"
	"github.com/sammcj/mcp-pdf-reader/internal/registry"
	"github.com/sammcj/mcp-pdf-reader/internal/security"
	"github.com/sammcj/mcp-pdf-reader/internal/server"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/telemetry"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	pdftools "github.com/sammcj/mcp-pdf-reader/internal/tools/pdf"
	"github.com/sirupsen/logrus"
	urfave "github.com/urfave/cli/v3"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup
// Using atomic operations to prevent race conditions between signal handlers and cleanup
var (
	debugLogFile atomic.Pointer[os.File]
	isStdioMode  atomic.Bool
)

const (
	// DefaultMemoryLimit is the default memory limit for the Go application (2GB)
	DefaultMemoryLimit = 2 * 1024 * 1024 * 1024
)

// setMemoryLimit configures the Go runtime memory limit
func setMemoryLimit() {
	var memLimit int64 = DefaultMemoryLimit
	if raw := os.Getenv("MCP_PDF_READER_MEMORY_LIMIT"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			memLimit = parsed
		}
	}

	// Soft limit - the runtime adjusts GC to stay under it
	debug.SetMemoryLimit(memLimit)
}

func main() {
	setMemoryLimit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Discard output until the transport mode is known
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	defer closeLogFile()

	app := &urfave.Command{
		Name:    config.AppName,
		Usage:   "MCP server for reading PDF documents",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
			},
			&urfave.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for HTTP transports (SSE and Streamable HTTP)",
			},
			&urfave.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&urfave.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
			&urfave.StringSliceFlag{
				Name:    "allowed-origins",
				Usage:   "CORS origins allowed on HTTP transports (default: localhost)",
				Sources: urfave.EnvVars("PDF_READER_ALLOWED_ORIGINS"),
			},
			&urfave.BoolFlag{
				Name:    "text-only",
				Usage:   "Disable image extraction and page image counts",
				Sources: urfave.EnvVars("PDF_READER_TEXT_ONLY"),
			},
			&urfave.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load settings from these .env files (default: ./.env)",
			},
		},
		Commands: []*urfave.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					fmt.Printf("%s version %s\n", config.AppName, Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			{
				Name:  "tools",
				Usage: "List the available tools",
				Flags: []urfave.Flag{jsonFlag()},
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					return withRunner(ctx, cmd, logger, func(r *cli.Runner, _ *application) error {
						return r.ListTools()
					})
				},
			},
			{
				Name:      "tool-help",
				Usage:     "Show parameters and examples for a tool",
				ArgsUsage: "<tool>",
				Flags:     []urfave.Flag{jsonFlag()},
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("usage: %s tool-help <tool>", config.AppName)
					}
					return withRunner(ctx, cmd, logger, func(r *cli.Runner, _ *application) error {
						return r.HelpTool(cmd.Args().First())
					})
				},
			},
			{
				Name:  "docs",
				Usage: "Print a Markdown reference of the tools, prompts and resources",
				Flags: []urfave.Flag{jsonFlag()},
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					return withRunner(ctx, cmd, logger, func(r *cli.Runner, app *application) error {
						defs := make([]mcp.Prompt, 0, len(app.prompts))
						for _, p := range app.prompts {
							defs = append(defs, p.Definition())
						}
						return r.Docs(defs)
					})
				},
			},
			{
				Name:            "run",
				Usage:           "Run a single tool in-process",
				ArgsUsage:       "<tool> [--file=<pdf>] [--param=value ...] ['{\"json\": \"args\"}']",
				SkipFlagParsing: true,
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					if cmd.Args().Len() < 1 {
						return fmt.Errorf("usage: %s run <tool> [args]", config.AppName)
					}
					return withRunner(ctx, cmd, logger, func(r *cli.Runner, _ *application) error {
						return r.RunTool(ctx, cmd.Args().First(), cmd.Args().Tail())
					})
				},
			},
			{
				Name:      "inspect",
				Usage:     "Print the metadata, page count and optionally the text of a PDF",
				ArgsUsage: "<pdf>",
				Flags: []urfave.Flag{
					jsonFlag(),
					&urfave.BoolFlag{
						Name:  "text",
						Usage: "Also print the document text",
					},
				},
				Action: func(ctx context.Context, cmd *urfave.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("usage: %s inspect <pdf>", config.AppName)
					}
					return withRunner(ctx, cmd, logger, func(r *cli.Runner, _ *application) error {
						return r.Inspect(ctx, cmd.Args().First(), cmd.Bool("text"))
					})
				},
			},
		},
		Action: func(cliCtx context.Context, cmd *urfave.Command) error {
			transport := cmd.String("transport")
			isStdioMode.Store(transport == "stdio")

			cfg, err := config.Load(cmd.StringSlice("env-file")...)
			if err != nil {
				return err
			}
			configureServerLogging(logger, cfg.LogLevel)

			if transport != "stdio" {
				logger.Infof("Starting %s version %s (commit: %s, built: %s)",
					config.AppName, Version, Commit, BuildDate)
			}

			svc := build(cliCtx, cfg, cmd.Bool("text-only"), transport, logger)
			defer svc.close(logger)

			logger.WithField("transport", transport).Debugf("Starting server with %s", svc.server.Describe())

			httpOpts := server.HTTPOptions{
				Port:           cmd.String("port"),
				BaseURL:        cmd.String("base-url"),
				EndpointPath:   cmd.String("endpoint-path"),
				AllowedOrigins: cmd.StringSlice("allowed-origins"),
			}

			switch transport {
			case "stdio":
				return svc.server.ServeStdio()
			case "sse":
				return svc.server.ServeSSE(cliCtx, httpOpts)
			case "http":
				return svc.server.ServeHTTP(cliCtx, httpOpts)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// In stdio mode nothing may be written to stdout or stderr
		if !isStdioMode.Load() {
			logger.SetOutput(os.Stderr)
			logger.Errorf("Error: %v", err)
		}
		closeLogFile()
		os.Exit(1)
	}
}

func jsonFlag() urfave.Flag {
	return &urfave.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of text",
	}
}

// application holds everything built from the configuration that needs closing on exit
type application struct {
	policy            *security.Policy
	store             *session.Store
	registry          *registry.Registry
	prompts           []prompts.Prompt
	server            *server.Server
	errorLog          *tools.ToolErrorLogger
	shutdownTelemetry func(context.Context) error
}

// build wires the session store, extraction services, tools, prompts and server
func build(ctx context.Context, cfg *config.Config, textOnlyFlag bool, transport string, logger *logrus.Logger) *application {
	textOnly := cfg.TextOnly || textOnlyFlag

	policy, err := security.NewPolicy(cfg.AccessConfigPath, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to load access policy, all readable files are allowed")
		policy = security.DisabledPolicy()
	}

	store := session.NewStore(document.NewOpener(logger, !textOnly), logger,
		session.WithPolicy(policy),
		session.WithMaxFileSize(cfg.MaxFileSize),
	)

	text := extract.NewService(store, logger)
	deps := pdftools.Deps{Store: store, Text: text}
	if !textOnly {
		deps.Images = extract.NewImageExtractor(store, cfg.ImageDir, logger)
	}

	reg := registry.New(logger, cfg.DisabledTools)
	reg.RegisterAll(pdftools.NewTools(deps))

	errorLog := tools.DisabledErrorLogger()
	if cfg.ToolErrorLogPath != "" {
		if l, err := tools.NewToolErrorLogger(cfg.ToolErrorLogPath, logger); err != nil {
			logger.WithError(err).Warn("Failed to initialise tool error logger")
		} else {
			errorLog = l
		}
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.OTLPEndpoint,
		Protocol:       cfg.OTLPProtocol,
		ServiceName:    config.AppName,
		ServiceVersion: Version,
		Transport:      transport,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to initialise telemetry, continuing without it")
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	promptList := prompts.NewPrompts(text)
	srv := server.New(server.Options{
		Name:      config.AppName,
		Version:   Version,
		Transport: transport,
		Registry:  reg,
		Prompts:   promptList,
		Store:     store,
		ErrorLog:  errorLog,
		Logger:    logger,
	})

	return &application{
		policy:            policy,
		store:             store,
		registry:          reg,
		prompts:           promptList,
		server:            srv,
		errorLog:          errorLog,
		shutdownTelemetry: shutdownTelemetry,
	}
}

// close releases every open session and flushes the log and telemetry exporters
func (a *application) close(logger *logrus.Logger) {
	a.store.CloseAll()

	if err := a.policy.Close(); err != nil {
		logger.WithError(err).Warn("Failed to stop access policy watcher")
	}
	if err := a.errorLog.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close tool error logger")
	}
	if err := a.shutdownTelemetry(context.Background()); err != nil {
		logger.WithError(err).Warn("Failed to flush telemetry")
	}
}

// withRunner builds the application for a one-shot CLI command, logging to stderr
func withRunner(ctx context.Context, cmd *urfave.Command, logger *logrus.Logger, fn func(*cli.Runner, *application) error) error {
	cfg, err := config.Load(cmd.StringSlice("env-file")...)
	if err != nil {
		return err
	}
	logger.SetOutput(os.Stderr)
	logger.SetLevel(cfg.LogLevel)

	app := build(ctx, cfg, cmd.Bool("text-only"), "cli", logger)
	defer app.close(logger)

	output := cli.OutputText
	if cmd.Bool("json") {
		output = cli.OutputJSON
	}
	return fn(cli.NewRunner(app.registry, app.server, app.store, os.Stdout, output), app)
}

// configureServerLogging sends logs to a file so stdio stays reserved for the protocol.
// Stdio mode never logs below warn.
func configureServerLogging(logger *logrus.Logger, level logrus.Level) {
	if isStdioMode.Load() && level > logrus.WarnLevel {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	logrus.SetLevel(level)

	fallback := func() {
		if isStdioMode.Load() {
			logger.SetOutput(io.Discard)
			logrus.SetOutput(io.Discard)
		} else {
			logger.SetOutput(os.Stderr)
			logrus.SetOutput(os.Stderr)
		}
	}

	logDir := config.LogDir()
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fallback()
		return
	}

	file, err := os.OpenFile(filepath.Join(logDir, config.AppName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		fallback()
		return
	}

	debugLogFile.Store(file)
	logger.SetOutput(file)
	logrus.SetOutput(file)
	logger.WithField("level", level.String()).Debug("Logging configured")
}

func closeLogFile() {
	if file := debugLogFile.Swap(nil); file != nil {
		_ = file.Close()
	}
}
