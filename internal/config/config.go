// Package config gathers the server settings from .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	"github.com/sirupsen/logrus"
)

// AppName names the binary, its home directory and the telemetry service
const AppName = "mcp-pdf-reader"

// Config holds every setting the server reads at startup
type Config struct {
	LogLevel logrus.Level
	// TextOnly drops extract-images and page image counts
	TextOnly bool
	// ImageDir is the parent of the per-session image directories
	ImageDir    string
	MaxFileSize int64
	// AccessConfigPath points at the YAML access policy; a missing file disables it
	AccessConfigPath string
	DisabledTools    []string
	// ToolErrorLogPath is empty unless LOG_TOOL_ERRORS is enabled
	ToolErrorLogPath string
	OTLPEndpoint     string
	OTLPProtocol     string
}

// Load reads the given .env files (or ./.env when none are given), ignoring missing ones,
// then builds the configuration from the environment. Variables already set in the
// environment take precedence over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a variable lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		LogLevel:         ParseLogLevel(getenv("LOG_LEVEL")),
		ImageDir:         os.TempDir(),
		MaxFileSize:      session.DefaultMaxFileSize,
		AccessConfigPath: filepath.Join(HomeDir(), "access.yaml"),
		DisabledTools:    tools.ParseToolList(getenv("DISABLED_TOOLS")),
		OTLPEndpoint:     strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPProtocol:     strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL")),
	}

	var err error
	if cfg.TextOnly, err = parseBool("PDF_READER_TEXT_ONLY", getenv("PDF_READER_TEXT_ONLY")); err != nil {
		return nil, err
	}

	if dir := strings.TrimSpace(getenv("PDF_READER_IMAGE_DIR")); dir != "" {
		cfg.ImageDir = dir
	}

	if raw := strings.TrimSpace(getenv("PDF_MAX_FILE_SIZE")); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("PDF_MAX_FILE_SIZE must be a positive number of bytes, got %q", raw)
		}
		cfg.MaxFileSize = size
	}

	if path := strings.TrimSpace(getenv("PDF_READER_ACCESS_CONFIG")); path != "" {
		cfg.AccessConfigPath = path
	}

	logErrors, err := parseBool("LOG_TOOL_ERRORS", getenv("LOG_TOOL_ERRORS"))
	if err != nil {
		return nil, err
	}
	if logErrors {
		cfg.ToolErrorLogPath = filepath.Join(LogDir(), "tool-errors.log")
	}

	return cfg, nil
}

// ParseLogLevel parses a LOG_LEVEL value. Defaults to WarnLevel if empty or invalid.
func ParseLogLevel(value string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

// HomeDir returns ~/.mcp-pdf-reader, or a directory under the temp dir when the home
// directory is unknown
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(home, "."+AppName)
}

// LogDir returns the directory log files are written to
func LogDir() string {
	return filepath.Join(HomeDir(), "logs")
}

func parseBool(name, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", name, raw)
	}
	return v, nil
}
