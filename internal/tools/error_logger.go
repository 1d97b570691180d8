package tools

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// ToolErrorLogEntry represents a logged tool error
type ToolErrorLogEntry struct {
	Timestamp string         `json:"timestamp"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Error     string         `json:"error"`
	Transport string         `json:"transport,omitempty"`
}

// ToolErrorLogger appends tool failures to a JSON-lines file. Several server processes can
// share the file, so every write and rotation also holds an advisory file lock.
type ToolErrorLogger struct {
	enabled  bool
	logFile  *os.File
	logger   *logrus.Logger
	mu       sync.Mutex
	fileLock *flock.Flock
	filePath string
}

const (
	// DefaultLogRetentionDays is the default number of days to retain error logs
	DefaultLogRetentionDays = 60
)

// DisabledErrorLogger discards every entry
func DisabledErrorLogger() *ToolErrorLogger {
	return &ToolErrorLogger{}
}

// NewToolErrorLogger opens filePath for appending and prunes entries older than the
// retention period in the background
func NewToolErrorLogger(filePath string, logger *logrus.Logger) (*ToolErrorLogger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open tool error log file: %w", err)
	}

	l := &ToolErrorLogger{
		enabled:  true,
		logFile:  logFile,
		logger:   logger,
		fileLock: flock.New(filePath + ".lock"),
		filePath: filePath,
	}

	go func() {
		if rotateErr := l.rotateOldLogs(); rotateErr != nil {
			logger.WithError(rotateErr).Warn("Failed to rotate old tool error logs")
		}
	}()

	logger.Infof("Tool error logging enabled: %s", filePath)
	return l, nil
}

// LogToolError logs a tool execution error
func (l *ToolErrorLogger) LogToolError(toolName string, args map[string]any, kind string, err error, transport string) {
	if l == nil || !l.enabled || err == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return
	}

	entry := ToolErrorLogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		ToolName:  toolName,
		Arguments: args,
		Kind:      kind,
		Error:     err.Error(),
		Transport: transport,
	}

	jsonData, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		l.logger.WithError(marshalErr).Error("Failed to marshal tool error log entry")
		return
	}

	if lockErr := l.fileLock.Lock(); lockErr != nil {
		l.logger.WithError(lockErr).Error("Failed to lock tool error log file")
		return
	}
	defer func() { _ = l.fileLock.Unlock() }()

	if _, writeErr := l.logFile.Write(append(jsonData, '\n')); writeErr != nil {
		l.logger.WithError(writeErr).Error("Failed to write tool error log entry")
		return
	}

	if syncErr := l.logFile.Sync(); syncErr != nil {
		l.logger.WithError(syncErr).Error("Failed to sync tool error log file")
	}
}

// Close closes the error logger and its log file
func (l *ToolErrorLogger) Close() error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// IsEnabled returns whether error logging is enabled
func (l *ToolErrorLogger) IsEnabled() bool {
	return l != nil && l.enabled
}

// GetLogFilePath returns the path to the error log file
func (l *ToolErrorLogger) GetLogFilePath() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// rotateOldLogs removes log entries older than the retention period.
// Holds the mutex for the entire operation so LogToolError never writes to a closed file,
// and skips the rotation when another process holds the file lock.
func (l *ToolErrorLogger) rotateOldLogs() error {
	if !l.enabled || l.filePath == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		// closed before the rotation started
		return nil
	}

	locked, err := l.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock log file for rotation: %w", err)
	}
	if !locked {
		l.logger.Debug("Tool error log is locked by another process, skipping rotation")
		return nil
	}
	defer func() { _ = l.fileLock.Unlock() }()

	if err := l.logFile.Close(); err != nil {
		return fmt.Errorf("failed to close log file for rotation: %w", err)
	}
	l.logFile = nil

	file, err := os.Open(l.filePath)
	if err != nil {
		return l.reopenLogFileLocked()
	}

	validEntries := pruneEntries(bufio.NewScanner(file), time.Now().AddDate(0, 0, -DefaultLogRetentionDays))
	_ = file.Close()

	if validEntries == nil {
		_ = l.reopenLogFileLocked()
		return fmt.Errorf("error reading log file during rotation")
	}

	content := ""
	if len(validEntries) > 0 {
		content = strings.Join(validEntries, "\n") + "\n"
	}

	tmpPath := l.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0600); err != nil {
		_ = l.reopenLogFileLocked()
		return fmt.Errorf("failed to write temporary rotated log file: %w", err)
	}

	if err := os.Rename(tmpPath, l.filePath); err != nil {
		_ = os.Remove(tmpPath)
		_ = l.reopenLogFileLocked()
		return fmt.Errorf("failed to rename temporary log file during rotation: %w", err)
	}

	return l.reopenLogFileLocked()
}

// pruneEntries keeps entries newer than cutoff plus any line it cannot date.
// It returns nil when the scanner fails.
func pruneEntries(scanner *bufio.Scanner, cutoff time.Time) []string {
	validEntries := []string{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry ToolErrorLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			validEntries = append(validEntries, line)
			continue
		}

		entryTime, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil || entryTime.After(cutoff) {
			validEntries = append(validEntries, line)
		}
	}
	if scanner.Err() != nil {
		return nil
	}
	return validEntries
}

// reopenLogFileLocked reopens the log file in append mode.
// Caller must hold l.mu.
func (l *ToolErrorLogger) reopenLogFileLocked() error {
	logFile, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to reopen log file: %w", err)
	}

	l.logFile = logFile
	return nil
}
