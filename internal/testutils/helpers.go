package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

// CreateTestLogger creates a logger suitable for testing
func CreateTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

// CreateTestContext creates a context suitable for testing
func CreateTestContext() context.Context {
	return context.Background()
}

// WriteTestPDF writes a generated PDF into the test's temp dir and returns its path.
// Each element of pages is the text of one page; lines are separated by "\n".
func WriteTestPDF(t testing.TB, name string, info map[string]string, pages ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, BuildPDF(info, pages...), 0600); err != nil {
		t.Fatalf("failed to write test PDF: %v", err)
	}
	return path
}

// WriteTestPages is WriteTestPDF for pages that may carry images
func WriteTestPages(t testing.TB, name string, pages ...Page) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, BuildPages(nil, pages...), 0600); err != nil {
		t.Fatalf("failed to write test PDF: %v", err)
	}
	return path
}

// WriteTestFile writes arbitrary content into the test's temp dir and returns its path
func WriteTestFile(t testing.TB, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}
