package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func writePolicy(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestMissingPolicyAllowsEverything(t *testing.T) {
	p, err := NewPolicy(filepath.Join(t.TempDir(), "access.yaml"), testLogger())
	require.NoError(t, err)
	defer p.Close()

	assert.NoError(t, p.Check("/etc/secret.pdf"))
}

func TestMalformedPolicyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.yaml")
	writePolicy(t, path, "enabled: [unclosed")

	_, err := NewPolicy(path, testLogger())
	assert.Error(t, err)
}

func TestPolicyCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "access.yaml")
	writePolicy(t, path, `
enabled: true
deny_files:
  - /srv/private
  - "*.secret.pdf"
  - "/srv/**/drafts/*.pdf"
allow_dirs:
  - /srv
  - /home/reports
`)

	p, err := NewPolicy(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	tests := []struct {
		name    string
		path    string
		allowed bool
	}{
		{name: "allowed directory", path: "/srv/docs/a.pdf", allowed: true},
		{name: "second allowed directory", path: "/home/reports/q1.pdf", allowed: true},
		{name: "denied prefix", path: "/srv/private/a.pdf", allowed: false},
		{name: "denied file name glob", path: "/srv/docs/plan.secret.pdf", allowed: false},
		{name: "denied recursive glob", path: "/srv/docs/2024/drafts/x.pdf", allowed: false},
		{name: "recursive glob needs drafts dir", path: "/srv/docs/2024/final/x.pdf", allowed: true},
		{name: "outside allowed directories", path: "/tmp/a.pdf", allowed: false},
		{name: "sibling with shared prefix", path: "/srvx/a.pdf", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.path)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrDenied))
			}
		})
	}
}

func TestPolicyCheckTargetFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	allowed := filepath.Join(root, "allowed")
	elsewhere := filepath.Join(root, "elsewhere")
	require.NoError(t, os.MkdirAll(allowed, 0700))
	require.NoError(t, os.MkdirAll(elsewhere, 0700))

	outside := filepath.Join(elsewhere, "outside.pdf")
	denied := filepath.Join(allowed, "secret.pdf")
	plain := filepath.Join(allowed, "plain.pdf")
	for _, f := range []string{outside, denied, plain} {
		require.NoError(t, os.WriteFile(f, []byte("%PDF-1.4"), 0600))
	}

	escape := filepath.Join(allowed, "escape.pdf")
	alias := filepath.Join(allowed, "alias.pdf")
	require.NoError(t, os.Symlink(outside, escape))
	require.NoError(t, os.Symlink(denied, alias))

	path := filepath.Join(root, "access.yaml")
	writePolicy(t, path, "enabled: true\ndeny_files: [\""+denied+"\"]\nallow_dirs: [\""+allowed+"\"]\n")
	p, err := NewPolicy(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	// the link names alone pass
	require.NoError(t, p.Check(escape))
	require.NoError(t, p.Check(alias))

	assert.ErrorIs(t, p.CheckTarget(escape), ErrDenied)
	assert.ErrorIs(t, p.CheckTarget(alias), ErrDenied)
	assert.NoError(t, p.CheckTarget(plain))
	assert.NoError(t, DisabledPolicy().CheckTarget(escape))
}

func TestDisabledPolicyIgnoresRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.yaml")
	writePolicy(t, path, "enabled: false\ndeny_files: [/srv]\n")

	p, err := NewPolicy(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	assert.NoError(t, p.Check("/srv/a.pdf"))
	assert.NoError(t, DisabledPolicy().Check("/srv/a.pdf"))
}

func TestPolicyAutoReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.yaml")
	writePolicy(t, path, "enabled: true\nauto_reload: true\n")

	p, err := NewPolicy(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Check("/srv/a.pdf"))

	writePolicy(t, path, "enabled: true\nauto_reload: true\ndeny_files: [/srv]\n")

	assert.Eventually(t, func() bool {
		return p.Check("/srv/a.pdf") != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestExpandHomePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "docs/a.pdf"), ExpandHomePath("~/docs/a.pdf"))
	assert.Equal(t, "/abs/a.pdf", ExpandHomePath("/abs/a.pdf"))
	assert.Equal(t, "rel/~/a.pdf", ExpandHomePath("rel/~/a.pdf"))
}
