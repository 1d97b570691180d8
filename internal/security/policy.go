// Package security controls which files the server may open.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrDenied is returned by Check for paths the policy refuses
var ErrDenied = errors.New("access denied by policy")

// AccessConfig is the YAML access policy file
type AccessConfig struct {
	Enabled    bool `yaml:"enabled"`
	AutoReload bool `yaml:"auto_reload"`
	// DenyFiles are glob patterns or path prefixes that may never be opened
	DenyFiles []string `yaml:"deny_files"`
	// AllowDirs, when not empty, restricts opens to files below these directories
	AllowDirs []string `yaml:"allow_dirs"`
}

// Policy evaluates paths against the access configuration, reloading it when the file changes
type Policy struct {
	path   string
	logger *logrus.Logger

	mutex   sync.RWMutex
	config  AccessConfig
	watcher *fsnotify.Watcher
}

// DisabledPolicy allows every path
func DisabledPolicy() *Policy {
	return &Policy{logger: logrus.New()}
}

// NewPolicy loads the policy at path. A missing file disables the policy; a malformed one
// is an error.
func NewPolicy(path string, logger *logrus.Logger) (*Policy, error) {
	if logger == nil {
		logger = logrus.New()
	}
	p := &Policy{path: ExpandHomePath(path), logger: logger}

	if p.path == "" {
		return p, nil
	}
	if _, err := os.Stat(p.path); errors.Is(err, os.ErrNotExist) {
		logger.WithField("path", p.path).Debug("No access policy file, all paths allowed")
		return p, nil
	}

	if err := p.Load(); err != nil {
		return nil, err
	}

	if p.config.AutoReload {
		if err := p.startWatcher(); err != nil {
			logger.WithError(err).Warn("Failed to start access policy watcher, auto-reload disabled")
		}
	}

	return p, nil
}

// Load (re)reads the policy file
func (p *Policy) Load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("failed to read access policy: %w", err)
	}

	var config AccessConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse access policy %s: %w", p.path, err)
	}

	for i, pattern := range config.DenyFiles {
		config.DenyFiles[i] = filepath.Clean(ExpandHomePath(pattern))
	}
	for i, dir := range config.AllowDirs {
		config.AllowDirs[i] = filepath.Clean(ExpandHomePath(dir))
	}
	// symlink targets are compared against resolved directories
	for _, dir := range slices.Clone(config.AllowDirs) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil && resolved != dir {
			config.AllowDirs = append(config.AllowDirs, resolved)
		}
	}

	p.mutex.Lock()
	p.config = config
	p.mutex.Unlock()

	p.logger.WithFields(logrus.Fields{
		"path":       p.path,
		"enabled":    config.Enabled,
		"deny_files": len(config.DenyFiles),
		"allow_dirs": len(config.AllowDirs),
	}).Debug("Access policy loaded")

	return nil
}

// Check returns an error wrapping ErrDenied when the absolute path may not be opened
func (p *Policy) Check(absPath string) error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if !p.config.Enabled {
		return nil
	}

	cleanPath := filepath.Clean(absPath)

	for _, pattern := range p.config.DenyFiles {
		if pathMatches(cleanPath, pattern) {
			return fmt.Errorf("%w: %s matches deny pattern %q", ErrDenied, cleanPath, pattern)
		}
	}

	if len(p.config.AllowDirs) == 0 {
		return nil
	}
	for _, dir := range p.config.AllowDirs {
		if cleanPath == dir || strings.HasPrefix(cleanPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is outside the allowed directories", ErrDenied, cleanPath)
}

// CheckTarget checks the file an existing absolute path resolves to once symlinks are
// followed. Paths without symlinks were already covered by Check.
func (p *Policy) CheckTarget(absPath string) error {
	p.mutex.RLock()
	enabled := p.config.Enabled
	p.mutex.RUnlock()
	if !enabled {
		return nil
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve %s: %v", ErrDenied, absPath, err)
	}
	if resolved == filepath.Clean(absPath) {
		return nil
	}
	return p.Check(resolved)
}

// Close stops watching the policy file
func (p *Policy) Close() error {
	p.mutex.Lock()
	watcher := p.watcher
	p.watcher = nil
	p.mutex.Unlock()

	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

// startWatcher reloads the policy whenever its file is written
func (p *Policy) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- watcher.Add(p.path)
	}()

	select {
	case err := <-done:
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch access policy: %w", err)
		}
	case <-time.After(5 * time.Second):
		_ = watcher.Close()
		return fmt.Errorf("timeout adding access policy to watcher")
	}

	p.mutex.Lock()
	p.watcher = watcher
	p.mutex.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) {
					p.logger.Debug("Access policy changed, reloading")
					if err := p.Load(); err != nil {
						p.logger.WithError(err).Error("Failed to reload access policy")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.WithError(err).Error("Access policy watcher error")
			}
		}
	}()

	return nil
}

// ExpandHomePath expands a leading ~ to the user's home directory
func ExpandHomePath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// pathMatches reports whether path is matched by a glob pattern (** spans directories),
// equals it, or lies beneath it. Patterns without a separator are also matched against
// the file name.
func pathMatches(path, pattern string) bool {
	if path == pattern {
		return true
	}
	if matched, _ := doublestar.PathMatch(pattern, path); matched {
		return true
	}
	if !strings.ContainsRune(pattern, filepath.Separator) {
		if matched, _ := doublestar.PathMatch(pattern, filepath.Base(path)); matched {
			return true
		}
	}
	return strings.HasPrefix(path, strings.TrimSuffix(pattern, string(filepath.Separator))+string(filepath.Separator))
}
