package registry

import (
	"sort"
	"sync"

	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	"github.com/sirupsen/logrus"
)

// Registry holds the tools exposed by the server
type Registry struct {
	mu sync.RWMutex
	// tools maps tool names to tool implementations
	tools map[string]tools.Tool
	// disabled is the set of normalised tool names to skip
	disabled map[string]bool
	logger   *logrus.Logger
}

// New creates a registry that skips the tools named in disabled, typically the parsed
// DISABLED_TOOLS environment variable
func New(logger *logrus.Logger, disabled []string) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		tools:    make(map[string]tools.Tool),
		disabled: make(map[string]bool, len(disabled)),
		logger:   logger,
	}
	for _, name := range disabled {
		name = tools.NormaliseToolName(name)
		if name == "" {
			continue
		}
		r.disabled[name] = true
		logger.WithField("tool", name).Debug("Tool disabled")
	}
	if len(r.disabled) > 0 {
		logger.WithField("count", len(r.disabled)).Debug("Parsed disabled tools")
	}
	return r
}

// IsDisabled reports whether a tool name was disabled
func (r *Registry) IsDisabled(name string) bool {
	return r.disabled[tools.NormaliseToolName(name)]
}

// Register adds a tool implementation to the registry unless it is disabled.
// It reports whether the tool was registered.
func (r *Registry) Register(tool tools.Tool) bool {
	toolName := tool.Definition().Name

	if r.IsDisabled(toolName) {
		r.logger.WithField("tool", toolName).Debug("Tool not registered (disabled)")
		return false
	}

	r.mu.Lock()
	r.tools[toolName] = tool
	r.mu.Unlock()

	r.logger.WithField("tool", toolName).Debug("Tool successfully registered")
	return true
}

// RegisterAll registers every tool in order
func (r *Registry) RegisterAll(list []tools.Tool) {
	for _, tool := range list {
		r.Register(tool)
	}
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Tools returns a copy of the registered tools
func (r *Registry) Tools() map[string]tools.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]tools.Tool, len(r.tools))
	for name, tool := range r.tools {
		out[name] = tool
	}
	return out
}

// Names returns a sorted list of registered tool names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamesWithExtendedHelp returns a sorted list of registered tool names that provide extended help
func (r *Registry) NamesWithExtendedHelp() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, tool := range r.tools {
		if _, ok := tool.(tools.ExtendedHelpProvider); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Logger returns the registry's logger
func (r *Registry) Logger() *logrus.Logger {
	return r.logger
}
