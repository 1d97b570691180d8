// Package cli provides a direct command-line interface to the PDF tools, bypassing the
// MCP transports. Tools run in-process through the same dispatcher the server uses, so
// errors are reported exactly as an MCP client would see them.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sahilm/fuzzy"
	"github.com/sammcj/mcp-pdf-reader/internal/registry"
	"github.com/sammcj/mcp-pdf-reader/internal/session"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
	"github.com/sirupsen/logrus"
)

// OutputFormat controls how tool results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Caller runs a tool and returns its result, never a Go error
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult
}

// Runner executes CLI commands against the tool registry.
type Runner struct {
	registry *registry.Registry
	caller   Caller
	store    *session.Store
	out      io.Writer
	output   OutputFormat
	logger   *logrus.Logger
}

// NewRunner creates a Runner. The store is used to open the --file argument of tools that
// take a pdf_id, since sessions do not outlive a single CLI invocation.
func NewRunner(reg *registry.Registry, caller Caller, store *session.Store, out io.Writer, output OutputFormat) *Runner {
	return &Runner{
		registry: reg,
		caller:   caller,
		store:    store,
		out:      out,
		output:   output,
		logger:   reg.Logger(),
	}
}

// ListTools prints all enabled tools with their descriptions.
func (r *Runner) ListTools() error {
	names := r.registry.Names()

	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	entries := make([]entry, 0, len(names))
	for _, name := range names {
		tool, _ := r.registry.Get(name)
		entries = append(entries, entry{Name: name, Description: firstLine(tool.Definition().Description)})
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, entries)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Name, e.Description)
	}
	return w.Flush()
}

// HelpTool prints the schema, usage information and any extended help for a single tool.
func (r *Runner) HelpTool(name string) error {
	tool, err := r.resolveTool(name)
	if err != nil {
		return err
	}

	def := tool.Definition()

	var extended *tools.ExtendedHelp
	if provider, ok := tool.(tools.ExtendedHelpProvider); ok {
		extended = provider.ProvideExtendedInfo()
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, struct {
			Tool     mcp.Tool            `json:"tool"`
			Extended *tools.ExtendedHelp `json:"extended_help,omitempty"`
		}{def, extended})
	}

	bold := color.New(color.Bold).SprintFunc()

	_, _ = fmt.Fprintf(r.out, "%s %s\n\n", bold("Tool:"), def.Name)
	if def.Description != "" {
		_, _ = fmt.Fprintf(r.out, "%s\n\n", def.Description)
	}

	props := def.InputSchema.Properties
	required := toSet(def.InputSchema.Required)

	if len(props) == 0 {
		_, _ = fmt.Fprintln(r.out, "No parameters.")
	} else {
		_, _ = fmt.Fprintln(r.out, bold("Parameters:"))

		names := make([]string, 0, len(props))
		for k := range props {
			names = append(names, k)
		}
		slices.Sort(names)

		w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
		for _, pName := range names {
			pMap, ok := props[pName].(map[string]any)
			if !ok {
				continue
			}

			pType, _ := pMap["type"].(string)
			pDesc, _ := pMap["description"].(string)

			reqMark := ""
			if required[pName] {
				reqMark = " (required)"
			}

			_, _ = fmt.Fprintf(w, "  --%s\t%s\t%s%s%s\n", toFlagName(pName), pType, firstLine(pDesc), reqMark, formatEnum(pMap))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if required["pdf_id"] {
		_, _ = fmt.Fprintln(r.out, "\nPass --file=<path> instead of --pdf-id to open a PDF for this command.")
	}

	if extended != nil && len(extended.Examples) > 0 {
		_, _ = fmt.Fprintf(r.out, "\n%s\n", bold("Examples:"))
		for _, ex := range extended.Examples {
			args, _ := json.Marshal(ex.Arguments)
			_, _ = fmt.Fprintf(r.out, "  %s\n    %s\n", ex.Description, args)
		}
	}
	return nil
}

// RunTool executes a tool by name with the given arguments.
// args can be:
//   - A single JSON string: '{"key": "value"}'
//   - Flag-style arguments: --key=value --flag
//   - Mixed: --key=value '{"other": "json"}'  (flags take precedence)
//
// A --file argument is opened first and its session id passed as pdf_id.
func (r *Runner) RunTool(ctx context.Context, name string, args []string) error {
	tool, err := r.resolveTool(name)
	if err != nil {
		return err
	}

	def := tool.Definition()

	params, err := parseArgs(args, def)
	if err != nil {
		return fmt.Errorf("argument error: %w", err)
	}

	if file, ok := params["file"].(string); ok {
		delete(params, "file")
		info, err := r.store.Open(ctx, file)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer func() {
			if _, err := r.store.Close(info.ID); err != nil {
				r.logger.WithError(err).Debug("Session already closed")
			}
		}()
		params["pdf_id"] = info.ID
	}

	return r.renderResult(r.caller.CallTool(ctx, def.Name, params))
}

// Inspect opens a PDF and prints its metadata, page count and text
func (r *Runner) Inspect(ctx context.Context, path string, withText bool) error {
	info, err := r.store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _, _ = r.store.Close(info.ID) }()

	steps := []struct {
		heading string
		tool    string
		args    map[string]any
	}{
		{"Metadata", "list-pdf-metadata", map[string]any{"pdf_id": info.ID}},
		{"Pages", "get-pdf-page-count", map[string]any{"pdf_id": info.ID}},
	}
	if withText {
		steps = append(steps, struct {
			heading string
			tool    string
			args    map[string]any
		}{"Text", "pdf-to-text", map[string]any{"pdf_id": info.ID, "include_page_numbers": true}})
	}

	heading := color.New(color.FgCyan, color.Bold).SprintFunc()
	for _, step := range steps {
		if _, ok := r.registry.Get(step.tool); !ok {
			continue
		}
		if r.output == OutputText {
			_, _ = fmt.Fprintf(r.out, "%s\n", heading("== "+step.heading+" =="))
		}
		if err := r.renderResult(r.caller.CallTool(ctx, step.tool, step.args)); err != nil {
			return err
		}
	}
	return nil
}

// parseArgs converts CLI arguments into a map[string]any suitable for tool.Execute().
// Supports JSON input, --key=value flags, and --flag (boolean true).
func parseArgs(args []string, def mcp.Tool) (map[string]any, error) {
	params := make(map[string]any)

	schema := buildSchemaInfo(def)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(arg), &obj); err != nil {
				return nil, fmt.Errorf("invalid JSON argument: %w", err)
			}
			// JSON values merge in (earlier flags take precedence)
			for k, v := range obj {
				if _, exists := params[k]; !exists {
					params[k] = v
				}
			}
			continue
		}

		if strings.HasPrefix(arg, "--") {
			key, val, err := parseFlag(arg, args, &i, schema)
			if err != nil {
				return nil, err
			}
			params[key] = val
			continue
		}

		return nil, fmt.Errorf("unexpected argument: %s (use --key=value flags or pass a JSON object)", arg)
	}

	return params, nil
}

// schemaInfo holds resolved schema information for argument parsing.
type schemaInfo struct {
	// typeMap maps actual parameter names to their JSON Schema types
	typeMap map[string]string
	// flagToParam maps kebab-case flag names to actual parameter names
	flagToParam map[string]string
}

// parseFlag parses a single --key=value or --key value or --flag (bool true).
func parseFlag(arg string, args []string, idx *int, schema schemaInfo) (string, any, error) {
	stripped := strings.TrimPrefix(arg, "--")

	if flagName, rawVal, found := strings.Cut(stripped, "="); found {
		paramName := schema.resolveParam(flagName)
		return paramName, coerceValue(rawVal, schema.typeMap[paramName]), nil
	}

	flagName := stripped
	paramName := schema.resolveParam(flagName)

	if schema.typeMap[paramName] == "boolean" {
		return paramName, true, nil
	}

	*idx++
	if *idx >= len(args) {
		return "", nil, fmt.Errorf("flag --%s requires a value", flagName)
	}
	return paramName, coerceValue(args[*idx], schema.typeMap[paramName]), nil
}

// resolveParam converts a kebab-case flag name to the actual parameter name.
// Falls back to snake_case.
func (s schemaInfo) resolveParam(flagName string) string {
	if actual, ok := s.flagToParam[flagName]; ok {
		return actual
	}
	return strings.ReplaceAll(flagName, "-", "_")
}

func buildSchemaInfo(def mcp.Tool) schemaInfo {
	info := schemaInfo{
		typeMap:     make(map[string]string, len(def.InputSchema.Properties)),
		flagToParam: make(map[string]string, len(def.InputSchema.Properties)),
	}
	for name, prop := range def.InputSchema.Properties {
		if pm, ok := prop.(map[string]any); ok {
			if t, ok := pm["type"].(string); ok {
				info.typeMap[name] = t
			}
		}
		info.flagToParam[toFlagName(name)] = name
	}
	return info
}

// coerceValue converts a string value to the appropriate Go type based on JSON Schema type.
// Numbers become float64, matching what a JSON-RPC client would send.
func coerceValue(raw, schemaType string) any {
	switch schemaType {
	case "number", "integer":
		var f float64
		if _, err := fmt.Sscanf(raw, "%g", &f); err == nil {
			return f
		}
		return raw
	case "boolean":
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
		return raw
	default:
		return raw
	}
}

// renderResult formats a CallToolResult for terminal output.
func (r *Runner) renderResult(result *mcp.CallToolResult) error {
	if result == nil {
		return nil
	}

	if r.output == OutputJSON {
		if err := writeJSON(r.out, result); err != nil {
			return err
		}
	} else {
		for _, content := range result.Content {
			switch c := content.(type) {
			case mcp.TextContent:
				if result.IsError {
					_, _ = fmt.Fprintln(r.out, color.RedString(c.Text))
				} else {
					_, _ = fmt.Fprintln(r.out, c.Text)
				}
			default:
				data, err := json.MarshalIndent(c, "", "  ")
				if err != nil {
					_, _ = fmt.Fprintf(r.out, "%+v\n", c)
				} else {
					_, _ = fmt.Fprintln(r.out, string(data))
				}
			}
		}
	}

	if result.IsError {
		return fmt.Errorf("tool returned an error")
	}
	return nil
}

// resolveTool looks up a tool by its normalised name and suggests close matches otherwise
func (r *Runner) resolveTool(name string) (tools.Tool, error) {
	normalised := tools.NormaliseToolName(name)
	if tool, ok := r.registry.Get(normalised); ok {
		return tool, nil
	}

	msg := fmt.Sprintf("unknown tool: %s", name)
	if suggestions := suggest(normalised, r.registry.Names()); len(suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
	} else {
		msg += " (run 'mcp-pdf-reader tools' to see available tools)"
	}
	return nil, errors.New(msg)
}

// suggest returns up to three registered names that fuzzy-match name
func suggest(name string, names []string) []string {
	matches := fuzzy.Find(name, names)
	out := make([]string, 0, 3)
	for i, m := range matches {
		if i == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

// toFlagName converts camelCase or snake_case to kebab-case for CLI flags.
func toFlagName(s string) string {
	s = strings.ReplaceAll(s, "_", "-")
	var out strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out.WriteByte('-')
			}
			out.WriteRune(r + 32)
		} else {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func formatEnum(pMap map[string]any) string {
	enumRaw, ok := pMap["enum"]
	if !ok {
		return ""
	}
	var vals []string
	switch arr := enumRaw.(type) {
	case []string:
		vals = arr
	case []any:
		for _, v := range arr {
			vals = append(vals, fmt.Sprint(v))
		}
	}
	if len(vals) == 0 {
		return ""
	}
	return " [" + strings.Join(vals, "|") + "]"
}
