package tools

import (
	"strings"
)

// NormaliseToolName lowercases a tool name and replaces underscores with hyphens,
// so "Get_PDF_Page_Text" and "get-pdf-page-text" refer to the same tool.
func NormaliseToolName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
}

// ParseToolList parses a comma-separated list of tool names, as found in DISABLED_TOOLS.
// Names are normalised and empty entries are dropped.
//
// Example: DISABLED_TOOLS="extract-images, pdf_to_text"
func ParseToolList(value string) []string {
	var names []string
	for tool := range strings.SplitSeq(value, ",") {
		if name := NormaliseToolName(tool); name != "" {
			names = append(names, name)
		}
	}
	return names
}
