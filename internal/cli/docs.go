package cli

import (
	"slices"
	"strings"
	"text/template"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-pdf-reader/internal/tools"
)

// ToolDoc describes one tool for the generated reference
type ToolDoc struct {
	Name        string
	Description string
	ReadOnly    bool
	Parameters  []ParameterDoc
	Examples    []tools.ToolExample
}

// ParameterDoc describes one tool parameter
type ParameterDoc struct {
	Name        string
	Type        string
	Required    bool
	Description string
	Enum        string
}

// PromptDoc describes one prompt for the generated reference
type PromptDoc struct {
	Name        string
	Description string
	Arguments   []mcp.PromptArgument
}

var docsTemplate = template.Must(template.New("docs").Funcs(template.FuncMap{
	"oneLine": func(s string) string { return strings.Join(strings.Fields(s), " ") },
}).Parse(`# mcp-pdf-reader reference

## Tools
{{range .Tools}}
### {{.Name}}

{{.Description}}
{{if .ReadOnly}}
Read-only: does not change any open session.
{{end}}
{{- if .Parameters}}
| Parameter | Type | Required | Description |
|-----------|------|----------|-------------|
{{- range .Parameters}}
| ` + "`{{.Name}}`" + ` | {{.Type}} | {{if .Required}}yes{{else}}no{{end}} | {{oneLine .Description}}{{.Enum}} |
{{- end}}
{{else}}
No parameters.
{{end}}
{{- range .Examples}}
- {{.Description}}
{{- end}}
{{end}}
## Prompts
{{range .Prompts}}
### {{.Name}}

{{.Description}}

| Argument | Required | Description |
|----------|----------|-------------|
{{- range .Arguments}}
| ` + "`{{.Name}}`" + ` | {{if .Required}}yes{{else}}no{{end}} | {{oneLine .Description}} |
{{- end}}
{{end}}
## Resources

Each open document is published as ` + "`pdf://<pdf_id>`" + ` with MIME type application/pdf
until it is closed.
`))

// Docs writes a Markdown reference for every registered tool and the given prompts
func (r *Runner) Docs(prompts []mcp.Prompt) error {
	data := struct {
		Tools   []ToolDoc
		Prompts []PromptDoc
	}{}

	for _, name := range r.registry.Names() {
		tool, _ := r.registry.Get(name)
		data.Tools = append(data.Tools, toolDoc(tool))
	}

	for _, p := range prompts {
		data.Prompts = append(data.Prompts, PromptDoc{Name: p.Name, Description: p.Description, Arguments: p.Arguments})
	}
	slices.SortFunc(data.Prompts, func(a, b PromptDoc) int { return strings.Compare(a.Name, b.Name) })

	if r.output == OutputJSON {
		return writeJSON(r.out, data)
	}
	return docsTemplate.Execute(r.out, data)
}

func toolDoc(tool tools.Tool) ToolDoc {
	def := tool.Definition()
	doc := ToolDoc{
		Name:        def.Name,
		Description: def.Description,
	}
	if def.Annotations.ReadOnlyHint != nil {
		doc.ReadOnly = *def.Annotations.ReadOnlyHint
	}

	required := toSet(def.InputSchema.Required)
	for name, prop := range def.InputSchema.Properties {
		pMap, _ := prop.(map[string]any)
		pType, _ := pMap["type"].(string)
		pDesc, _ := pMap["description"].(string)
		doc.Parameters = append(doc.Parameters, ParameterDoc{
			Name:        name,
			Type:        pType,
			Required:    required[name],
			Description: pDesc,
			Enum:        formatEnum(pMap),
		})
	}
	slices.SortFunc(doc.Parameters, func(a, b ParameterDoc) int { return strings.Compare(a.Name, b.Name) })

	if provider, ok := tool.(tools.ExtendedHelpProvider); ok {
		if help := provider.ProvideExtendedInfo(); help != nil {
			doc.Examples = help.Examples
		}
	}
	return doc
}
