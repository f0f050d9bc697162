package template

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const (
	DESCRIPTION_TEMPLATE_FILE = "description.tmpl"
	COMMENT_TEMPLATE_FILE     = "comment.tmpl"
)

// DescriptionData feeds the ticket description template.
type DescriptionData struct {
	URL    string
	Reason string
	Body   string
}

// CommentData feeds the PR comment template.
type CommentData struct {
	TicketKey string
	Reason    string
}

// Renderer handles template rendering
type Renderer struct {
	funcMap template.FuncMap
}

// NewRenderer creates a new template renderer
func NewRenderer() *Renderer {
	return &Renderer{
		funcMap: template.FuncMap{
			"truncate": func(s string, n int) string {
				r := []rune(s)
				if len(r) <= n {
					return s
				}
				return string(r[:n])
			},
		},
	}
}

// Description renders the ticket description. An empty templateDir uses the
// built-in template; otherwise description.tmpl must exist in the directory.
func (r *Renderer) Description(templateDir string, data DescriptionData) (string, error) {
	if templateDir == "" {
		return r.RenderString(r.GetDefaultDescriptionTemplate(), data)
	}
	return r.Render(filepath.Join(templateDir, DESCRIPTION_TEMPLATE_FILE), data)
}

// Comment renders the PR comment left after a ticket is created. An empty
// templateDir uses the built-in template.
func (r *Renderer) Comment(templateDir string, data CommentData) (string, error) {
	if templateDir == "" {
		return r.RenderString(r.GetDefaultCommentTemplate(), data)
	}
	return r.Render(filepath.Join(templateDir, COMMENT_TEMPLATE_FILE), data)
}

// Render renders a template file with the provided data
func (r *Renderer) Render(templatePath string, data interface{}) (string, error) {
	content, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}

	return r.RenderString(string(content), data)
}

// RenderString renders a template string with the provided data
func (r *Renderer) RenderString(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("template").Funcs(r.funcMap).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// GetDefaultDescriptionTemplate returns the default ticket description
// template. The excerpt is capped so a huge Renovate body does not blow up
// the ticket.
func (r *Renderer) GetDefaultDescriptionTemplate() string {
	return `Renovate PR: {{.URL}}

Reason detected: {{.Reason}}

PR excerpt:
{{truncate .Body 1000}}`
}

// GetDefaultCommentTemplate returns the default PR comment template
func (r *Renderer) GetDefaultCommentTemplate() string {
	return `Created Jira issue {{.TicketKey}} to track this Renovate PR. Reason: {{.Reason}}`
}

// Exists reports whether a template override directory provides the named
// template file.
func Exists(templateDir, name string) bool {
	if templateDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(templateDir, name))
	return err == nil
}
