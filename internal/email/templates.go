package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateData is the variable set exposed to outreach templates.
type TemplateData struct {
	FirstName       string
	LastName        string
	VehicleInterest string
	Source          string
}

// DisplayName returns the best salutation available for the lead.
func (d TemplateData) DisplayName() string {
	if d.FirstName != "" {
		return d.FirstName
	}
	return "there"
}

type templateDef struct {
	file    string
	subject string
}

// Built-in outreach templates, keyed by the template_id stored on a step.
var templates = map[string]templateDef{
	"intro":        {file: "intro.html", subject: "Thanks for your interest"},
	"follow_up":    {file: "follow_up.html", subject: "Following up on your inquiry"},
	"final_notice": {file: "final_notice.html", subject: "Last chance to connect"},
}

// KnownTemplate reports whether templateID resolves to a built-in template.
// Sequence creation validates step template IDs with this.
func KnownTemplate(templateID string) bool {
	_, ok := templates[templateID]
	return ok
}

// Render produces the subject and HTML body for the given template ID.
func Render(templateID string, data TemplateData) (subject, html string, err error) {
	def, ok := templates[templateID]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", templateID)
	}

	tmpl, err := template.ParseFS(templateFS, "templates/"+def.file)
	if err != nil {
		return "", "", fmt.Errorf("parse template %s: %w", def.file, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render template %s: %w", def.file, err)
	}
	return def.subject, buf.String(), nil
}
