package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Alert {{.EventLabel}}]
Factory: {{.FactoryID}}
{{- if .DeviceID }}
Device: {{.DeviceID}}
{{- end }}
Type: {{.Category}}
Title: {{.Title}}
Severity: {{.Severity}}
{{- if .MetricValue }}
Metric Value: {{.MetricValue}}
{{- end }}
{{- if .Threshold }}
Threshold: {{.Threshold}}
{{- end }}
Triggered At: {{.TriggeredAt}}
Current Status: {{.Status}}
{{- if .Actor }}
By: {{.Actor}}
{{- end }}
{{- if .Message }}

{{.Message}}
{{- end }}
`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	AlertID     string
	FactoryID   string
	DeviceID    string
	Category    string
	Title       string
	Message     string
	Severity    string
	MetricValue string
	Threshold   string
	TriggeredAt string
	Status      string
	Actor       string
	Event       string
	EventLabel  string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
