package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// renderMarkdown converts kernel file markdown into HTML.
func renderMarkdown(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

var packetTemplate = template.Must(template.New("packet").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string { return t.Format("Jan 2, 2006") },
}).Parse(packetHTML))

type templateData struct {
	Title            string
	Status           string
	KernelCompletion int
	ObjectiveTitle   string
	Author           string
	UpdatedAt        time.Time
	Sections         []templateSection
}

type templateSection struct {
	Heading  string
	Complete bool
	HTML     template.HTML
}

// renderPacketHTML renders the full idea packet page.
func renderPacketHTML(packet Packet) (string, error) {
	data := templateData{
		Title:            packet.Title,
		Status:           packet.Status,
		KernelCompletion: packet.KernelCompletion,
		ObjectiveTitle:   packet.ObjectiveTitle,
		Author:           packet.Author,
		UpdatedAt:        packet.UpdatedAt,
	}
	for _, section := range packet.Sections {
		html, err := renderMarkdown(section.Markdown)
		if err != nil {
			return "", err
		}
		data.Sections = append(data.Sections, templateSection{
			Heading:  section.Heading,
			Complete: section.Complete,
			HTML:     html,
		})
	}

	var buf bytes.Buffer
	if err := packetTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render packet template: %w", err)
	}
	return buf.String(), nil
}

const packetHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #1a1a1a; }
    h1 { border-bottom: 2px solid #2d5a2d; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .section { margin: 2rem 0; }
    .section h2 { border-bottom: 1px solid #ddd; padding-bottom: 0.25rem; }
    .badge { font-size: 0.75em; padding: 0.1rem 0.5rem; border-radius: 3px; vertical-align: middle; }
    .badge.complete { background: #dcf0dc; color: #2d5a2d; }
    .badge.draft { background: #f0f0f0; color: #666; }
    @media print { body { margin: 0; } }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    Status: {{.Status}} | Kernel: {{.KernelCompletion}}/4 complete
    {{- if .ObjectiveTitle}} | Objective: {{.ObjectiveTitle}}{{end}}
    {{- if .Author}} | {{.Author}}{{end}} | {{formatDate .UpdatedAt}}
  </div>
  {{range .Sections}}
  <div class="section">
    <h2>{{.Heading}} {{if .Complete}}<span class="badge complete">complete</span>{{else}}<span class="badge draft">in progress</span>{{end}}</h2>
    {{.HTML}}
  </div>
  {{end}}
</body>
</html>`
