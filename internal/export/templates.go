package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var planTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/plan.html")
	if err != nil {
		// Fallback to built-in template if file not found
		planTemplate = template.Must(template.New("plan").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	planTemplate = template.Must(template.New("plan").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for plan template rendering
type TemplateData struct {
	Title        string
	PlanType     string
	Status       string
	InvestorName string
	Pass         int
	UpdatedAt    time.Time
	Sections     []TemplateSection
	Comments     []TemplateComment
	Decisions    []TemplateDecision
}

// TemplateSection holds one plan section for the template
type TemplateSection struct {
	Name   string
	Fields []TemplateField
	Rows   []TemplateRow
}

// TemplateField is one key/value pair of a section or row
type TemplateField struct {
	Key   string
	Value string
}

// TemplateRow is one repeated-row entry of a section
type TemplateRow struct {
	ID     string
	Fields []TemplateField
}

// TemplateComment holds one review comment for the template
type TemplateComment struct {
	PageTitle string
	Text      string
	Author    string
	Fields    []TemplateFlagged
}

// TemplateFlagged is one input flagged by a comment
type TemplateFlagged struct {
	Label    string
	Section  string
	InputKey string
	RowID    string
	Value    string
}

// TemplateDecision holds one decision log entry for the template
type TemplateDecision struct {
	Action    string
	Note      string
	DecidedBy string
	DecidedAt time.Time
	Pass      int
}

// RenderPlanHTML renders the plan template with provided data
func RenderPlanHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.PlanType}} | {{.InvestorName}} | {{.Status}} | pass {{.Pass}}</div>
  {{range .Sections}}<h2>{{.Name}}</h2>{{range .Fields}}<p>{{.Key}}: {{.Value}}</p>{{end}}{{end}}
  {{if .Comments}}
  <h2>Review comments</h2>
  {{range .Comments}}<div class="comment">{{.PageTitle}}: {{.Text}}</div>{{end}}
  {{end}}
</body>
</html>`
