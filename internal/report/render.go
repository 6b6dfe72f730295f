package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
	"text/template"

	"github.com/jung-kurt/gofpdf"
	"github.com/yuin/goldmark"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// Format is an export format for a stored report
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatMarkdown, FormatHTML, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("unsupported report format: %q", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// Document is a stored result together with the assessment it belongs to
type Document struct {
	AssessmentName string
	Result         *models.Result
}

// DomainRow is one row of the domain score table
type DomainRow struct {
	Name  string
	Score float64
}

// Domains returns the domain scores sorted by name
func (d Document) Domains() []DomainRow {
	rows := make([]DomainRow, 0, len(d.Result.ByDomain))
	for name, score := range d.Result.ByDomain {
		rows = append(rows, DomainRow{Name: name, Score: score})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}

const markdownTemplate = `# {{ .AssessmentName }}

Completed {{ .Result.CreatedAt.Format "2006-01-02" }}

**Overall score:** {{ percent .Result.Overall }} ({{ tier .Result.Tier }})

{{ .Result.Summary }}
{{ with .Domains }}
## Domain scores

| Domain | Score |
|---|---|
{{- range . }}
| {{ .Name }} | {{ percent .Score }} |
{{- end }}
{{ end }}
{{- with .Result.Strengths }}
## Strengths
{{ range . }}
- {{ . }}
{{- end }}
{{ end }}
{{- with .Result.GrowthAreas }}
## Growth areas
{{ range . }}
- {{ . }}
{{- end }}
{{ end }}
## Recommendations
{{ range .Result.Recommendations }}
- {{ . }}
{{- end }}

Suggested retake: {{ .Result.NextActionAt.Format "2006-01-02" }} (in {{ .Result.NextActionInterval }} days)
`

var templateFuncs = template.FuncMap{
	"percent": formatPercent,
	"tier":    tierLabel,
}

func tierLabel(t models.SummaryTier) string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// Renderer exports stored reports as Markdown, HTML or PDF
type Renderer struct {
	markdown *template.Template
	md       goldmark.Markdown
}

// NewRenderer creates a new renderer
func NewRenderer() *Renderer {
	return &Renderer{
		markdown: template.Must(template.New("report").Funcs(templateFuncs).Parse(markdownTemplate)),
		md:       goldmark.New(),
	}
}

// Render writes doc to w in the given format
func (r *Renderer) Render(w io.Writer, format Format, doc Document) error {
	switch format {
	case FormatMarkdown:
		return r.Markdown(w, doc)
	case FormatHTML:
		return r.HTML(w, doc)
	case FormatPDF:
		return r.PDF(w, doc)
	}
	return fmt.Errorf("unsupported report format: %q", format)
}

// Markdown writes the report as Markdown
func (r *Renderer) Markdown(w io.Writer, doc Document) error {
	if err := r.markdown.Execute(w, doc); err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	return nil
}

// HTML writes the report as a standalone HTML page
func (r *Renderer) HTML(w io.Writer, doc Document) error {
	var src bytes.Buffer
	if err := r.Markdown(&src, doc); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := r.md.Convert(src.Bytes(), &body); err != nil {
		return fmt.Errorf("failed to convert markdown: %w", err)
	}

	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(doc.AssessmentName), body.String())
	return err
}

// PDF writes the report as an A4 PDF
func (r *Renderer) PDF(w io.Writer, doc Document) error {
	res := doc.Result

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(doc.AssessmentName, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.MultiCell(0, 8, tr(doc.AssessmentName), "", "L", false)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, "Completed "+res.CreatedAt.Format("2006-01-02"))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Overall score: %s (%s)", formatPercent(res.Overall), tierLabel(res.Tier)))
	pdf.Ln(9)
	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 6, tr(res.Summary), "", "L", false)
	pdf.Ln(4)

	if rows := doc.Domains(); len(rows) > 0 {
		heading(pdf, "Domain scores")
		pdf.SetFont("Arial", "", 11)
		for _, row := range rows {
			pdf.CellFormat(120, 7, tr(row.Name), "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 7, formatPercent(row.Score), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	bullets(pdf, tr, "Strengths", res.Strengths)
	bullets(pdf, tr, "Growth areas", res.GrowthAreas)
	bullets(pdf, tr, "Recommendations", res.Recommendations)

	pdf.SetFont("Arial", "I", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Suggested retake: %s (in %d days)",
		res.NextActionAt().Format("2006-01-02"), res.NextActionInterval))

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}

func heading(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
}

func bullets(pdf *gofpdf.Fpdf, tr func(string) string, title string, items []string) {
	if len(items) == 0 {
		return
	}
	heading(pdf, title)
	pdf.SetFont("Arial", "", 11)
	for _, item := range items {
		pdf.MultiCell(0, 6, tr("- "+item), "", "L", false)
	}
	pdf.Ln(4)
}
