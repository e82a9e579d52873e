// Package export renders result sets into CSV and HTML documents. The "PDF"
// formats are HTML intended for print-to-PDF in the browser; all renderers
// are pure functions of their input.
package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type reportData struct {
	GeneratedAt string
	Count       int
	Results     []model.SearchResult
}

// ToReport renders a printable HTML report document for the results.
func ToReport(results []model.SearchResult, now time.Time) (string, error) {
	return render("report.html", results, now)
}

// ToPitchDeck renders a slide-per-result HTML pitch deck for the results.
func ToPitchDeck(results []model.SearchResult, now time.Time) (string, error) {
	return render("pitchdeck.html", results, now)
}

func render(name string, results []model.SearchResult, now time.Time) (string, error) {
	data := reportData{
		GeneratedAt: now.Format("January 2, 2006"),
		Count:       len(results),
		Results:     results,
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
