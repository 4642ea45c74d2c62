package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"

	"github.com/thatsimonsguy/sensor-dashboard/internal/model"
)

//go:embed templates
var templatesFS embed.FS

var iconPaths = map[string]string{
	string(model.MetricTemperature): "M15 13V5c0-1.66-1.34-3-3-3S9 3.34 9 5v8c-1.21.91-2 2.37-2 4 0 2.76 2.24 5 5 5s5-2.24 5-5c0-1.63-.79-3.09-2-4zm-4-8c0-.55.45-1 1-1s1 .45 1 1h-1v1h1v2h-1v1h1v2h-1v1h1v.5c-.31-.18-.65-.3-1-.34V5z",
	string(model.MetricHumidity):    "M12 2.69l5.66 5.66a8 8 0 1 1-11.31 0L12 2.69zM12 4.8L8.05 8.75a6 6 0 1 0 7.9 0L12 4.8z",
	string(model.MetricBattery):     "M15.67 4H14V2h-4v2H8.33C7.6 4 7 4.6 7 5.33v15.33C7 21.4 7.6 22 8.33 22h7.33c.74 0 1.34-.6 1.34-1.33V5.33C17 4.6 16.4 4 15.67 4z",
	"warning":                       "M1 21h22L12 2 1 21zm12-3h-2v-2h2v2zm0-4h-2v-4h2v4z",
	"freezing-warning":              "M12 2L13.09 8.26L22 9L13.09 9.74L12 16L10.91 9.74L2 9L10.91 8.26L12 2M12 6L11.5 8.5L9 9L11.5 9.5L12 12L12.5 9.5L15 9L12.5 8.5L12 6Z",
	"hot-warning":                   "M12 8c-2.76 0-5 2.24-5 5s2.24 5 5 5 5-2.24 5-5-2.24-5-5-5zm0 8c-1.66 0-3-1.34-3-3s1.34-3 3-3 3 1.34 3 3-1.34 3-3 3z",
	"high-humidity-warning":         "M12 2.69l5.66 5.66a8 8 0 1 1-11.31 0zm0 15.93A5.5 5.5 0 0 1 6.5 13c0-1.48.58-2.92 1.66-4L12 5.27l3.83 3.82c1.08 1.08 1.66 2.52 1.66 4a5.5 5.5 0 0 1-5.5 5.62z",
	"low-humidity-warning":          "M12 2.69l5.66 5.66a8 8 0 1 1-11.31 0zM9 12c0 1.66 1.34 3 3 3s3-1.34 3-3H9z",
	"drag":                          "M9 3h2v2H9V3zm0 4h2v2H9V7zm0 4h2v2H9v-2zm0 4h2v2H9v-2zm0 4h2v2H9v-2zm4-16h2v2h-2V3zm0 4h2v2h-2V7zm0 4h2v2h-2v-2zm0 4h2v2h-2v-2zm0 4h2v2h-2v-2z",
	"toggle":                        "M7.41 8.59L12 13.17l4.59-4.58L18 10l-6 6-6-6 1.41-1.41z",
}

func icon(name any) string {
	if p, ok := iconPaths[fmt.Sprint(name)]; ok {
		return p
	}
	return iconPaths["warning"]
}

// Page is the view model of the full dashboard document.
type Page struct {
	Theme          string
	Layout         model.LayoutMode
	RefreshSeconds int
	LastUpdated    string
	Connection     Connection
	Dashboard      Dashboard
	// Failed renders the retry-pending error card instead of the groups.
	Failed bool
}

type Connection struct {
	State string
	Label string
}

// Renderer executes the embedded dashboard templates. Fragment methods render
// the same partials the full page uses, so patched markup always matches a
// fresh build.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	return newRendererFromFS(templatesFS, "templates")
}

func newRendererFromFS(fsys fs.FS, dir string) (*Renderer, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New("dashboard").
		Funcs(template.FuncMap{"icon": icon}).
		ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) Page(w io.Writer, p Page) error {
	return r.tmpl.ExecuteTemplate(w, "dashboard.html", p)
}

func (r *Renderer) fragment(name string, data any) (string, error) {
	var b strings.Builder
	if err := r.tmpl.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

// Groups renders the inner markup of the sensors container.
func (r *Renderer) Groups(d Dashboard) (string, error) {
	return r.fragment("groups", d)
}

func (r *Renderer) Card(c Card) (string, error) {
	return r.fragment("card", c)
}

func (r *Renderer) Metric(m Metric) (string, error) {
	return r.fragment("metric", m)
}

func (r *Renderer) Compact(c Compact) (string, error) {
	return r.fragment("compact", c)
}

func (r *Renderer) HeaderChip(c Chip) (string, error) {
	return r.fragment("header-chip", c)
}

func (r *Renderer) Footer(text string) (string, error) {
	return r.fragment("footer", text)
}

func (r *Renderer) Stats(s Stats) (string, error) {
	return r.fragment("stats", s)
}

func (r *Renderer) GroupWarning() (string, error) {
	return r.fragment("group-warning", nil)
}

func (r *Renderer) ErrorCard(retrySeconds int) (string, error) {
	return r.fragment("error-card", retrySeconds)
}
