package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"

	"samsar/server/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

//go:embed templates/*.html
var templateFS embed.FS

const mimeHTML = "text/html"

type Options struct {
	SiteName string
	LogoURL  string
}

// Renderer turns cards and views into escaped, minified HTML. It is safe for
// concurrent use.
type Renderer struct {
	templates *template.Template
	minifier  *minify.M
	opts      Options
	logger    *logrus.Logger
}

func NewRenderer(opts Options, logger *logrus.Logger) (*Renderer, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	m := minify.New()
	m.Add(mimeHTML, &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})

	return &Renderer{templates: tmpl, minifier: m, opts: opts, logger: logger}, nil
}

// RenderCards renders cards in the given order.
func (r *Renderer) RenderCards(cards []models.Card) (string, error) {
	return r.execute("cards", cards)
}

// RenderContainer renders the listing container for a view, including its
// loading, error and empty states.
func (r *Renderer) RenderContainer(view models.View) (string, error) {
	return r.execute("container", view)
}

// RenderPage renders a full section page.
func (r *Renderer) RenderPage(page Page) (string, error) {
	page.SiteName = r.opts.SiteName
	page.LogoURL = r.opts.LogoURL
	return r.execute("page", page)
}

type detailPage struct {
	models.Detail
	SiteName string
}

// RenderDetail renders the detail page of one record.
func (r *Renderer) RenderDetail(detail models.Detail) (string, error) {
	return r.execute("detail", detailPage{Detail: detail, SiteName: r.opts.SiteName})
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}

	out, err := r.minifier.Bytes(mimeHTML, buf.Bytes())
	if err != nil {
		r.logger.WithError(err).WithField("template", name).Warn("Minification failed, serving raw markup")
		return buf.String(), nil
	}
	return string(out), nil
}
