package forum

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// page templates, each executed through layout.html
var pageTemplates = []string{
	"home.html",
	"topics.html",
	"new_topic.html",
	"topic_posts.html",
	"reply_topic.html",
	"edit_post.html",
	"login.html",
	"signup.html",
}

var (
	markdown = goldmark.New()
	ugc      = bluemonday.UGCPolicy()
)

// RenderMarkdown turns a post message into sanitized HTML.
func RenderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(ugc.SanitizeBytes(buf.Bytes())), nil
}

func naturalTime(t time.Time) string {
	return humanize.Time(t)
}

func (h *Handlers) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"url": func(name string, params ...any) (string, error) {
			pairs := make([]string, len(params))
			for i, p := range params {
				pairs[i] = fmt.Sprint(p)
			}
			return h.urls.BuildURL(name, pairs...)
		},
		"markdown":    RenderMarkdown,
		"naturaltime": naturalTime,
	}
}

func (h *Handlers) parseTemplates() error {
	layout, err := template.New("layout.html").Funcs(h.templateFuncs()).
		ParseFS(templateFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return err
	}
	h.templates = make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		tpl, err := layout.Clone()
		if err != nil {
			return err
		}
		if _, err := tpl.ParseFS(templateFS, path.Join("templates", name)); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		h.templates[name] = tpl
	}
	return nil
}

// render executes a page into a buffer first so a failing template never
// leaves a half written response.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	tpl, ok := h.templates[name]
	if !ok {
		h.serverError(w, r, fmt.Errorf("no template %s", name))
		return
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		h.logger.Error("Error executing template", zap.String("template", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
