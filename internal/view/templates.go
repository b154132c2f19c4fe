package view

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/web"
)

// Engine renders the shared layouts eagerly and page templates on demand.
type Engine struct {
	// base is never executed so pages can still be cloned from it.
	base  *template.Template
	exec  *template.Template
	pages sync.Map
	group singleflight.Group
}

// NavItem is one sidebar entry.
type NavItem struct {
	Path   string
	Label  string
	Active bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	UserEmail   string
	Role        string
	Nav         []NavItem
	Data        any
}

// Page is a parsed page template.
type Page struct {
	Name string
	tpl  *template.Template
}

// Execute renders the page's "page" block.
func (p *Page) Execute(w io.Writer, data TemplateData) error {
	return p.tpl.ExecuteTemplate(w, "page", data)
}

// NewEngine parses layouts and partials.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		// Casers are stateful, so each call gets its own.
		"title": func(s string) string {
			return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, err
	}
	exec, err := tpl.Clone()
	if err != nil {
		return nil, err
	}
	return &Engine{base: tpl, exec: exec}, nil
}

// Load returns the named page, parsing it on first use. Concurrent first
// loads share one parse.
func (e *Engine) Load(ctx context.Context, name string) (*Page, error) {
	if e == nil {
		return nil, fmt.Errorf("template engine not initialised")
	}
	if p, ok := e.pages.Load(name); ok {
		return p.(*Page), nil
	}
	ch := e.group.DoChan(name, func() (any, error) {
		if p, ok := e.pages.Load(name); ok {
			return p, nil
		}
		p, err := e.parsePage(name)
		if err != nil {
			return nil, err
		}
		e.pages.Store(name, p)
		return p, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Page), nil
	}
}

func (e *Engine) parsePage(name string) (*Page, error) {
	clone, err := e.base.Clone()
	if err != nil {
		return nil, err
	}
	tpl, err := clone.ParseFS(web.Templates, "templates/pages/"+name+".html")
	if err != nil {
		return nil, fmt.Errorf("view: parse page %s: %w", name, err)
	}
	if tpl.Lookup("page") == nil {
		return nil, fmt.Errorf("view: page %s defines no page block", name)
	}
	return &Page{Name: name, tpl: tpl}, nil
}

// Render writes a full HTML response from a layout or partial.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.exec.ExecuteTemplate(w, name, data)
}

// Partial writes a layout or partial without touching headers.
func (e *Engine) Partial(w io.Writer, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.exec.ExecuteTemplate(w, name, data)
}

// RenderPage loads a standalone page and writes it as the full response.
func (e *Engine) RenderPage(ctx context.Context, w http.ResponseWriter, status int, name string, data TemplateData) error {
	page, err := e.Load(ctx, name)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return page.Execute(w, data)
}
