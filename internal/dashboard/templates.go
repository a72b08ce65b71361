package dashboard

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"sync"
	"time"
)

//go:embed templates/*.html
var templatesFS embed.FS

// partialsFile is parsed alongside every page.
const partialsFile = "partials.html"

// TemplateProvider abstracts template loading and execution.
// Production uses EmbeddedTemplateProvider; tests use MockTemplateProvider.
type TemplateProvider interface {
	GetTemplate(name string) (*template.Template, error)
	ExecuteTemplate(w io.Writer, name string, data interface{}) error
}

var templateFuncs = template.FuncMap{
	"lower": strings.ToLower,
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return time.Since(t).Round(time.Second).String() + " ago"
	},
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04:05")
	},
	"css": func(s string) template.CSS { return template.CSS(s) },
}

// EmbeddedTemplateProvider parses pages from an embedded filesystem
// together with the shared partials, caching the result.
type EmbeddedTemplateProvider struct {
	fs      fs.FS
	baseDir string

	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewEmbeddedTemplateProvider creates a provider over fsys.
func NewEmbeddedTemplateProvider(fsys fs.FS, baseDir string) *EmbeddedTemplateProvider {
	return &EmbeddedTemplateProvider{
		fs:      fsys,
		baseDir: baseDir,
		cache:   make(map[string]*template.Template),
	}
}

// DefaultTemplates serves the templates compiled into the binary.
func DefaultTemplates() *EmbeddedTemplateProvider {
	return NewEmbeddedTemplateProvider(templatesFS, "templates")
}

func (p *EmbeddedTemplateProvider) GetTemplate(name string) (*template.Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.cache[name]; ok {
		return t, nil
	}

	join := func(f string) string {
		if p.baseDir == "" {
			return f
		}
		return p.baseDir + "/" + f
	}
	t, err := template.New(name).Funcs(templateFuncs).ParseFS(p.fs, join(partialsFile), join(name))
	if err != nil {
		return nil, err
	}
	p.cache[name] = t
	return t, nil
}

func (p *EmbeddedTemplateProvider) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	t, err := p.GetTemplate(name)
	if err != nil {
		return err
	}
	return t.ExecuteTemplate(w, name, data)
}

// MockTemplateProvider provides templates for testing.
type MockTemplateProvider struct {
	Templates    map[string]string
	ExecuteError error
	GetError     error

	mu           sync.Mutex
	ExecuteCalls []ExecuteCall
}

// ExecuteCall records one ExecuteTemplate invocation.
type ExecuteCall struct {
	Name string
	Data interface{}
}

func NewMockTemplateProvider(templates map[string]string) *MockTemplateProvider {
	return &MockTemplateProvider{Templates: templates}
}

func (m *MockTemplateProvider) GetTemplate(name string) (*template.Template, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	content, ok := m.Templates[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return template.New(name).Funcs(templateFuncs).Parse(content)
}

func (m *MockTemplateProvider) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, ExecuteCall{Name: name, Data: data})
	m.mu.Unlock()

	if m.ExecuteError != nil {
		return m.ExecuteError
	}
	t, err := m.GetTemplate(name)
	if err != nil {
		return err
	}
	return t.Execute(w, data)
}

// Calls returns the recorded invocations.
func (m *MockTemplateProvider) Calls() []ExecuteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecuteCall(nil), m.ExecuteCalls...)
}
