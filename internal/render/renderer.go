// Package render compiles named notification templates and caches the compiled
// form for the lifetime of the process. The template set is small, fixed, and
// trusted; picking up template changes requires a restart.
package render

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateRender   = errors.New("template render failed")
)

// Loader reads template source by name. Injectable so tests can count reads.
type Loader func(name string) ([]byte, error)

type Renderer struct {
	mu    sync.RWMutex
	cache map[string]*template.Template
	load  Loader
}

// NewRenderer loads template source from <dir>/<name>.tmpl on first use.
func NewRenderer(dir string) *Renderer {
	return NewRendererWithLoader(func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, name+".tmpl"))
	})
}

func NewRendererWithLoader(load Loader) *Renderer {
	return &Renderer{cache: make(map[string]*template.Template), load: load}
}

// Render executes the named template against data. Keys referenced by the
// template but absent from data render as empty strings.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	tmpl, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTemplateRender, name, err)
	}
	// text/template prints "<no value>" for keys missing from the data map
	// even under missingkey=zero; permissive templating wants empty.
	return strings.ReplaceAll(out.String(), "<no value>", ""), nil
}

func (r *Renderer) lookup(name string) (*template.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tmpl, ok := r.cache[name]; ok {
		return tmpl, nil
	}
	src, err := r.load(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, name, err)
	}
	tmpl, err = template.New(name).Option("missingkey=zero").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateRender, name, err)
	}
	r.cache[name] = tmpl
	return tmpl, nil
}
