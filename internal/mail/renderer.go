package mail

import (
	"embed"
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer compiles templates from the embedded set on first use.
type Renderer struct {
	mu    sync.Mutex
	cache map[string]*pongo2.Template
}

func NewRenderer() *Renderer {
	return &Renderer{cache: make(map[string]*pongo2.Template)}
}

func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	tpl, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

func (r *Renderer) lookup(name string) (*pongo2.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tpl, ok := r.cache[name]; ok {
		return tpl, nil
	}
	src, err := templateFS.ReadFile("templates/" + name + ".html")
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	tpl, err := pongo2.FromString(string(src))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	r.cache[name] = tpl
	return tpl, nil
}
