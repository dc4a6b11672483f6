// Package registry serves named templates from a directory and from memory.
// A Registry is a template.Loader, so templates it serves can use
// {{ inline name }} to include each other.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/neurodesk/templateparser/pkg/cache"
	"github.com/neurodesk/templateparser/pkg/template"
)

// DefaultExtensions are tried, in order, after the bare name.
var DefaultExtensions = []string{".tpl", ".html", ".txt"}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCache parses sources through c, sharing parse results with other
// users of the cache.
func WithCache(c *cache.Cache) Option {
	return func(r *Registry) { r.cache = c }
}

// WithExtensions replaces the file extensions tried after the bare name.
func WithExtensions(exts ...string) Option {
	return func(r *Registry) { r.exts = exts }
}

// Registry resolves template names. In-memory templates added with Add take
// precedence over files. Files are read on first use and kept until Watch
// sees them change.
type Registry struct {
	dir    string
	exts   []string
	cache  *cache.Cache
	logger *zap.Logger

	mu      sync.RWMutex
	mem     map[string]*template.Template
	entries map[string]*template.Template
	paths   map[string]string // file path -> template name

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// New returns a Registry reading templates from dir. dir may be empty for a
// memory-only registry.
func New(dir string, opts ...Option) *Registry {
	r := &Registry{
		dir:     dir,
		exts:    DefaultExtensions,
		logger:  zap.NewNop(),
		mem:     map[string]*template.Template{},
		entries: map[string]*template.Template{},
		paths:   map[string]string{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the template directory.
func (r *Registry) Dir() string { return r.dir }

// Add parses src and registers it under name.
func (r *Registry) Add(name, src string) error {
	tpl, err := r.parse(name, src)
	if err != nil {
		return fmt.Errorf("template %q: %w", name, err)
	}
	r.mu.Lock()
	r.mem[name] = tpl
	r.mu.Unlock()
	return nil
}

// Load implements template.Loader.
func (r *Registry) Load(name string) (*template.Template, error) {
	r.mu.RLock()
	tpl, ok := r.mem[name]
	if !ok {
		tpl, ok = r.entries[name]
	}
	r.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	if r.dir == "" {
		return nil, notFound(name, "")
	}
	if !filepath.IsLocal(name) {
		return nil, notFound(name, "name escapes the template directory")
	}

	for _, ext := range append([]string{""}, r.exts...) {
		path := filepath.Join(r.dir, name+ext)
		st, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && st.IsDir()) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading template %q: %w", name, err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading template %q: %w", name, err)
		}
		tpl, err := r.parse(name, string(b))
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
		r.mu.Lock()
		r.entries[name] = tpl
		r.paths[path] = name
		r.mu.Unlock()
		r.logger.Debug("template loaded", zap.String("name", name), zap.String("path", path))
		return tpl, nil
	}
	return nil, notFound(name, "")
}

// parse returns the template for src under name. A cached tree is shared
// with other users of the cache, so it is wrapped to carry this name.
func (r *Registry) parse(name, src string) (*template.Template, error) {
	if r.cache == nil {
		return template.ParseNamed(name, src)
	}
	shared, err := r.cache.Get(src)
	if err != nil {
		return nil, err
	}
	return &template.Template{Name: name, Nodes: shared.Nodes}, nil
}

// Render renders the named template with the registry as its loader.
func (r *Registry) Render(name string, repl *template.Replacements, opts ...template.Option) (string, error) {
	tpl, err := r.Load(name)
	if err != nil {
		return "", err
	}
	base := []template.Option{template.WithLoader(r), template.WithLogger(r.logger)}
	return template.NewRenderer(append(base, opts...)...).Render(tpl, repl)
}

// Invalidate drops the loaded file template for name, if any.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
	for p, n := range r.paths {
		if n == name {
			delete(r.paths, p)
		}
	}
}

func notFound(name, msg string) error {
	return &template.Error{Kind: template.KindTemplateNotFound, Span: name, Msg: msg}
}
