package template

import (
	"bytes"
	"errors"

	"go.uber.org/zap"

	"github.com/neurodesk/templateparser/pkg/starlark"
	"github.com/neurodesk/templateparser/pkg/tag"
	"github.com/neurodesk/templateparser/pkg/value"
)

// DefaultMaxInlineDepth bounds nested {{ inline }} directives.
const DefaultMaxInlineDepth = 16

// Renderer renders parsed templates. A Renderer holds no per-render state
// and may be shared between goroutines.
type Renderer struct {
	loader         Loader
	filters        Filters
	eval           *starlark.Evaluator
	logger         *zap.Logger
	maxInlineDepth int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLoader sets the source of templates for {{ inline }}.
func WithLoader(l Loader) Option {
	return func(r *Renderer) { r.loader = l }
}

// WithFilters adds or replaces filters on top of DefaultFilters.
func WithFilters(fs Filters) Option {
	return func(r *Renderer) {
		for name, f := range fs {
			r.filters[name] = f
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMaxInlineDepth sets how deeply {{ inline }} may nest.
func WithMaxInlineDepth(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxInlineDepth = n
		}
	}
}

// WithMaxSteps bounds the evaluation work of each expression.
func WithMaxSteps(n uint64) Option {
	return func(r *Renderer) { r.eval = starlark.NewEvaluator(starlark.WithMaxSteps(n)) }
}

// NewRenderer returns a Renderer with the default filters and no loader.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		filters:        DefaultFilters(),
		eval:           defaultEvaluator,
		logger:         zap.NewNop(),
		maxInlineDepth: DefaultMaxInlineDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render renders t against repl. On failure it returns "" and an *Error;
// output is never partial.
func (r *Renderer) Render(t *Template, repl *Replacements) (string, error) {
	var buf bytes.Buffer
	if err := r.renderNodes(&buf, t.Nodes, newScope(repl), 0); err != nil {
		r.logger.Debug("render failed", zap.String("template", t.Name), zap.Error(err))
		return "", err
	}
	return buf.String(), nil
}

// RenderString parses src and renders it against repl.
func (r *Renderer) RenderString(src string, repl *Replacements) (string, error) {
	t, err := Parse(src)
	if err != nil {
		return "", err
	}
	return r.Render(t, repl)
}

func (r *Renderer) renderNodes(buf *bytes.Buffer, nodes []Node, sc *scope, depth int) error {
	for _, n := range nodes {
		switch t := n.(type) {
		case *TextNode:
			s, err := r.substitute(t.Text, sc)
			if err != nil {
				return withPos(err, t.Pos)
			}
			buf.WriteString(s)
		case *ConditionalNode:
			br, err := r.liveBranch(t, sc)
			if err != nil {
				return err
			}
			if br == nil {
				continue
			}
			if err := r.renderNodes(buf, br.Body, sc, depth); err != nil {
				return err
			}
		case *LoopNode:
			if err := r.renderLoop(buf, t, sc, depth); err != nil {
				return err
			}
		case *InlineNode:
			if err := r.renderInline(buf, t, sc, depth); err != nil {
				return err
			}
		}
	}
	return nil
}

// substitute replaces every resolvable tag in text. Unresolved tags stay.
func (r *Renderer) substitute(text string, sc *scope) (string, error) {
	return tag.ReplaceAll(text, func(t tag.Tag) (string, bool, error) {
		v, state, err := sc.resolve(t, r.filters)
		if err != nil || state != resolved {
			return "", false, err
		}
		return v.String(), true, nil
	})
}

// liveBranch returns the first branch whose guard holds, the else branch, or
// nil. Guards after the live branch are not evaluated.
func (r *Renderer) liveBranch(c *ConditionalNode, sc *scope) (*Branch, error) {
	for i, br := range c.Branches {
		ok, err := r.guard(br, sc)
		if err != nil {
			return nil, err
		}
		if ok {
			r.logger.Debug("branch taken",
				zap.String("keyword", c.Keyword),
				zap.Int("branch", i),
				zap.Stringer("pos", br.Pos))
			return br, nil
		}
	}
	return nil, nil
}

func (r *Renderer) guard(br *Branch, sc *scope) (bool, error) {
	switch br.Kind {
	case GuardElse:
		return true, nil
	case GuardPresent, GuardAbsent:
		for _, t := range br.Tags {
			ok, err := sc.present(t, r.filters)
			if err != nil {
				return false, withPos(err, br.Pos)
			}
			if ok != (br.Kind == GuardPresent) {
				return false, nil
			}
		}
		return true, nil
	}
	return evalBool(r.eval, r.filters, br.Guard, sc, br.Pos)
}

func (r *Renderer) renderLoop(buf *bytes.Buffer, l *LoopNode, sc *scope, depth int) error {
	src, state, err := sc.resolve(l.Source, r.filters)
	if err != nil {
		return withPos(err, l.Pos)
	}
	switch state {
	case missingName:
		return newError(KindUnresolvedTag, l.Source.Literal, l.Pos, "loop source %s", l.Source.Literal)
	case missingIndex:
		r.logger.Debug("loop source index missing", zap.String("source", l.Source.Literal))
		return nil
	}
	items, err := value.Iterate(src)
	if err != nil {
		return &Error{Kind: KindNotIterable, Span: l.Source.Literal, Pos: l.Pos, Msg: value.TypeName(src)}
	}
	r.logger.Debug("loop expanded",
		zap.String("source", l.Source.Literal),
		zap.Int("items", len(items)))

	for _, item := range items {
		vars, err := bindTargets(l, item)
		if err != nil {
			return err
		}
		if err := r.renderNodes(buf, l.Body, sc.child(vars), depth); err != nil {
			return err
		}
	}
	return nil
}

func bindTargets(l *LoopNode, item value.Value) (map[string]value.Value, error) {
	if len(l.Targets) == 1 {
		return map[string]value.Value{"[" + l.Targets[0] + "]": item}, nil
	}
	parts, err := value.Iterate(item)
	if err != nil || len(parts) != len(l.Targets) {
		return nil, newError(KindUnpackMismatch, l.Source.Literal, l.Pos,
			"cannot unpack %s into %d names", item.String(), len(l.Targets))
	}
	vars := make(map[string]value.Value, len(parts))
	for i, name := range l.Targets {
		vars["["+name+"]"] = parts[i]
	}
	return vars, nil
}

func (r *Renderer) renderInline(buf *bytes.Buffer, n *InlineNode, sc *scope, depth int) error {
	if depth >= r.maxInlineDepth {
		return newError(KindInlineDepth, n.Name, n.Pos, "limit %d", r.maxInlineDepth)
	}
	if r.loader == nil {
		return newError(KindTemplateNotFound, n.Name, n.Pos, "no loader configured")
	}
	t, err := r.loader.Load(n.Name)
	if err != nil {
		var te *Error
		if errors.As(err, &te) && !errors.Is(err, ErrTemplateNotFound) {
			return err
		}
		return &Error{Kind: KindTemplateNotFound, Span: n.Name, Pos: n.Pos, Err: err}
	}
	r.logger.Debug("inline", zap.String("name", n.Name), zap.Int("depth", depth+1))
	return r.renderNodes(buf, t.Nodes, sc, depth+1)
}
