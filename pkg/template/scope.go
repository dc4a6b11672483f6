package template

import (
	"github.com/neurodesk/templateparser/pkg/tag"
	"github.com/neurodesk/templateparser/pkg/value"
)

type lookupState int

const (
	resolved lookupState = iota
	missingName
	missingIndex
)

// scope is one level of tag bindings. The root scope wraps the caller's
// Replacements; each loop iteration pushes a child holding the loop targets.
type scope struct {
	parent *scope
	repl   *Replacements
	vars   map[string]value.Value
}

func newScope(repl *Replacements) *scope {
	return &scope{repl: repl}
}

func (s *scope) child(vars map[string]value.Value) *scope {
	return &scope{parent: s, vars: vars}
}

func (s *scope) get(key string) (value.Value, bool) {
	if s.vars != nil {
		if v, ok := s.vars[key]; ok {
			return v, true
		}
	}
	if s.repl != nil {
		return s.repl.Get(key)
	}
	return nil, false
}

// resolve looks t up innermost scope first. The first scope that holds either
// the exact literal or the base name decides the result.
func (s *scope) resolve(t tag.Tag, filters Filters) (value.Value, lookupState, error) {
	for sc := s; sc != nil; sc = sc.parent {
		if !t.IsBare() {
			if v, ok := sc.get(t.Literal); ok {
				return v, resolved, nil
			}
		}
		base, ok := sc.get(t.Base())
		if !ok {
			continue
		}
		for _, idx := range t.Indices {
			base, ok = value.Index(base, idx)
			if !ok {
				return nil, missingIndex, nil
			}
		}
		v, err := filters.apply(t, base)
		if err != nil {
			return nil, resolved, err
		}
		return v, resolved, nil
	}
	return nil, missingName, nil
}

// present reports whether t resolves to a value.
func (s *scope) present(t tag.Tag, filters Filters) (bool, error) {
	_, state, err := s.resolve(t, filters)
	if err != nil {
		return false, err
	}
	return state == resolved, nil
}
