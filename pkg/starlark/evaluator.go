package starlark

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/neurodesk/templateparser/pkg/value"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// DefaultMaxSteps bounds the work a single expression may perform.
const DefaultMaxSteps = 100000

// Evaluator evaluates single Starlark expressions against a closed set of
// bindings. Nothing outside the bindings and the Starlark universe (len,
// str, int, ...) is visible: there is no load, no file or network access and
// print output is discarded.
type Evaluator struct {
	maxSteps uint64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxSteps sets the execution step limit per expression.
func WithMaxSteps(n uint64) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEvaluator creates a new Starlark evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval evaluates expr with only bindings predeclared. A fresh thread is used
// per call so an Evaluator is safe for concurrent use.
func (e *Evaluator) Eval(expr string, bindings map[string]value.Value) (starlark.Value, error) {
	predeclared := make(starlark.StringDict, len(bindings))
	for k, v := range bindings {
		predeclared[k] = ToStarlark(v)
	}

	thread := &starlark.Thread{
		Name:  "expression",
		Print: func(*starlark.Thread, string) {},
	}
	thread.SetMaxExecutionSteps(e.maxSteps)

	val, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "<expr>", expr, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark evaluation error: %w", err)
	}
	return val, nil
}

// Truth evaluates expr and returns its truthiness.
func (e *Evaluator) Truth(expr string, bindings map[string]value.Value) (bool, error) {
	val, err := e.Eval(expr, bindings)
	if err != nil {
		return false, err
	}
	return bool(val.Truth()), nil
}

// Text evaluates expr and returns its string form. Strings are returned
// without quotes.
func (e *Evaluator) Text(expr string, bindings map[string]value.Value) (string, error) {
	val, err := e.Eval(expr, bindings)
	if err != nil {
		return "", err
	}
	return FromStarlark(val).String(), nil
}

var reserved = map[string]bool{
	"and": true, "as": true, "assert": true, "async": true, "await": true,
	"break": true, "class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "load": true, "nonlocal": true, "not": true,
	"or": true, "pass": true, "raise": true, "return": true, "try": true,
	"while": true, "with": true, "yield": true,
}

// IsUniversal reports whether name is a Starlark built-in such as len or
// float. Binding a tag under such a name would hide the built-in.
func IsUniversal(name string) bool {
	_, ok := starlark.Universe[name]
	return ok
}

// IsIdentifier reports whether name can be bound as a Starlark variable.
func IsIdentifier(name string) bool {
	if name == "" || reserved[name] {
		return false
	}
	first, _ := utf8.DecodeRuneInString(name)
	if !unicode.IsLetter(first) && first != '_' {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
