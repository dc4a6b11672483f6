package template

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/neurodesk/templateparser/pkg/starlark"
	"github.com/neurodesk/templateparser/pkg/tag"
	"github.com/neurodesk/templateparser/pkg/value"
)

// Guard and text expressions are rewritten before evaluation:
//
//   - bare tags ([name]) become variables bound to the tag's value, under
//     an _tag_N alias when name is not a usable identifier;
//   - tags with indices or filters are spliced in as literals;
//   - &&, || and ! become and, or and not;
//   - true, false and null become True, False and None.
//
// String literals are copied untouched. The membership word "in" is rejected.
// The rewritten expression only sees the variables bound here.

var wordLiterals = map[string]string{
	"true":  "True",
	"false": "False",
	"null":  "None",
}

var defaultEvaluator = starlark.NewEvaluator()

// EvaluateBoolean evaluates a guard expression against repl.
func EvaluateBoolean(expr string, repl *Replacements) (bool, error) {
	return evalBool(defaultEvaluator, DefaultFilters(), expr, newScope(repl), Pos{})
}

// EvaluateText evaluates expr against repl and returns its string form.
func EvaluateText(expr string, repl *Replacements) (string, error) {
	return evalText(defaultEvaluator, DefaultFilters(), expr, newScope(repl), Pos{})
}

func evalBool(ev *starlark.Evaluator, filters Filters, expr string, sc *scope, pos Pos) (bool, error) {
	src, bindings, err := rewriteExpr(expr, sc, filters)
	if err != nil {
		return false, withPos(err, pos)
	}
	ok, err := ev.Truth(src, bindings)
	if err != nil {
		return false, &Error{Kind: KindExpression, Span: expr, Pos: pos, Err: err}
	}
	return ok, nil
}

func evalText(ev *starlark.Evaluator, filters Filters, expr string, sc *scope, pos Pos) (string, error) {
	src, bindings, err := rewriteExpr(expr, sc, filters)
	if err != nil {
		return "", withPos(err, pos)
	}
	s, err := ev.Text(src, bindings)
	if err != nil {
		return "", &Error{Kind: KindExpression, Span: expr, Pos: pos, Err: err}
	}
	return s, nil
}

// rewriteExpr produces evaluator source and its bindings from a template
// expression.
func rewriteExpr(expr string, sc *scope, filters Filters) (string, map[string]value.Value, error) {
	var b strings.Builder
	bindings := map[string]value.Value{}
	aliases := map[string]string{}
	taken := map[string]bool{}
	for _, t := range tag.FindAll(expr) {
		taken[t.Name] = true
	}

	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			j := skipString(expr, i)
			b.WriteString(expr[i:j])
			i = j
		case c == '[':
			t, ok := tag.MatchAt(expr, i)
			if !ok {
				b.WriteByte(c)
				i++
				continue
			}
			v, state, err := sc.resolve(t, filters)
			if err != nil {
				return "", nil, err
			}
			if state != resolved {
				return "", nil, newError(KindUnresolvedTag, expr, Pos{}, "%s", t.Literal)
			}
			if t.IsBare() {
				name, ok := aliases[t.Name]
				if !ok {
					name = t.Name
					if !starlark.IsIdentifier(name) || starlark.IsUniversal(name) {
						name = freeAlias(taken)
					}
					aliases[t.Name] = name
					bindings[name] = v
				}
				b.WriteString(name)
			} else {
				b.WriteString(starlark.Literal(v))
			}
			i += len(t.Literal)
		case c == '&' && strings.HasPrefix(expr[i:], "&&"):
			b.WriteString(" and ")
			i += 2
		case c == '|' && strings.HasPrefix(expr[i:], "||"):
			b.WriteString(" or ")
			i += 2
		case c == '!' && !strings.HasPrefix(expr[i:], "!="):
			if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
			b.WriteString("not ")
			i++
		default:
			r, size := utf8.DecodeRuneInString(expr[i:])
			if !isWordRune(r) {
				b.WriteString(expr[i : i+size])
				i += size
				continue
			}
			j := i
			for j < len(expr) {
				r, size := utf8.DecodeRuneInString(expr[j:])
				if !isWordRune(r) {
					break
				}
				j += size
			}
			word := expr[i:j]
			switch {
			case word == "in":
				return "", nil, newError(KindUnsupportedExpression, expr, Pos{}, "membership test with 'in'")
			case wordLiterals[word] != "":
				b.WriteString(wordLiterals[word])
			default:
				b.WriteString(word)
			}
			i = j
		}
	}
	return strings.TrimSpace(b.String()), bindings, nil
}

// freeAlias returns a variable name for a tag whose own name is not an
// identifier or shadows a built-in, avoiding every tag name in the
// expression and earlier aliases.
func freeAlias(taken map[string]bool) string {
	for n := 0; ; n++ {
		name := fmt.Sprintf("_tag_%d", n)
		if !taken[name] {
			taken[name] = true
			return name
		}
	}
}

// skipString returns the offset just past the string literal opening at i.
// An unterminated literal extends to the end of s.
func skipString(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return len(s)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// withPos fills in the position of a template error raised without one.
func withPos(err error, pos Pos) error {
	if e, ok := err.(*Error); ok && e.Pos == (Pos{}) {
		e.Pos = pos
	}
	return err
}
