package template

import (
	"fmt"
	"html"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/neurodesk/templateparser/pkg/tag"
	"github.com/neurodesk/templateparser/pkg/value"
)

// Filter transforms a resolved tag value. args are the evaluated constants
// from the |name(args) call.
type Filter func(v value.Value, args []value.Value) (value.Value, error)

// Filters is a registry of filter functions by name.
type Filters map[string]Filter

// DefaultFilters provides the built-in filters.
func DefaultFilters() Filters {
	return Filters{
		"raw": func(v value.Value, _ []value.Value) (value.Value, error) { return v, nil },
		"html": func(v value.Value, _ []value.Value) (value.Value, error) {
			return value.StringValue(html.EscapeString(v.String())), nil
		},
		"url": func(v value.Value, _ []value.Value) (value.Value, error) {
			return value.StringValue(url.QueryEscape(v.String())), nil
		},
		"upper": func(v value.Value, _ []value.Value) (value.Value, error) {
			return value.StringValue(strings.ToUpper(v.String())), nil
		},
		"lower": func(v value.Value, _ []value.Value) (value.Value, error) {
			return value.StringValue(strings.ToLower(v.String())), nil
		},
		"trim": func(v value.Value, _ []value.Value) (value.Value, error) {
			return value.StringValue(strings.TrimSpace(v.String())), nil
		},
		"len": func(v value.Value, _ []value.Value) (value.Value, error) {
			n, ok := value.Len(v)
			if !ok {
				return nil, fmt.Errorf("%s has no length", value.TypeName(v))
			}
			return value.IntValue(n), nil
		},
		"sorted": func(v value.Value, _ []value.Value) (value.Value, error) {
			items, err := value.Iterate(v)
			if err != nil {
				return nil, err
			}
			sort.SliceStable(items, func(i, j int) bool { return value.Compare(items[i], items[j]) < 0 })
			return value.ListValue(items), nil
		},
		"items": func(v value.Value, _ []value.Value) (value.Value, error) {
			d, ok := v.(value.DictValue)
			if !ok {
				return nil, fmt.Errorf("items expects a mapping, got %s", value.TypeName(v))
			}
			out := make(value.ListValue, 0, len(d))
			for _, k := range d.Keys() {
				out = append(out, value.ListValue{value.StringValue(k), d[k]})
			}
			return out, nil
		},
		"values": func(v value.Value, _ []value.Value) (value.Value, error) {
			d, ok := v.(value.DictValue)
			if !ok {
				return nil, fmt.Errorf("values expects a mapping, got %s", value.TypeName(v))
			}
			out := make(value.ListValue, 0, len(d))
			for _, k := range d.Keys() {
				out = append(out, d[k])
			}
			return out, nil
		},
		"int": func(v value.Value, _ []value.Value) (value.Value, error) {
			switch t := v.(type) {
			case value.IntValue:
				return t, nil
			case value.FloatValue:
				return value.IntValue(int64(t)), nil
			case value.BoolValue:
				if t {
					return value.IntValue(1), nil
				}
				return value.IntValue(0), nil
			}
			i, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to int", v.String())
			}
			return value.IntValue(i), nil
		},
		"default": func(v value.Value, args []value.Value) (value.Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("default expects 1 argument, got %d", len(args))
			}
			if v == nil || !v.Truth() {
				return args[0], nil
			}
			return v, nil
		},
		"join": func(v value.Value, args []value.Value) (value.Value, error) {
			sep := ""
			if len(args) > 0 {
				sep = args[0].String()
			}
			items, err := value.Iterate(v)
			if err != nil {
				return nil, err
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = item.String()
			}
			return value.StringValue(strings.Join(parts, sep)), nil
		},
		"limit": func(v value.Value, args []value.Value) (value.Value, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("limit expects 1 argument, got %d", len(args))
			}
			n, ok := args[0].(value.IntValue)
			if !ok || n < 0 {
				return nil, fmt.Errorf("limit expects a non-negative int, got %s", args[0].String())
			}
			switch t := v.(type) {
			case value.ListValue:
				if int(n) < len(t) {
					return t[:n], nil
				}
				return t, nil
			default:
				r := []rune(v.String())
				if int(n) < len(r) {
					return value.StringValue(string(r[:n])), nil
				}
				return value.StringValue(string(r)), nil
			}
		},
	}
}

// apply runs every filter of t over v, left to right.
func (fs Filters) apply(t tag.Tag, v value.Value) (value.Value, error) {
	for _, f := range t.Filters {
		fn, ok := fs[f.Name]
		if !ok {
			return nil, newError(KindUnknownFilter, t.Literal, Pos{}, "%q", f.Name)
		}
		args, err := filterArgs(f)
		if err != nil {
			return nil, &Error{Kind: KindFilter, Span: t.Literal, Msg: f.Name, Err: err}
		}
		v, err = fn(v, args)
		if err != nil {
			return nil, &Error{Kind: KindFilter, Span: t.Literal, Msg: f.Name, Err: err}
		}
	}
	return v, nil
}

// filterArgs evaluates the argument list of f. Arguments are constant
// expressions: no names, no function calls, no named arguments.
func filterArgs(f tag.Filter) ([]value.Value, error) {
	src := strings.TrimSpace(f.Args)
	if src == "" {
		return nil, nil
	}
	if strings.HasSuffix(src, ",") {
		return nil, fmt.Errorf("trailing comma in arguments %q", f.Args)
	}
	program, err := expr.Compile("["+src+"]", expr.Env(map[string]any{}), expr.DisableAllBuiltins())
	if err != nil {
		return nil, fmt.Errorf("invalid arguments %q: %w", f.Args, err)
	}
	out, err := expr.Run(program, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("evaluating arguments %q: %w", f.Args, err)
	}
	list, ok := value.FromGo(out).(value.ListValue)
	if !ok {
		return nil, fmt.Errorf("invalid arguments %q", f.Args)
	}
	return list, nil
}
