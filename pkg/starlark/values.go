package starlark

import (
	"math"
	"strconv"
	"strings"

	"go.starlark.net/starlark"

	"github.com/neurodesk/templateparser/pkg/value"
)

// ToStarlark converts a tag value for binding as a predeclared variable.
// Lists and dicts are frozen so an expression cannot change what the caller
// bound.
func ToStarlark(v value.Value) starlark.Value {
	switch t := v.(type) {
	case nil, value.NoneValue:
		return starlark.None
	case value.BoolValue:
		return starlark.Bool(t)
	case value.IntValue:
		return starlark.MakeInt64(int64(t))
	case value.FloatValue:
		return starlark.Float(t)
	case value.StringValue:
		return starlark.String(t)
	case value.ListValue:
		elems := make([]starlark.Value, len(t))
		for i, e := range t {
			elems[i] = ToStarlark(e)
		}
		l := starlark.NewList(elems)
		l.Freeze()
		return l
	case value.DictValue:
		d := starlark.NewDict(len(t))
		for _, k := range t.Keys() {
			// Only fails for unhashable keys or a frozen dict.
			_ = d.SetKey(starlark.String(k), ToStarlark(t[k]))
		}
		d.Freeze()
		return d
	}
	return starlark.String(v.String())
}

// FromStarlark converts an expression result back to a tag value. Integers
// outside the int64 range keep their decimal text.
func FromStarlark(v starlark.Value) value.Value {
	switch t := v.(type) {
	case nil, starlark.NoneType:
		return value.NoneValue{}
	case starlark.Bool:
		return value.BoolValue(t)
	case starlark.Int:
		if i, ok := t.Int64(); ok {
			return value.IntValue(i)
		}
		return value.StringValue(t.String())
	case starlark.Float:
		return value.FloatValue(t)
	case starlark.String:
		return value.StringValue(t)
	case *starlark.Dict:
		out := make(value.DictValue, t.Len())
		for _, kv := range t.Items() {
			out[keyString(kv[0])] = FromStarlark(kv[1])
		}
		return out
	case starlark.Indexable:
		out := make(value.ListValue, t.Len())
		for i := range out {
			out[i] = FromStarlark(t.Index(i))
		}
		return out
	}
	return value.StringValue(v.String())
}

func keyString(k starlark.Value) string {
	if s, ok := k.(starlark.String); ok {
		return string(s)
	}
	return k.String()
}

// Literal returns v as Starlark source for splicing into an expression.
// Non-finite floats have no literal form and are written as float("inf"),
// float("-inf") or float("nan").
func Literal(v value.Value) string {
	var b strings.Builder
	writeLiteral(&b, v)
	return b.String()
}

func writeLiteral(b *strings.Builder, v value.Value) {
	switch t := v.(type) {
	case nil, value.NoneValue:
		b.WriteString("None")
	case value.BoolValue:
		if t {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case value.IntValue:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case value.FloatValue:
		f := float64(t)
		switch {
		case math.IsNaN(f):
			b.WriteString(`float("nan")`)
		case math.IsInf(f, 1):
			b.WriteString(`float("inf")`)
		case math.IsInf(f, -1):
			b.WriteString(`float("-inf")`)
		default:
			b.WriteString(starlark.Float(f).String())
		}
	case value.ListValue:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writeLiteral(b, e)
		}
		b.WriteByte(']')
	case value.DictValue:
		b.WriteByte('{')
		for i, k := range t.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(starlark.String(k).String())
			b.WriteString(": ")
			writeLiteral(b, t[k])
		}
		b.WriteByte('}')
	default:
		b.WriteString(starlark.String(v.String()).String())
	}
}
