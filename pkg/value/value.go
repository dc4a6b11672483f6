// Package value defines the values a caller binds to template tags and the
// string, truthiness, indexing and iteration semantics the engine applies to
// them.
package value

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"
)

// Value is a replacement value bound to a tag.
type Value interface {
	String() string
	Truth() bool
}

// NoneValue represents the absence of a value.
type NoneValue struct{}

func (NoneValue) String() string { return "" }
func (NoneValue) Truth() bool    { return false }

// BoolValue wraps a boolean.
type BoolValue bool

func (b BoolValue) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b BoolValue) Truth() bool { return bool(b) }

// IntValue wraps an integer (64-bit).
type IntValue int64

func (i IntValue) String() string { return strconv.FormatInt(int64(i), 10) }
func (i IntValue) Truth() bool    { return int64(i) != 0 }

// FloatValue wraps a float (64-bit).
type FloatValue float64

func (f FloatValue) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }
func (f FloatValue) Truth() bool    { return float64(f) != 0 }

// StringValue wraps a string.
type StringValue string

func (s StringValue) String() string { return string(s) }
func (s StringValue) Truth() bool    { return len(string(s)) > 0 }

// ListValue wraps an ordered sequence of values.
type ListValue []Value

func (l ListValue) String() string {
	out := "["
	for i, v := range l {
		if i > 0 {
			out += ", "
		}
		out += v.String()
	}
	return out + "]"
}
func (l ListValue) Truth() bool { return len(l) > 0 }

// DictValue wraps a string-keyed mapping. Keys are visited in sorted order.
type DictValue map[string]Value

func (d DictValue) String() string {
	out := "{"
	for i, k := range d.Keys() {
		if i > 0 {
			out += ", "
		}
		out += k + ": " + d[k].String()
	}
	return out + "}"
}
func (d DictValue) Truth() bool { return len(d) > 0 }

// Keys returns the mapping keys in sorted order.
func (d DictValue) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromGo converts a Go value to a Value. Maps become DictValue (keys are
// formatted with %v), slices and arrays become ListValue and structs become
// DictValue over their exported fields.
func FromGo(v any) Value {
	if v == nil {
		return NoneValue{}
	}
	switch t := v.(type) {
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int8:
		return IntValue(int64(t))
	case int16:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return IntValue(int64(t))
	case uint16:
		return IntValue(int64(t))
	case uint32:
		return IntValue(int64(t))
	case uint64:
		return fromUint(t)
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case []byte:
		return StringValue(string(t))
	case fmt.Stringer:
		return StringValue(t.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make(ListValue, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, FromGo(rv.Index(i).Interface()))
		}
		return out
	case reflect.Map:
		out := make(DictValue, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			out[fmt.Sprintf("%v", it.Key().Interface())] = FromGo(it.Value().Interface())
		}
		return out
	case reflect.Struct:
		out := DictValue{}
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			if f := rt.Field(i); f.IsExported() {
				out[f.Name] = FromGo(rv.Field(i).Interface())
			}
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NoneValue{}
		}
		return FromGo(rv.Elem().Interface())
	}
	return StringValue(fmt.Sprintf("%v", v))
}

// fromUint keeps unsigned values above math.MaxInt64 as their decimal text.
func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return StringValue(strconv.FormatUint(u, 10))
	}
	return IntValue(int64(u))
}

// Index selects key from v: a mapping key, a list position or a string
// character. It reports false when the key does not exist.
func Index(v Value, key string) (Value, bool) {
	switch t := v.(type) {
	case DictValue:
		r, ok := t[key]
		return r, ok
	case ListValue:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	case StringValue:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 {
			return nil, false
		}
		for _, r := range string(t) {
			if i == 0 {
				return StringValue(string(r)), true
			}
			i--
		}
	}
	return nil, false
}

// Iterate converts v into its items for loop expansion. Strings yield their
// characters and mappings their sorted keys. Scalars are not iterable.
func Iterate(v Value) ([]Value, error) {
	switch t := v.(type) {
	case ListValue:
		out := make([]Value, len(t))
		copy(out, t)
		return out, nil
	case DictValue:
		keys := t.Keys()
		out := make([]Value, 0, len(keys))
		for _, k := range keys {
			out = append(out, StringValue(k))
		}
		return out, nil
	case StringValue:
		s := string(t)
		out := make([]Value, 0, utf8.RuneCountInString(s))
		for _, r := range s {
			out = append(out, StringValue(string(r)))
		}
		return out, nil
	}
	return nil, fmt.Errorf("not iterable: %s", TypeName(v))
}

// Len returns the length of a list, mapping or string.
func Len(v Value) (int, bool) {
	switch t := v.(type) {
	case ListValue:
		return len(t), true
	case DictValue:
		return len(t), true
	case StringValue:
		return utf8.RuneCountInString(string(t)), true
	}
	return 0, false
}

// TypeName returns a short name for the dynamic type of v.
func TypeName(v Value) string {
	switch v.(type) {
	case nil, NoneValue:
		return "none"
	case BoolValue:
		return "bool"
	case IntValue:
		return "int"
	case FloatValue:
		return "float"
	case StringValue:
		return "string"
	case ListValue:
		return "list"
	case DictValue:
		return "dict"
	}
	return fmt.Sprintf("%T", v)
}

// Compare orders two values: numbers numerically, lists element-wise and
// anything else by string form.
func Compare(a, b Value) int {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	if la, ok := a.(ListValue); ok {
		if lb, ok := b.(ListValue); ok {
			for i := 0; i < len(la) && i < len(lb); i++ {
				if c := Compare(la[i], lb[i]); c != 0 {
					return c
				}
			}
			return len(la) - len(lb)
		}
	}
	sa, sb := a.String(), b.String()
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func number(v Value) (float64, bool) {
	switch t := v.(type) {
	case IntValue:
		return float64(t), true
	case FloatValue:
		return float64(t), true
	}
	return 0, false
}
