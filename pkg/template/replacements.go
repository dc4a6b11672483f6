package template

import (
	"sort"
	"strings"

	"github.com/neurodesk/templateparser/pkg/value"
)

// Replacements maps tag literals such as "[user]" to values. Keys keep their
// insertion order. A Replacements must not be modified while a render that
// uses it is running.
type Replacements struct {
	keys []string
	vals map[string]value.Value
}

// NewReplacements returns an empty mapping.
func NewReplacements() *Replacements {
	return &Replacements{vals: map[string]value.Value{}}
}

// FromMap builds Replacements from m, inserting keys in sorted order of
// their normalized form. Values are converted with value.FromGo. When m holds
// both "name" and "[name]", the bracketed key wins.
func FromMap(m map[string]any) *Replacements {
	norm := make(map[string]string, len(m)) // normalized -> raw key used
	for k := range m {
		nk := normalizeKey(k)
		if prev, ok := norm[nk]; ok && prev == nk {
			continue
		}
		norm[nk] = k
	}
	keys := make([]string, 0, len(norm))
	for nk := range norm {
		keys = append(keys, nk)
	}
	sort.Strings(keys)
	r := NewReplacements()
	for _, nk := range keys {
		r.Set(nk, m[norm[nk]])
	}
	return r
}

// Set binds key to v. A key without surrounding brackets is stored as
// "[key]". Setting an existing key keeps its position.
func (r *Replacements) Set(key string, v any) *Replacements {
	if r.vals == nil {
		r.vals = map[string]value.Value{}
	}
	key = normalizeKey(key)
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = value.FromGo(v)
	return r
}

// Get returns the value bound to key.
func (r *Replacements) Get(key string) (value.Value, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.vals[normalizeKey(key)]
	return v, ok
}

// Keys returns the bound keys in insertion order.
func (r *Replacements) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of bindings.
func (r *Replacements) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Merge returns a new mapping holding r's bindings overlaid with other's.
func (r *Replacements) Merge(other *Replacements) *Replacements {
	out := NewReplacements()
	for _, src := range []*Replacements{r, other} {
		if src == nil {
			continue
		}
		for _, k := range src.keys {
			out.Set(k, src.vals[k])
		}
	}
	return out
}

func normalizeKey(key string) string {
	if strings.HasPrefix(key, "[") && strings.HasSuffix(key, "]") {
		return key
	}
	return "[" + key + "]"
}
