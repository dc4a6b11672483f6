// Package tag recognizes placeholder tags such as [name], [obj:key:0] and
// [name|upper|limit(20)] inside arbitrary text.
package tag

import (
	"regexp"
	"strings"
)

const (
	namePattern   = `[\p{L}\p{N}_]+`
	indexPattern  = `[\p{L}\p{N}_-]+`
	filterPattern = `\|[\p{L}\p{N}_-]+(?:\((?:[^()\\]|\\.)*\))?`
	tagPattern    = `\[(` + namePattern + `)((?::` + indexPattern + `)*)((?:` + filterPattern + `)*)\]`
)

var (
	tagRE      = regexp.MustCompile(tagPattern)
	anchoredRE = regexp.MustCompile(`^` + tagPattern)
	wholeRE    = regexp.MustCompile(`^` + tagPattern + `$`)
	filterRE   = regexp.MustCompile(`\|([\p{L}\p{N}_-]+)(?:\(((?:[^()\\]|\\.)*)\))?`)
)

// Filter is one |name(args) step of a tag. Args holds the raw text between
// the parentheses.
type Filter struct {
	Name    string
	Args    string
	HasArgs bool
}

func (f Filter) String() string {
	if !f.HasArgs {
		return "|" + f.Name
	}
	return "|" + f.Name + "(" + f.Args + ")"
}

// Tag is a parsed placeholder tag.
type Tag struct {
	Literal string
	Name    string
	Indices []string
	Filters []Filter
}

// IsBare reports whether the tag is a plain [name] without indices or filters.
func (t Tag) IsBare() bool {
	return len(t.Indices) == 0 && len(t.Filters) == 0
}

// Base returns the bare form [name] of the tag.
func (t Tag) Base() string {
	return "[" + t.Name + "]"
}

func (t Tag) String() string { return t.Literal }

// Parse parses s as a single tag. The whole string must be the tag.
func Parse(s string) (Tag, bool) {
	m := wholeRE.FindStringSubmatchIndex(s)
	if m == nil {
		return Tag{}, false
	}
	return fromMatch(s, m), true
}

// IsTag reports whether s is exactly one tag.
func IsTag(s string) bool {
	return wholeRE.MatchString(s)
}

// FindAll returns every tag in text, left to right, without overlaps.
func FindAll(text string) []Tag {
	matches := tagRE.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Tag, 0, len(matches))
	for _, m := range matches {
		out = append(out, fromMatch(text, m))
	}
	return out
}

// MatchAt returns the tag starting exactly at byte offset i of s, if any.
func MatchAt(s string, i int) (Tag, bool) {
	if i < 0 || i >= len(s) || s[i] != '[' {
		return Tag{}, false
	}
	m := anchoredRE.FindStringSubmatchIndex(s[i:])
	if m == nil {
		return Tag{}, false
	}
	return fromMatch(s[i:], m), true
}

// ReplaceAll calls fn for every tag in text and substitutes the returned
// string when fn reports ok. Tags fn declines are left verbatim. The first
// error returned by fn stops the scan.
func ReplaceAll(text string, fn func(Tag) (string, bool, error)) (string, error) {
	matches := tagRE.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		t := fromMatch(text, m)
		repl, ok, err := fn(t)
		if err != nil {
			return "", err
		}
		b.WriteString(text[last:m[0]])
		if ok {
			b.WriteString(repl)
		} else {
			b.WriteString(t.Literal)
		}
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

func fromMatch(s string, m []int) Tag {
	t := Tag{
		Literal: s[m[0]:m[1]],
		Name:    s[m[2]:m[3]],
	}
	if idx := s[m[4]:m[5]]; idx != "" {
		t.Indices = strings.Split(idx[1:], ":")
	}
	if fs := s[m[6]:m[7]]; fs != "" {
		for _, fm := range filterRE.FindAllStringSubmatchIndex(fs, -1) {
			f := Filter{Name: fs[fm[2]:fm[3]]}
			if fm[4] >= 0 {
				f.Args = fs[fm[4]:fm[5]]
				f.HasArgs = true
			}
			t.Filters = append(t.Filters, f)
		}
	}
	return t
}
