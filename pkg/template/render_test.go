package template

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/neurodesk/templateparser/pkg/value"
)

func renderHelper(t *testing.T, src string, data map[string]any, opts ...Option) (string, error) {
	t.Helper()
	tpl, err := Parse(src)
	if err != nil {
		return "", err
	}
	return NewRenderer(opts...).Render(tpl, FromMap(data))
}

func mustRender(t *testing.T, src string, data map[string]any, opts ...Option) string {
	t.Helper()
	out, err := renderHelper(t, src, data, opts...)
	if err != nil {
		t.Fatalf("render %q: %v", src, err)
	}
	return out
}

func TestRenderPlainText(t *testing.T) {
	src := "Hello [name], you have [count] messages. [missing] stays."
	got := mustRender(t, src, map[string]any{"name": "Elmer", "count": 3})
	if want := "Hello Elmer, you have 3 messages. [missing] stays."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := mustRender(t, src, nil); got != src {
		t.Errorf("template without bound keys changed: %q", got)
	}
}

func TestRenderNoResubstitution(t *testing.T) {
	got := mustRender(t, "[a] [b]", map[string]any{"a": "[b]", "b": "B"})
	if got != "[b] B" {
		t.Errorf("got %q, want %q", got, "[b] B")
	}
}

func TestRenderIfElse(t *testing.T) {
	src := "{{ if [x] }}A{{ else }}B{{ endif }}"
	tests := []struct {
		x    any
		want string
	}{
		{"true", "A"},
		{true, "A"},
		{1, "A"},
		{false, "B"},
		{"", "B"},
		{0, "B"},
		{nil, "B"},
	}
	for _, tt := range tests {
		if got := mustRender(t, src, map[string]any{"x": tt.x}); got != tt.want {
			t.Errorf("x=%#v got %q, want %q", tt.x, got, tt.want)
		}
	}
}

func TestRenderFirstTrueBranchWins(t *testing.T) {
	src := "{{ if [x] }}A{{ elif [y] }}B{{ else }}C{{ endif }}"
	tests := []struct {
		x, y bool
		want string
	}{
		{true, true, "A"},
		{true, false, "A"},
		{false, true, "B"},
		{false, false, "C"},
	}
	for _, tt := range tests {
		if got := mustRender(t, src, map[string]any{"x": tt.x, "y": tt.y}); got != tt.want {
			t.Errorf("x=%v y=%v got %q, want %q", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRenderNoBranchTaken(t *testing.T) {
	if got := mustRender(t, "a{{ if [x] }}A{{ elif [y] }}B{{ endif }}b", map[string]any{"x": false, "y": false}); got != "ab" {
		t.Errorf("got %q", got)
	}
}

func TestRenderSkipsGuardsAfterLiveBranch(t *testing.T) {
	src := "{{ if [a] }}A{{ elif [missing] == 1 }}B{{ endif }}"
	if got := mustRender(t, src, map[string]any{"a": true}); got != "A" {
		t.Errorf("got %q", got)
	}
	if _, err := renderHelper(t, src, map[string]any{"a": false}); !errors.Is(err, ErrUnresolvedTag) {
		t.Errorf("err = %v, want unresolved tag", err)
	}
}

func TestRenderLoop(t *testing.T) {
	src := "{{ for item in [items] }}[item];{{ endfor }}"
	if got := mustRender(t, src, map[string]any{"items": []string{"a", "b", "c"}}); got != "a;b;c;" {
		t.Errorf("got %q", got)
	}
	if got := mustRender(t, src, map[string]any{"items": []string{}}); got != "" {
		t.Errorf("empty loop got %q", got)
	}
	if got := mustRender(t, src, map[string]any{"items": "xyz"}); got != "x;y;z;" {
		t.Errorf("string loop got %q", got)
	}
	if got := mustRender(t, src, map[string]any{"items": map[string]int{"b": 2, "a": 1}}); got != "a;b;" {
		t.Errorf("mapping loop got %q", got)
	}
}

func TestRenderLoopReevaluatesGuard(t *testing.T) {
	src := "{{ for item in [items] }}{{ if [item] > 1 }}[item]{{ else }}-{{ endif }}{{ endfor }}"
	if got := mustRender(t, src, map[string]any{"items": []int{1, 2, 3}}); got != "-23" {
		t.Errorf("got %q", got)
	}
}

func TestRenderLoopScope(t *testing.T) {
	src := "{{ for item in [items] }}[item]{{ endfor }}[item]"
	got := mustRender(t, src, map[string]any{"items": []int{1, 2}, "item": "outer"})
	if got != "12outer" {
		t.Errorf("got %q", got)
	}

	nested := "{{ for row in [rows] }}{{ for cell in [row] }}[cell]{{ endfor }}|{{ endfor }}"
	got = mustRender(t, nested, map[string]any{"rows": [][]string{{"a", "b"}, {"c"}}})
	if got != "ab|c|" {
		t.Errorf("nested got %q", got)
	}
}

func TestRenderLoopUnpack(t *testing.T) {
	src := "{{ for k, v in [m|items] }}[k]=[v];{{ endfor }}"
	got := mustRender(t, src, map[string]any{"m": map[string]int{"b": 2, "a": 1}})
	if got != "a=1;b=2;" {
		t.Errorf("got %q", got)
	}

	_, err := renderHelper(t, "{{ for a, b, c in [m|items] }}x{{ endfor }}", map[string]any{"m": map[string]int{"a": 1}})
	if !errors.Is(err, ErrUnpackMismatch) {
		t.Errorf("err = %v, want unpack mismatch", err)
	}
}

func TestRenderLoopSources(t *testing.T) {
	if got := mustRender(t, "x{{ for i in [data:nope] }}[i]{{ endfor }}y", map[string]any{"data": map[string]any{}}); got != "xy" {
		t.Errorf("missing index got %q", got)
	}
	if _, err := renderHelper(t, "{{ for i in [nope] }}[i]{{ endfor }}", nil); !errors.Is(err, ErrUnresolvedTag) {
		t.Errorf("missing name err = %v", err)
	}
	for _, v := range []any{5, 1.5, true, nil} {
		_, err := renderHelper(t, "{{ for i in [v] }}[i]{{ endfor }}", map[string]any{"v": v})
		if !errors.Is(err, ErrNotIterable) {
			t.Errorf("v=%#v err = %v, want not iterable", v, err)
		}
	}
}

func TestRenderIndicesAndFilters(t *testing.T) {
	data := map[string]any{
		"user":  map[string]any{"name": "elmer", "tags": []string{"x", "y"}},
		"list":  []int{10, 20},
		"empty": "",
		"html":  "<b>&</b>",
	}
	tests := []struct {
		src  string
		want string
	}{
		{"[user:name|upper]", "ELMER"},
		{"[user:tags:1]", "y"},
		{"[list:1]", "20"},
		{"[list:5]", "[list:5]"},
		{"[user:name:0]", "e"},
		{"[user:name|limit(3)]", "elm"},
		{`[empty|default("anon")]`, "anon"},
		{`[user:tags|join(", ")]`, "x, y"},
		{"[user:tags|len]", "2"},
		{"[html|html]", "&lt;b&gt;&amp;&lt;/b&gt;"},
		{"[user:name|upper|limit(2*1)]", "EL"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := mustRender(t, tt.src, data); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderFilterErrors(t *testing.T) {
	if _, err := renderHelper(t, "[a|shout]", map[string]any{"a": "x"}); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("err = %v, want unknown filter", err)
	}
	if _, err := renderHelper(t, "[a|limit(x)]", map[string]any{"a": "x"}); !errors.Is(err, ErrFilter) {
		t.Errorf("err = %v, want filter error", err)
	}
}

func TestRenderCustomFilter(t *testing.T) {
	exclaim := Filters{
		"exclaim": func(v value.Value, args []value.Value) (value.Value, error) {
			n := 1
			if len(args) > 0 {
				if i, ok := args[0].(value.IntValue); ok {
					n = int(i)
				}
			}
			return value.StringValue(v.String() + strings.Repeat("!", n)), nil
		},
	}
	got := mustRender(t, "[greeting|exclaim] [greeting|exclaim(3)|upper]", map[string]any{"greeting": "hi"}, WithFilters(exclaim))
	if got != "hi! HI!!!" {
		t.Errorf("got %q", got)
	}
}

func TestRenderPrecomputedKey(t *testing.T) {
	repl := NewReplacements().Set("user", "elmer").Set("[user|upper]", "PRECOMPUTED")
	out, err := NewRenderer().RenderString("[user] [user|upper]", repl)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "elmer PRECOMPUTED" {
		t.Errorf("got %q", out)
	}
}

func TestRenderExpressions(t *testing.T) {
	data := map[string]any{
		"a":    true,
		"b":    false,
		"n":    nil,
		"name": "Elmer",
		"user": map[string]any{"age": 20},
		"s":    "true && [x]",
	}
	tests := []struct {
		src  string
		want string
	}{
		{"{{ if [a] && ![b] }}yes{{ else }}no{{ endif }}", "yes"},
		{"{{ if [a] == false || [b] }}yes{{ else }}no{{ endif }}", "no"},
		{"{{ if [a] and not [b] }}yes{{ else }}no{{ endif }}", "yes"},
		{"{{ if [n] == null }}yes{{ else }}no{{ endif }}", "yes"},
		{`{{ if [name] == "Elmer" }}yes{{ else }}no{{ endif }}`, "yes"},
		{`{{ if [name] != 'Elmer' }}yes{{ else }}no{{ endif }}`, "no"},
		{"{{ if [user:age] >= 18 }}adult{{ else }}minor{{ endif }}", "adult"},
		{`{{ if [s] == "true && [x]" }}yes{{ else }}no{{ endif }}`, "yes"},
		{"{{ if len([name]) == 5 }}yes{{ else }}no{{ endif }}", "yes"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := mustRender(t, tt.src, data); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderExpressionErrors(t *testing.T) {
	data := map[string]any{"x": 1, "y": []int{1}}
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unresolved", "{{ if [nope] }}A{{ endif }}", ErrUnresolvedTag},
		{"membership", "{{ if [x] in [y] }}A{{ endif }}", ErrUnsupportedExpression},
		{"syntax", "{{ if [x] == }}A{{ endif }}", ErrExpression},
		{"ambient name", "{{ if os == 1 }}A{{ endif }}", ErrExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := renderHelper(t, "before "+tt.src+" after", data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if out != "" {
				t.Errorf("partial output %q", out)
			}
		})
	}
}

func TestRenderErrorCarriesPosition(t *testing.T) {
	_, err := renderHelper(t, "one\ntwo {{ if [nope] }}A{{ endif }}", nil)
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("want *Error, got %v", err)
	}
	if te.Pos.Line != 2 || te.Pos.Col != 5 {
		t.Errorf("pos = %v, want 2:5", te.Pos)
	}
	if te.Span != "[nope]" {
		t.Errorf("span = %q, want %q", te.Span, "[nope]")
	}
}

func TestRenderMalformedNeverPartial(t *testing.T) {
	out, err := Render("text {{ if [x] }}A{{ endfor }}", FromMap(map[string]any{"x": true}))
	if !errors.Is(err, ErrUnexpectedDirective) {
		t.Fatalf("err = %v", err)
	}
	if out != "" {
		t.Errorf("partial output %q", out)
	}
}

func TestRenderPresence(t *testing.T) {
	src := "{{ ifpresent [a] [b] }}both{{ elif [a] }}a{{ else }}none{{ endif }}"
	tests := []struct {
		data map[string]any
		want string
	}{
		{map[string]any{"a": 1, "b": 2}, "both"},
		{map[string]any{"a": 1}, "a"},
		{map[string]any{"b": 2}, "none"},
		{map[string]any{"a": false, "b": ""}, "both"},
	}
	for _, tt := range tests {
		if got := mustRender(t, src, tt.data); got != tt.want {
			t.Errorf("data=%v got %q, want %q", tt.data, got, tt.want)
		}
	}

	absent := "{{ ifnotpresent [a] [user:name] }}missing{{ else }}has{{ endif }}"
	if got := mustRender(t, absent, nil); got != "missing" {
		t.Errorf("got %q", got)
	}
	if got := mustRender(t, absent, map[string]any{"user": map[string]any{"name": "x"}}); got != "has" {
		t.Errorf("got %q", got)
	}
}

func TestRenderInline(t *testing.T) {
	loader := MemoryLoader{
		"footer": "-- [name]",
		"loop":   "{{ inline loop }}",
		"broken": "{{ if [x] }}",
	}
	opts := []Option{WithLoader(loader)}

	if got := mustRender(t, "body {{ inline footer }}", map[string]any{"name": "x"}, opts...); got != "body -- x" {
		t.Errorf("got %q", got)
	}
	got := mustRender(t, "{{ for name in [names] }}{{ inline footer }};{{ endfor }}", map[string]any{"names": []string{"a", "b"}}, opts...)
	if got != "-- a;-- b;" {
		t.Errorf("inline in loop got %q", got)
	}

	tests := []struct {
		name string
		src  string
		opts []Option
		want error
	}{
		{"missing template", "{{ inline nope }}", opts, ErrTemplateNotFound},
		{"no loader", "{{ inline footer }}", nil, ErrTemplateNotFound},
		{"recursion", "{{ inline loop }}", append([]Option{WithMaxInlineDepth(4)}, opts...), ErrInlineDepth},
		{"broken inline", "{{ inline broken }}", opts, ErrUnclosedBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := renderHelper(t, tt.src, nil, tt.opts...); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRendererConcurrentUse(t *testing.T) {
	tpl, err := Parse("{{ for i in [items] }}{{ if [i] == [want] }}*{{ else }}.{{ endif }}{{ endfor }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	r := NewRenderer()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for n := 0; n < 16; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out, err := r.Render(tpl, FromMap(map[string]any{"items": []int{0, 1, 2, 3}, "want": n % 4}))
			if err != nil {
				errs <- err
				return
			}
			if len(out) != 4 || out[n%4] != '*' {
				errs <- errors.New("unexpected output " + out)
			}
		}(n)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestRenderLeadingNot(t *testing.T) {
	data := map[string]any{"a": false, "b": true}
	tests := []struct {
		src  string
		want string
	}{
		{"{{ if ![a] }}Y{{ else }}N{{ endif }}", "Y"},
		{"{{ if !([a] == 1) }}Y{{ else }}N{{ endif }}", "Y"},
		{"{{ if !![b] }}Y{{ else }}N{{ endif }}", "Y"},
		{"{{ if [b] && ![a] }}Y{{ else }}N{{ endif }}", "Y"},
		{"{{ if [a] }}A{{ elif ![b] }}B{{ else }}C{{ endif }}", "C"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := mustRender(t, tt.src, data); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderAliasedTagNames(t *testing.T) {
	data := map[string]any{"if": "a", "_tag_0": "b"}
	got := mustRender(t, `{{ if [if] == "a" and [_tag_0] == "b" }}Y{{ else }}N{{ endif }}`, data)
	if got != "Y" {
		t.Errorf("got %q, want %q", got, "Y")
	}
}

func TestRenderNonFiniteAndLargeNumbers(t *testing.T) {
	data := map[string]any{
		"inf":   math.Inf(1),
		"ninf":  math.Inf(-1),
		"big":   uint64(math.MaxUint64),
		"float": 2,
	}
	tests := []struct {
		src  string
		want string
	}{
		{"{{ if [inf|raw] > 1 }}Y{{ else }}N{{ endif }}", "Y"},
		{"{{ if [inf] > 1 }}Y{{ else }}N{{ endif }}", "Y"},
		{"{{ if [ninf|raw] < 0 }}Y{{ else }}N{{ endif }}", "Y"},
		{"{{ if [float] < [inf|raw] }}Y{{ else }}N{{ endif }}", "Y"},
		{"[big]", "18446744073709551615"},
		{`{{ if [big] == "18446744073709551615" }}Y{{ else }}N{{ endif }}`, "Y"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := mustRender(t, tt.src, data); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderGuardResolvesEveryTag(t *testing.T) {
	out, err := renderHelper(t, "{{ if [present] or [absent] }}~{{ endif }}", map[string]any{"present": true})
	if !errors.Is(err, ErrUnresolvedTag) {
		t.Fatalf("err = %v, want %v", err, ErrUnresolvedTag)
	}
	if out != "" {
		t.Errorf("partial output %q", out)
	}
}
