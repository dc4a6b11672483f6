// Package template implements a small tag-substitution template language.
//
// Templates mix literal text, placeholder tags and block directives:
//
//	Hello [user:name|upper]!
//	{{ if [count] > 1 }}You have [count] messages.{{ else }}One message.{{ endif }}
//	{{ for item in [items] }}- [item]
//	{{ endfor }}
//
// Parse builds a node tree from source; a Renderer walks the tree against a
// Replacements mapping. Tags and expressions only ever see the bindings in
// that mapping plus the loop variables introduced by {{ for }}.
package template

import (
	"strings"
)

// Render parses src and renders it against repl with a default Renderer.
func Render(src string, repl *Replacements) (string, error) {
	return NewRenderer().RenderString(src, repl)
}

// String reconstructs template source from the tree. Directive interiors are
// written with single spaces.
func (t *Template) String() string {
	var b strings.Builder
	writeNodes(&b, t.Nodes)
	return b.String()
}

func writeNodes(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch t := n.(type) {
		case *TextNode:
			b.WriteString(t.Text)
		case *ConditionalNode:
			for i, br := range t.Branches {
				switch {
				case br.IsElse():
					b.WriteString("{{ else }}")
				case i == 0:
					b.WriteString("{{ " + t.Keyword + " " + br.Guard + " }}")
				default:
					b.WriteString("{{ elif " + br.Guard + " }}")
				}
				writeNodes(b, br.Body)
			}
			b.WriteString("{{ endif }}")
		case *LoopNode:
			b.WriteString("{{ for " + t.ItemName() + " in " + t.Source.Literal + " }}")
			writeNodes(b, t.Body)
			b.WriteString("{{ endfor }}")
		case *InlineNode:
			b.WriteString("{{ inline " + t.Name + " }}")
		}
	}
}
