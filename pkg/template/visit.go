package template

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/neurodesk/templateparser/pkg/tag"
)

// Visitor is called for every node reached by Walk.
type Visitor interface {
	Visit(n Node) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// Walk visits n and then its children depth-first, in document order.
func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	switch t := n.(type) {
	case *ConditionalNode:
		for _, br := range t.Branches {
			for _, c := range br.Body {
				if err := Walk(v, c); err != nil {
					return err
				}
			}
		}
	case *LoopNode:
		for _, c := range t.Body {
			if err := Walk(v, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// WalkTemplate walks every top-level node of t.
func WalkTemplate(v Visitor, t *Template) error {
	for _, n := range t.Nodes {
		if err := Walk(v, n); err != nil {
			return err
		}
	}
	return nil
}

// Tags returns every tag literal used in tpl: in text, guards and loop
// sources. Each literal appears once, in first-use order.
func Tags(tpl *Template) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		for _, tg := range tag.FindAll(s) {
			if !seen[tg.Literal] {
				seen[tg.Literal] = true
				out = append(out, tg.Literal)
			}
		}
	}
	_ = WalkTemplate(VisitorFunc(func(n Node) error {
		switch t := n.(type) {
		case *TextNode:
			add(t.Text)
		case *ConditionalNode:
			for _, br := range t.Branches {
				add(br.Guard)
			}
		case *LoopNode:
			add(t.Source.Literal)
		}
		return nil
	}), tpl)
	return out
}

// Pretty returns a line-oriented representation of the tree.
func Pretty(t *Template) string {
	var buf bytes.Buffer
	buf.WriteString("Template\n")
	for _, n := range t.Nodes {
		ppNode(&buf, 2, n)
	}
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	ind := strings.Repeat(" ", indent)
	switch t := n.(type) {
	case *TextNode:
		fmt.Fprintf(buf, "%sText(%q)\n", ind, t.Text)
	case *ConditionalNode:
		fmt.Fprintf(buf, "%sConditional(%s)\n", ind, t.Keyword)
		for i, br := range t.Branches {
			switch {
			case br.IsElse():
				fmt.Fprintf(buf, "%s  Else\n", ind)
			case i == 0:
				fmt.Fprintf(buf, "%s  If(%q)\n", ind, br.Guard)
			default:
				fmt.Fprintf(buf, "%s  Elif(%q)\n", ind, br.Guard)
			}
			for _, c := range br.Body {
				ppNode(buf, indent+4, c)
			}
		}
	case *LoopNode:
		fmt.Fprintf(buf, "%sFor(%s in %s)\n", ind, t.ItemName(), t.Source.Literal)
		for _, c := range t.Body {
			ppNode(buf, indent+2, c)
		}
	case *InlineNode:
		fmt.Fprintf(buf, "%sInline(%s)\n", ind, t.Name)
	}
}
