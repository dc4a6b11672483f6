package template

import (
	"regexp"
	"strings"

	"github.com/neurodesk/templateparser/pkg/tag"
)

var (
	loopHeaderRE = regexp.MustCompile(`(?s)^(.*?)\s+in\s+(.*)$`)
	targetRE     = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)
)

// Template is a parsed template: an ordered list of top-level nodes.
type Template struct {
	Name  string
	Nodes []Node
}

// Parse parses template source into a node tree.
func Parse(src string) (*Template, error) {
	return ParseNamed("", src)
}

// ParseNamed parses src and records name on the result for diagnostics.
func ParseNamed(name, src string) (*Template, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	b := &builder{}
	for _, tok := range toks {
		if err := b.consume(tok); err != nil {
			return nil, err
		}
	}
	nodes, err := b.finish()
	if err != nil {
		return nil, err
	}
	return &Template{Name: name, Nodes: nodes}, nil
}

// frame is a block still waiting for its closing directive.
type frame struct {
	cond *ConditionalNode
	loop *LoopNode
	tok  Token
}

func (f *frame) body() *[]Node {
	if f.cond != nil {
		return &f.cond.Branches[len(f.cond.Branches)-1].Body
	}
	return &f.loop.Body
}

// builder consumes tokens in order. Text and finished blocks are appended to
// the innermost open block, or to committed when no block is open.
type builder struct {
	committed []Node
	open      []*frame
}

func (b *builder) top() *frame {
	if len(b.open) == 0 {
		return nil
	}
	return b.open[len(b.open)-1]
}

func (b *builder) appendNode(n Node) {
	if f := b.top(); f != nil {
		body := f.body()
		*body = append(*body, n)
		return
	}
	b.committed = append(b.committed, n)
}

func (b *builder) pop() *frame {
	f := b.top()
	b.open = b.open[:len(b.open)-1]
	return f
}

func (b *builder) consume(tok Token) error {
	if tok.Kind == TokenText {
		if tok.Value != "" {
			b.appendNode(&TextNode{Text: tok.Value, Pos: tok.Pos})
		}
		return nil
	}

	switch tok.Keyword {
	case "if":
		expr := tok.Expr()
		if expr == "" {
			return newError(KindMalformedDirective, tok.Source(), tok.Pos, "if requires an expression")
		}
		b.open = append(b.open, &frame{tok: tok, cond: &ConditionalNode{
			Keyword:  tok.Keyword,
			Pos:      tok.Pos,
			Branches: []*Branch{{Kind: GuardExpr, Guard: expr, Pos: tok.Pos}},
		}})
	case "ifpresent", "ifnotpresent":
		kind := GuardPresent
		if tok.Keyword == "ifnotpresent" {
			kind = GuardAbsent
		}
		br, err := presenceBranch(tok, kind)
		if err != nil {
			return err
		}
		b.open = append(b.open, &frame{tok: tok, cond: &ConditionalNode{
			Keyword:  tok.Keyword,
			Pos:      tok.Pos,
			Branches: []*Branch{br},
		}})
	case "elif":
		cond, err := b.openConditional(tok)
		if err != nil {
			return err
		}
		var br *Branch
		if cond.Keyword == "if" {
			expr := tok.Expr()
			if expr == "" {
				return newError(KindMalformedDirective, tok.Source(), tok.Pos, "elif requires an expression")
			}
			br = &Branch{Kind: GuardExpr, Guard: expr, Pos: tok.Pos}
		} else {
			br, err = presenceBranch(tok, cond.Branches[0].Kind)
			if err != nil {
				return err
			}
		}
		cond.Branches = append(cond.Branches, br)
	case "else":
		cond, err := b.openConditional(tok)
		if err != nil {
			return err
		}
		if len(tok.Args) > 0 {
			return newError(KindMalformedDirective, tok.Source(), tok.Pos, "else takes no arguments")
		}
		cond.Branches = append(cond.Branches, &Branch{Kind: GuardElse, Pos: tok.Pos})
	case "endif":
		if f := b.top(); f == nil || f.cond == nil {
			return b.unexpected(tok)
		}
		if len(tok.Args) > 0 {
			return newError(KindMalformedDirective, tok.Source(), tok.Pos, "endif takes no arguments")
		}
		b.appendNode(b.pop().cond)
	case "for":
		loop, err := parseLoopHeader(tok)
		if err != nil {
			return err
		}
		b.open = append(b.open, &frame{tok: tok, loop: loop})
	case "endfor":
		if f := b.top(); f == nil || f.loop == nil {
			return b.unexpected(tok)
		}
		if len(tok.Args) > 0 {
			return newError(KindMalformedDirective, tok.Source(), tok.Pos, "endfor takes no arguments")
		}
		b.appendNode(b.pop().loop)
	case "inline":
		if len(tok.Args) != 1 {
			return newError(KindMalformedDirective, tok.Source(), tok.Pos, "inline requires exactly one template name")
		}
		b.appendNode(&InlineNode{Name: tok.Args[0], Pos: tok.Pos})
	default:
		return newError(KindUnknownDirective, tok.Source(), tok.Pos, "%q", tok.Keyword)
	}
	return nil
}

// openConditional returns the innermost open conditional if it can still
// accept an elif or else branch.
func (b *builder) openConditional(tok Token) (*ConditionalNode, error) {
	f := b.top()
	if f == nil || f.cond == nil {
		return nil, b.unexpected(tok)
	}
	if f.cond.hasElse() {
		return nil, newError(KindUnexpectedDirective, tok.Source(), tok.Pos, "%s after else", tok.Keyword)
	}
	return f.cond, nil
}

func (b *builder) unexpected(tok Token) error {
	if f := b.top(); f != nil {
		return newError(KindUnexpectedDirective, tok.Source(), tok.Pos,
			"%s inside open %s at %s", tok.Keyword, f.tok.Keyword, f.tok.Pos)
	}
	return newError(KindUnexpectedDirective, tok.Source(), tok.Pos, "%s without open block", tok.Keyword)
}

func (b *builder) finish() ([]Node, error) {
	if f := b.top(); f != nil {
		return nil, newError(KindUnclosedBlock, f.tok.Source(), f.tok.Pos, "%s is never closed", f.tok.Keyword)
	}
	return b.committed, nil
}

func presenceBranch(tok Token, kind GuardKind) (*Branch, error) {
	expr := tok.Expr()
	tags := tag.FindAll(expr)
	rest := expr
	for _, t := range tags {
		rest = strings.Replace(rest, t.Literal, "", 1)
	}
	if len(tags) == 0 || strings.TrimSpace(rest) != "" {
		return nil, newError(KindMalformedDirective, tok.Source(), tok.Pos, "%s expects one or more tags", tok.Keyword)
	}
	return &Branch{Kind: kind, Guard: expr, Tags: tags, Pos: tok.Pos}, nil
}

func parseLoopHeader(tok Token) (*LoopNode, error) {
	m := loopHeaderRE.FindStringSubmatch(tok.Expr())
	if m == nil {
		return nil, newError(KindMalformedLoopHeader, tok.Source(), tok.Pos, "expected 'item in [source]'")
	}
	var targets []string
	for _, t := range strings.Split(m[1], ",") {
		t = strings.TrimSpace(t)
		if !targetRE.MatchString(t) {
			return nil, newError(KindMalformedLoopHeader, tok.Source(), tok.Pos, "invalid loop variable %q", t)
		}
		targets = append(targets, t)
	}
	src, ok := tag.Parse(strings.TrimSpace(m[2]))
	if !ok {
		return nil, newError(KindMalformedLoopHeader, tok.Source(), tok.Pos, "loop source must be a tag, got %q", m[2])
	}
	return &LoopNode{Targets: targets, Source: src, Pos: tok.Pos}, nil
}
