package template

import (
	"strings"

	"github.com/neurodesk/templateparser/pkg/tag"
)

// Node is any node in a parsed template. Nodes are immutable once Parse
// returns; rendering only reads them.
type Node interface {
	node()
}

// TextNode holds literal text before tag substitution.
type TextNode struct {
	Text string
	Pos  Pos
}

func (*TextNode) node() {}

// GuardKind says how a branch decides whether it is live.
type GuardKind int

const (
	GuardExpr    GuardKind = iota + 1 // boolean expression
	GuardPresent                      // every tag resolves
	GuardAbsent                       // no tag resolves
	GuardElse                         // unconditional
)

// Branch is one guarded alternative of a conditional.
type Branch struct {
	Kind  GuardKind
	Guard string    // expression text, or the tag list for presence guards
	Tags  []tag.Tag // presence guards only
	Body  []Node
	Pos   Pos
}

// IsElse reports whether the branch is the terminal unguarded one.
func (b *Branch) IsElse() bool { return b.Kind == GuardElse }

// ConditionalNode is an if/ifpresent/ifnotpresent block. At most one branch
// is an else branch and it is always last.
type ConditionalNode struct {
	Keyword  string
	Branches []*Branch
	Pos      Pos
}

func (*ConditionalNode) node() {}

func (c *ConditionalNode) hasElse() bool {
	return len(c.Branches) > 0 && c.Branches[len(c.Branches)-1].IsElse()
}

// LoopNode repeats Body once per item of the Source tag, binding Targets.
type LoopNode struct {
	Targets []string
	Source  tag.Tag
	Body    []Node
	Pos     Pos
}

func (*LoopNode) node() {}

// ItemName returns the loop targets as written in the header.
func (l *LoopNode) ItemName() string { return strings.Join(l.Targets, ", ") }

// InlineNode renders another named template in place.
type InlineNode struct {
	Name string
	Pos  Pos
}

func (*InlineNode) node() {}
