package template

import (
	"sort"
	"strings"
)

// The lexer splits template source into an alternating sequence of literal
// text and {{ ... }} directives: text, directive, text, ..., text. Text
// tokens may be empty.

// TokenKind distinguishes literal text from directives.
type TokenKind int

const (
	TokenText TokenKind = iota + 1
	TokenDirective
)

func (k TokenKind) String() string {
	switch k {
	case TokenText:
		return "text"
	case TokenDirective:
		return "directive"
	}
	return "invalid"
}

// Token is one lexed span. For directives Keyword is the lower-cased first
// word and Args the remaining whitespace-separated words.
type Token struct {
	Kind    TokenKind
	Value   string
	Keyword string
	Args    []string
	Pos     Pos
}

// Expr returns the directive argument text as written, with the keyword and
// surrounding whitespace removed.
func (t Token) Expr() string {
	s := strings.TrimSpace(t.Value)
	if i := strings.IndexFunc(s, isSpaceRune); i >= 0 {
		return strings.TrimSpace(s[i:])
	}
	return ""
}

// Source returns the token as it would appear in a template.
func (t Token) Source() string {
	if t.Kind == TokenDirective {
		return "{{ " + strings.TrimSpace(t.Value) + " }}"
	}
	return t.Value
}

var directives = map[string]bool{
	"if":           true,
	"elif":         true,
	"else":         true,
	"endif":        true,
	"for":          true,
	"endfor":       true,
	"ifpresent":    true,
	"ifnotpresent": true,
	"inline":       true,
}

type lexer struct {
	src   string
	i     int
	n     int
	lines []int // offsets of line starts
	done  bool
	text  bool // next token is text
}

func newLexer(src string) *lexer {
	l := &lexer{src: src, n: len(src), lines: []int{0}, text: true}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			l.lines = append(l.lines, i+1)
		}
	}
	return l
}

func (l *lexer) pos(offset int) Pos {
	line := sort.Search(len(l.lines), func(i int) bool { return l.lines[i] > offset }) - 1
	return Pos{Offset: offset, Line: line + 1, Col: offset - l.lines[line] + 1}
}

// next returns the next token, or ok=false at end of input.
func (l *lexer) next() (tok Token, ok bool, err error) {
	if l.done {
		return Token{}, false, nil
	}
	if l.text {
		l.text = false
		return l.nextText(), true, nil
	}
	l.text = true
	tok, err = l.nextDirective()
	if err != nil {
		return Token{}, false, err
	}
	return tok, true, nil
}

// nextText scans up to the next "{{" or end of input.
func (l *lexer) nextText() Token {
	start := l.i
	j := strings.Index(l.src[l.i:], "{{")
	if j < 0 {
		l.i = l.n
		l.done = true
	} else {
		l.i += j
	}
	return Token{Kind: TokenText, Value: l.src[start:l.i], Pos: l.pos(start)}
}

// nextDirective consumes "{{ ... }}" starting at the current offset.
func (l *lexer) nextDirective() (Token, error) {
	start := l.i
	l.i += 2
	j := strings.Index(l.src[l.i:], "}}")
	if j < 0 {
		span := l.src[start:]
		if len(span) > 40 {
			span = span[:40]
		}
		return Token{}, newError(KindUnterminatedDirective, span, l.pos(start), "missing }}")
	}
	inner := l.src[l.i : l.i+j]
	l.i += j + 2

	tok := Token{Kind: TokenDirective, Value: strings.TrimSpace(inner), Pos: l.pos(start)}
	words := strings.Fields(inner)
	if len(words) == 0 {
		return Token{}, newError(KindUnknownDirective, tok.Source(), tok.Pos, "empty directive")
	}
	tok.Keyword = strings.ToLower(words[0])
	tok.Args = words[1:]
	if !directives[tok.Keyword] {
		return Token{}, newError(KindUnknownDirective, tok.Source(), tok.Pos, "%q", words[0])
	}
	return tok, nil
}

// Tokenize splits src into text and directive tokens in source order.
func Tokenize(src string) ([]Token, error) {
	l := newLexer(src)
	var toks []Token
	for {
		tok, ok, err := l.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
