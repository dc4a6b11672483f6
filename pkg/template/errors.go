package template

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Kind classifies template failures.
type Kind int

const (
	KindUnterminatedDirective Kind = iota + 1
	KindUnknownDirective
	KindUnexpectedDirective
	KindUnclosedBlock
	KindMalformedLoopHeader
	KindMalformedDirective
	KindUnresolvedTag
	KindUnsupportedExpression
	KindNotIterable
	KindUnpackMismatch
	KindExpression
	KindUnknownFilter
	KindFilter
	KindTemplateNotFound
	KindInlineDepth
)

var kindNames = map[Kind]string{
	KindUnterminatedDirective: "unterminated directive",
	KindUnknownDirective:      "unknown directive",
	KindUnexpectedDirective:   "unexpected directive",
	KindUnclosedBlock:         "unclosed block",
	KindMalformedLoopHeader:   "malformed loop header",
	KindMalformedDirective:    "malformed directive",
	KindUnresolvedTag:         "unresolved tag",
	KindUnsupportedExpression: "unsupported expression",
	KindNotIterable:           "not iterable",
	KindUnpackMismatch:        "unpack mismatch",
	KindExpression:            "expression evaluation error",
	KindUnknownFilter:         "unknown filter",
	KindFilter:                "filter error",
	KindTemplateNotFound:      "template not found",
	KindInlineDepth:           "inline depth exceeded",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrUnterminatedDirective = &Error{Kind: KindUnterminatedDirective}
	ErrUnknownDirective      = &Error{Kind: KindUnknownDirective}
	ErrUnexpectedDirective   = &Error{Kind: KindUnexpectedDirective}
	ErrUnclosedBlock         = &Error{Kind: KindUnclosedBlock}
	ErrMalformedLoopHeader   = &Error{Kind: KindMalformedLoopHeader}
	ErrMalformedDirective    = &Error{Kind: KindMalformedDirective}
	ErrUnresolvedTag         = &Error{Kind: KindUnresolvedTag}
	ErrUnsupportedExpression = &Error{Kind: KindUnsupportedExpression}
	ErrNotIterable           = &Error{Kind: KindNotIterable}
	ErrUnpackMismatch        = &Error{Kind: KindUnpackMismatch}
	ErrExpression            = &Error{Kind: KindExpression}
	ErrUnknownFilter         = &Error{Kind: KindUnknownFilter}
	ErrFilter                = &Error{Kind: KindFilter}
	ErrTemplateNotFound      = &Error{Kind: KindTemplateNotFound}
	ErrInlineDepth           = &Error{Kind: KindInlineDepth}
)

// Pos is a location in template source.
type Pos struct {
	Offset int
	Line   int
	Col    int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Error is a structured template failure: its kind, the directive or text
// span involved and where that span starts.
type Error struct {
	Kind Kind
	Span string
	Pos  Pos
	Msg  string
	Err  error
}

func newError(kind Kind, span string, pos Pos, format string, args ...any) *Error {
	e := &Error{Kind: kind, Span: span, Pos: pos}
	if format != "" {
		e.Msg = fmt.Sprintf(format, args...)
	}
	return e
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Pos.Line > 0 {
		s = e.Pos.String() + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Span != "" {
		s += fmt.Sprintf(" in %q", e.Span)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Span == "" && t.Pos == (Pos{}) && t.Msg == "" && t.Err == nil
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e *Error) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", e.Kind.String())
	if e.Span != "" {
		enc.AddString("span", e.Span)
	}
	if e.Pos.Line > 0 {
		enc.AddInt("line", e.Pos.Line)
		enc.AddInt("col", e.Pos.Col)
	}
	if e.Msg != "" {
		enc.AddString("msg", e.Msg)
	}
	if e.Err != nil {
		enc.AddString("cause", e.Err.Error())
	}
	return nil
}
