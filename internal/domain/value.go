package domain

import (
	"fmt"
	"strings"
)

// Value is one node of a value-expression tree: the typed document model
// behind task headers and request bodies. A tree mixes literals, nested
// structures, and deferred references that are only resolved against a
// cycle's resolution context. The set of implementations is closed; the
// resolver switches over it exhaustively.
type Value interface {
	valueNode()
}

// StringValue is a text literal. The text may embed env!(NAME) references,
// which the loader splits into template fragments.
type StringValue struct {
	Template Template
}

// IntegerValue is a 64-bit signed integer literal.
type IntegerValue struct {
	Literal int64
}

// FloatValue is a 64-bit float literal.
type FloatValue struct {
	Literal float64
}

// BooleanValue is a boolean literal.
type BooleanValue struct {
	Literal bool
}

// NullValue resolves to JSON null. It carries no payload.
type NullValue struct{}

// Property is one field of an ObjectValue. Declaration order is preserved so
// the resolved body serializes deterministically.
type Property struct {
	Name  string
	Value Value
}

// ObjectValue is an ordered set of named child nodes.
type ObjectValue struct {
	Properties []Property
}

// ArrayValue is an ordered sequence of child nodes, each independently typed.
type ArrayValue struct {
	Items []Value
}

// SourceValue defers to the execution clock: either the current cycle's
// timestamp or the previous successful cycle's.
type SourceValue struct {
	Source Source
}

// EnvValue defers to an environment variable lookup at resolution time.
type EnvValue struct {
	Name string
}

func (StringValue) valueNode()  {}
func (IntegerValue) valueNode() {}
func (FloatValue) valueNode()   {}
func (BooleanValue) valueNode() {}
func (NullValue) valueNode()    {}
func (ObjectValue) valueNode()  {}
func (ArrayValue) valueNode()   {}
func (SourceValue) valueNode()  {}
func (EnvValue) valueNode()     {}

// Source names an execution-time timestamp a SourceValue reads from.
type Source string

const (
	SourceExecuteTime     Source = "execute_time"
	SourceLastExecuteTime Source = "last_execute_time"
)

// ParseSource maps the configuration spelling of a source to its constant.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceExecuteTime:
		return SourceExecuteTime, nil
	case SourceLastExecuteTime:
		return SourceLastExecuteTime, nil
	}
	return "", fmt.Errorf("unknown source %q, expected one of [execute_time, last_execute_time]", s)
}

// ParseBool accepts any case spelling of true/false (true, TRUE, False, ...)
// and normalizes it to the canonical boolean.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean literal %q", s)
}
