// Package simargs holds the simulation argument store: the ordered set of
// parameters a plugin recognises, the rules for folding user overrides into
// it, and the rendering of the store into a command-line argument string.
//
// A Store is owned by the caller. Dispatch code builds a fresh one from the
// plugin defaults for every top-level dispatch, so nothing leaks between
// dispatches running in the same process.
package simargs

import (
	"slices"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindList
	KindBinding
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindBinding:
		return "binding"
	default:
		return "unknown"
	}
}

// Value is a parameter value: a scalar, an ordered list of strings, or the
// ensemble binding placeholder.
//
// Scalars keep their literal text. "0.50" stays "0.50" on the command line
// instead of being reformatted by a float round-trip.
type Value struct {
	kind  Kind
	text  string
	items []string
}

// NewString returns a string scalar.
func NewString(s string) Value { return Value{kind: KindString, text: s} }

// NewNumber returns a numeric scalar from its literal text.
func NewNumber(text string) Value { return Value{kind: KindNumber, text: text} }

// NewInt returns a numeric scalar for n.
func NewInt(n int) Value { return NewNumber(strconv.Itoa(n)) }

// NewBool returns a boolean scalar from its literal text ("true", "False", ...).
func NewBool(text string) Value { return Value{kind: KindBool, text: text} }

// NewList returns a list value. A nil or empty list renders as nothing.
func NewList(items ...string) Value {
	return Value{kind: KindList, items: slices.Clone(items)}
}

// NewBinding returns the ensemble binding placeholder. token is substituted by
// the scheduler with the task-array index at execution time, e.g.
// "$SLURM_ARRAY_TASK_ID".
func NewBinding(token string) Value { return Value{kind: KindBinding, text: token} }

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsList reports whether v is a list.
func (v Value) IsList() bool { return v.kind == KindList }

// IsBinding reports whether v is the ensemble binding placeholder.
func (v Value) IsBinding() bool { return v.kind == KindBinding }

// Text returns the stringified scalar. Bindings return their token and lists
// return their items joined by a single space.
func (v Value) Text() string {
	if v.kind == KindList {
		return strings.Join(v.items, " ")
	}
	return v.text
}

// Items returns a copy of the list items, or nil for non-list values.
func (v Value) Items() []string {
	if v.kind != KindList {
		return nil
	}
	return slices.Clone(v.items)
}

// Equal reports whether two values hold the same variant and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if v.kind == KindList {
		return slices.Equal(v.items, o.items)
	}
	return v.text == o.text
}

func (v Value) String() string {
	switch v.kind {
	case KindList:
		return "[" + strings.Join(v.items, ",") + "]"
	case KindBinding:
		return "<binding " + v.text + ">"
	default:
		return v.text
	}
}
