package omc

import (
	"strconv"
	"strings"

	"github.com/roach88/omtest/internal/codec"
)

// Arg is one argument of a scripting call, already rendered in compiler
// syntax.
type Arg interface {
	render() string
}

type literal string

func (l literal) render() string { return string(l) }

type named struct {
	name  string
	value Arg
}

func (n named) render() string { return n.name + "=" + n.value.render() }

// String renders s as a quoted, escaped string literal.
func String(s string) Arg { return literal(codec.Quote(s)) }

// Ident renders a bare class or type name such as Modelica.Blocks.
func Ident(name string) Arg { return literal(name) }

// Number renders f in the shortest form that round-trips.
func Number(f float64) Arg { return literal(strconv.FormatFloat(f, 'g', -1, 64)) }

// Int renders an integer literal.
func Int(i int) Arg { return literal(strconv.Itoa(i)) }

// Bool renders true or false.
func Bool(b bool) Arg { return literal(strconv.FormatBool(b)) }

// Strings renders a string array literal: {"a", "b"}.
func Strings(ss []string) Arg {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = codec.Quote(s)
	}
	return literal("{" + strings.Join(parts, ", ") + "}")
}

// Named renders a key=value argument. Named arguments are always placed
// after positional ones by FormatCall.
func Named(name string, value Arg) Arg { return named{name: name, value: value} }

// FormatCall renders functionName(positional, ..., key=value, ...).
// The relative order of positional and of named arguments is preserved.
func FormatCall(function string, args ...Arg) string {
	var positional, keyed []string
	for _, a := range args {
		if n, ok := a.(named); ok {
			keyed = append(keyed, n.render())
			continue
		}
		positional = append(positional, a.render())
	}
	return function + "(" + strings.Join(append(positional, keyed...), ", ") + ")"
}
