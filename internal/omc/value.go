package omc

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/omtest/internal/codec"
)

// Kind tags the shape of a decoded response.
type Kind int

const (
	// KindNone is an empty response ("no result").
	KindNone Kind = iota
	KindBool
	KindNumber
	KindString
	// KindIdent is a bare identifier or type path such as Real or Modelica.Blocks.
	KindIdent
	// KindList is a brace-delimited array: {a, b}.
	KindList
	// KindTuple is a parenthesized multi-value return: (a, b).
	KindTuple
	// KindRecord is a record literal: record Name a = 1, b = 2 end Name;
	KindRecord
)

var kindNames = map[Kind]string{
	KindNone:   "none",
	KindBool:   "bool",
	KindNumber: "number",
	KindString: "string",
	KindIdent:  "ident",
	KindList:   "list",
	KindTuple:  "tuple",
	KindRecord: "record",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Field is one named member of a record value.
type Field struct {
	Name  string
	Value Value
}

// Value is a decoded compiler response. Responses have different shapes per
// command, so callers decode them at the call site with the As* accessors.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	// Text holds the string contents, the identifier, or the record name.
	Text string
	// Items holds list and tuple elements.
	Items []Value
	// Fields holds record members in response order.
	Fields []Field
}

// IsNone reports whether the response was empty.
func (v Value) IsNone() bool {
	return v.Kind == KindNone
}

// AsString returns the contents of a string value.
func (v Value) AsString() (string, error) {
	if v.Kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.Text, nil
}

// AsBool returns the contents of a boolean value.
func (v Value) AsBool() (bool, error) {
	if v.Kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.Bool, nil
}

// AsNumber returns the contents of a numeric value.
func (v Value) AsNumber() (float64, error) {
	if v.Kind != KindNumber {
		return 0, v.mismatch(KindNumber)
	}
	return v.Number, nil
}

// AsStrings returns the elements of a list or tuple of strings.
func (v Value) AsStrings() ([]string, error) {
	if v.Kind != KindList && v.Kind != KindTuple {
		return nil, v.mismatch(KindList)
	}
	out := make([]string, 0, len(v.Items))
	for i, item := range v.Items {
		s, err := item.AsString()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Field returns the record member with the given name.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("expected %s response, got %s", want, v.Kind)
}

// ParseValue decodes the textual response of a compiler call.
// Blank input decodes to a KindNone value.
func ParseValue(text string) (Value, error) {
	p := &parser{src: []rune(text)}
	p.skipSpace()
	if p.eof() {
		return Value{Kind: KindNone}, nil
	}

	v, err := p.value()
	if err != nil {
		return Value{}, err
	}

	p.skipSpace()
	if !p.eof() {
		return Value{}, p.errorf("unexpected trailing input %q", string(p.src[p.pos:]))
	}
	return v, nil
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("parse response at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) expect(r rune) error {
	p.skipSpace()
	if p.peek() != r {
		return p.errorf("expected %q", r)
	}
	p.pos++
	return nil
}

func (p *parser) value() (Value, error) {
	p.skipSpace()
	if p.eof() {
		return Value{}, p.errorf("unexpected end of input")
	}

	c := p.peek()
	switch {
	case c == '"':
		s, err := p.str()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, Text: s}, nil
	case c == '{':
		items, err := p.sequence('{', '}')
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindList, Items: items}, nil
	case c == '(':
		items, err := p.sequence('(', ')')
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindTuple, Items: items}, nil
	case c == '-' || c == '+' || c == '.' || unicode.IsDigit(c):
		return p.number()
	case isIdentStart(c) || c == '\'':
		return p.word()
	}
	return Value{}, p.errorf("unexpected character %q", c)
}

// str reads a double-quoted literal and decodes its escape sequences.
func (p *parser) str() (string, error) {
	p.pos++ // opening quote
	start := p.pos
	for !p.eof() {
		switch p.src[p.pos] {
		case '\\':
			p.pos += 2
			continue
		case '"':
			raw := string(p.src[start:p.pos])
			p.pos++
			return codec.Unescape(raw), nil
		}
		p.pos++
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) sequence(open, close rune) ([]Value, error) {
	if err := p.expect(open); err != nil {
		return nil, err
	}
	items := []Value{}
	p.skipSpace()
	if p.peek() == close {
		p.pos++
		return items, nil
	}
	for {
		item, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case close:
			p.pos++
			return items, nil
		default:
			return nil, p.errorf("expected ',' or %q", close)
		}
	}
}

func (p *parser) number() (Value, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if unicode.IsDigit(c) || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			p.pos++
			continue
		}
		break
	}
	text := string(p.src[start:p.pos])
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, p.errorf("invalid number %q", text)
	}
	return Value{Kind: KindNumber, Number: f}, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ident reads a dotted name. Quoted identifiers ('a b') are kept with quotes.
func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '\'' {
			p.pos++
			for !p.eof() && p.peek() != '\'' {
				p.pos++
			}
			if !p.eof() {
				p.pos++
			}
			continue
		}
		if !isIdentPart(c) {
			break
		}
		p.pos++
	}
	return string(p.src[start:p.pos])
}

func (p *parser) word() (Value, error) {
	name := p.ident()
	switch name {
	case "true":
		return Value{Kind: KindBool, Bool: true}, nil
	case "false":
		return Value{Kind: KindBool, Bool: false}, nil
	case "record":
		return p.record()
	case "NONE":
		if p.peek() == '(' {
			if _, err := p.sequence('(', ')'); err != nil {
				return Value{}, err
			}
		}
		return Value{Kind: KindNone}, nil
	case "SOME":
		items, err := p.sequence('(', ')')
		if err != nil {
			return Value{}, err
		}
		if len(items) != 1 {
			return Value{}, p.errorf("SOME takes exactly one value, got %d", len(items))
		}
		return items[0], nil
	}

	// Function-call shaped results such as OpenModelica.Scripting.Foo(1).
	if p.peek() == '(' {
		items, err := p.sequence('(', ')')
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindIdent, Text: name, Items: items}, nil
	}
	return Value{Kind: KindIdent, Text: name}, nil
}

func (p *parser) record() (Value, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return Value{}, p.errorf("record without a name")
	}
	rec := Value{Kind: KindRecord, Text: name, Fields: []Field{}}

	for {
		p.skipSpace()
		if p.eof() {
			return Value{}, p.errorf("unterminated record %s", name)
		}
		field := p.ident()
		if field == "" {
			return Value{}, p.errorf("expected field name in record %s", name)
		}
		if field == "end" {
			p.skipSpace()
			if closing := p.ident(); closing != name {
				return Value{}, p.errorf("record %s closed by %q", name, closing)
			}
			p.skipSpace()
			if p.peek() == ';' {
				p.pos++
			}
			return rec, nil
		}

		if err := p.expect('='); err != nil {
			return Value{}, err
		}
		v, err := p.value()
		if err != nil {
			return Value{}, err
		}
		rec.Fields = append(rec.Fields, Field{Name: field, Value: v})

		p.skipSpace()
		if p.peek() == ',' {
			p.pos++
		}
	}
}

// String renders the value back in compiler syntax. Used in logs and errors.
func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindString:
		return codec.Quote(v.Text)
	case KindIdent:
		if v.Items == nil {
			return v.Text
		}
		return v.Text + joinValues("(", v.Items, ")")
	case KindList:
		return joinValues("{", v.Items, "}")
	case KindTuple:
		return joinValues("(", v.Items, ")")
	case KindRecord:
		var b strings.Builder
		b.WriteString("record ")
		b.WriteString(v.Text)
		for i, f := range v.Fields {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(" ")
			b.WriteString(f.Name)
			b.WriteString(" = ")
			b.WriteString(f.Value.String())
		}
		b.WriteString(" end ")
		b.WriteString(v.Text)
		b.WriteString(";")
		return b.String()
	}
	return ""
}

func joinValues(open string, items []Value, close string) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = item.String()
	}
	return open + strings.Join(parts, ", ") + close
}
