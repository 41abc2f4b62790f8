// Package codec escapes and unescapes string literals for the Modelica
// scripting language spoken by the compiler.
//
// Escape and Unescape are inverses over every input:
//
//	Unescape(Escape(s)) == s
//
// The converse does not hold. Text produced by the compiler may contain
// escape sequences that Escape would never emit (for example a backslash
// followed by an unknown letter), and Unescape passes those through.
package codec

import "strings"

// escapes maps each special character to the letter following the backslash.
var escapes = map[rune]rune{
	'\\': '\\',
	'"':  '"',
	'?':  '?',
	'\a': 'a',
	'\b': 'b',
	'\f': 'f',
	'\n': 'n',
	'\r': 'r',
	'\t': 't',
	'\v': 'v',
}

// unescapes is the reverse of escapes.
var unescapes = func() map[rune]rune {
	m := make(map[rune]rune, len(escapes))
	for char, letter := range escapes {
		m[letter] = char
	}
	return m
}()

// Escape replaces each special character with its two-character escape
// sequence. All other runes are copied unchanged.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if letter, ok := escapes[r]; ok {
			b.WriteByte('\\')
			b.WriteRune(letter)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Unescape decodes escape sequences left to right.
//
// A backslash followed by a known escape letter becomes the control
// character. A backslash followed by anything else is kept together with the
// following rune. A trailing lone backslash is kept literally.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if i+1 == len(runes) {
			b.WriteRune(r)
			break
		}
		next := runes[i+1]
		if char, ok := unescapes[next]; ok {
			b.WriteRune(char)
		} else {
			b.WriteRune(r)
			b.WriteRune(next)
		}
		i++
	}
	return b.String()
}

// Quote escapes s and wraps it in double quotes, producing a string literal.
func Quote(s string) string {
	return `"` + Escape(s) + `"`
}
