// Package dateparse is the boundary to the natural-language date grammar.
//
// The reminder core only depends on Parser; the grammar itself lives behind it
// (see When for the default implementation).
package dateparse

import "time"

// Occurrence is one date/time expression found in a text.
type Occurrence struct {
	// At is the resolved absolute instant.
	At time.Time
	// Text is the matched substring of the input.
	Text string
	// Index is the byte offset of Text in the input.
	Index int
}

// Parser finds date/time expressions in text, resolving relative ones
// ("in 2 hours", "tomorrow") against ref. Results are ordered leftmost first.
//
// Implementations resolve forward: an expression without a date component that
// falls before ref is moved to its next occurrence.
type Parser interface {
	Parse(text string, ref time.Time) ([]Occurrence, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(text string, ref time.Time) ([]Occurrence, error)

func (f ParserFunc) Parse(text string, ref time.Time) ([]Occurrence, error) { return f(text, ref) }
