package reminder

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"skeddy/internal/dateparse"
)

var (
	reTriggerConnector = regexp.MustCompile(`(?i)^remind me (?:to |about )?`)
	reTrigger          = regexp.MustCompile(`(?i)^remind me`)
)

// Extraction is the result of splitting free text into a message and a due time.
type Extraction struct {
	Message string
	DueAt   time.Time
}

// Extractor separates the display message from the date/time expression
// embedded in free text. It keeps no state between calls.
type Extractor struct {
	parser dateparse.Parser
}

// NewExtractor returns an Extractor that finds date expressions with p.
func NewExtractor(p dateparse.Parser) *Extractor {
	return &Extractor{parser: p}
}

// Extract returns ErrNotUnderstood when text holds no date/time expression or
// when nothing but the expression is present. Parser failures are wrapped in
// ErrProcessing.
func (e *Extractor) Extract(text string, ref time.Time) (Extraction, error) {
	clean := stripTrigger(text)

	found, err := e.parser.Parse(clean, ref)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	if len(found) == 0 {
		return Extraction{}, ErrNotUnderstood
	}

	// Only the leftmost expression counts; later ones stay in the message.
	first := found[0]
	msg := deriveMessage(clean, first.Text, first.Index)
	if msg == "" {
		return Extraction{}, ErrNotUnderstood
	}
	return Extraction{Message: msg, DueAt: first.At}, nil
}

// stripTrigger removes a leading "remind me", optionally followed by "to" or
// "about". Text without the phrase is returned trimmed but otherwise unchanged.
func stripTrigger(text string) string {
	s := reTriggerConnector.ReplaceAllString(text, "")
	s = reTrigger.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// deriveMessage removes the matched date span from text. The text before the
// span wins; otherwise the text after it; otherwise the first literal
// occurrence of the match is removed wherever it is.
func deriveMessage(text, matched string, index int) string {
	index = clamp(index, 0, len(text))
	if before := strings.TrimSpace(text[:index]); before != "" {
		return before
	}
	end := clamp(index+len(matched), index, len(text))
	if after := strings.TrimSpace(text[end:]); after != "" {
		return after
	}
	return strings.TrimSpace(strings.Replace(text, matched, "", 1))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
