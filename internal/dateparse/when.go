package dateparse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// backward matches expressions that deliberately point to the past; those are
// never moved forward.
var backward = regexp.MustCompile(`(?i)\b(ago|yesterday|last)\b`)

// connector matches a preposition right before a time expression
// ("at 5pm", "on friday", "by noon").
var connector = regexp.MustCompile(`(?i)(?:^|\s)(at|on|by)\s+$`)

// When is a Parser backed by github.com/olebedev/when with the English and
// common rule sets plus NextPeriod.
type When struct {
	w *when.Parser
}

// NewWhen returns an English When parser.
func NewWhen() *When {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	w.Add(NextPeriod())
	return &When{w: w}
}

func (p *When) Parse(text string, ref time.Time) ([]Occurrence, error) {
	r, err := p.w.Parse(text, ref)
	if err != nil {
		return nil, fmt.Errorf("dateparse: %w", err)
	}
	if r == nil {
		return nil, nil
	}
	at := r.Time
	if !backward.MatchString(r.Text) {
		at = Forward(at, ref)
	}
	index, matched := widen(text, r.Index, r.Text)
	return []Occurrence{{At: at, Text: matched, Index: index}}, nil
}

// widen extends a match leftwards over a directly preceding connector word,
// which the grammar leaves outside of hour and weekday matches.
func widen(text string, index int, matched string) (int, string) {
	if index <= 0 || index > len(text) {
		return index, matched
	}
	loc := connector.FindStringSubmatchIndex(text[:index])
	if loc == nil {
		return index, matched
	}
	return loc[2], text[loc[2]:index] + matched
}

// NextPeriod handles "next week", "next month" and "next year", which the
// English rule set only understands after a weekday ("friday next week").
// It yields to any rule that already moved the date.
func NextPeriod() rules.Rule {
	return &rules.F{
		RegExp: regexp.MustCompile(`(?i)(?:\W|^)(next\s+(?:week|month|year))(?:\W|$)`),
		Applier: func(m *rules.Match, c *rules.Context, _ *rules.Options, ref time.Time) (bool, error) {
			if c.Duration != 0 || c.Weekday != nil || c.Day != nil || c.Month != nil || c.Year != nil {
				return false, nil
			}
			switch unit := strings.Fields(strings.ToLower(m.Captures[0])); unit[len(unit)-1] {
			case "week":
				c.Duration = 7 * 24 * time.Hour
			case "month":
				month := int(ref.Month()) + 1
				c.Month = &month
			case "year":
				year := ref.Year() + 1
				c.Year = &year
			default:
				return false, nil
			}
			return true, nil
		},
	}
}

// Forward moves t to the next day when it falls less than a day before ref:
// a bare time of day that already passed today means the same time tomorrow.
// Anything further in the past is returned unchanged.
func Forward(t, ref time.Time) time.Time {
	if !t.Before(ref) {
		return t
	}
	if ref.Sub(t) < 24*time.Hour {
		return t.AddDate(0, 0, 1)
	}
	return t
}
