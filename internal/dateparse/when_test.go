package dateparse

import (
	"strings"
	"testing"
	"time"
)

func TestWhenRelativeExpression(t *testing.T) {
	t.Parallel()
	ref := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	text := "call mom in 2 hours"

	got, err := NewWhen().Parse(text, ref)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	oc := got[0]
	if want := ref.Add(2 * time.Hour); !oc.At.Equal(want) {
		t.Fatalf("At = %v, want %v", oc.At, want)
	}
	if !strings.Contains(oc.Text, "in 2 hours") {
		t.Fatalf("Text = %q", oc.Text)
	}
	if prefix := strings.TrimSpace(text[:oc.Index]); prefix != "call mom" {
		t.Fatalf("prefix = %q", prefix)
	}
}

func TestWhenDateAndTime(t *testing.T) {
	t.Parallel()
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := NewWhen().Parse("grocery tomorrow at 5pm", ref)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if want := time.Date(2024, 1, 2, 17, 0, 0, 0, time.UTC); !got[0].At.Equal(want) {
		t.Fatalf("At = %v, want %v", got[0].At, want)
	}
}

func TestWhenNoExpression(t *testing.T) {
	t.Parallel()
	got, err := NewWhen().Parse("buy milk", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no occurrences, got %+v", got)
	}
}

func TestForward(t *testing.T) {
	t.Parallel()
	ref := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{name: "future unchanged", in: ref.Add(time.Hour), want: ref.Add(time.Hour)},
		{name: "equal unchanged", in: ref, want: ref},
		{name: "earlier today", in: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), want: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)},
		{name: "days ago unchanged", in: ref.Add(-72 * time.Hour), want: ref.Add(-72 * time.Hour)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Forward(tt.in, ref); !got.Equal(tt.want) {
				t.Fatalf("Forward(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWhenIncludesConnector(t *testing.T) {
	t.Parallel()
	// Monday.
	ref := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in     string
		text   string
		prefix string
		at     time.Time
	}{
		{in: "workout at 6:30pm", text: "at 6:30pm", prefix: "workout", at: time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC)},
		{in: "take medicine at 8pm", text: "at 8pm", prefix: "take medicine", at: time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)},
		{in: "lunch at 17:00", text: "at 17:00", prefix: "lunch", at: time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC)},
		{in: "meeting on friday at 9am", text: "on friday at 9am", prefix: "meeting", at: time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)},
		{in: "pay invoice by friday", text: "by friday", prefix: "pay invoice", at: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{in: "grocery tomorrow at 5pm", text: "tomorrow at 5pm", prefix: "grocery", at: time.Date(2024, 1, 2, 17, 0, 0, 0, time.UTC)},
	}
	p := NewWhen()
	for _, tt := range tests {
		got, err := p.Parse(tt.in, ref)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.in, err)
		}
		if len(got) != 1 {
			t.Fatalf("Parse(%q): len = %d, want 1", tt.in, len(got))
		}
		oc := got[0]
		if oc.Text != tt.text {
			t.Fatalf("Parse(%q): Text = %q, want %q", tt.in, oc.Text, tt.text)
		}
		if tt.in[oc.Index:oc.Index+len(oc.Text)] != oc.Text {
			t.Fatalf("Parse(%q): Index %d does not point at %q", tt.in, oc.Index, oc.Text)
		}
		if prefix := strings.TrimSpace(tt.in[:oc.Index]); prefix != tt.prefix {
			t.Fatalf("Parse(%q): prefix = %q, want %q", tt.in, prefix, tt.prefix)
		}
		if !oc.At.Equal(tt.at) {
			t.Fatalf("Parse(%q): At = %v, want %v", tt.in, oc.At, tt.at)
		}
	}
}

func TestWiden(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text      string
		index     int
		matched   string
		wantIndex int
		wantText  string
	}{
		{text: "gym at 5pm", index: 7, matched: "5pm", wantIndex: 4, wantText: "at 5pm"},
		{text: "at 5pm", index: 3, matched: "5pm", wantIndex: 0, wantText: "at 5pm"},
		{text: "BY noon", index: 3, matched: "noon", wantIndex: 0, wantText: "BY noon"},
		{text: "chat 5pm", index: 5, matched: "5pm", wantIndex: 5, wantText: "5pm"},
		{text: "5pm gym", index: 0, matched: "5pm", wantIndex: 0, wantText: "5pm"},
	}
	for _, tt := range tests {
		i, s := widen(tt.text, tt.index, tt.matched)
		if i != tt.wantIndex || s != tt.wantText {
			t.Fatalf("widen(%q, %d) = (%d, %q), want (%d, %q)", tt.text, tt.index, i, s, tt.wantIndex, tt.wantText)
		}
	}
}

func TestWhenNextPeriod(t *testing.T) {
	t.Parallel()
	ref := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		text string
		at   time.Time
	}{
		{in: "review next week at 9am", text: "next week at 9am", at: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)},
		{in: "review next week", text: "next week", at: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{in: "rent next month", text: "next month", at: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)},
		{in: "taxes next year", text: "next year", at: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
	p := NewWhen()
	for _, tt := range tests {
		got, err := p.Parse(tt.in, ref)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.in, err)
		}
		if len(got) != 1 {
			t.Fatalf("Parse(%q): len = %d, want 1", tt.in, len(got))
		}
		if got[0].Text != tt.text {
			t.Fatalf("Parse(%q): Text = %q, want %q", tt.in, got[0].Text, tt.text)
		}
		if !got[0].At.Equal(tt.at) {
			t.Fatalf("Parse(%q): At = %v, want %v", tt.in, got[0].At, tt.at)
		}
	}
}
