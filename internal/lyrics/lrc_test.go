package lyrics

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Run("SortedByTime", func(t *testing.T) {
		lines := Parse("[00:01.50]Hello\n[00:00.00]World")
		want := []Line{
			{Time: 0, Text: "World"},
			{Time: 1500 * time.Millisecond, Text: "Hello"},
		}
		assertLines(t, lines, want)
	})

	t.Run("MultipleTags", func(t *testing.T) {
		lines := Parse("[00:01.00][00:05.00]Same")
		want := []Line{
			{Time: time.Second, Text: "Same"},
			{Time: 5 * time.Second, Text: "Same"},
		}
		assertLines(t, lines, want)
	})

	t.Run("FractionWidths", func(t *testing.T) {
		lines := Parse("[00:01.5]a\n[00:02.25]b\n[00:03.125]c\n[00:04.98765]d\n[00:05]e")
		want := []Line{
			{Time: 1500 * time.Millisecond, Text: "a"},
			{Time: 2250 * time.Millisecond, Text: "b"},
			{Time: 3125 * time.Millisecond, Text: "c"},
			{Time: 4987 * time.Millisecond, Text: "d"},
			{Time: 5 * time.Second, Text: "e"},
		}
		assertLines(t, lines, want)
	})

	t.Run("TextAfterLastTag", func(t *testing.T) {
		lines := Parse("[01:02.00] spaced out [x] \r\n")
		want := []Line{{Time: 62 * time.Second, Text: "spaced out [x]"}}
		assertLines(t, lines, want)
	})

	t.Run("SkipsMetadataAndEmpty", func(t *testing.T) {
		blob := "{\"t\":0,\"c\":[{\"tx\":\"作词: \"}]}\n[ar:Someone]\n\n[00:10.00]\n[00:12.00]   \n[00:13.00]kept\nno tag here"
		lines := Parse(blob)
		want := []Line{{Time: 13 * time.Second, Text: "kept"}}
		assertLines(t, lines, want)
	})

	t.Run("DuplicateTimesKeepOrder", func(t *testing.T) {
		lines := Parse("[00:02.00]first\n[00:01.00]early\n[00:02.00]second")
		want := []Line{
			{Time: time.Second, Text: "early"},
			{Time: 2 * time.Second, Text: "first"},
			{Time: 2 * time.Second, Text: "second"},
		}
		assertLines(t, lines, want)
	})

	t.Run("OverflowTagSkipped", func(t *testing.T) {
		lines := Parse("[99999999999999999999:00.00][00:03.00]ok")
		want := []Line{{Time: 3 * time.Second, Text: "ok"}}
		assertLines(t, lines, want)
	})

	t.Run("DurationOverflowTagSkipped", func(t *testing.T) {
		lines := Parse("[9999999999:00]bad\n[00:9999999999999]bad\n[00:04.00]ok")
		want := []Line{{Time: 4 * time.Second, Text: "ok"}}
		assertLines(t, lines, want)
	})

	t.Run("Empty", func(t *testing.T) {
		if lines := Parse("   \n"); len(lines) != 0 {
			t.Errorf("expected no lines, got %v", lines)
		}
	})
}

func TestLineAt(t *testing.T) {
	lines := []Line{
		{Time: 0, Text: "A"},
		{Time: 3 * time.Second, Text: "B"},
	}

	tests := []struct {
		name     string
		position time.Duration
		offset   time.Duration
		lines    []Line
		want     string
	}{
		{"Between", 2 * time.Second, 0, lines, "A"},
		{"BeforeFirst", -time.Second, 0, lines, ""},
		{"Exact", 3 * time.Second, 0, lines, "B"},
		{"AfterLast", time.Hour, 0, lines, "B"},
		{"OffsetPullsForward", 1500 * time.Millisecond, 1700 * time.Millisecond, lines, "B"},
		{"EmptyLines", time.Second, 0, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LineAt(tt.position, tt.lines, tt.offset); got != tt.want {
				t.Errorf("LineAt(%v) = %q, want %q", tt.position, got, tt.want)
			}
		})
	}
}

func TestIndexAtDuplicates(t *testing.T) {
	lines := Parse("[00:01.00]a\n[00:02.00]b\n[00:02.00]c\n[00:04.00]d")
	if got := IndexAt(2*time.Second, lines, 0); got != 2 {
		t.Errorf("expected rightmost duplicate index 2, got %d", got)
	}
}

func assertLines(t *testing.T, got, want []Line) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
