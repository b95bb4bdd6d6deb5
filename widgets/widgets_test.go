package widgets

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"keybridge/theme"
)

func TestKeyboardLayout(t *testing.T) {
	th := theme.New(nil)
	out := RenderKeyboard(th, KeyboardState{Low: 48, High: 59, Pressed: []int{49, 52}})
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if w := lipgloss.Width(l); w != 12 {
			t.Fatalf("line %d width = %d, want 12", i, w)
		}
	}
	// one black and one white key are held
	if n := strings.Count(out, string(th.Symbols.PressedKey)); n != 2 {
		t.Fatalf("pressed cells = %d", n)
	}
	if n := strings.Count(lines[0], string(th.Symbols.BlackKey)); n != 4 {
		t.Fatalf("idle black keys = %d, want 4", n)
	}
	if !strings.Contains(lines[2], "C3") {
		t.Fatalf("missing octave label: %q", lines[2])
	}
}

func TestKeyboardEmptyRange(t *testing.T) {
	if out := RenderKeyboard(theme.New(nil), KeyboardState{Low: 60, High: 59}); out != "" {
		t.Fatalf("expected empty render, got %q", out)
	}
}

func TestLaneRows(t *testing.T) {
	l := Lane{Rows: 8, Cursor: time.Second, Lookahead: 4 * time.Second}
	tests := []struct {
		at   time.Duration
		want int
	}{
		{500 * time.Millisecond, 7},
		{time.Second, 7},
		{1250 * time.Millisecond, 7},
		{1500 * time.Millisecond, 6},
		{3 * time.Second, 3},
		{4900 * time.Millisecond, 0},
		{5 * time.Second, -1},
	}
	for _, tt := range tests {
		if got := l.Row(tt.at); got != tt.want {
			t.Fatalf("Row(%s) = %d, want %d", tt.at, got, tt.want)
		}
	}
}

func TestRenderLane(t *testing.T) {
	th := theme.New(nil)
	out := RenderLane(th, Lane{
		Low: 60, High: 71, Rows: 4, Lookahead: 4 * time.Second,
		Notes: []LaneNote{
			{Note: 60, At: 0, Waiting: true},
			{Note: 64, At: 2 * time.Second},
			{Note: 100, At: time.Second},
		},
	})
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("rows = %d", len(lines))
	}
	if !strings.Contains(lines[3], string(th.Symbols.Waiting)) {
		t.Fatalf("waiting note not on the cursor row: %q", lines[3])
	}
	if !strings.Contains(lines[1], string(th.Symbols.Note)) {
		t.Fatalf("upcoming note not drawn: %q", lines[1])
	}
	if n := strings.Count(out, string(th.Symbols.Note)); n != 1 {
		t.Fatalf("out-of-range note drawn: %d notes", n)
	}
}

func TestHelp(t *testing.T) {
	block := RenderKeyHelp([]KeySection{{Title: "Player", Keys: []KeyBinding{{"enter", "play"}}}})
	if !strings.Contains(block, "Player\n  enter") {
		t.Fatalf("help block = %q", block)
	}
}
