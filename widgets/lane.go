package widgets

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"keybridge/theme"
)

// LaneNote is one note in the falling-notes lane
type LaneNote struct {
	Note    int
	At      time.Duration
	Waiting bool
}

// Lane describes one frame of the lane. The bottom row is the cursor; rows
// above it cover Lookahead of song time.
type Lane struct {
	Low, High int
	Rows      int
	Cursor    time.Duration
	Lookahead time.Duration
	Notes     []LaneNote
}

// Row returns the row a note at the given time falls on, or -1 when it is
// beyond the lookahead. Notes at or behind the cursor sit on the bottom row.
func (l Lane) Row(at time.Duration) int {
	if l.Rows <= 0 {
		return -1
	}
	ahead := at - l.Cursor
	if ahead <= 0 {
		return l.Rows - 1
	}
	if ahead >= l.Lookahead {
		return -1
	}
	steps := int(ahead * time.Duration(l.Rows) / l.Lookahead)
	return l.Rows - 1 - steps
}

// RenderLane draws the lane aligned with RenderKeyboard columns
func RenderLane(th *theme.Theme, l Lane) string {
	width := l.High - l.Low + 1
	if width <= 0 || l.Rows <= 0 {
		return ""
	}

	grid := make([][]rune, l.Rows)
	for r := range grid {
		fill := th.Symbols.Lane
		if r == l.Rows-1 {
			fill = th.Symbols.HitLine
		}
		grid[r] = []rune(strings.Repeat(string(fill), width))
	}
	waiting := make(map[[2]int]bool)

	for _, n := range l.Notes {
		col := n.Note - l.Low
		if col < 0 || col >= width {
			continue
		}
		row := l.Row(n.At)
		if row < 0 {
			continue
		}
		if n.Waiting {
			grid[row][col] = th.Symbols.Waiting
			waiting[[2]int{row, col}] = true
		} else if grid[row][col] != th.Symbols.Waiting {
			grid[row][col] = th.Symbols.Note
		}
	}

	empty := lipgloss.NewStyle().Foreground(th.Muted())
	note := lipgloss.NewStyle().Foreground(th.Accent())
	hold := lipgloss.NewStyle().Foreground(th.Warning()).Bold(true)

	lines := make([]string, l.Rows)
	for r, row := range grid {
		var b strings.Builder
		for c, cell := range row {
			switch {
			case waiting[[2]int{r, c}]:
				b.WriteString(hold.Render(string(cell)))
			case cell == th.Symbols.Note:
				b.WriteString(note.Render(string(cell)))
			default:
				b.WriteString(empty.Render(string(cell)))
			}
		}
		lines[r] = b.String()
	}
	return strings.Join(lines, "\n")
}
