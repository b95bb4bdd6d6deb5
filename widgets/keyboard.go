package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"keybridge/midi"
	"keybridge/theme"
)

// KeyboardState is what the keyboard widget highlights
type KeyboardState struct {
	Low, High int
	Pressed   []int // keys held down
	Targets   []int // keys the player is expected to hit
}

// RenderKeyboard draws one column per semitone from Low to High: black keys
// on the top row, white keys on the bottom row and octave labels under each C.
func RenderKeyboard(th *theme.Theme, ks KeyboardState) string {
	if ks.High < ks.Low {
		return ""
	}
	pressed := set(ks.Pressed)
	targets := set(ks.Targets)

	idle := lipgloss.NewStyle().Foreground(th.FG())
	down := lipgloss.NewStyle().Foreground(th.Active())
	want := lipgloss.NewStyle().Foreground(th.Cursor())
	label := lipgloss.NewStyle().Foreground(th.Muted())

	var top, bottom strings.Builder
	labels := []rune(strings.Repeat(" ", ks.High-ks.Low+1))

	for n := ks.Low; n <= ks.High; n++ {
		cell := th.Symbols.WhiteKey
		if midi.IsBlackKey(n) {
			cell = th.Symbols.BlackKey
		}
		style := idle
		switch {
		case pressed[n]:
			cell = th.Symbols.PressedKey
			style = down
		case targets[n]:
			style = want
		}

		if midi.IsBlackKey(n) {
			top.WriteString(style.Render(string(cell)))
			bottom.WriteString(" ")
		} else {
			top.WriteString(" ")
			bottom.WriteString(style.Render(string(cell)))
		}

		if n%12 == 0 {
			name := []rune(midi.NoteName(n))
			for i, r := range name {
				if pos := n - ks.Low + i; pos < len(labels) {
					labels[pos] = r
				}
			}
		}
	}

	return strings.Join([]string{
		top.String(),
		bottom.String(),
		label.Render(string(labels)),
	}, "\n")
}

func set(notes []int) map[int]bool {
	m := make(map[int]bool, len(notes))
	for _, n := range notes {
		m[n] = true
	}
	return m
}
