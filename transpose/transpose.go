// Package transpose finds the pitch shift that fits a melody onto the keys
// that can actually be played.
package transpose

import "fmt"

// Search bounds, two octaves either way
const (
	MinOffset = -24
	MaxOffset = 24
)

// Result of a transposition search
type Result struct {
	Offset  int // semitones added to every note
	Matches int // notes playable after the shift
	Total   int // notes considered
}

// String renders the offset for display ("+3", "-2", "0")
func (r Result) String() string {
	if r.Offset > 0 {
		return fmt.Sprintf("+%d", r.Offset)
	}
	return fmt.Sprintf("%d", r.Offset)
}

// Apply shifts a note by the offset
func (r Result) Apply(note int) int {
	return note + r.Offset
}

// Resolve scans offsets from MinOffset to MaxOffset and keeps the first one
// with strictly more acceptable notes than the best so far. The scan starts
// from the untransposed count, so a song that already fits is left alone;
// among other ties the lower offset wins. Empty input yields the zero Result.
func Resolve(notes []int, acceptable func(int) bool) Result {
	best := Result{Total: len(notes)}
	if len(notes) == 0 || acceptable == nil {
		return best
	}

	best.Matches = count(notes, 0, acceptable)
	for offset := MinOffset; offset <= MaxOffset; offset++ {
		if c := count(notes, offset, acceptable); c > best.Matches {
			best.Offset = offset
			best.Matches = c
		}
	}
	return best
}

func count(notes []int, offset int, acceptable func(int) bool) int {
	n := 0
	for _, note := range notes {
		if acceptable(note + offset) {
			n++
		}
	}
	return n
}

// InRange returns a predicate accepting notes in [low, high]
func InRange(low, high int) func(int) bool {
	return func(n int) bool {
		return n >= low && n <= high
	}
}
