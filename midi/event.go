package midi

import (
	"fmt"
	"time"
)

// Note range
const (
	MinNote = 0
	MaxNote = 127
)

// NoteKind distinguishes note-on from note-off
type NoteKind uint8

const (
	NoteOff NoteKind = iota
	NoteOn
)

func (k NoteKind) String() string {
	if k == NoteOn {
		return "on"
	}
	return "off"
}

// NoteEvent is a single note message from a device or a file.
// Delta is the time since the previous event in the same stream.
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
	Kind     NoteKind
	Delta    time.Duration
}

// IsNoteOn reports whether the event starts a note. A note-on with
// velocity 0 counts as a note-off.
func (e NoteEvent) IsNoteOn() bool {
	return e.Kind == NoteOn && e.Velocity > 0
}

func (e NoteEvent) String() string {
	return fmt.Sprintf("note_%s ch=%d note=%d vel=%d dt=%s", e.Kind, e.Channel, e.Note, e.Velocity, e.Delta)
}

// NoteName returns the scientific pitch name (60 = C4)
func NoteName(note int) string {
	names := [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	if note < MinNote || note > MaxNote {
		return fmt.Sprintf("?%d", note)
	}
	return fmt.Sprintf("%s%d", names[note%12], note/12-1)
}

// IsBlackKey reports whether the note is a sharp/flat on a piano keyboard
func IsBlackKey(note int) bool {
	switch note % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}
