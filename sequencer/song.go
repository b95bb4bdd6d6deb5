package sequencer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"keybridge/midi"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultBPM applies until the first tempo event, and to files without one
const DefaultBPM = 120.0

var (
	// ErrParse wraps any failure to read a Standard MIDI File
	ErrParse = errors.New("cannot parse midi file")
	// ErrUnsupportedFormat is returned for SMPTE-timed files
	ErrUnsupportedFormat = errors.New("unsupported midi time format")
)

// Tempo is a tempo change
type Tempo struct {
	At  time.Duration // from the start of the song
	BPM float64
}

// Sequence is a song flattened into a single timed note stream
type Sequence struct {
	Name   string
	Events []midi.NoteEvent // note events in play order, Delta from the previous one
	Tempos []Tempo          // tempo changes in file order (track by track)
	Length time.Duration    // time of the last event of any kind
}

// BPM returns the first tempo found in file order, or DefaultBPM
func (s *Sequence) BPM() float64 {
	if len(s.Tempos) > 0 {
		return s.Tempos[0].BPM
	}
	return DefaultBPM
}

// Duration is the total song length
func (s *Sequence) Duration() time.Duration {
	return s.Length
}

// NoteOns returns the note value of every sounding note-on
func (s *Sequence) NoteOns() []int {
	var notes []int
	for _, ev := range s.Events {
		if ev.IsNoteOn() {
			notes = append(notes, int(ev.Note))
		}
	}
	return notes
}

// Load reads a .mid file from disk
func Load(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer f.Close()

	seq, err := Read(f)
	if err != nil {
		return nil, err
	}
	seq.Name = filepath.Base(path)
	return seq, nil
}

// raw is one event placed on the merged timeline
type raw struct {
	tick  uint64
	track int
	order int
	tempo int // index into Sequence.Tempos, -1 for other events
	msg   smf.Message
}

// Read parses a Standard MIDI File. All tracks are merged by absolute tick
// (lower track first on ties) and the tempo map of every track is applied
// to the merged stream.
func Read(r io.Reader) (*Sequence, error) {
	file, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	ticks, ok := file.TimeFormat.(smf.MetricTicks)
	if !ok || ticks.Resolution() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, file.TimeFormat)
	}
	resolution := float64(ticks.Resolution())

	seq := &Sequence{}
	var timeline []raw
	for ti, track := range file.Tracks {
		var abs uint64
		for ei, ev := range track {
			abs += uint64(ev.Delta)
			item := raw{tick: abs, track: ti, order: ei, tempo: -1, msg: ev.Message}

			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				// At is filled in once the merged timeline is known
				item.tempo = len(seq.Tempos)
				seq.Tempos = append(seq.Tempos, Tempo{BPM: bpm})
			}
			timeline = append(timeline, item)
		}
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		a, b := timeline[i], timeline[j]
		if a.tick != b.tick {
			return a.tick < b.tick
		}
		if a.track != b.track {
			return a.track < b.track
		}
		return a.order < b.order
	})

	// tempo segments: time at segStart plus ticks since, at the current bpm
	var (
		segTick  uint64
		segTime  time.Duration
		bpm      = DefaultBPM
		lastNote time.Duration
	)
	at := func(tick uint64) time.Duration {
		return segTime + time.Duration(float64(tick-segTick)*60*float64(time.Second)/(bpm*resolution))
	}

	for _, ev := range timeline {
		now := at(ev.tick)
		seq.Length = now

		if ev.tempo >= 0 {
			segTick, segTime, bpm = ev.tick, now, seq.Tempos[ev.tempo].BPM
			seq.Tempos[ev.tempo].At = now
			continue
		}

		note, ok := noteEvent(ev.msg)
		if !ok {
			continue
		}
		note.Delta = now - lastNote
		lastNote = now
		seq.Events = append(seq.Events, note)
	}

	return seq, nil
}

func noteEvent(m smf.Message) (midi.NoteEvent, bool) {
	msg := gomidi.Message(m)
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		return midi.NoteEvent{Note: key, Velocity: velocity, Channel: channel, Kind: midi.NoteOn}, true
	case msg.GetNoteOff(&channel, &key, &velocity):
		return midi.NoteEvent{Note: key, Velocity: velocity, Channel: channel, Kind: midi.NoteOff}, true
	}
	return midi.NoteEvent{}, false
}
