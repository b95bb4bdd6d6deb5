// Package practice implements the falling-notes practice mode: a virtual
// cursor walks through a song and waits at every note until the player hits
// it on the keyboard.
package practice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"keybridge/config"
	"keybridge/debug"
	"keybridge/midi"
	"keybridge/sequencer"
	"keybridge/transpose"

	"github.com/charmbracelet/log"
)

// ErrNotLoaded is returned when a session has no song
var ErrNotLoaded = errors.New("no song loaded")

// Notes this far behind the cursor still show in the lane
const trailing = time.Second

// Note is a note the player has to hit
type Note struct {
	Note int
	At   time.Duration
	Hit  bool
}

type Options struct {
	Low, High int           // playable range, inclusive
	Window    time.Duration // how long a note waits behind the cursor
	Tick      time.Duration // cursor step
	Lookahead time.Duration // visible lane ahead of the cursor
	Logger    *log.Logger

	OnComplete func()
}

// FromConfig builds options from the practice section of the config
func FromConfig(c config.PracticeConfig) Options {
	return Options{
		Low:       c.Low,
		High:      c.High,
		Window:    c.Window(),
		Tick:      c.Tick(),
		Lookahead: c.Lookahead(),
	}
}

func (o *Options) defaults() {
	def := config.DefaultConfig().Practice
	if o.Low == 0 && o.High == 0 {
		o.Low, o.High = def.Low, def.High
	}
	if o.Window <= 0 {
		o.Window = def.Window()
	}
	if o.Tick <= 0 {
		o.Tick = def.Tick()
	}
	// a tick as long as the window lets the cursor step over a note
	if o.Tick >= o.Window {
		o.Window, o.Tick = def.Window(), def.Tick()
	}
	if o.Lookahead <= 0 {
		o.Lookahead = def.Lookahead()
	}
}

// Session is one practice run over a loaded song
type Session struct {
	opts   Options
	logger *log.Logger

	mu       sync.Mutex
	name     string
	bpm      float64
	duration time.Duration
	trans    transpose.Result
	notes    []Note
	loaded   bool
	cursor   time.Duration
	running  bool
	complete bool
	pressed  map[int]bool
}

func NewSession(opts Options) *Session {
	opts.defaults()
	return &Session{
		opts:    opts,
		logger:  debug.Or(opts.Logger).WithPrefix("practice"),
		pressed: make(map[int]bool),
	}
}

// Load derives the note list from seq, transposed into the playable range.
// Notes that still fall outside the range after transposition are dropped.
func (s *Session) Load(seq *sequencer.Sequence) error {
	if seq == nil {
		return ErrNotLoaded
	}

	res := transpose.Resolve(seq.NoteOns(), transpose.InRange(s.opts.Low, s.opts.High))

	var notes []Note
	var at time.Duration
	dropped := 0
	for _, ev := range seq.Events {
		at += ev.Delta
		if !ev.IsNoteOn() {
			continue
		}
		n := res.Apply(int(ev.Note))
		if n < s.opts.Low || n > s.opts.High {
			dropped++
			continue
		}
		notes = append(notes, Note{Note: n, At: at})
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].At < notes[j].At })

	s.mu.Lock()
	s.name = seq.Name
	s.bpm = seq.BPM()
	s.duration = seq.Duration()
	s.trans = res
	s.notes = notes
	s.loaded = true
	s.resetLocked()
	s.mu.Unlock()

	s.logger.Info("loaded", "song", seq.Name, "notes", len(notes), "dropped", dropped, "transpose", res.String())
	return nil
}

// Notes returns a copy of the note list
func (s *Session) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

func (s *Session) Transposition() transpose.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trans
}

// Start resumes the cursor. It fails without a song, for a song with no
// playable notes, and after completion (Restart first).
func (s *Session) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded || len(s.notes) == 0 || s.complete {
		return false
	}
	s.running = true
	return true
}

func (s *Session) Pause() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Toggle starts or pauses and returns whether the session is now running
func (s *Session) Toggle() bool {
	if s.Running() {
		s.Pause()
		return false
	}
	return s.Start()
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

func (s *Session) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Restart rewinds to the beginning and clears every hit. The note list is
// kept as loaded.
func (s *Session) Restart() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *Session) resetLocked() {
	s.cursor = 0
	s.running = false
	s.complete = false
	for i := range s.notes {
		s.notes[i].Hit = false
	}
}

// Blocking returns the unhit notes holding the cursor
func (s *Session) Blocking() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Note
	for _, i := range s.blockingLocked() {
		out = append(out, s.notes[i])
	}
	return out
}

// blockingLocked returns indexes of unhit notes in (cursor-window, cursor]
func (s *Session) blockingLocked() []int {
	var idx []int
	low := s.cursor - s.opts.Window
	for i, n := range s.notes {
		if n.At > s.cursor {
			break
		}
		if n.At > low && !n.Hit {
			idx = append(idx, i)
		}
	}
	return idx
}

// Step advances the cursor one tick unless a note is waiting. It reports
// whether the cursor moved.
func (s *Session) Step() bool {
	s.mu.Lock()
	if !s.running || s.complete {
		s.mu.Unlock()
		return false
	}

	moved := false
	if len(s.blockingLocked()) == 0 {
		s.cursor += s.opts.Tick
		moved = true
	}

	finished := s.allHitLocked()
	if finished {
		s.running = false
		s.complete = true
	}
	s.mu.Unlock()

	if finished {
		s.logger.Info("song finished")
		if s.opts.OnComplete != nil {
			s.opts.OnComplete()
		}
	}
	return moved
}

func (s *Session) allHitLocked() bool {
	if len(s.notes) == 0 {
		return false
	}
	for _, n := range s.notes {
		if !n.Hit {
			return false
		}
	}
	return true
}

// HandleEvent takes live input. A note-on marks the first waiting note with
// the same pitch as hit; note-offs only update the pressed keys.
func (s *Session) HandleEvent(ev midi.NoteEvent) {
	note := int(ev.Note)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ev.IsNoteOn() {
		delete(s.pressed, note)
		return
	}
	s.pressed[note] = true

	if !s.running {
		return
	}
	for _, i := range s.blockingLocked() {
		if s.notes[i].Note == note {
			s.notes[i].Hit = true
			s.logger.Debug("hit", "note", midi.NoteName(note), "at", s.notes[i].At)
			return
		}
	}
}

// Run steps the session every Tick until ctx is done
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Snapshot is everything the lane view needs for one frame
type Snapshot struct {
	Name          string
	Loaded        bool
	Running       bool
	Complete      bool
	Waiting       bool
	Cursor        time.Duration
	Duration      time.Duration
	Lookahead     time.Duration
	BPM           float64
	Transposition transpose.Result
	Low, High     int
	Total, Hits   int
	Visible       []Note // unhit notes near the cursor, oldest first
	Blocking      []Note
	Pressed       []int
	Status        string
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Name:          s.name,
		Loaded:        s.loaded,
		Running:       s.running,
		Complete:      s.complete,
		Cursor:        s.cursor,
		Duration:      s.duration,
		Lookahead:     s.opts.Lookahead,
		BPM:           s.bpm,
		Transposition: s.trans,
		Low:           s.opts.Low,
		High:          s.opts.High,
		Total:         len(s.notes),
	}
	for _, n := range s.notes {
		if n.Hit {
			snap.Hits++
			continue
		}
		if n.At > s.cursor-trailing && n.At < s.cursor+s.opts.Lookahead {
			snap.Visible = append(snap.Visible, n)
		}
	}
	for _, i := range s.blockingLocked() {
		snap.Blocking = append(snap.Blocking, s.notes[i])
	}
	snap.Waiting = len(snap.Blocking) > 0
	for n := range s.pressed {
		snap.Pressed = append(snap.Pressed, n)
	}
	sort.Ints(snap.Pressed)
	snap.Status = s.statusLocked(snap.Waiting)
	return snap
}

func (s *Session) statusLocked(waiting bool) string {
	switch {
	case !s.loaded:
		return "Load a MIDI file to start practice"
	case len(s.notes) == 0:
		return "No playable notes in range"
	case s.complete:
		return "Song finished!"
	case s.running && waiting:
		return "Waiting for input"
	case s.running:
		return "Playing"
	case s.cursor == 0:
		return fmt.Sprintf("Loaded %d notes", len(s.notes))
	}
	return "Paused"
}
