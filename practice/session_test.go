package practice

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"keybridge/midi"
	"keybridge/sequencer"
)

func noteOn(note uint8, delta time.Duration) midi.NoteEvent {
	return midi.NoteEvent{Note: note, Velocity: 100, Kind: midi.NoteOn, Delta: delta}
}

func noteOff(note uint8, delta time.Duration) midi.NoteEvent {
	return midi.NoteEvent{Note: note, Kind: midi.NoteOff, Delta: delta}
}

func song(events ...midi.NoteEvent) *sequencer.Sequence {
	seq := &sequencer.Sequence{Name: "test", Events: events}
	for _, ev := range events {
		seq.Length += ev.Delta
	}
	return seq
}

func newSession(t *testing.T, seq *sequencer.Sequence) *Session {
	t.Helper()
	s := NewSession(Options{Low: 48, High: 83, Window: 500 * time.Millisecond, Tick: 20 * time.Millisecond})
	if err := s.Load(seq); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func stepUntil(s *Session, cursor time.Duration, limit int) {
	for i := 0; i < limit && s.Cursor() < cursor; i++ {
		s.Step()
	}
}

func TestGatingWaitsForInput(t *testing.T) {
	s := newSession(t, song(noteOn(60, 2*time.Second), noteOff(60, 100*time.Millisecond)))
	if !s.Start() {
		t.Fatalf("Start failed")
	}

	stepUntil(s, 2*time.Second, 1000)
	if s.Cursor() != 2*time.Second {
		t.Fatalf("cursor = %s, want 2s", s.Cursor())
	}

	for i := 0; i < 10; i++ {
		if s.Step() {
			t.Fatalf("cursor advanced past an unhit note")
		}
	}
	if s.Cursor() != 2*time.Second {
		t.Fatalf("cursor moved to %s while blocked", s.Cursor())
	}
	if b := s.Blocking(); len(b) != 1 || b[0].Note != 60 {
		t.Fatalf("Blocking() = %v", b)
	}

	s.HandleEvent(noteOn(61, 0))
	if s.Step() {
		t.Fatalf("wrong note unblocked the cursor")
	}

	s.HandleEvent(noteOn(60, 0))
	if !s.Complete() && !s.Step() {
		t.Fatalf("cursor still blocked after hit")
	}
}

func TestNoteBlocksOnlyInsideWindow(t *testing.T) {
	s := newSession(t, song(noteOn(60, time.Second)))
	s.Start()

	// notes ahead of the cursor never block
	if !s.Step() {
		t.Fatalf("cursor blocked by a future note")
	}
	stepUntil(s, time.Second, 1000)
	if len(s.Blocking()) != 1 {
		t.Fatalf("note at the cursor should block")
	}
}

func TestCompletionFiresOnce(t *testing.T) {
	var completions atomic.Int32
	s := NewSession(Options{OnComplete: func() { completions.Add(1) }})
	s.Load(song(noteOn(60, 0), noteOn(64, 40*time.Millisecond)))
	s.Start()

	s.HandleEvent(noteOn(60, 0))
	stepUntil(s, 40*time.Millisecond, 100)
	s.HandleEvent(noteOn(64, 0))
	for i := 0; i < 5; i++ {
		s.Step()
	}

	if !s.Complete() || s.Running() {
		t.Fatalf("complete=%v running=%v", s.Complete(), s.Running())
	}
	if completions.Load() != 1 {
		t.Fatalf("OnComplete fired %d times", completions.Load())
	}
	if s.Start() {
		t.Fatalf("Start after completion should require Restart")
	}
	if snap := s.Snapshot(); snap.Status != "Song finished!" || snap.Hits != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestHitMarksFirstMatchOnly(t *testing.T) {
	// two C4s at the same moment
	s := newSession(t, song(noteOn(60, 100*time.Millisecond), noteOn(60, 0)))
	s.Start()
	stepUntil(s, 100*time.Millisecond, 100)

	if len(s.Blocking()) != 2 {
		t.Fatalf("expected both notes blocking, got %v", s.Blocking())
	}
	s.HandleEvent(noteOn(60, 0))
	notes := s.Notes()
	if !notes[0].Hit || notes[1].Hit {
		t.Fatalf("one key press must mark one note: %+v", notes)
	}
	s.HandleEvent(noteOn(60, 0))
	if !s.Notes()[1].Hit {
		t.Fatalf("second press should mark the second note")
	}
}

func TestRestartKeepsNotes(t *testing.T) {
	s := newSession(t, song(noteOn(60, 0), noteOn(62, 100*time.Millisecond), noteOn(64, 100*time.Millisecond)))
	before := s.Notes()

	s.Start()
	s.HandleEvent(noteOn(60, 0))
	stepUntil(s, 100*time.Millisecond, 100)
	s.HandleEvent(noteOn(62, 0))
	s.Step()
	s.Step()

	s.Restart()
	if s.Cursor() != 0 || s.Running() || s.Complete() {
		t.Fatalf("restart left cursor=%s running=%v complete=%v", s.Cursor(), s.Running(), s.Complete())
	}
	after := s.Notes()
	if len(after) != len(before) {
		t.Fatalf("note list changed length: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i] != before[i] {
			t.Fatalf("note %d changed: %+v -> %+v", i, before[i], after[i])
		}
		if after[i].Hit {
			t.Fatalf("note %d still hit after restart", i)
		}
	}
}

func TestLoadTransposesAndDiscards(t *testing.T) {
	// a wide song: two octaves of melody plus one note far below
	events := []midi.NoteEvent{noteOn(20, 0)}
	for n := uint8(72); n <= 107; n++ {
		events = append(events, noteOn(n, 50*time.Millisecond))
	}
	s := newSession(t, song(events...))

	tr := s.Transposition()
	if tr.Offset != -24 || tr.Total != 37 {
		t.Fatalf("transposition = %+v", tr)
	}
	notes := s.Notes()
	if len(notes) != 36 {
		t.Fatalf("expected 36 notes kept, got %d", len(notes))
	}
	for _, n := range notes {
		if n.Note < 48 || n.Note > 83 {
			t.Fatalf("note %d out of range kept", n.Note)
		}
	}
	if notes[0].Note != 48 || notes[0].At != 50*time.Millisecond {
		t.Fatalf("first note = %+v", notes[0])
	}
}

func TestEmptySongNeverStarts(t *testing.T) {
	s := newSession(t, song(noteOff(60, time.Second)))
	if s.Start() {
		t.Fatalf("Start should fail without playable notes")
	}
	if s.Step() || s.Complete() {
		t.Fatalf("empty session must not advance or complete")
	}

	var unloaded = NewSession(Options{})
	if unloaded.Start() {
		t.Fatalf("Start without a song should fail")
	}
	if err := unloaded.Load(nil); err != ErrNotLoaded {
		t.Fatalf("Load(nil) = %v", err)
	}
}

func TestPauseStopsCursor(t *testing.T) {
	s := newSession(t, song(noteOn(60, time.Second)))
	s.Start()
	s.Step()
	if s.Toggle() {
		t.Fatalf("Toggle should pause a running session")
	}
	at := s.Cursor()
	s.Step()
	if s.Cursor() != at {
		t.Fatalf("paused session advanced")
	}
	if snap := s.Snapshot(); snap.Status != "Paused" {
		t.Fatalf("status = %q", snap.Status)
	}
	if !s.Toggle() {
		t.Fatalf("Toggle should resume")
	}
}

func TestSnapshotTracksPressedKeys(t *testing.T) {
	s := newSession(t, song(noteOn(60, 2*time.Second), noteOn(62, 5*time.Second)))
	s.HandleEvent(noteOn(64, 0))
	s.HandleEvent(noteOn(67, 0))
	s.HandleEvent(noteOff(64, 0))
	s.HandleEvent(midi.NoteEvent{Note: 67, Kind: midi.NoteOn, Velocity: 0})
	s.HandleEvent(noteOn(48, 0))

	snap := s.Snapshot()
	if len(snap.Pressed) != 1 || snap.Pressed[0] != 48 {
		t.Fatalf("Pressed = %v", snap.Pressed)
	}
	// lookahead defaults to 4s, so only the first note is visible at 0
	if len(snap.Visible) != 1 || snap.Visible[0].Note != 60 {
		t.Fatalf("Visible = %v", snap.Visible)
	}
	if snap.Status != "Loaded 2 notes" {
		t.Fatalf("Status = %q", snap.Status)
	}
}

func TestRunStepsUntilCancelled(t *testing.T) {
	s := NewSession(Options{Tick: time.Millisecond})
	s.Load(song(noteOn(60, time.Hour)))
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.Cursor() == 0 {
		select {
		case <-deadline:
			t.Fatalf("Run never stepped")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run ignored cancellation")
	}
}

func TestTickLongerThanWindowFallsBack(t *testing.T) {
	s := NewSession(Options{Low: 48, High: 83, Window: 500 * time.Millisecond, Tick: 600 * time.Millisecond})
	if err := s.Load(song(noteOn(60, 50*time.Millisecond))); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Start()

	for i := 0; i < 100; i++ {
		s.Step()
	}
	if b := s.Blocking(); len(b) != 1 || b[0].Note != 60 {
		t.Fatalf("note stepped over: cursor=%s blocking=%v", s.Cursor(), b)
	}

	s.HandleEvent(noteOn(60, 0))
	s.Step()
	if !s.Complete() {
		t.Fatalf("session did not complete after the only note was hit")
	}
}
