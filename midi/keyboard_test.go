package midi

import (
	"errors"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestDecodeNoteMessages(t *testing.T) {
	ev, ok := decode(gomidi.NoteOn(2, 60, 100))
	if !ok {
		t.Fatalf("expected note on to decode")
	}
	if ev.Kind != NoteOn || ev.Note != 60 || ev.Velocity != 100 || ev.Channel != 2 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.IsNoteOn() {
		t.Fatalf("expected IsNoteOn")
	}

	ev, ok = decode(gomidi.NoteOff(0, 61))
	if !ok {
		t.Fatalf("expected note off to decode")
	}
	if ev.IsNoteOn() || ev.Note != 61 {
		t.Fatalf("unexpected event %+v", ev)
	}

	ev, ok = decode(gomidi.NoteOn(0, 62, 0))
	if !ok {
		t.Fatalf("expected zero-velocity note on to decode")
	}
	if ev.IsNoteOn() {
		t.Fatalf("zero-velocity note on must count as note off")
	}

	if _, ok := decode(gomidi.ControlChange(0, 64, 127)); ok {
		t.Fatalf("control change must be ignored")
	}
}

func TestQueueDrainsEverythingPending(t *testing.T) {
	q := newQueue(8)
	q.push(NoteEvent{Note: 60, Kind: NoteOn, Velocity: 90}, 100)
	q.push(NoteEvent{Note: 62, Kind: NoteOn, Velocity: 90}, 125)
	q.push(NoteEvent{Note: 60, Kind: NoteOff}, 125)

	events, err := q.drain()
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Delta != 0 {
		t.Fatalf("first event delta = %s, want 0", events[0].Delta)
	}
	if events[1].Delta != 25*time.Millisecond {
		t.Fatalf("second event delta = %s, want 25ms", events[1].Delta)
	}
	if events[2].Delta != 0 {
		t.Fatalf("simultaneous event delta = %s, want 0", events[2].Delta)
	}

	events, err = q.drain()
	if err != nil || len(events) != 0 {
		t.Fatalf("expected empty drain, got %d events err=%v", len(events), err)
	}
}

func TestQueueDropsOverflow(t *testing.T) {
	q := newQueue(2)
	for i := 0; i < 5; i++ {
		q.push(NoteEvent{Note: uint8(60 + i), Kind: NoteOn, Velocity: 1}, int32(i))
	}
	events, _ := q.drain()
	if len(events) != 2 {
		t.Fatalf("expected queue to hold 2 events, got %d", len(events))
	}
	if events[0].Note != 60 || events[1].Note != 61 {
		t.Fatalf("expected oldest events kept, got %v", events)
	}
	if q.droppedCount() != 3 {
		t.Fatalf("expected 3 drops, got %d", q.droppedCount())
	}
}

func TestQueueReportsErrorAfterEvents(t *testing.T) {
	q := newQueue(4)
	q.push(NoteEvent{Note: 60, Kind: NoteOn, Velocity: 1}, 0)
	q.fail(ErrDeviceGone)
	q.fail(errors.New("second error is ignored"))

	events, err := q.drain()
	if err != nil || len(events) != 1 {
		t.Fatalf("expected queued event before error, got %d events err=%v", len(events), err)
	}
	_, err = q.drain()
	if !errors.Is(err, ErrDeviceGone) {
		t.Fatalf("expected ErrDeviceGone, got %v", err)
	}
}

func TestMatchName(t *testing.T) {
	names := []string{"Midi Through Port-0", "Launchkey Mini MK3 MIDI 1", "USB Keyboard"}
	tests := []struct {
		filter string
		want   string
		ok     bool
	}{
		{"launchkey", "Launchkey Mini MK3 MIDI 1", true},
		{"  USB ", "USB Keyboard", true},
		{"", "", false},
		{"roland", "", false},
	}
	for _, tc := range tests {
		got, ok := MatchName(names, tc.filter)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("MatchName(%q) = %q,%v want %q,%v", tc.filter, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExcludedPorts(t *testing.T) {
	if !isExcluded("Midi Through Port-0") {
		t.Fatalf("expected through port to be excluded")
	}
	if isExcluded("Digital Piano") {
		t.Fatalf("expected regular port to be kept")
	}
}

func TestNoteNames(t *testing.T) {
	tests := map[int]string{60: "C4", 48: "C3", 61: "C#4", 83: "B5", 0: "C-1"}
	for note, want := range tests {
		if got := NoteName(note); got != want {
			t.Fatalf("NoteName(%d) = %q, want %q", note, got, want)
		}
	}
	if !IsBlackKey(61) || IsBlackKey(60) {
		t.Fatalf("black key detection is wrong")
	}
}
