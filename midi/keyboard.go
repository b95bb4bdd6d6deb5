package midi

import (
	"fmt"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Queue depth per device. A human player cannot outrun this between two
// polls, so overflow only happens when nobody is polling.
const queueSize = 256

// KeyboardDevice is a MIDI keyboard input. The driver callback pushes note
// messages into a bounded queue which the owner drains with Pending.
type KeyboardDevice struct {
	name     string
	inPort   drivers.In
	stopFunc func()

	q         *queue
	closeOnce sync.Once
	closeErr  error
}

// OpenKeyboard opens the input port and starts listening
func OpenKeyboard(name string, inPort drivers.In) (*KeyboardDevice, error) {
	kb := &KeyboardDevice{
		name:   name,
		inPort: inPort,
		q:      newQueue(queueSize),
	}

	if err := inPort.Open(); err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
		if ev, ok := decode(msg); ok {
			kb.q.push(ev, timestampms)
		}
	}, gomidi.HandleError(func(listenErr error) {
		kb.q.fail(fmt.Errorf("listen %q: %w", name, listenErr))
	}))
	if err != nil {
		_ = inPort.Close()
		return nil, fmt.Errorf("listen %q: %w", name, err)
	}
	kb.stopFunc = stop

	return kb, nil
}

func (kb *KeyboardDevice) Name() string {
	return kb.name
}

func (kb *KeyboardDevice) Pending() ([]NoteEvent, error) {
	return kb.q.drain()
}

// Dropped returns how many events were discarded because the queue was full
func (kb *KeyboardDevice) Dropped() uint64 {
	return kb.q.droppedCount()
}

// markGone makes the next Pending call report ErrDeviceGone
func (kb *KeyboardDevice) markGone() {
	kb.q.fail(fmt.Errorf("%q: %w", kb.name, ErrDeviceGone))
}

// Close stops listening and releases the port. Safe to call twice.
func (kb *KeyboardDevice) Close() error {
	kb.closeOnce.Do(func() {
		if kb.stopFunc != nil {
			kb.stopFunc()
		}
		if kb.inPort != nil {
			kb.closeErr = kb.inPort.Close()
		}
	})
	return kb.closeErr
}

// decode converts a raw message into a NoteEvent. Anything that is not a
// note message is ignored.
func decode(msg gomidi.Message) (NoteEvent, bool) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		return NoteEvent{Note: key, Velocity: velocity, Channel: channel, Kind: NoteOn}, true
	case msg.GetNoteOff(&channel, &key, &velocity):
		return NoteEvent{Note: key, Velocity: velocity, Channel: channel, Kind: NoteOff}, true
	case msg.GetNoteEnd(&channel, &key):
		return NoteEvent{Note: key, Channel: channel, Kind: NoteOff}, true
	}
	return NoteEvent{}, false
}

// queue is the hand-off between the driver goroutine and the poller
type queue struct {
	mu      sync.Mutex
	events  []NoteEvent
	limit   int
	dropped uint64
	err     error

	lastTS  int32
	started bool
}

func newQueue(limit int) *queue {
	return &queue{
		events: make([]NoteEvent, 0, limit),
		limit:  limit,
	}
}

func (q *queue) push(ev NoteEvent, timestampms int32) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started && timestampms > q.lastTS {
		ev.Delta = time.Duration(timestampms-q.lastTS) * time.Millisecond
	}
	q.lastTS = timestampms
	q.started = true

	if len(q.events) >= q.limit {
		q.dropped++
		return
	}
	q.events = append(q.events, ev)
}

// fail records the first error; later errors are dropped
func (q *queue) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
}

// drain returns queued events first, then the error once the queue is empty
func (q *queue) drain() ([]NoteEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) > 0 {
		out := make([]NoteEvent, len(q.events))
		copy(out, q.events)
		q.events = q.events[:0]
		return out, nil
	}
	return nil, q.err
}

func (q *queue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
