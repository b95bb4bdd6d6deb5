// Package bridge turns live note input into keystrokes.
//
// A Bridge owns one polling worker per connection. The worker drains the
// device queue, taps the mapped key combo for every note-on, and hands every
// event to subscribers (the practice session, the TUI keyboard).
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"keybridge/config"
	"keybridge/debug"
	"keybridge/keys"
	"keybridge/midi"

	"github.com/charmbracelet/log"
)

// DefaultPollInterval bounds both CPU use and added latency
const DefaultPollInterval = time.Millisecond

// ErrAlreadyRunning is logged when Start is called on a listening bridge
var ErrAlreadyRunning = errors.New("bridge already running")

// Options configure a Bridge. Opener and Keyer are required.
type Options struct {
	Opener       midi.Opener
	Keyer        keys.Keyer
	Store        *config.Store // mapping and verbose flag, snapshotted on Start
	Logger       *log.Logger
	PollInterval time.Duration

	OnError func(error) // device open/read failure, once per run
	OnStop  func()      // worker exited, once per run
}

// Bridge is the live input to keystroke translator
type Bridge struct {
	opts   Options
	logger *log.Logger
	bus    bus

	mu      sync.Mutex
	running bool
	device  string
	cancel  chan struct{}
	done    chan struct{}
}

func New(opts Options) *Bridge {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Store == nil {
		opts.Store = config.NewStore(nil, "")
	}
	logger := debug.Or(opts.Logger).WithPrefix("bridge")
	b := &Bridge{opts: opts, logger: logger}
	b.bus.logger = logger
	return b
}

// Start launches the worker for the named device. It returns false, without
// touching the running worker, if the bridge is already listening.
func (b *Bridge) Start(device string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		b.logger.Warn("start ignored", "device", device, "err", ErrAlreadyRunning)
		return false
	}

	snap := b.opts.Store.Snapshot()
	mapping, errs := snap.Mapping()
	for _, err := range errs {
		b.logger.Warn("mapping entry skipped", "err", err)
	}

	b.running = true
	b.device = device
	b.cancel = make(chan struct{})
	b.done = make(chan struct{})

	go b.run(device, mapping, snap.Verbose, b.cancel, b.done)
	return true
}

// Stop signals the worker and waits for it to exit. Calling it on an idle
// bridge is a no-op. Must not be called from a subscriber.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	close(cancel)
	<-done
}

// Wait blocks until the current worker, if any, has exited
func (b *Bridge) Wait() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Device returns the name passed to the last Start
func (b *Bridge) Device() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device
}

// Subscribe registers fn for every event the worker reads, mapped or not.
// fn runs on the worker goroutine and must not block.
func (b *Bridge) Subscribe(fn func(midi.NoteEvent)) *Subscription {
	return b.bus.subscribe(fn)
}

func (b *Bridge) run(name string, mapping keys.Mapping, verbose bool, cancel chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			b.fail(fmt.Errorf("bridge worker panic: %v", r))
		}
		b.mu.Lock()
		b.running = false
		if b.cancel == cancel {
			b.cancel = nil
		}
		b.mu.Unlock()

		b.logger.Info("stopped", "device", name)
		if b.opts.OnStop != nil {
			b.opts.OnStop()
		}
	}()

	b.logger.Info("connecting", "device", name, "mapped", mapping.Len())
	dev, err := b.opts.Opener.Open(name)
	if err != nil {
		b.fail(fmt.Errorf("open %q: %w", name, err))
		return
	}
	defer dev.Close()
	b.logger.Info("connected", "device", dev.Name())

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		default:
		}

		events, err := dev.Pending()
		if err != nil {
			b.fail(fmt.Errorf("read %q: %w", name, err))
			return
		}
		for _, ev := range events {
			if ev.IsNoteOn() {
				b.dispatch(ev, mapping, verbose)
			}
			b.bus.broadcast(ev)
		}

		select {
		case <-cancel:
			return
		case <-ticker.C:
		}
	}
}

func (b *Bridge) dispatch(ev midi.NoteEvent, mapping keys.Mapping, verbose bool) {
	note := int(ev.Note)
	action, ok := mapping.Lookup(note)
	if !ok {
		if verbose {
			b.logger.Info("unmapped", "note", note, "name", midi.NoteName(note))
		}
		return
	}
	if err := b.opts.Keyer.Tap(action); err != nil {
		b.logger.Error("key error", "note", note, "key", action, "err", err)
		return
	}
	if verbose {
		b.logger.Info("mapped", "note", note, "name", midi.NoteName(note), "key", action)
	}
}

// fail reports a run-ending error through the log and OnError
func (b *Bridge) fail(err error) {
	b.logger.Error("device error", "err", err)
	if b.opts.OnError != nil {
		b.opts.OnError(err)
	}
}
