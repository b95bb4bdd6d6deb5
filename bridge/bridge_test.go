package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"keybridge/config"
	"keybridge/keys"
	"keybridge/midi"
)

type fakeDevice struct {
	name   string
	events chan midi.NoteEvent
	closed atomic.Bool
}

func newFakeDevice(buffer int) *fakeDevice {
	return &fakeDevice{name: "Fake Piano", events: make(chan midi.NoteEvent, buffer)}
}

func (d *fakeDevice) Name() string { return d.name }

// Pending drains without blocking; a closed channel reads as an unplugged device
func (d *fakeDevice) Pending() ([]midi.NoteEvent, error) {
	var out []midi.NoteEvent
	for {
		select {
		case ev, ok := <-d.events:
			if !ok {
				if len(out) > 0 {
					return out, nil
				}
				return nil, midi.ErrDeviceGone
			}
			out = append(out, ev)
		default:
			return out, nil
		}
	}
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeOpener struct {
	dev   *fakeDevice
	err   error
	opens atomic.Int32
}

func (o *fakeOpener) Open(name string) (midi.Device, error) {
	o.opens.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return o.dev, nil
}

type recorder struct {
	mu      sync.Mutex
	errs    []error
	events  []midi.NoteEvent
	stopped chan struct{}
}

func newRecorder() *recorder {
	return &recorder{stopped: make(chan struct{}, 4)}
}

// waitStop expects exactly one OnStop call
func (r *recorder) waitStop(t *testing.T) {
	t.Helper()
	select {
	case <-r.stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnStop never fired")
	}
	if len(r.stopped) != 0 {
		t.Fatalf("OnStop fired more than once")
	}
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) onStop() {
	r.stopped <- struct{}{}
}

func (r *recorder) onEvent(ev midi.NoteEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func storeWith(mapping map[string]string) *config.Store {
	cfg := config.DefaultConfig()
	cfg.NoteMapping = mapping
	return config.NewStore(cfg, "")
}

func on(note, vel uint8) midi.NoteEvent {
	return midi.NoteEvent{Note: note, Velocity: vel, Kind: midi.NoteOn}
}

func off(note uint8) midi.NoteEvent {
	return midi.NoteEvent{Note: note, Kind: midi.NoteOff}
}

func TestBridgeDispatchesAndBroadcasts(t *testing.T) {
	dev := newFakeDevice(8)
	dev.events <- on(60, 100)
	dev.events <- on(61, 100) // unmapped
	dev.events <- off(60)
	dev.events <- on(60, 0) // velocity 0 is a release
	dev.events <- on(62, 90)
	close(dev.events)

	keyer := keys.NewDryKeyer(nil)
	rec := newRecorder()
	b := New(Options{
		Opener:  &fakeOpener{dev: dev},
		Keyer:   keyer,
		Store:   storeWith(map[string]string{"60": "a", "62": "shift+s"}),
		OnError: rec.onError,
		OnStop:  rec.onStop,
	})
	b.Subscribe(rec.onEvent)

	if !b.Start("Fake Piano") {
		t.Fatalf("Start returned false")
	}
	b.Wait()

	taps := keyer.Taps()
	if len(taps) != 2 || taps[0] != "a" || taps[1] != "shift+s" {
		t.Fatalf("taps = %v, want [a shift+s]", taps)
	}
	if len(rec.events) != 5 {
		t.Fatalf("subscriber saw %d events, want 5", len(rec.events))
	}
	if !dev.closed.Load() {
		t.Fatalf("device was not closed")
	}
	if b.Running() {
		t.Fatalf("bridge still running after device loss")
	}
}

func TestBridgeReportsDeviceLossOnce(t *testing.T) {
	dev := newFakeDevice(1)
	close(dev.events)
	opener := &fakeOpener{dev: dev}
	rec := newRecorder()

	b := New(Options{Opener: opener, Keyer: keys.NewDryKeyer(nil), OnError: rec.onError, OnStop: rec.onStop})
	b.Start("Fake Piano")
	b.Wait()

	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], midi.ErrDeviceGone) {
		t.Fatalf("errors = %v, want one ErrDeviceGone", rec.errs)
	}
	rec.waitStop(t)
	if opener.opens.Load() != 1 {
		t.Fatalf("device reopened %d times, want no retry", opener.opens.Load())
	}
}

func TestBridgeOpenFailure(t *testing.T) {
	opener := &fakeOpener{err: midi.ErrDeviceNotFound}
	rec := newRecorder()
	b := New(Options{Opener: opener, Keyer: keys.NewDryKeyer(nil), OnError: rec.onError, OnStop: rec.onStop})

	b.Start("Missing")
	b.Wait()

	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], midi.ErrDeviceNotFound) {
		t.Fatalf("errors = %v", rec.errs)
	}
	if b.Running() {
		t.Fatalf("running flag not reset")
	}
	rec.waitStop(t)
}

func TestBridgeStartWhileRunning(t *testing.T) {
	dev := newFakeDevice(1)
	opener := &fakeOpener{dev: dev}
	b := New(Options{Opener: opener, Keyer: keys.NewDryKeyer(nil)})

	if !b.Start("Fake Piano") {
		t.Fatalf("first Start failed")
	}
	if b.Start("Other") {
		t.Fatalf("second Start must be refused while running")
	}
	if b.Device() != "Fake Piano" {
		t.Fatalf("refused Start changed the device to %q", b.Device())
	}

	b.Stop()
	if b.Running() {
		t.Fatalf("still running after Stop")
	}
	b.Stop()

	if !b.Start("Fake Piano") {
		t.Fatalf("restart after Stop failed")
	}
	b.Stop()
	if opener.opens.Load() != 2 {
		t.Fatalf("opens = %d, want 2", opener.opens.Load())
	}
}

func TestBridgeStopOnIdle(t *testing.T) {
	b := New(Options{Opener: &fakeOpener{}, Keyer: keys.NewDryKeyer(nil)})
	b.Stop()
	b.Wait()
	if b.Running() {
		t.Fatalf("idle bridge reports running")
	}
}

func TestBridgeSubscriberPanicIsIsolated(t *testing.T) {
	dev := newFakeDevice(4)
	dev.events <- on(60, 100)
	dev.events <- on(62, 100)
	close(dev.events)

	keyer := keys.NewDryKeyer(nil)
	b := New(Options{
		Opener: &fakeOpener{dev: dev},
		Keyer:  keyer,
		Store:  storeWith(map[string]string{"60": "a", "62": "s"}),
	})

	var after atomic.Int32
	b.Subscribe(func(midi.NoteEvent) { panic("broken view") })
	b.Subscribe(func(midi.NoteEvent) { after.Add(1) })

	b.Start("Fake Piano")
	b.Wait()

	if after.Load() != 2 {
		t.Fatalf("healthy subscriber saw %d events, want 2", after.Load())
	}
	if len(keyer.Taps()) != 2 {
		t.Fatalf("panic aborted the loop: taps %v", keyer.Taps())
	}
}

func TestBridgeUnsubscribe(t *testing.T) {
	dev := newFakeDevice(2)
	dev.events <- on(60, 100)
	close(dev.events)

	b := New(Options{Opener: &fakeOpener{dev: dev}, Keyer: keys.NewDryKeyer(nil)})
	var got atomic.Int32
	sub := b.Subscribe(func(midi.NoteEvent) { got.Add(1) })
	sub.Unsubscribe()
	sub.Unsubscribe()

	b.Start("Fake Piano")
	b.Wait()

	if got.Load() != 0 {
		t.Fatalf("unsubscribed handler was called")
	}
	if b.bus.count() != 0 {
		t.Fatalf("subscriber not removed")
	}
}

func TestBridgeMappingSnapshot(t *testing.T) {
	dev := newFakeDevice(2)
	store := storeWith(map[string]string{"60": "a"})
	keyer := keys.NewDryKeyer(nil)
	b := New(Options{Opener: &fakeOpener{dev: dev}, Keyer: keyer, Store: store})

	b.Start("Fake Piano")
	store.Update(func(c *config.Config) { c.NoteMapping["60"] = "k" })
	dev.events <- on(60, 100)
	close(dev.events)
	b.Wait()

	taps := keyer.Taps()
	if len(taps) != 1 || taps[0] != "a" {
		t.Fatalf("taps = %v, want the mapping from session start", taps)
	}
}

func TestBridgeMalformedComboDoesNotStopLoop(t *testing.T) {
	dev := newFakeDevice(4)
	dev.events <- on(60, 100)
	dev.events <- on(62, 100)
	close(dev.events)

	keyer := keys.NewDryKeyer(nil)
	b := New(Options{
		Opener: &fakeOpener{dev: dev},
		Keyer:  keyer,
		Store:  storeWith(map[string]string{"60": "shift+", "62": "s"}),
	})
	b.Start("Fake Piano")
	b.Wait()

	taps := keyer.Taps()
	if len(taps) != 1 || taps[0] != "s" {
		t.Fatalf("taps = %v, want [s]", taps)
	}
}
