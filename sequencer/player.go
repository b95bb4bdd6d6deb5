package sequencer

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"keybridge/config"
	"keybridge/debug"
	"keybridge/keys"
	"keybridge/transpose"

	"github.com/charmbracelet/log"
)

// Progress callbacks are throttled to this much song time
const infoInterval = 500 * time.Millisecond

var (
	// ErrNoNotes is reported when a sequence has nothing to play
	ErrNoNotes = errors.New("no notes to play")
	// ErrBadSpeed is returned by SetSpeed for non-positive values
	ErrBadSpeed = errors.New("speed must be positive")
)

// Sleeper waits for d and returns false if cancel closed first
type Sleeper func(cancel <-chan struct{}, d time.Duration) bool

// Options configure a Player. Keyer is required.
type Options struct {
	Keyer  keys.Keyer
	Store  *config.Store // mapping, speed and countdown, snapshotted per run
	Logger *log.Logger

	Clock func() time.Time
	Sleep Sleeper

	OnProgress func(status string)
	OnInfo     func(total time.Duration, bpm float64, elapsed time.Duration)
	OnStop     func()
}

// Player replays a Sequence as keystrokes. One worker at a time; timing is
// recomputed against the wall clock before every event so scheduling
// overhead never accumulates.
type Player struct {
	opts   Options
	logger *log.Logger
	speed  atomic.Uint64 // math.Float64bits

	// startMu serializes Toggle and LoadAndPlay so a run is stopped and
	// replaced as one step
	startMu sync.Mutex

	mu     sync.Mutex
	state  State
	armed  *Sequence
	trans  transpose.Result
	cancel chan struct{}
	done   chan struct{}
}

func NewPlayer(opts Options) *Player {
	if opts.Store == nil {
		opts.Store = config.NewStore(nil, "")
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	p := &Player{opts: opts, logger: debug.Or(opts.Logger).WithPrefix("player")}
	p.speed.Store(math.Float64bits(opts.Store.Snapshot().Player.Speed))
	return p
}

// SetSpeed changes the tempo multiplier, taking effect at the next event
func (p *Player) SetSpeed(speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("%w: %v", ErrBadSpeed, speed)
	}
	p.speed.Store(math.Float64bits(speed))
	return nil
}

func (p *Player) Speed() float64 {
	return math.Float64frombits(p.speed.Load())
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Transposition returns the offset chosen for the last run
func (p *Player) Transposition() transpose.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trans
}

// Arm selects the sequence Toggle plays
func (p *Player) Arm(seq *Sequence) {
	p.mu.Lock()
	p.armed = seq
	p.mu.Unlock()
}

func (p *Player) Armed() *Sequence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed
}

// Active reports whether a run has been started and not yet finished
func (p *Player) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Toggle stops an active run, or plays the armed sequence
func (p *Player) Toggle() error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	if p.Active() {
		p.Stop()
		return nil
	}
	seq := p.Armed()
	if seq == nil {
		return errors.New("nothing armed")
	}
	return p.loadAndPlay(seq)
}

// LoadAndPlay stops any current run, waits for its worker to exit, then
// starts playing seq.
func (p *Player) LoadAndPlay(seq *Sequence) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	return p.loadAndPlay(seq)
}

func (p *Player) loadAndPlay(seq *Sequence) error {
	if seq == nil {
		return errors.New("nil sequence")
	}
	p.Stop()

	snap := p.opts.Store.Snapshot()
	mapping, errs := snap.Mapping()
	for _, err := range errs {
		p.logger.Warn("mapping entry skipped", "err", err)
	}

	p.mu.Lock()
	p.state = Idle
	p.armed = seq
	p.cancel = make(chan struct{})
	p.done = make(chan struct{})
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	p.logger.Info("loading", "song", seq.Name, "events", len(seq.Events))
	go p.run(seq, mapping, snap.Player, cancel, done)
	return nil
}

// Stop cancels the current run and waits for the worker. No-op when idle
// or already stopped.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	close(cancel)
	<-done
}

// Wait blocks until the current run ends
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Player) run(seq *Sequence, mapping keys.Mapping, settings config.PlayerConfig, cancel chan struct{}, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("playback panic", "panic", r)
			p.progress(fmt.Sprintf("Error: %v", r))
		}
		p.mu.Lock()
		p.state = Stopped
		if p.cancel == cancel {
			p.cancel = nil
		}
		p.mu.Unlock()

		p.logger.Info("stopped", "song", seq.Name)
		if p.opts.OnStop != nil {
			p.opts.OnStop()
		}
	}()

	bpm := seq.BPM()
	total := seq.Duration()
	p.info(total, bpm, 0)

	notes := seq.NoteOns()
	res := transpose.Resolve(notes, mapping.Has)
	p.mu.Lock()
	p.trans = res
	p.mu.Unlock()

	if len(notes) == 0 {
		p.logger.Warn("nothing to play", "song", seq.Name, "err", ErrNoNotes)
		p.progress("No notes in file")
		return
	}
	p.logger.Info("transposed", "offset", res.String(), "matches", res.Matches, "total", res.Total)

	p.setState(CountingDown)
	for i := settings.Countdown; i > 0; i-- {
		if cancelled(cancel) {
			return
		}
		p.progress(fmt.Sprintf("Starting in %d...", i))
		if !p.opts.Sleep(cancel, settings.CountdownInterval()) {
			return
		}
	}
	if cancelled(cancel) {
		return
	}

	p.setState(Playing)
	p.progress("Playing...")

	start := p.opts.Clock()
	var input, lastInfo time.Duration
	for _, ev := range seq.Events {
		if cancelled(cancel) {
			return
		}

		input += ev.Delta
		speed := p.Speed()
		elapsed := p.opts.Clock().Sub(start)
		wait := time.Duration((float64(input) - float64(elapsed)*speed) / speed)
		if wait > 0 && !p.opts.Sleep(cancel, wait) {
			return
		}

		if input-lastInfo > infoInterval {
			p.info(total, bpm, input)
			lastInfo = input
		}

		if !ev.IsNoteOn() {
			continue
		}
		action, ok := mapping.Lookup(res.Apply(int(ev.Note)))
		if !ok {
			continue
		}
		if err := p.opts.Keyer.Tap(action); err != nil {
			p.logger.Warn("key error", "note", ev.Note, "key", action, "err", err)
		}
	}

	p.info(total, bpm, input)
	p.progress("Finished")
}

func (p *Player) progress(status string) {
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(status)
	}
}

func (p *Player) info(total time.Duration, bpm float64, elapsed time.Duration) {
	if p.opts.OnInfo != nil {
		p.opts.OnInfo(total, bpm, elapsed)
	}
}

func cancelled(cancel <-chan struct{}) bool {
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

func sleep(cancel <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-cancel:
		return false
	case <-timer.C:
		return true
	}
}
