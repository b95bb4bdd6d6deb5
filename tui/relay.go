package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"keybridge/midi"
)

// ProgressMsg carries a player status line
type ProgressMsg string

// InfoMsg carries player timing
type InfoMsg struct {
	Total   time.Duration
	BPM     float64
	Elapsed time.Duration
}

type PlayerStoppedMsg struct{}

type BridgeErrorMsg struct{ Err error }

type BridgeStoppedMsg struct{}

type DeviceEventMsg midi.DeviceEvent

type tickMsg time.Time

// Relay carries worker callbacks into the bubbletea loop. Sends never block:
// workers call it while the UI may be waiting on them in Stop. Progress and
// timing updates are dropped when the UI is behind; end-of-run messages are
// always delivered.
type Relay struct {
	ch chan tea.Msg
}

func NewRelay() *Relay {
	return &Relay{ch: make(chan tea.Msg, 64)}
}

// Send queues msg, dropping it when the UI is behind
func (r *Relay) Send(msg tea.Msg) {
	select {
	case r.ch <- msg:
	default:
	}
}

// sendLate queues msg, handing it to a goroutine when the buffer is full
func (r *Relay) sendLate(msg tea.Msg) {
	select {
	case r.ch <- msg:
	default:
		go func() { r.ch <- msg }()
	}
}

func (r *Relay) Progress(status string) { r.Send(ProgressMsg(status)) }

func (r *Relay) Info(total time.Duration, bpm float64, elapsed time.Duration) {
	r.Send(InfoMsg{Total: total, BPM: bpm, Elapsed: elapsed})
}

func (r *Relay) PlayerStopped() { r.sendLate(PlayerStoppedMsg{}) }

func (r *Relay) BridgeError(err error) { r.sendLate(BridgeErrorMsg{Err: err}) }

func (r *Relay) BridgeStopped() { r.sendLate(BridgeStoppedMsg{}) }

// ListenForRelay waits for the next worker message
func ListenForRelay(r *Relay) tea.Cmd {
	return func() tea.Msg {
		return <-r.ch
	}
}

func ListenForDevices(events <-chan midi.DeviceEvent) tea.Cmd {
	return func() tea.Msg {
		event := <-events
		return DeviceEventMsg(event)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
