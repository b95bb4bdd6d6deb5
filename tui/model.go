package tui

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"keybridge/bridge"
	"keybridge/config"
	"keybridge/debug"
	"keybridge/midi"
	"keybridge/practice"
	"keybridge/sequencer"
	"keybridge/theme"
)

const (
	tickInterval = 50 * time.Millisecond

	minSpeed  = 0.1
	maxSpeed  = 2.0
	speedStep = 0.1
)

type view int

const (
	viewBridge view = iota
	viewPlayer
	viewPractice
)

func (v view) String() string {
	switch v {
	case viewBridge:
		return "Bridge"
	case viewPlayer:
		return "Player"
	case viewPractice:
		return "Practice"
	}
	return "?"
}

var views = []view{viewBridge, viewPlayer, viewPractice}

var errNoSong = errors.New("no song selected")

// Devices is the part of midi.DeviceManager the UI needs
type Devices interface {
	Inputs() []string
	Refresh() ([]string, error)
	Events() <-chan midi.DeviceEvent
}

// Deps are the running components the UI drives
type Deps struct {
	Store    *config.Store
	Devices  Devices
	Bridge   *bridge.Bridge
	Player   *sequencer.Player
	Practice *practice.Session
	Relay    *Relay
	Ring     *debug.Ring
	Theme    *theme.Theme
	Logger   *log.Logger
}

type Model struct {
	deps   Deps
	logger *log.Logger
	view   view

	inputs       []string
	input        int
	bridgeStatus string
	bridgeFailed bool

	songs        []string
	song         int
	playerStatus string
	total        time.Duration
	elapsed      time.Duration
	bpm          float64

	practiceErr string

	help     help.Model
	showHelp bool
	width    int
	quitting bool
}

// NewModel scans inputs and songs once and preselects the input matching
// the configured device filter
func NewModel(deps Deps) Model {
	if deps.Relay == nil {
		deps.Relay = NewRelay()
	}
	if deps.Theme == nil {
		deps.Theme = theme.New(nil)
	}
	m := Model{
		deps:         deps,
		logger:       debug.Or(deps.Logger).WithPrefix("ui"),
		bridgeStatus: "Disconnected",
		playerStatus: "Select a song",
		help:         help.New(),
	}
	m.refreshInputs()
	m.refreshSongs()

	if filter := deps.Store.Snapshot().DeviceNameFilter; filter != "" {
		if name, ok := midi.MatchName(m.inputs, filter); ok {
			m.selectInput(name)
			m.logger.Info("auto-selected device", "filter", filter, "device", name)
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(),
		ListenForRelay(m.deps.Relay),
		ListenForDevices(m.deps.Devices.Events()),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		return m, tick()

	case ProgressMsg:
		m.playerStatus = string(msg)
		return m, ListenForRelay(m.deps.Relay)

	case InfoMsg:
		m.total, m.bpm, m.elapsed = msg.Total, msg.BPM, msg.Elapsed
		return m, ListenForRelay(m.deps.Relay)

	case PlayerStoppedMsg:
		if m.playerStatus == "Playing..." {
			m.playerStatus = "Stopped"
		}
		return m, ListenForRelay(m.deps.Relay)

	case BridgeErrorMsg:
		m.bridgeStatus = "Error: " + msg.Err.Error()
		m.bridgeFailed = true
		return m, ListenForRelay(m.deps.Relay)

	case BridgeStoppedMsg:
		if !m.bridgeFailed {
			m.bridgeStatus = "Disconnected"
		}
		return m, ListenForRelay(m.deps.Relay)

	case DeviceEventMsg:
		m.applyDeviceEvent(midi.DeviceEvent(msg))
		return m, ListenForDevices(m.deps.Devices.Events())
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case Is(msg, bindings.Quit):
		m.quitting = true
		m.deps.Player.Stop()
		m.deps.Bridge.Stop()
		m.deps.Practice.Pause()
		return m, tea.Quit

	case Is(msg, bindings.Views):
		m.view = views[msg.String()[0]-'1']
		return m, nil

	case Is(msg, bindings.Next):
		m.view = views[(int(m.view)+1)%len(views)]
		return m, nil

	case Is(msg, bindings.Help):
		m.showHelp = !m.showHelp
		return m, nil
	}

	switch m.view {
	case viewBridge:
		m.bridgeKey(msg)
	case viewPlayer:
		m.playerKey(msg)
	case viewPractice:
		m.practiceKey(msg)
	}
	return m, nil
}

// moveCursor handles up/down over a list of n items
func moveCursor(msg tea.KeyMsg, cursor, n int) int {
	switch {
	case Is(msg, bindings.Up) && cursor > 0:
		return cursor - 1
	case Is(msg, bindings.Down) && cursor < n-1:
		return cursor + 1
	}
	return cursor
}

func (m *Model) bridgeKey(msg tea.KeyMsg) {
	running := m.deps.Bridge.Running()
	switch {
	case Is(msg, bindings.Up, bindings.Down):
		if !running {
			m.input = moveCursor(msg, m.input, len(m.inputs))
		}
	case Is(msg, bindings.Refresh):
		if !running {
			m.refreshInputs()
		}
	case Is(msg, bindings.Connect):
		m.toggleBridge()
	case Is(msg, bindings.Verbose):
		m.deps.Store.Update(func(c *config.Config) { c.Verbose = !c.Verbose })
		m.save()
	}
}

func (m *Model) toggleBridge() {
	if m.deps.Bridge.Running() {
		m.deps.Bridge.Stop()
		m.bridgeStatus = "Disconnected"
		return
	}
	name, ok := m.selectedInput()
	if !ok {
		m.logger.Error("no device selected")
		m.bridgeStatus = "No device selected"
		return
	}
	if m.deps.Bridge.Start(name) {
		m.bridgeStatus = "Listening on " + name
		m.bridgeFailed = false
	}
}

func (m *Model) playerKey(msg tea.KeyMsg) {
	switch {
	case Is(msg, bindings.Up, bindings.Down):
		m.song = moveCursor(msg, m.song, len(m.songs))
	case Is(msg, bindings.Refresh):
		m.refreshSongs()
	case Is(msg, bindings.Play):
		if m.deps.Player.Active() {
			m.deps.Player.Stop()
			return
		}
		seq, err := m.loadSelected()
		if err != nil {
			m.playerStatus = "Error: " + issue(err)
			return
		}
		m.deps.Player.Arm(seq)
		m.play(seq)
	case Is(msg, bindings.Toggle):
		if m.deps.Player.Armed() == nil {
			seq, err := m.loadSelected()
			if err != nil {
				m.playerStatus = "Error: " + issue(err)
				return
			}
			m.deps.Player.Arm(seq)
		}
		if err := m.deps.Player.Toggle(); err != nil {
			m.playerStatus = "Error: " + err.Error()
		}
	case Is(msg, bindings.Faster):
		m.changeSpeed(speedStep)
	case Is(msg, bindings.Slower):
		m.changeSpeed(-speedStep)
	}
}

func (m *Model) play(seq *sequencer.Sequence) {
	m.total, m.elapsed, m.bpm = seq.Duration(), 0, seq.BPM()
	if err := m.deps.Player.LoadAndPlay(seq); err != nil {
		m.playerStatus = "Error: " + err.Error()
	}
}

func (m *Model) changeSpeed(delta float64) {
	speed := math.Round((m.deps.Player.Speed()+delta)*10) / 10
	speed = math.Max(minSpeed, math.Min(maxSpeed, speed))
	if err := m.deps.Player.SetSpeed(speed); err != nil {
		m.logger.Warn("speed rejected", "speed", speed, "err", err)
		return
	}
	m.deps.Store.Update(func(c *config.Config) { c.Player.Speed = speed })
	m.save()
}

func (m *Model) practiceKey(msg tea.KeyMsg) {
	s := m.deps.Practice
	switch {
	case Is(msg, bindings.Up, bindings.Down):
		m.song = moveCursor(msg, m.song, len(m.songs))
	case Is(msg, bindings.Load):
		seq, err := m.loadSelected()
		if err == nil {
			err = s.Load(seq)
		}
		m.practiceErr = ""
		if err != nil {
			m.practiceErr = issue(err)
		}
	case Is(msg, bindings.Practice):
		s.Toggle()
	case Is(msg, bindings.Restart):
		s.Restart()
	}
}

// loadSelected parses the highlighted song
func (m *Model) loadSelected() (*sequencer.Sequence, error) {
	if m.song < 0 || m.song >= len(m.songs) {
		return nil, fault.Wrap(errNoSong, fmsg.WithDesc("load song", "No song selected"))
	}
	name := m.songs[m.song]
	path := filepath.Join(m.deps.Store.Snapshot().SongsDir, name)
	seq, err := sequencer.Load(path)
	if err != nil {
		m.logger.Error("load failed", "path", path, "err", err)
		return nil, fault.Wrap(err, fmsg.WithDesc("load song", "Could not read "+name))
	}
	return seq, nil
}

func (m *Model) refreshInputs() {
	current, _ := m.selectedInput()
	names, err := m.deps.Devices.Refresh()
	if err != nil {
		m.logger.Warn("device scan failed", "err", err)
	}
	m.inputs = names
	m.input = 0
	m.selectInput(current)
}

func (m *Model) refreshSongs() {
	dir := m.deps.Store.Snapshot().SongsDir
	songs, err := listSongs(dir)
	if err != nil {
		m.logger.Warn("song scan failed", "dir", dir, "err", err)
	}
	m.songs = songs
	if m.song >= len(songs) {
		m.song = 0
	}
}

func (m *Model) applyDeviceEvent(ev midi.DeviceEvent) {
	current, _ := m.selectedInput()
	m.inputs = m.deps.Devices.Inputs()
	m.input = 0
	m.selectInput(current)

	if ev.Type == midi.DeviceDisconnected && ev.Name == m.deps.Bridge.Device() && m.deps.Bridge.Running() {
		m.bridgeStatus = "Device lost: " + ev.Name
	}
}

func (m *Model) selectInput(name string) {
	for i, n := range m.inputs {
		if n == name {
			m.input = i
			return
		}
	}
}

func (m Model) selectedInput() (string, bool) {
	if m.input < 0 || m.input >= len(m.inputs) {
		return "", false
	}
	return m.inputs[m.input], true
}

func (m *Model) save() {
	if err := m.deps.Store.Save(); err != nil {
		m.logger.Error("save config", "err", err)
	}
}

// speedLabel renders the current speed, e.g. "1.0x"
func speedLabel(speed float64) string {
	return fmt.Sprintf("%.1fx", speed)
}
