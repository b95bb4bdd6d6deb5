package midi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"keybridge/debug"

	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// DeviceEvent is emitted when inputs appear or disappear
type DeviceEvent struct {
	Type DeviceEventType
	Name string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// Ports that are never offered as keyboards
var excludedPatterns = []string{"midi through", "through port", "dummy"}

// Scanning can hang on a wedged backend (CoreMIDI in particular)
const scanTimeout = 3 * time.Second

// ErrScanTimeout is returned when the driver does not answer a port scan
var ErrScanTimeout = errors.New("midi port scan timed out")

// DeviceManager lists MIDI inputs, opens them, and tracks hot-plug changes
type DeviceManager struct {
	mu       sync.RWMutex
	inputs   []string
	open     map[string]*KeyboardDevice
	events   chan DeviceEvent
	pollRate time.Duration
	logger   *log.Logger
}

// NewDeviceManager creates a new device manager
func NewDeviceManager(logger *log.Logger) *DeviceManager {
	logger = debug.Or(logger)
	return &DeviceManager{
		open:     make(map[string]*KeyboardDevice),
		events:   make(chan DeviceEvent, 16),
		pollRate: time.Second,
		logger:   logger.WithPrefix("midi"),
	}
}

// Events returns a channel of connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Inputs returns the last scanned input names
func (dm *DeviceManager) Inputs() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]string, len(dm.inputs))
	copy(out, dm.inputs)
	return out
}

// Refresh rescans the driver and returns the current input names.
// Inputs that vanished since the last scan are reported and any open
// device on them is marked gone.
func (dm *DeviceManager) Refresh() ([]string, error) {
	ports, err := scanInPorts()
	if err != nil {
		return dm.Inputs(), err
	}
	names := filterNames(ports)

	dm.mu.Lock()
	before := dm.inputs
	dm.inputs = names
	dm.mu.Unlock()

	dm.diff(before, names)
	return names, nil
}

// Match returns the first input whose name contains filter (case-insensitive)
func (dm *DeviceManager) Match(filter string) (string, bool) {
	return MatchName(dm.Inputs(), filter)
}

// MatchName returns the first name containing filter, ignoring case
func MatchName(names []string, filter string) (string, bool) {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return "", false
	}
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), filter) {
			return n, true
		}
	}
	return "", false
}

// Open opens the named input as a keyboard device
func (dm *DeviceManager) Open(name string) (Device, error) {
	ports, err := scanInPorts()
	if err != nil {
		return nil, err
	}
	var found drivers.In
	for _, p := range ports {
		if p.String() == name {
			found = p
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%q: %w", name, ErrDeviceNotFound)
	}

	kb, err := OpenKeyboard(name, found)
	if err != nil {
		return nil, err
	}

	dm.mu.Lock()
	dm.open[name] = kb
	dm.mu.Unlock()

	dm.logger.Info("input opened", "device", name)
	return &trackedDevice{KeyboardDevice: kb, dm: dm}, nil
}

// Run polls for device changes until ctx is done (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func (dm *DeviceManager) scan() {
	if _, err := dm.Refresh(); err != nil {
		dm.logger.Warn("scan failed", "err", err)
	}
}

func (dm *DeviceManager) diff(before, after []string) {
	seen := make(map[string]bool, len(after))
	for _, n := range after {
		seen[n] = true
	}
	had := make(map[string]bool, len(before))
	for _, n := range before {
		had[n] = true
		if seen[n] {
			continue
		}
		dm.mu.Lock()
		kb := dm.open[n]
		delete(dm.open, n)
		dm.mu.Unlock()
		if kb != nil {
			kb.markGone()
		}
		dm.logger.Warn("input disappeared", "device", n)
		dm.emit(DeviceEvent{Type: DeviceDisconnected, Name: n})
	}
	for _, n := range after {
		if !had[n] {
			dm.logger.Debug("input found", "device", n)
			dm.emit(DeviceEvent{Type: DeviceConnected, Name: n})
		}
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, kb := range dm.open {
		kb.Close()
	}
	dm.open = make(map[string]*KeyboardDevice)
}

func (dm *DeviceManager) emit(ev DeviceEvent) {
	select {
	case dm.events <- ev:
	default:
	}
}

func (dm *DeviceManager) forget(name string, kb *KeyboardDevice) {
	dm.mu.Lock()
	if dm.open[name] == kb {
		delete(dm.open, name)
	}
	dm.mu.Unlock()
}

// trackedDevice unregisters itself from the manager on Close
type trackedDevice struct {
	*KeyboardDevice
	dm *DeviceManager
}

func (t *trackedDevice) Close() error {
	t.dm.forget(t.Name(), t.KeyboardDevice)
	return t.KeyboardDevice.Close()
}

func scanInPorts() ([]drivers.In, error) {
	ch := make(chan []drivers.In, 1)
	go func() {
		ch <- gomidi.GetInPorts()
	}()

	select {
	case ports := <-ch:
		return ports, nil
	case <-time.After(scanTimeout):
		// User needs to run: sudo killall coreaudiod midiserver
		return nil, ErrScanTimeout
	}
}

func filterNames(ports []drivers.In) []string {
	var names []string
	for _, p := range ports {
		name := p.String()
		if isExcluded(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func isExcluded(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range excludedPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}
