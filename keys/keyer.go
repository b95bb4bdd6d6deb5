package keys

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"keybridge/debug"

	"github.com/charmbracelet/log"
	"github.com/micmonay/keybd_event"
)

// Keyer performs a key combination as one press followed by one release
type Keyer interface {
	Tap(combo string) error
}

// The uinput device on Linux needs a moment before the compositor accepts it
const linuxSettle = 2 * time.Second

// SystemKeyer synthesizes real keystrokes through the OS input layer.
// Taps are serialized; a combo is never held down.
type SystemKeyer struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

// NewSystemKeyer creates the OS keyboard once. On Linux this blocks for the
// settle delay.
func NewSystemKeyer() (*SystemKeyer, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("keyboard output: %w", err)
	}
	if runtime.GOOS == "linux" {
		time.Sleep(linuxSettle)
	}
	return &SystemKeyer{kb: kb}, nil
}

func (k *SystemKeyer) Tap(combo string) error {
	c, err := ParseCombo(combo)
	if err != nil {
		return err
	}
	code, ok := vkCodes[c.Key]
	if !ok {
		return fmt.Errorf("%q: %w", c.Key, ErrUnknownKey)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.kb.Clear()
	k.kb.SetKeys(code)
	k.kb.HasSHIFT(c.Shift)
	k.kb.HasCTRL(c.Ctrl)
	k.kb.HasALT(c.Alt)

	if err := k.kb.Press(); err != nil {
		return fmt.Errorf("press %s: %w", c, err)
	}
	if err := k.kb.Release(); err != nil {
		return fmt.Errorf("release %s: %w", c, err)
	}
	return nil
}

// DryKeyer validates and logs combos without touching the OS
type DryKeyer struct {
	logger *log.Logger

	mu   sync.Mutex
	taps []string
}

func NewDryKeyer(logger *log.Logger) *DryKeyer {
	return &DryKeyer{logger: debug.Or(logger).WithPrefix("keys")}
}

func (k *DryKeyer) Tap(combo string) error {
	c, err := ParseCombo(combo)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.taps = append(k.taps, c.String())
	k.mu.Unlock()
	k.logger.Debug("tap", "combo", c.String())
	return nil
}

// Taps returns every combo tapped so far, canonicalized
func (k *DryKeyer) Taps() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, len(k.taps))
	copy(out, k.taps)
	return out
}

var vkCodes = map[string]int{
	"a": keybd_event.VK_A, "b": keybd_event.VK_B, "c": keybd_event.VK_C,
	"d": keybd_event.VK_D, "e": keybd_event.VK_E, "f": keybd_event.VK_F,
	"g": keybd_event.VK_G, "h": keybd_event.VK_H, "i": keybd_event.VK_I,
	"j": keybd_event.VK_J, "k": keybd_event.VK_K, "l": keybd_event.VK_L,
	"m": keybd_event.VK_M, "n": keybd_event.VK_N, "o": keybd_event.VK_O,
	"p": keybd_event.VK_P, "q": keybd_event.VK_Q, "r": keybd_event.VK_R,
	"s": keybd_event.VK_S, "t": keybd_event.VK_T, "u": keybd_event.VK_U,
	"v": keybd_event.VK_V, "w": keybd_event.VK_W, "x": keybd_event.VK_X,
	"y": keybd_event.VK_Y, "z": keybd_event.VK_Z,

	"0": keybd_event.VK_0, "1": keybd_event.VK_1, "2": keybd_event.VK_2,
	"3": keybd_event.VK_3, "4": keybd_event.VK_4, "5": keybd_event.VK_5,
	"6": keybd_event.VK_6, "7": keybd_event.VK_7, "8": keybd_event.VK_8,
	"9": keybd_event.VK_9,

	"space": keybd_event.VK_SPACE,
	"enter": keybd_event.VK_ENTER,
	"esc":   keybd_event.VK_ESC,
	"tab":   keybd_event.VK_TAB,

	"f1": keybd_event.VK_F1, "f2": keybd_event.VK_F2, "f3": keybd_event.VK_F3,
	"f4": keybd_event.VK_F4, "f5": keybd_event.VK_F5, "f6": keybd_event.VK_F6,
	"f7": keybd_event.VK_F7, "f8": keybd_event.VK_F8, "f9": keybd_event.VK_F9,
	"f10": keybd_event.VK_F10, "f11": keybd_event.VK_F11, "f12": keybd_event.VK_F12,
}
