package keys

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedCombo is returned for empty parts, missing or doubled keys
	ErrMalformedCombo = errors.New("malformed key combination")
	// ErrUnknownKey is returned for a key name no backend can press
	ErrUnknownKey = errors.New("unknown key")
)

// Combo is a parsed key combination such as "ctrl+shift+v"
type Combo struct {
	Shift bool
	Ctrl  bool
	Alt   bool
	Key   string // canonical lower-case key name
}

// String renders the combo in canonical modifier order
func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	return strings.Join(append(parts, c.Key), "+")
}

// Named keys besides letters and digits
var namedKeys = map[string]string{
	"space":  "space",
	"enter":  "enter",
	"return": "enter",
	"esc":    "esc",
	"escape": "esc",
	"tab":    "tab",
	"f1":     "f1",
	"f2":     "f2",
	"f3":     "f3",
	"f4":     "f4",
	"f5":     "f5",
	"f6":     "f6",
	"f7":     "f7",
	"f8":     "f8",
	"f9":     "f9",
	"f10":    "f10",
	"f11":    "f11",
	"f12":    "f12",
}

// ParseCombo parses a '+' separated combination. Modifiers may come in any
// order; exactly one regular key is required.
func ParseCombo(s string) (Combo, error) {
	var c Combo
	raw := strings.TrimSpace(s)
	if raw == "" {
		return c, fmt.Errorf("%q: %w", s, ErrMalformedCombo)
	}

	for _, part := range strings.Split(raw, "+") {
		name := strings.ToLower(strings.TrimSpace(part))
		switch name {
		case "":
			return Combo{}, fmt.Errorf("%q: empty part: %w", s, ErrMalformedCombo)
		case "shift":
			c.Shift = true
			continue
		case "ctrl", "control":
			c.Ctrl = true
			continue
		case "alt":
			c.Alt = true
			continue
		}

		key, ok := canonicalKey(name)
		if !ok {
			return Combo{}, fmt.Errorf("%q: %q: %w", s, name, ErrUnknownKey)
		}
		if c.Key != "" {
			return Combo{}, fmt.Errorf("%q: more than one key: %w", s, ErrMalformedCombo)
		}
		c.Key = key
	}

	if c.Key == "" {
		return Combo{}, fmt.Errorf("%q: no key: %w", s, ErrMalformedCombo)
	}
	return c, nil
}

func canonicalKey(name string) (string, bool) {
	if len(name) == 1 {
		ch := name[0]
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			return name, true
		}
		return "", false
	}
	key, ok := namedKeys[name]
	return key, ok
}
