package keys

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidNote is returned for mapping keys that are not a MIDI note number
var ErrInvalidNote = errors.New("invalid note number")

// Mapping binds note numbers to key combos. It is built once and never
// modified, so a running session can share it without locking.
type Mapping struct {
	actions map[int]string
}

// NewMapping builds a mapping from the persisted form (note number as a
// string). Bad entries are skipped and returned alongside the usable mapping.
func NewMapping(raw map[string]string) (Mapping, []error) {
	m := Mapping{actions: make(map[int]string, len(raw))}
	var errs []error

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		note, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || note < 0 || note > 127 {
			errs = append(errs, fmt.Errorf("mapping key %q: %w", k, ErrInvalidNote))
			continue
		}
		action := strings.TrimSpace(raw[k])
		if action == "" {
			errs = append(errs, fmt.Errorf("mapping note %d: empty action: %w", note, ErrMalformedCombo))
			continue
		}
		m.actions[note] = action
	}
	return m, errs
}

// Lookup returns the combo bound to note
func (m Mapping) Lookup(note int) (string, bool) {
	action, ok := m.actions[note]
	return action, ok
}

// Has reports whether note is bound. Usable as the acceptable-note predicate
// for transposition.
func (m Mapping) Has(note int) bool {
	_, ok := m.actions[note]
	return ok
}

// Notes returns the bound notes in ascending order
func (m Mapping) Notes() []int {
	notes := make([]int, 0, len(m.actions))
	for n := range m.actions {
		notes = append(notes, n)
	}
	sort.Ints(notes)
	return notes
}

func (m Mapping) Len() int {
	return len(m.actions)
}
