package midi

import "errors"

var (
	// ErrDeviceNotFound is returned when no input port has the requested name
	ErrDeviceNotFound = errors.New("midi input not found")
	// ErrDeviceGone is reported once a connected input disappears
	ErrDeviceGone = errors.New("midi input disconnected")
)

// Device is an opened MIDI input with a pollable event queue.
type Device interface {
	Name() string

	// Pending drains every queued event without blocking. A non-nil error
	// means the device is unusable and should be closed.
	Pending() ([]NoteEvent, error)

	Close() error
}

// Opener opens input devices by name
type Opener interface {
	Open(name string) (Device, error)
}
