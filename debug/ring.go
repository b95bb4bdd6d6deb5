package debug

import (
	"bytes"
	"strings"
	"sync"
)

// DefaultRingSize matches how many lines the log pane keeps
const DefaultRingSize = 100

// Ring is an io.Writer that keeps the last N complete lines written to it.
// Lines written before anyone reads are kept, so startup messages survive
// until the UI attaches.
type Ring struct {
	mu      sync.Mutex
	lines   []string
	size    int
	partial bytes.Buffer
	version uint64
}

// NewRing creates a ring holding up to size lines
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{size: size}
}

func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial.Write(p)
	for {
		data := r.partial.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(data[:i]), "\r")
		r.partial.Next(i + 1)
		r.append(line)
	}
	return len(p), nil
}

func (r *Ring) append(line string) {
	r.lines = append(r.lines, line)
	if over := len(r.lines) - r.size; over > 0 {
		r.lines = append(r.lines[:0], r.lines[over:]...)
	}
	r.version++
}

// Lines returns a copy of the buffered lines, oldest first
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Tail returns at most n of the newest lines
func (r *Ring) Tail(n int) []string {
	lines := r.Lines()
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Version increments on every completed line (cheap change detection)
func (r *Ring) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}
