package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configure a logger
type Options struct {
	Level  string    // debug, info, warn, error
	Path   string    // log file, truncated on open; empty disables the file sink
	Ring   *Ring     // optional in-memory sink for the UI
	Output io.Writer // optional extra sink (stderr for headless tools)
}

// New builds a leveled logger writing to every configured sink.
// The returned closer releases the log file.
func New(opts Options) (*log.Logger, io.Closer, error) {
	level := log.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		lvl, err := log.ParseLevel(s)
		if err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
		level = lvl
	}

	var sinks []io.Writer
	var closer io.Closer = nopCloser{}

	if opts.Path != "" {
		f, err := openFile(opts.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, f)
		closer = f
	}
	if opts.Ring != nil {
		sinks = append(sinks, opts.Ring)
	}
	if opts.Output != nil {
		sinks = append(sinks, opts.Output)
	}

	var out io.Writer = io.Discard
	if len(sinks) == 1 {
		out = sinks[0]
	} else if len(sinks) > 1 {
		out = io.MultiWriter(sinks...)
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	logger.Debug("=== Debug logging started ===")
	return logger, closer, nil
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Or returns l, or a discarding logger when l is nil
func Or(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// DefaultPath returns ~/.config/keybridge/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "keybridge", "debug.log")
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	fmt.Fprintf(f, "[%s] log opened\n", time.Now().Format("15:04:05.000"))
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
