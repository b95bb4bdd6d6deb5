package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// listSongs returns the MIDI files in dir, sorted by name
func listSongs(dir string) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var songs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mid", ".midi":
			songs = append(songs, e.Name())
		}
	}
	return songs, nil
}

// clock formats d as mm:ss
func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
