package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"keybridge/keys"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps any problem reading or decoding a config file
var ErrInvalid = errors.New("invalid config")

// PlayerConfig holds file playback preferences
type PlayerConfig struct {
	Speed               float64 `json:"speed" yaml:"speed"`
	Countdown           int     `json:"countdown" yaml:"countdown"`
	CountdownIntervalMs int     `json:"countdown_interval_ms" yaml:"countdown_interval_ms"`
}

// PracticeConfig holds the practice lane settings
type PracticeConfig struct {
	Low         int `json:"low" yaml:"low"`
	High        int `json:"high" yaml:"high"`
	WindowMs    int `json:"window_ms" yaml:"window_ms"`
	TickMs      int `json:"tick_ms" yaml:"tick_ms"`
	LookaheadMs int `json:"lookahead_ms" yaml:"lookahead_ms"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

type ThemeConfig struct {
	Palette string `json:"palette,omitempty" yaml:"palette,omitempty"` // .gpl path, empty for built-in
}

// Config is the persisted application configuration
type Config struct {
	DeviceNameFilter string            `json:"device_name_filter" yaml:"device_name_filter"`
	Verbose          bool              `json:"verbose" yaml:"verbose"`
	NoteMapping      map[string]string `json:"note_mapping" yaml:"note_mapping"`
	SongsDir         string            `json:"songs_dir,omitempty" yaml:"songs_dir,omitempty"`
	Player           PlayerConfig      `json:"player" yaml:"player"`
	Practice         PracticeConfig    `json:"practice" yaml:"practice"`
	Log              LogConfig         `json:"log" yaml:"log"`
	Theme            ThemeConfig       `json:"theme,omitempty" yaml:"theme,omitempty"`
}

// DefaultMapping covers C3..B5 with natural notes on plain keys and
// accidentals on shift/ctrl combos
func DefaultMapping() map[string]string {
	return map[string]string{
		"48": "z", "49": "shift+z", "50": "x", "51": "ctrl+c", "52": "c",
		"53": "v", "54": "shift+v", "55": "b", "56": "shift+b", "57": "n",
		"58": "ctrl+m", "59": "m", "60": "a", "61": "shift+a", "62": "s",
		"63": "ctrl+d", "64": "d", "65": "f", "66": "shift+f", "67": "g",
		"68": "shift+g", "69": "h", "70": "ctrl+j", "71": "j", "72": "q",
		"73": "shift+q", "74": "w", "75": "ctrl+e", "76": "e", "77": "r",
		"78": "shift+r", "79": "t", "80": "shift+t", "81": "y", "82": "ctrl+u",
		"83": "u",
	}
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NoteMapping: DefaultMapping(),
		Player: PlayerConfig{
			Speed:               1.0,
			Countdown:           3,
			CountdownIntervalMs: 1000,
		},
		Practice: PracticeConfig{
			Low:         48,
			High:        83,
			WindowMs:    500,
			TickMs:      20,
			LookaheadMs: 4000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "keybridge"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config at path (ConfigPath when empty).
// A missing file is created with defaults. A file that cannot be read or
// decoded yields defaults plus an error wrapping ErrInvalid, so callers can
// log it and carry on.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return DefaultConfig(), fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			if err := cfg.SaveTo(path); err != nil {
				return cfg, fmt.Errorf("write defaults: %w", err)
			}
			return cfg, nil
		}
		return DefaultConfig(), fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	cfg := DefaultConfig()
	// A mapping present in the file replaces the default table wholesale
	cfg.NoteMapping = nil
	if err := decode(path, data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	if cfg.NoteMapping == nil {
		cfg.NoteMapping = map[string]string{}
	}
	cfg.normalize()
	return cfg, nil
}

// Save writes the config to ConfigPath
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating the directory if needed
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := encode(path, c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Mapping builds the note table. Entries that cannot be used are returned
// as errors next to the usable part.
func (c *Config) Mapping() (keys.Mapping, []error) {
	return keys.NewMapping(c.NoteMapping)
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	out := *c
	if c.NoteMapping != nil {
		out.NoteMapping = make(map[string]string, len(c.NoteMapping))
		for k, v := range c.NoteMapping {
			out.NoteMapping[k] = v
		}
	}
	return &out
}

func (p PlayerConfig) CountdownInterval() time.Duration {
	return time.Duration(p.CountdownIntervalMs) * time.Millisecond
}

func (p PracticeConfig) Window() time.Duration {
	return time.Duration(p.WindowMs) * time.Millisecond
}

func (p PracticeConfig) Tick() time.Duration {
	return time.Duration(p.TickMs) * time.Millisecond
}

func (p PracticeConfig) Lookahead() time.Duration {
	return time.Duration(p.LookaheadMs) * time.Millisecond
}

// normalize replaces values the engine cannot run with by defaults
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Player.Speed <= 0 {
		c.Player.Speed = def.Player.Speed
	}
	if c.Player.Countdown < 0 {
		c.Player.Countdown = 0
	}
	if c.Player.CountdownIntervalMs <= 0 {
		c.Player.CountdownIntervalMs = def.Player.CountdownIntervalMs
	}
	if c.Practice.Low < 0 || c.Practice.High > 127 || c.Practice.Low > c.Practice.High {
		c.Practice.Low, c.Practice.High = def.Practice.Low, def.Practice.High
	}
	if c.Practice.WindowMs <= 0 {
		c.Practice.WindowMs = def.Practice.WindowMs
	}
	if c.Practice.TickMs <= 0 {
		c.Practice.TickMs = def.Practice.TickMs
	}
	if c.Practice.TickMs >= c.Practice.WindowMs {
		c.Practice.WindowMs, c.Practice.TickMs = def.Practice.WindowMs, def.Practice.TickMs
	}
	if c.Practice.LookaheadMs <= 0 {
		c.Practice.LookaheadMs = def.Practice.LookaheadMs
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func encode(path string, cfg *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}
