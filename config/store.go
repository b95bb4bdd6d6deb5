package config

import "sync"

// Store is the live, shared configuration. Sessions take a Snapshot when
// they start so later edits do not reach a run in progress.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewStore wraps cfg. path is where Save writes; empty means ConfigPath.
func NewStore(cfg *Config, path string) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{cfg: cfg.Clone(), path: path}
}

// Snapshot returns a deep copy of the current config
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to the live config under the write lock
func (s *Store) Update(fn func(*Config)) {
	s.mu.Lock()
	fn(s.cfg)
	s.mu.Unlock()
}

// Save persists the current config
func (s *Store) Save() error {
	snap := s.Snapshot()
	if s.path == "" {
		return snap.Save()
	}
	return snap.SaveTo(s.path)
}

func (s *Store) Path() string {
	return s.path
}
