package sequencer

// State is the playback state of a Player
type State int32

const (
	Idle State = iota
	CountingDown
	Playing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CountingDown:
		return "counting down"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Active reports whether a worker owns the state
func (s State) Active() bool {
	return s == CountingDown || s == Playing
}
