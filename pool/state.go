package pool

// State is the lifecycle state of a pooled resource.
type State uint8

const (
	Idle State = iota
	Preparing
	Ready
	Playing
	Paused
	Released
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	if to == Released {
		return from != Released
	}
	switch from {
	case Idle:
		return to == Preparing
	case Preparing:
		return to == Ready
	case Ready:
		return to == Playing
	case Playing:
		return to == Paused || to == Ready
	case Paused:
		return to == Playing
	default:
		return false
	}
}

// Transition describes one state change, as seen by observers.
type Transition struct {
	Index int
	Key   string
	Gen   uint64
	From  State
	To    State
	// Err is set when a load failure released the resource.
	Err error
}

// Observer receives state changes on the control goroutine.
// Implementations must not call back into the pool.
type Observer interface {
	OnStateChange(t Transition)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(t Transition)

// OnStateChange calls f.
func (f ObserverFunc) OnStateChange(t Transition) { f(t) }

// Snapshot is a read-only view of a pooled resource.
type Snapshot struct {
	Index int
	Key   string
	State State
	Gen   uint64
}
