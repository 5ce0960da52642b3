package service

// State is the lifecycle state of an instance. It only moves forward:
// Initializing, Ready, Draining, Stopped.
type State uint32

const (
	StateInitializing State = iota
	StateReady
	StateDraining
	StateStopped
)

var stateNames = []string{"initializing", "ready", "draining", "stopped"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Serving reports whether new requests are accepted in this state.
func (s State) Serving() bool {
	return s == StateReady
}
