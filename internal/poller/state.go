package poller

// State is the lifecycle state of a Poller.
type State int

const (
	Uninitialized State = iota
	Connecting
	AwaitingChat
	Ready
	Polling
	Degraded
	Terminated
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Connecting:    "connecting",
	AwaitingChat:  "awaiting_chat",
	Ready:         "ready",
	Polling:       "polling",
	Degraded:      "degraded",
	Terminated:    "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Active reports whether a session is held or being acquired.
func (s State) Active() bool {
	return s != Uninitialized && s != Terminated
}
