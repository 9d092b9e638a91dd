package domain

// State is the lifecycle state of a session.
type State int

const (
	StateLobby State = iota
	StateInProgress
	StateWaitingForHost
	StateCompleted
	StateAborted
)

var stateNames = map[State]string{
	StateLobby:          "lobby",
	StateInProgress:     "in_progress",
	StateWaitingForHost: "waiting_for_host",
	StateCompleted:      "completed",
	StateAborted:        "aborted",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

var transitions = map[State][]State{
	StateLobby:          {StateInProgress, StateAborted},
	StateInProgress:     {StateWaitingForHost, StateAborted},
	StateWaitingForHost: {StateInProgress, StateCompleted, StateAborted},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
