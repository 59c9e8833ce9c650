package harvest

// State is a step of the per-item state machine.
type State int

// Pipeline states, in transition order.
const (
	StateStart State = iota
	StateSubmitted
	StateRedirected
	StateLinkReady
	StateLinkFailed
	StateFetched
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:      "start",
	StateSubmitted:  "submitted",
	StateRedirected: "redirected",
	StateLinkReady:  "link_ready",
	StateLinkFailed: "link_failed",
	StateFetched:    "fetched",
	StateDone:       "done",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StateStart:      {StateSubmitted, StateFailed},
	StateSubmitted:  {StateRedirected, StateFailed},
	StateRedirected: {StateLinkReady, StateLinkFailed, StateFailed},
	StateLinkReady:  {StateFetched, StateFailed},
	StateLinkFailed: {StateFailed},
	StateFetched:    {StateDone},
}

// CanTransition reports whether next is a legal successor of s.
func (s State) CanTransition(next State) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
