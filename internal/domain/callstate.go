package domain

// CallState is the lifecycle of one media connection to a remote participant.
type CallState int

const (
	CallIdle CallState = iota
	CallNegotiating
	CallConnected
	CallClosed
)

var callTransitions = map[CallState][]CallState{
	CallIdle:        {CallNegotiating, CallClosed},
	CallNegotiating: {CallConnected, CallClosed},
	CallConnected:   {CallClosed},
}

func (s CallState) CanTransition(to CallState) bool {
	for _, next := range callTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Live reports whether the connection still counts toward the participant
// table.
func (s CallState) Live() bool {
	return s == CallNegotiating || s == CallConnected
}

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallNegotiating:
		return "negotiating"
	case CallConnected:
		return "connected"
	case CallClosed:
		return "closed"
	default:
		return "unknown"
	}
}
