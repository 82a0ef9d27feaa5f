package tcp

import "fmt"

// State is the connection lifecycle as seen by collaborators.
type State uint8

const (
	StateIdle State = iota
	StateConnected
	StateDisconnected
	StateDisconnectedRetry
	StateConnectionFailed
	StateConnectionFailedServerBad
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateDisconnectedRetry:
		return "DISCONNECTED_RETRY"
	case StateConnectionFailed:
		return "CONNECTION_FAILED"
	case StateConnectionFailedServerBad:
		return "CONNECTION_FAILED_SERVER_BAD"
	default:
		return fmt.Sprintf("STATE_%d", uint8(s))
	}
}

// Failed reports whether s waits for an external Start before dialing again.
func (s State) Failed() bool {
	return s == StateConnectionFailed || s == StateConnectionFailedServerBad
}
