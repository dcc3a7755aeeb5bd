package stream

// State is the connection state of one push stream
type State int32

const (
	StateDisconnected State = iota // not started or no endpoint
	StateConnecting                // handshake in progress, no delivery
	StateOpen                      // delivering messages
	StateError                     // transport failure, reconnect scheduled
	StateClosed                    // closed by peer or by Stop
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// validTransitions lists every edge of the connection state machine
var validTransitions = map[State][]State{
	StateDisconnected: {StateConnecting, StateClosed},
	StateConnecting:   {StateOpen, StateError, StateClosed},
	StateOpen:         {StateError, StateClosed},
	StateError:        {StateConnecting, StateClosed},
	StateClosed:       {StateConnecting},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
