package chat

// Conn is one live transport session as seen by the core.
//
// ID must be unique among live connections. Send hands an already serialized
// event to the transport and must not block; an error means the event was
// dropped.
type Conn interface {
	ID() string
	Send(data []byte) error
}

// State is the lifecycle position of a single connection.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateRejected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateRejected:
		return "rejected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
