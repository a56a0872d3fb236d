package domain

type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateSpeaking
	StateDisconnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSpeaking:
		return "speaking"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Live reports whether the session holds an open media transport and event channel.
func (s ConnectionState) Live() bool {
	return s == StateConnected || s == StateSpeaking
}

// Terminal reports whether the state ends the session instance.
func (s ConnectionState) Terminal() bool {
	return s == StateDisconnected || s == StateError
}

// Turn refines StateSpeaking: who currently holds the floor.
type Turn int

const (
	TurnNone Turn = iota
	TurnListening
	TurnResponding
)

func (t Turn) String() string {
	switch t {
	case TurnListening:
		return "listening"
	case TurnResponding:
		return "responding"
	}
	return ""
}

// Status is a state change as shown to the user.
type Status struct {
	State  ConnectionState
	Turn   Turn
	Text   string
	Detail string
}
