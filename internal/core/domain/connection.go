package domain

// ConnectionState is the lifecycle state of the realtime connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// StatusChange is published whenever the connection state moves.
type StatusChange struct {
	State ConnectionState
	// Err is set when the move was caused by a failure.
	Err error
}

// Connected reports whether the new state is connected.
func (s StatusChange) Connected() bool {
	return s.State == StateConnected
}
