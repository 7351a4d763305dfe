// Package live keeps the dashboard's WebSocket channel open. It owns the
// connection lifecycle: connect, keepalive, bounded reconnect and teardown.
package live

// State is the lifecycle state of the live channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Event is an input to the state machine.
type Event string

const (
	// EventConnect is a caller asking for a connection.
	EventConnect Event = "connect"
	// EventOpened is the transport reporting a completed handshake.
	EventOpened Event = "opened"
	// EventLost covers a failed dial, a server close and a transport error.
	EventLost Event = "lost"
	// EventRetry is the reconnect timer firing.
	EventRetry Event = "retry"
	// EventDisconnect is a caller tearing the channel down.
	EventDisconnect Event = "disconnect"
)

// Transition computes the next state for ev. attempts is the number of
// reconnect attempts already made since the last successful open. The bool
// result is false when ev does not apply in state s, in which case s is
// returned unchanged.
func Transition(s State, ev Event, attempts, maxAttempts int) (State, bool) {
	switch ev {
	case EventConnect:
		switch s {
		case StateDisconnected, StateReconnecting:
			return StateConnecting, true
		}
	case EventOpened:
		if s == StateConnecting {
			return StateConnected, true
		}
	case EventLost:
		switch s {
		case StateConnecting, StateConnected:
			if attempts >= maxAttempts {
				return StateDisconnected, true
			}
			return StateReconnecting, true
		}
	case EventRetry:
		if s == StateReconnecting {
			return StateConnecting, true
		}
	case EventDisconnect:
		if s != StateDisconnected {
			return StateDisconnected, true
		}
	}
	return s, false
}
