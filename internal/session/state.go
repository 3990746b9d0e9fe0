package session

// State is the connection lifecycle state. Owned exclusively by Session;
// it changes only on socket lifecycle events or explicit Disconnect calls.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing // intentional shutdown in progress
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Event is a socket lifecycle input to the state machine.
type Event int

const (
	EventDial            Event = iota // a connection attempt starts
	EventOpen                         // the transport opened
	EventClose                        // the transport closed (dial failures included)
	EventCloseSuperseded              // closed with the reserved superseded code
	EventDisconnect                   // explicit Disconnect call
)

// Effect is the side effect the session performs after a transition.
type Effect int

const (
	EffectNone           Effect = iota
	EffectHandshake             // emit the connected frame
	EffectReconnect             // schedule a reconnect after the fixed delay
	EffectRetire                // session is permanently done, never reconnect
	EffectCloseTransport        // close the underlying socket
)

// Transition is the pure state machine: given the current state and a
// lifecycle event it yields the next state and the effect to perform.
func Transition(s State, e Event) (State, Effect) {
	switch e {
	case EventDial:
		if s == StateDisconnected {
			return StateConnecting, EffectNone
		}
		return s, EffectNone
	case EventOpen:
		if s == StateConnecting {
			return StateConnected, EffectHandshake
		}
		// Disconnect raced the dial; the fresh socket must not survive.
		return s, EffectCloseTransport
	case EventClose:
		if s == StateClosing {
			return StateDisconnected, EffectNone
		}
		return StateDisconnected, EffectReconnect
	case EventCloseSuperseded:
		return StateDisconnected, EffectRetire
	case EventDisconnect:
		return StateClosing, EffectCloseTransport
	default:
		return s, EffectNone
	}
}
