package session

// State is the relay session's current step.
type State int

const (
	Idle State = iota
	ResolvingHost
	RegisteringTopic
	Connecting
	Subscribing
	Publishing
	Listening
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ResolvingHost:
		return "resolving_host"
	case RegisteringTopic:
		return "registering_topic"
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Publishing:
		return "publishing"
	case Listening:
		return "listening"
	default:
		return "unknown"
	}
}

// HasSocket reports whether a broker socket is open in this state.
func (s State) HasSocket() bool {
	return s == Subscribing || s == Publishing || s == Listening
}

// onFailure is where a failed tick in s leaves the session. Socket states
// fall back to Connecting; the rest retry themselves.
func (s State) onFailure() State {
	switch s {
	case ResolvingHost, RegisteringTopic, Connecting:
		return s
	case Subscribing, Publishing, Listening:
		return Connecting
	default:
		return s
	}
}
