package presenter

import "github.com/monetiq/realtime/src/types"

// Decision tells the UI collaborator how to surface a notification. The
// core never renders anything itself.
type Decision struct {
	Toast      bool `json:"toast"`
	Sound      bool `json:"sound"`
	Persistent bool `json:"persistent"` // toast must not auto-dismiss
}

// Sink receives a notification together with its presentation decision.
// The UI collaborator is solely responsible for acting on it; sinks must
// not block.
type Sink func(n types.Notification, d Decision)

// Decide maps a priority to its presentation treatment. Stateless and
// side-effect-free.
func Decide(p types.Priority) Decision {
	switch p {
	case types.PriorityUrgent:
		return Decision{Toast: true, Sound: true, Persistent: true}
	case types.PriorityHigh:
		return Decision{Toast: true, Sound: true}
	default:
		return Decision{Toast: true}
	}
}
