package registration

// State is the phase of a registration run.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRunningRegistration
	StateRunningResample
	StateImporting
	StateCompleted
	StateCancelling
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRunningRegistration:
		return "running registration"
	case StateRunningResample:
		return "running resample"
	case StateImporting:
		return "importing"
	case StateCompleted:
		return "completed"
	case StateCancelling:
		return "cancelling"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether a run has ended in s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// cancellable reports whether a cancel request observed in s moves the run
// to Cancelling.
func (s State) cancellable() bool {
	return s == StatePreparing || s == StateRunningRegistration || s == StateRunningResample
}
