package process

// Status is where a launched tool is in its lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	// StatusCompleted means exit code 0.
	StatusCompleted
	// StatusFailed means a non-zero exit code or a failed wait.
	StatusFailed
	// StatusKilled means Kill was called before the tool exited.
	StatusKilled
)

var statusNames = [...]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
	StatusKilled:    "killed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// IsTerminal reports whether the tool has exited.
func (s Status) IsTerminal() bool {
	return s >= StatusCompleted && int(s) < len(statusNames)
}
