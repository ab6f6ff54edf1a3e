package tracker

import "time"

// State is the lifecycle state of the runner.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// CycleResult summarizes one cycle.
type CycleResult struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration_ns"`
	Wallets       int           `json:"wallets"`
	FailedWallets int           `json:"failed_wallets"`
	Signatures    int           `json:"signatures"`
	Events        int           `json:"events"`
	Failed        bool          `json:"failed"`
}

// Status is a point-in-time view of the runner.
type Status struct {
	State               State        `json:"state"`
	Cycles              int          `json:"cycles"`
	LastCycleAt         *time.Time   `json:"last_cycle_at,omitempty"`
	LastCycle           *CycleResult `json:"last_cycle,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	StopReason          string       `json:"stop_reason,omitempty"`
}

// Status returns a copy of the current status.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	if s.LastCycleAt != nil {
		at := *s.LastCycleAt
		s.LastCycleAt = &at
	}
	if s.LastCycle != nil {
		last := *s.LastCycle
		s.LastCycle = &last
	}
	return s
}

func (r *Runner) setState(state State, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = state
	r.status.StopReason = reason
}
