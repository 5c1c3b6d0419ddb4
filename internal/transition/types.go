package transition

import "time"

type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhasePendingStart Phase = "PENDING_START"
	PhasePendingStop  Phase = "PENDING_STOP"
)

type Command string

const (
	CommandStart Command = "start_bot"
	CommandStop  Command = "stop_bot"
)

type OutcomeKind string

const (
	OutcomeRequested OutcomeKind = "requested"
	OutcomeAdopted   OutcomeKind = "adopted"
	OutcomeStaleEcho OutcomeKind = "stale_echo"
	OutcomeResolved  OutcomeKind = "resolved"
	OutcomeTimedOut  OutcomeKind = "timed_out"
	OutcomeFailed    OutcomeKind = "failed"
)

// RunState is the controller's view of the bot. Deadline is zero unless a
// transition is pending.
type RunState struct {
	Running  bool      `json:"running"`
	Known    bool      `json:"known"`
	Phase    Phase     `json:"phase"`
	Deadline time.Time `json:"deadline,omitempty"`
}

func (s RunState) Pending() bool {
	return s.Phase != PhaseIdle
}

// Surface is what the start/stop control should show.
type Surface struct {
	Label   string  `json:"label"`
	Enabled bool    `json:"enabled"`
	Action  Command `json:"action"`
}

// Outcome describes one state change, reported to the observer.
type Outcome struct {
	Kind    OutcomeKind   `json:"kind"`
	Phase   Phase         `json:"phase"`
	Running bool          `json:"running"`
	Message string        `json:"message,omitempty"`
	At      time.Time     `json:"at"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

func target(phase Phase) bool {
	return phase == PhasePendingStart
}

func surfaceFor(s RunState) Surface {
	switch s.Phase {
	case PhasePendingStart:
		return Surface{Label: "Starting...", Enabled: false, Action: CommandStart}
	case PhasePendingStop:
		return Surface{Label: "Stopping...", Enabled: false, Action: CommandStop}
	}
	if s.Known && s.Running {
		return Surface{Label: "Stop Bot", Enabled: true, Action: CommandStop}
	}
	return Surface{Label: "Start Bot", Enabled: true, Action: CommandStart}
}
