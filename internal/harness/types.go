package harness

import (
	"github.com/roach88/frontdesk/internal/sequence"
)

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Step    string `json:"step"` // "register", "advance", "set_clock", "next_day", "restart", "crash"
	At      string `json:"at"`   // clock reading after the step
	Visitor string `json:"visitor,omitempty"`
	ID      int64  `json:"id,omitempty"`
	Turn    int    `json:"turn,omitempty"`
	Error   string `json:"error,omitempty"` // registry error code
	Detail  string `json:"detail,omitempty"`
}

// FinalState is what the data directory holds after the flow.
type FinalState struct {
	Counters    sequence.Counters `json:"counters"`
	OrderedView []int64           `json:"ordered_view"`
	Turns       []int             `json:"turns"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is read back from disk after the flow.
	State FinalState `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
