package harness

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/roach88/frontdesk/internal/record"
	"github.com/roach88/frontdesk/internal/sequence"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", ev.Seq, ev.At, ev.Step)
			switch {
			case ev.Error != "":
				fmt.Fprintf(&buf, " %s -> %s", ev.Visitor, ev.Error)
			case ev.Step == "register":
				fmt.Fprintf(&buf, " %s -> id=%d turn=%d", ev.Visitor, ev.ID, ev.Turn)
			case ev.Detail != "":
				fmt.Fprintf(&buf, " %s", ev.Detail)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against result.State and the
// durable records, and returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, recs []record.Record, loc *time.Location) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, recs, loc); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, recs []record.Record, loc *time.Location) error {
	fail := func(expected, actual any) error {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprint(expected),
			Actual:   fmt.Sprint(actual),
			Trace:    result.Trace,
		}
	}

	switch a.Type {
	case AssertOrderedView:
		if !equalInt64s(a.IDs, result.State.OrderedView) {
			return fail(a.IDs, result.State.OrderedView)
		}
	case AssertTurns:
		if !equalInts(a.Turns, result.State.Turns) {
			return fail(a.Turns, result.State.Turns)
		}
	case AssertRecordCount:
		if len(recs) != a.Count {
			return fail(a.Count, len(recs))
		}
	case AssertCounters:
		want := sequence.Counters{
			LastID:       a.Counters.LastID,
			LastTurn:     a.Counters.LastTurn,
			LastTurnDate: a.Counters.LastTurnDate,
		}
		if !reflect.DeepEqual(want, result.State.Counters) {
			return fail(describeCounters(want), describeCounters(result.State.Counters))
		}
	case AssertPrinciples:
		if violations := CheckPrinciples(recs, result.State.Counters, loc); len(violations) > 0 {
			msgs := make([]string, len(violations))
			for i, v := range violations {
				msgs[i] = v.Error()
			}
			return fail("no violations", strings.Join(msgs, "; "))
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func describeCounters(c sequence.Counters) string {
	return fmt.Sprintf("last_id=%d last_turn=%d last_turn_date=%q", c.LastID, c.LastTurn, c.LastTurnDate)
}

func equalInt64s(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
