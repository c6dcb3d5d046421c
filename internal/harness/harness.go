package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/roach88/frontdesk/internal/recordlog"
	"github.com/roach88/frontdesk/internal/registry"
	"github.com/roach88/frontdesk/internal/testutil"
)

// traceTimeLayout formats TraceEvent.At.
const traceTimeLayout = "2006-01-02 15:04:05"

// Harness is the test execution engine.
// It runs scenarios against a real registry with a fixed clock.
type Harness struct {
	dir     string
	loc     *time.Location
	policy  recordlog.LoadPolicy
	clock   *testutil.FixedClock
	logger  *slog.Logger
	service *registry.Service
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh temporary data directory.
//
// Execution flow:
// 1. Write setup files and open the registry
// 2. Execute flow steps with expect validation
// 3. Reopen the data directory and capture the durable state
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "frontdesk-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	defer os.RemoveAll(dir)

	return RunIn(scenario, dir)
}

// RunIn executes a scenario using dir as the data directory. dir should be
// empty; it is left in place for inspection.
func RunIn(scenario *Scenario, dir string) (*Result, error) {
	loc, err := scenario.Location()
	if err != nil {
		return nil, err
	}
	start, err := scenario.StartTime()
	if err != nil {
		return nil, err
	}
	policy, err := recordlog.ParseLoadPolicy(scenario.Setup.LoadPolicy)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		dir:    dir,
		loc:    loc,
		policy: policy,
		clock:  testutil.NewFixedClock(start),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()

	if err := h.writeFiles(scenario.Setup.Files); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute flow[%d]: %w", i, err)
		}
	}

	// Read the state back through a fresh open so assertions see what is
	// durable, not what the running service holds in memory.
	if err := h.restart(ctx); err != nil {
		return nil, fmt.Errorf("failed to reopen registry: %w", err)
	}
	result.State = h.finalState()

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, h.service.Records(), loc) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) open(ctx context.Context) error {
	svc, err := registry.Open(ctx, registry.Options{
		Dir:        h.dir,
		LoadPolicy: h.policy,
		Location:   h.loc,
		Clock:      h.clock,
		Logger:     h.logger,
	})
	if err != nil {
		return err
	}
	h.service = svc
	return nil
}

func (h *Harness) close() {
	if h.service != nil {
		_ = h.service.Close()
		h.service = nil
	}
}

func (h *Harness) restart(ctx context.Context) error {
	h.close()
	return h.open(ctx)
}

func (h *Harness) writeFiles(files map[string]string) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(h.dir, name), []byte(files[name]), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	switch {
	case step.Register != nil:
		h.executeRegister(ctx, index, step, result)
		return nil

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		result.addEvent(TraceEvent{Step: "advance", At: h.now(), Detail: step.Advance})
		return nil

	case step.SetClock != "":
		t, err := time.ParseInLocation(StartLayout, step.SetClock, h.loc)
		if err != nil {
			return err
		}
		h.clock.Set(t)
		result.addEvent(TraceEvent{Step: "set_clock", At: h.now()})
		return nil

	case step.NextDay:
		h.clock.NextDay()
		result.addEvent(TraceEvent{Step: "next_day", At: h.now()})
		return nil

	case step.Restart:
		if err := h.restart(ctx); err != nil {
			return err
		}
		result.addEvent(TraceEvent{Step: "restart", At: h.now()})
		return nil

	case step.Crash != nil:
		h.close()
		if err := h.writeFiles(step.Crash.Files); err != nil {
			return err
		}
		if err := h.open(ctx); err != nil {
			return err
		}
		names := make([]string, 0, len(step.Crash.Files))
		for name := range step.Crash.Files {
			names = append(names, name)
		}
		sort.Strings(names)
		result.addEvent(TraceEvent{Step: "crash", At: h.now(), Detail: strings.Join(names, ",")})
		return nil
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) executeRegister(ctx context.Context, index int, step Step, result *Result) {
	f := *step.Register
	rec, err := h.service.Register(ctx, f)

	norm := f.Normalize()
	ev := TraceEvent{
		Step:    "register",
		At:      h.now(),
		Visitor: strings.TrimSpace(norm.FirstName + " " + norm.LastName),
	}
	if err != nil {
		ev.Error = string(registry.CodeOf(err))
		if ev.Error == "" {
			ev.Error = err.Error()
		}
	}
	if err == nil || registry.IsPartialPersistence(err) {
		ev.ID = rec.ID
		ev.Turn = rec.Turn
	}
	result.addEvent(ev)

	checkExpect(index, step.Expect, ev, result)
}

func checkExpect(index int, want *Expect, got TraceEvent, result *Result) {
	if want == nil {
		if got.Error != "" {
			result.AddError(fmt.Sprintf("flow[%d]: unexpected error %s", index, got.Error))
		}
		return
	}
	if want.Error != "" {
		if got.Error != want.Error {
			result.AddError(fmt.Sprintf("flow[%d]: expected error %s, got %q", index, want.Error, got.Error))
		}
		return
	}
	if got.Error != "" {
		result.AddError(fmt.Sprintf("flow[%d]: unexpected error %s", index, got.Error))
		return
	}
	if want.ID != 0 && got.ID != want.ID {
		result.AddError(fmt.Sprintf("flow[%d]: expected id %d, got %d", index, want.ID, got.ID))
	}
	if want.Turn != 0 && got.Turn != want.Turn {
		result.AddError(fmt.Sprintf("flow[%d]: expected turn %d, got %d", index, want.Turn, got.Turn))
	}
}

func (h *Harness) now() string {
	return h.clock.Now().In(h.loc).Format(traceTimeLayout)
}

func (h *Harness) finalState() FinalState {
	view := h.service.OrderedView()
	state := FinalState{
		Counters:    h.service.Counters(),
		OrderedView: make([]int64, len(view)),
		Turns:       make([]int, len(view)),
	}
	for i, r := range view {
		state.OrderedView[i] = r.ID
		state.Turns[len(view)-1-i] = r.Turn
	}
	return state
}
