package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/frontdesk/internal/record"
	"github.com/roach88/frontdesk/internal/recordlog"
	"github.com/roach88/frontdesk/internal/registry"
)

// StartLayout is the format of Scenario.Start.
const StartLayout = "2006-01-02 15:04"

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Timezone is the desk's IANA time zone. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Start is the initial clock reading, in StartLayout and Timezone.
	Start string `yaml:"start"`

	// Setup prepares the data directory before the registry opens.
	Setup Setup `yaml:"setup,omitempty"`

	// Flow is the ordered list of steps.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup describes the data directory before the first open.
type Setup struct {
	// LoadPolicy is "strict" (default) or "lenient".
	LoadPolicy string `yaml:"load_policy,omitempty"`

	// Files maps data file names to their raw contents.
	Files map[string]string `yaml:"files,omitempty"`
}

// Step is one flow step. Exactly one action field is set.
type Step struct {
	Register *record.Fields `yaml:"register,omitempty"`
	Expect   *Expect        `yaml:"expect,omitempty"`

	Advance  string     `yaml:"advance,omitempty"`
	SetClock string     `yaml:"set_clock,omitempty"` // StartLayout, may move the clock back
	NextDay  bool       `yaml:"next_day,omitempty"`
	Restart  bool       `yaml:"restart,omitempty"`
	Crash    *CrashStep `yaml:"crash,omitempty"`
}

// Expect is the expected outcome of a register step.
type Expect struct {
	ID   int64 `yaml:"id,omitempty"`
	Turn int   `yaml:"turn,omitempty"`

	// Error is a registry error code such as "VALIDATION". When set the
	// step must fail with that code.
	Error string `yaml:"error,omitempty"`
}

// CrashStep overwrites data files while the registry is down.
type CrashStep struct {
	Files map[string]string `yaml:"files"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// IDs is the expected ordered view (ordered_view).
	IDs []int64 `yaml:"ids,omitempty"`

	// Turns is the expected turn sequence in id order (turns).
	Turns []int `yaml:"turns,omitempty"`

	// Count is the expected number of records (record_count).
	Count int `yaml:"count,omitempty"`

	// Counters is the expected persisted state (counters).
	Counters *CountersExpect `yaml:"counters,omitempty"`
}

// CountersExpect mirrors sequence.Counters for YAML.
type CountersExpect struct {
	LastID       int64  `yaml:"last_id"`
	LastTurn     int    `yaml:"last_turn"`
	LastTurnDate string `yaml:"last_turn_date"`
}

// Assertion type constants.
const (
	AssertOrderedView = "ordered_view"
	AssertRecordCount = "record_count"
	AssertTurns       = "turns"
	AssertCounters    = "counters"
	AssertPrinciples  = "principles"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Location resolves Timezone.
func (s *Scenario) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// StartTime parses Start in the scenario's location.
func (s *Scenario) StartTime() (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(StartLayout, s.Start, loc)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := s.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	if _, err := s.StartTime(); err != nil {
		return fmt.Errorf("start must be %q: %w", StartLayout, err)
	}

	if _, err := recordlog.ParseLoadPolicy(s.Setup.LoadPolicy); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	if err := validateFiles("setup", s.Setup.Files); err != nil {
		return err
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	actions := 0
	if step.Register != nil {
		actions++
	}
	if step.Advance != "" {
		actions++
		if _, err := time.ParseDuration(step.Advance); err != nil {
			return fmt.Errorf("flow[%d].advance: %w", index, err)
		}
	}
	if step.SetClock != "" {
		actions++
		if _, err := time.Parse(StartLayout, step.SetClock); err != nil {
			return fmt.Errorf("flow[%d].set_clock must be %q: %w", index, StartLayout, err)
		}
	}
	if step.NextDay {
		actions++
	}
	if step.Restart {
		actions++
	}
	if step.Crash != nil {
		actions++
		if len(step.Crash.Files) == 0 {
			return fmt.Errorf("flow[%d].crash: files is required", index)
		}
		if err := validateFiles(fmt.Sprintf("flow[%d].crash", index), step.Crash.Files); err != nil {
			return err
		}
	}

	if actions != 1 {
		return fmt.Errorf("flow[%d]: exactly one of register, advance, set_clock, next_day, restart, crash is required (got %d)", index, actions)
	}
	if step.Expect != nil && step.Register == nil {
		return fmt.Errorf("flow[%d]: expect is only valid on register steps", index)
	}
	if e := step.Expect; e != nil && e.Error != "" && (e.ID != 0 || e.Turn != 0) {
		return fmt.Errorf("flow[%d].expect: error excludes id and turn", index)
	}
	if e := step.Expect; e != nil && e.Error != "" {
		switch registry.ErrorCode(e.Error) {
		case registry.ErrCodeValidation, registry.ErrCodeStorageUnavailable,
			registry.ErrCodeCorruptState, registry.ErrCodePartialPersistence:
		default:
			return fmt.Errorf("flow[%d].expect: unknown error code %q", index, e.Error)
		}
	}
	return nil
}

func validateFiles(where string, files map[string]string) error {
	for name := range files {
		if name == "" || filepath.Base(name) != name {
			return fmt.Errorf("%s: file name %q must be a bare name", where, name)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOrderedView:
		if a.IDs == nil {
			return fmt.Errorf("assertions[%d]: ordered_view requires ids", index)
		}
	case AssertTurns:
		if a.Turns == nil {
			return fmt.Errorf("assertions[%d]: turns requires turns", index)
		}
	case AssertCounters:
		if a.Counters == nil {
			return fmt.Errorf("assertions[%d]: counters requires counters", index)
		}
	case AssertRecordCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be >= 0", index)
		}
	case AssertPrinciples:
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
