package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontdesk/internal/record"
)

func ana() *record.Fields {
	return &record.Fields{FirstName: "Ana", LastName: "Lopez", Company: "ACME", Provider: "ProveedorX", Plate: "ABC-123"}
}

func TestScenarios_Golden(t *testing.T) {
	names := []string{
		"ana_luis_eva",
		"day_rollover",
		"crash_recovery",
		"malformed_counters",
		"validation_rejects",
		"lenient_corrupt_line",
		"clock_moved_back",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors=%v", result.Errors)
	require.Len(t, result.Trace, 1)
	ev := result.Trace[0]
	assert.Equal(t, 1, ev.Seq)
	assert.Equal(t, "register", ev.Step)
	assert.Equal(t, "2024-01-01 09:00:00", ev.At)
	assert.Equal(t, "Ana Lopez", ev.Visitor)
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, 1, ev.Turn)
	assert.Equal(t, []int64{1}, result.State.OrderedView)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	scenario.Flow[0].Expect = &Expect{ID: 7, Turn: 2}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected id 7, got 1")
	assert.Contains(t, result.Errors[1], "expected turn 2, got 1")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	scenario.Flow[0].Register.Plate = ""
	scenario.Flow[0].Expect = nil
	scenario.Assertions = []Assertion{{Type: AssertRecordCount, Count: 0}}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error VALIDATION")
	assert.Equal(t, "VALIDATION", result.Trace[0].Error)
	assert.Zero(t, result.Trace[0].ID)
}

func TestRun_ExpectedErrorMissingFails(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	scenario.Flow[0].Expect = &Expect{Error: "VALIDATION"}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error VALIDATION, got ""`)
}

func TestRun_AssertionFailureCarriesTrace(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	scenario.Assertions = []Assertion{{Type: AssertOrderedView, IDs: []int64{2, 1}}}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[0]: Assertion failed: ordered_view")
	assert.Contains(t, result.Errors[0], "Expected: [2 1]")
	assert.Contains(t, result.Errors[0], "Actual: [1]")
	assert.Contains(t, result.Errors[0], "Ana Lopez -> id=1 turn=1")
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "crash_recovery.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.State, second.State)
}

func TestRunIn_LeavesDataForInspection(t *testing.T) {
	dir := t.TempDir()
	scenario := &Scenario{
		Name:        "inspect",
		Description: "Data directory stays behind",
		Start:       "2024-03-05 10:15",
		Flow: []Step{
			{Register: ana()},
			{Advance: "90s"},
			{Register: ana()},
		},
		Assertions: []Assertion{{Type: AssertPrinciples}},
	}

	result, err := RunIn(scenario, dir)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors=%v", result.Errors)

	lastID, err := os.ReadFile(filepath.Join(dir, "last_id"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(lastID))

	turn, err := os.ReadFile(filepath.Join(dir, "turn"))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05|2", string(turn))

	assert.FileExists(t, filepath.Join(dir, "registros.tsv"))
	assert.Equal(t, "2024-03-05 10:16:30", result.Trace[1].At)
	assert.Equal(t, "90s", result.Trace[1].Detail)
}

func TestRun_InvalidTimezone(t *testing.T) {
	scenario := &Scenario{Name: "tz", Timezone: "Mars/Olympus", Start: "2024-01-01 09:00"}
	_, err := Run(scenario)
	require.Error(t, err)
}
