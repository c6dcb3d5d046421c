package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/frontdesk/internal/fsutil"
	"github.com/roach88/frontdesk/internal/registry"
	"github.com/roach88/frontdesk/internal/testutil"
)

// deskEnv is a throwaway desk: a config file, a data directory and a clock.
type deskEnv struct {
	root    string
	dataDir string
	cfgPath string
	clock   *testutil.FixedClock
}

func newDeskEnv(t *testing.T, mirrorYAML string) *deskEnv {
	t.Helper()
	root := t.TempDir()
	e := &deskEnv{
		root:    root,
		dataDir: filepath.Join(root, "data"),
		cfgPath: filepath.Join(root, "frontdesk.yaml"),
		clock:   testutil.NewFixedClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
	}
	if mirrorYAML == "" {
		mirrorYAML = "  disabled: true\n"
	}
	cfg := fmt.Sprintf(`data:
  dir: %q
desk:
  timezone: "UTC"
mirror:
%scatalog:
  path: %q
`, e.dataDir, mirrorYAML, filepath.Join(root, "catalog.yaml"))
	require.NoError(t, os.WriteFile(e.cfgPath, []byte(cfg), 0o644))
	return e
}

func (e *deskEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), args...)
}

func (e *deskEnv) runContext(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	opts := &RootOptions{Clock: e.clock}
	cmd := newRootCommand(opts)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func registerArgs(first, last, company, provider, plate string) []string {
	return []string{"register",
		"--first", first, "--last", last, "--company", company,
		"--provider", provider, "--plate", plate,
	}
}

func TestRegister_AssignsIDsAndDailyTurns(t *testing.T) {
	e := newDeskEnv(t, "")

	out, _, err := e.run(t, registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123")...)
	require.NoError(t, err)
	assert.Equal(t, "Registro completado. Turno: 1\nFolio: 1\n", out)

	e.clock.Advance(time.Minute)
	out, _, err = e.run(t, registerArgs("Luis", "Perez", "Initech", "ProveedorY", "XYZ-999")...)
	require.NoError(t, err)
	assert.Equal(t, "Registro completado. Turno: 2\nFolio: 2\n", out)

	e.clock.NextDay()
	out, _, err = e.run(t, registerArgs("Eva", "Ruiz", "Globex", "ProveedorX", "QWE-456")...)
	require.NoError(t, err)
	assert.Equal(t, "Registro completado. Turno: 1\nFolio: 3\n", out)
}

func TestRegister_TrimsFields(t *testing.T) {
	e := newDeskEnv(t, "")

	out, _, err := e.run(t, "--format", "json", "register",
		"--first", "  Ana ", "--last", "Lopez", "--company", "ACME",
		"--provider", "ProveedorX", "--plate", " ABC-123\t")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   RegisterResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Ana", resp.Data.Record.FirstName)
	assert.Equal(t, "ABC-123", resp.Data.Record.Plate)
	assert.Equal(t, int64(1), resp.Data.Record.ID)
	assert.Equal(t, 1, resp.Data.Record.Turn)
	assert.False(t, resp.Data.Queued, "mirror disabled")
	assert.Empty(t, resp.Data.Ticket)
}

func TestRegister_MissingFieldsRejected(t *testing.T) {
	e := newDeskEnv(t, "")

	_, _, err := e.run(t, "register", "--first", "Ana", "--last", "", "--company", "ACME", "--provider", "ProveedorX")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, registry.IsValidation(err))
	assert.Contains(t, err.Error(), "last_name")
	assert.Contains(t, err.Error(), "plate_number")

	// Nothing was issued: the next registration still gets id 1.
	out, _, err := e.run(t, registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Folio: 1")
}

func TestRegister_Print(t *testing.T) {
	e := newDeskEnv(t, "")

	out, _, err := e.run(t, append(registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123"), "--print")...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Registro completado. Turno: 1\nFolio: 1\n"))
	assert.Contains(t, out, "TURNO 1")
	assert.Contains(t, out, "Folio:     000001")
	assert.Contains(t, out, "Placas:    ABC-123")
}

func TestRegister_DataDirLocked(t *testing.T) {
	e := newDeskEnv(t, "")
	require.NoError(t, fsutil.EnsureDir(e.dataDir))
	lock, err := fsutil.LockDir(e.dataDir)
	require.NoError(t, err)
	defer lock.Unlock()

	_, _, err = e.run(t, registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, registry.IsStorageUnavailable(err))
}

func TestList(t *testing.T) {
	e := newDeskEnv(t, "")

	out, _, err := e.run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "No registrations yet.\n", out)

	for _, name := range []string{"Ana", "Luis", "Eva"} {
		_, _, err := e.run(t, registerArgs(name, "X", "ACME", "ProveedorX", "ABC-123")...)
		require.NoError(t, err)
		e.clock.Advance(time.Minute)
	}

	out, _, err = e.run(t, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "3 "))
	assert.Contains(t, lines[1], "Eva X")
	assert.Contains(t, lines[1], "2024-01-01 09:02:00")
	assert.True(t, strings.HasPrefix(lines[3], "1 "))

	out, _, err = e.run(t, "list", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "(1 of 3 shown)")

	out, _, err = e.run(t, "--format", "json", "list", "-n", "2")
	require.NoError(t, err)
	var resp struct {
		Data ListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Total)
	require.Len(t, resp.Data.Records, 2)
	assert.Equal(t, int64(3), resp.Data.Records[0].ID)
	assert.Equal(t, int64(2), resp.Data.Records[1].ID)
}

func TestList_NegativeLimit(t *testing.T) {
	e := newDeskEnv(t, "")
	_, _, err := e.run(t, "list", "--limit", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTicket(t *testing.T) {
	e := newDeskEnv(t, "")
	_, _, err := e.run(t, registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123")...)
	require.NoError(t, err)
	_, _, err = e.run(t, registerArgs("Luis", "Perez", "Initech", "ProveedorY", "XYZ-999")...)
	require.NoError(t, err)

	out, _, err := e.run(t, "ticket", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "TURNO 2")
	assert.Contains(t, out, "Folio:     000002")
	assert.Contains(t, out, "Nombre:    Luis Perez")

	_, _, err = e.run(t, "ticket", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, _, err = e.run(t, "ticket", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReconcile_RaisesStaleCounters(t *testing.T) {
	e := newDeskEnv(t, "")
	for _, name := range []string{"Ana", "Luis", "Eva"} {
		_, _, err := e.run(t, registerArgs(name, "X", "ACME", "ProveedorX", "ABC-123")...)
		require.NoError(t, err)
	}

	// Simulate a crash that lost the counter writes.
	require.NoError(t, os.WriteFile(filepath.Join(e.dataDir, "last_id"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(e.dataDir, "turn"), []byte("2024-01-01|1"), 0o644))

	out, _, err := e.run(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Before: last_id=1 last_turn=1 date=2024-01-01")
	assert.Contains(t, out, "After:  last_id=3 last_turn=3 date=2024-01-01")
	assert.Contains(t, out, "Counters raised to match the log.")

	out, _, err = e.run(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Counters already consistent.")

	out, _, err = e.run(t, registerArgs("Sam", "X", "ACME", "ProveedorX", "ABC-123")...)
	require.NoError(t, err)
	assert.Equal(t, "Registro completado. Turno: 4\nFolio: 4\n", out)
}

// sheetServer is a webhook endpoint that records rows and fails on demand.
type sheetServer struct {
	mu      sync.Mutex
	failing bool
	rows    [][]any
}

func (s *sheetServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		http.Error(w, "sheet unavailable", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Values []any `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.rows = append(s.rows, body.Values)
}

func (s *sheetServer) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *sheetServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func TestMirror_RegisterDeliversRow(t *testing.T) {
	sheet := &sheetServer{}
	srv := httptest.NewServer(sheet)
	defer srv.Close()
	e := newDeskEnv(t, fmt.Sprintf("  url: %q\n  timeout: \"2s\"\n", srv.URL))

	_, _, err := e.run(t, registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123")...)
	require.NoError(t, err)
	require.Equal(t, 1, sheet.count())
	assert.Equal(t, []any{float64(1), "2024-01-01 09:00:00", "Ana", "Lopez", "ACME", "ProveedorX", "ABC-123", float64(1)}, sheet.rows[0])

	out, _, err := e.run(t, "mirror", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:   0 (0 failing)")
	assert.Contains(t, out, "Delivered: 1")
	assert.NotContains(t, out, "Oldest pending")
}

func TestMirror_FailureKeepsRegistrationAndQueuesRow(t *testing.T) {
	sheet := &sheetServer{failing: true}
	srv := httptest.NewServer(sheet)
	defer srv.Close()
	e := newDeskEnv(t, fmt.Sprintf("  url: %q\n  timeout: \"2s\"\n", srv.URL))

	out, _, err := e.run(t, registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123")...)
	require.NoError(t, err, "mirror failure must not fail registration")
	assert.Contains(t, out, "Turno: 1")

	out, _, err = e.run(t, "--format", "json", "mirror", "status")
	require.NoError(t, err)
	var resp struct {
		Data struct {
			Pending       int        `json:"pending"`
			Failing       int        `json:"failing"`
			OldestPending *time.Time `json:"oldest_pending"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Pending)
	assert.Equal(t, 1, resp.Data.Failing)
	assert.NotNil(t, resp.Data.OldestPending)

	_, _, err = e.run(t, "mirror", "drain")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	sheet.setFailing(false)
	out, _, err = e.run(t, "mirror", "drain")
	require.NoError(t, err)
	assert.Equal(t, "Delivered: 1\n", out)
	assert.Equal(t, 1, sheet.count())
}

func TestMirror_RegisterVerboseReportsDelivery(t *testing.T) {
	sheet := &sheetServer{}
	srv := httptest.NewServer(sheet)
	defer srv.Close()
	e := newDeskEnv(t, fmt.Sprintf("  url: %q\n", srv.URL))

	_, stderr, err := e.run(t, append(registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123"), "--verbose")...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Mirrored 1 row(s) to the sheet")

	sheet.setFailing(true)
	_, stderr, err = e.run(t, append(registerArgs("Luis", "Perez", "ACME", "ProveedorX", "DEF-456"), "--verbose")...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Mirror unavailable, record 2 stays queued")
}

func TestMirrorStatus_Record(t *testing.T) {
	sheet := &sheetServer{failing: true}
	srv := httptest.NewServer(sheet)
	defer srv.Close()
	e := newDeskEnv(t, fmt.Sprintf("  url: %q\n", srv.URL))

	_, _, err := e.run(t, registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123")...)
	require.NoError(t, err)

	out, _, err := e.run(t, "mirror", "status", "--record", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Record 1: pending")
	assert.Contains(t, out, "1 failed attempt(s)")
	assert.Contains(t, out, "Last error:")

	sheet.setFailing(false)
	_, _, err = e.run(t, "mirror", "drain")
	require.NoError(t, err)

	out, _, err = e.run(t, "--format", "json", "mirror", "status", "--record", "1")
	require.NoError(t, err)
	var resp struct {
		Data MirrorRecordStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(1), resp.Data.RecordID)
	assert.NotEmpty(t, resp.Data.MessageID)
	assert.Equal(t, 2, resp.Data.Attempts)
	assert.NotNil(t, resp.Data.DeliveredAt)

	_, _, err = e.run(t, "mirror", "status", "--record", "7")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "record 7 was never queued")
}

func TestMirrorWatch_DeliversUntilCancelled(t *testing.T) {
	sheet := &sheetServer{failing: true}
	srv := httptest.NewServer(sheet)
	defer srv.Close()
	e := newDeskEnv(t, fmt.Sprintf("  url: %q\n  interval: \"10ms\"\n  max_backoff: \"50ms\"\n", srv.URL))

	_, _, err := e.run(t, registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123")...)
	require.NoError(t, err)
	require.Equal(t, 0, sheet.count())
	sheet.setFailing(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			if sheet.count() == 1 {
				cancel()
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	out, _, err := e.runContext(t, ctx, "mirror", "watch")
	require.NoError(t, err)
	assert.Equal(t, 1, sheet.count())
	assert.Equal(t, "Mirror stopped. Pending: 0\n", out)
}

func TestMirrorWatch_DoesNotLockDataDir(t *testing.T) {
	sheet := &sheetServer{}
	srv := httptest.NewServer(sheet)
	defer srv.Close()
	e := newDeskEnv(t, fmt.Sprintf("  url: %q\n  interval: \"10ms\"\n", srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, _, err := e.runContext(t, ctx, "mirror", "watch")
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(e.dataDir, "outbox.db"))
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)

	_, _, err := e.run(t, append(registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123"), "--no-mirror")...)
	require.NoError(t, err)

	cancel()
	require.NoError(t, <-done)
}

func TestMirror_NoMirrorFlagSkipsQueue(t *testing.T) {
	sheet := &sheetServer{}
	srv := httptest.NewServer(sheet)
	defer srv.Close()
	e := newDeskEnv(t, fmt.Sprintf("  url: %q\n", srv.URL))

	_, _, err := e.run(t, append(registerArgs("Ana", "Lopez", "ACME", "ProveedorX", "ABC-123"), "--no-mirror")...)
	require.NoError(t, err)
	assert.Equal(t, 0, sheet.count())

	out, _, err := e.run(t, "mirror", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending:   0")
}

func TestMirror_Disabled(t *testing.T) {
	e := newDeskEnv(t, "")

	_, _, err := e.run(t, "mirror", "drain")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = e.run(t, "mirror", "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = e.run(t, "mirror", "watch")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCatalogSuggest(t *testing.T) {
	e := newDeskEnv(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "catalog.yaml"),
		[]byte("companies: [Globex, Acme, Aceros del Norte]\nproviders: [ProveedorX]\n"), 0o644))

	out, _, err := e.run(t, "catalog", "suggest", "companies", "ac")
	require.NoError(t, err)
	assert.Equal(t, "Aceros del Norte\nAcme\n", out)

	out, _, err = e.run(t, "--format", "json", "catalog", "suggest", "provider")
	require.NoError(t, err)
	var resp struct {
		Data CatalogResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"ProveedorX"}, resp.Data.Suggestions)

	out, _, err = e.run(t, "--format", "json", "catalog", "suggest", "companies", "zzz")
	require.NoError(t, err)
	assert.Contains(t, out, `"suggestions":[]`)

	_, _, err = e.run(t, "catalog", "suggest", "vendors")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	e := newDeskEnv(t, "")
	_, _, err := e.run(t, "--format", "yaml", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingConfigFile(t *testing.T) {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestExecute_ReportsJSONError(t *testing.T) {
	e := newDeskEnv(t, "")
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := Execute(context.Background(), []string{"--config", e.cfgPath, "--format", "json", "ticket", "abc"}, stdout, stderr)
	assert.Equal(t, ExitCommandError, code)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "invalid record id")
}

func TestExecute_TextErrorOnStderr(t *testing.T) {
	e := newDeskEnv(t, "")
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}

	code := Execute(context.Background(), []string{"--config", e.cfgPath, "register", "--first", "Ana"}, stdout, stderr)
	assert.Equal(t, ExitFailure, code)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "Error [VALIDATION]")
}

func TestExecute_UnknownFlag(t *testing.T) {
	code := Execute(context.Background(), []string{"list", "--bogus"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, ExitCommandError, code)
}

func TestExecute_Success(t *testing.T) {
	e := newDeskEnv(t, "")
	stdout := &bytes.Buffer{}
	code := Execute(context.Background(), []string{"--config", e.cfgPath, "list"}, stdout, &bytes.Buffer{})
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "No registrations yet.\n", stdout.String())
}
