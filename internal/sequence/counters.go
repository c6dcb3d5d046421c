package sequence

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/frontdesk/internal/fsutil"
	"github.com/roach88/frontdesk/internal/record"
)

// Default file names inside the data directory.
const (
	DefaultIDFile   = "last_id"
	DefaultTurnFile = "turn"
)

// Counters is a value snapshot of the counter state.
type Counters struct {
	LastID       int64  `json:"last_id"`
	LastTurn     int    `json:"last_turn"`
	LastTurnDate string `json:"last_turn_date,omitempty"` // "" before the first turn
}

// CorruptFileError describes a counter file that could not be parsed.
// Load treats it as absent; it is reported, never returned as a failure.
type CorruptFileError struct {
	Path string
	Raw  string
	Err  error
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt counter file %s (%q): %v", e.Path, e.Raw, e.Err)
}

func (e *CorruptFileError) Unwrap() error {
	return e.Err
}

// LoadReport lists the counter files that failed open during Load.
type LoadReport struct {
	Corrupt []*CorruptFileError
}

// Store is the durable counter store.
//
// Thread-safety: methods are safe for concurrent use, but a Snapshot → Next* →
// Persist/Restore sequence is only atomic if the caller serialises it.
type Store struct {
	mu       sync.Mutex
	idPath   string
	turnPath string
	c        Counters
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFiles overrides the counter file names (relative names are joined to the
// store directory).
func WithFiles(idFile, turnFile string) Option {
	return func(s *Store) {
		dir := filepath.Dir(s.idPath)
		if idFile != "" {
			s.idPath = joinIfRelative(dir, idFile)
		}
		if turnFile != "" {
			s.turnPath = joinIfRelative(dir, turnFile)
		}
	}
}

// NewStore returns a store for the counter files in dir. Call Load before use.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		idPath:   filepath.Join(dir, DefaultIDFile),
		turnPath: filepath.Join(dir, DefaultTurnFile),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths returns the id file and turn file paths.
func (s *Store) Paths() (idPath, turnPath string) {
	return s.idPath, s.turnPath
}

// Load reads both counter files. Missing or corrupt files fail open to zero.
// Only I/O errors other than "not exist" are returned.
func (s *Store) Load() (LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report LoadReport
	s.c = Counters{}

	raw, err := readIfExists(s.idPath)
	if err != nil {
		return report, fmt.Errorf("load counters: %w", err)
	}
	if raw != nil {
		id, perr := parseID(raw)
		if perr != nil {
			report.Corrupt = append(report.Corrupt, &CorruptFileError{Path: s.idPath, Raw: string(raw), Err: perr})
		} else {
			s.c.LastID = id
		}
	}

	raw, err = readIfExists(s.turnPath)
	if err != nil {
		return report, fmt.Errorf("load counters: %w", err)
	}
	if raw != nil {
		date, turn, perr := parseTurn(raw)
		if perr != nil {
			report.Corrupt = append(report.Corrupt, &CorruptFileError{Path: s.turnPath, Raw: string(raw), Err: perr})
		} else {
			s.c.LastTurn = turn
			s.c.LastTurnDate = date
		}
	}

	for _, c := range report.Corrupt {
		s.logger.Warn("counter file unreadable, starting from zero", "path", c.Path, "error", c.Err)
	}
	s.logger.Debug("counters loaded", "last_id", s.c.LastID, "last_turn", s.c.LastTurn, "last_turn_date", s.c.LastTurnDate)

	return report, nil
}

// NextID returns last_id+1 and advances last_id in memory.
func (s *Store) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.LastID++
	return s.c.LastID
}

// NextTurn returns the next turn for today ("YYYY-MM-DD") and advances the
// turn state in memory. A date different from last_turn_date starts at 1.
func (s *Store) NextTurn(today string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c.LastTurnDate == today {
		s.c.LastTurn++
	} else {
		s.c.LastTurn = 1
		s.c.LastTurnDate = today
	}
	return s.c.LastTurn
}

// Current returns the in-memory counters.
func (s *Store) Current() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Snapshot is an alias of Current, used before a reservation that may need
// to be undone.
func (s *Store) Snapshot() Counters {
	return s.Current()
}

// Restore puts the in-memory counters back to snap. Nothing is written.
func (s *Store) Restore(snap Counters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = snap
}

// Raise moves the counters forward to at least floor and reports whether
// anything changed. The id never moves backwards. The turn state follows the
// newest issued record that floor describes, unless the counters already hold
// a larger turn on that date or belong to a later id on an earlier date.
func (s *Store) Raise(floor Counters) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.c
	if floor.LastID > s.c.LastID {
		s.c.LastID = floor.LastID
	}
	switch {
	case floor.LastTurnDate == "":
	case floor.LastTurnDate == before.LastTurnDate:
		if floor.LastTurn > s.c.LastTurn {
			s.c.LastTurn = floor.LastTurn
		}
	case floor.LastID >= before.LastID || floor.LastTurnDate > before.LastTurnDate:
		// The clock may have been moved back, so a stale turn file can carry
		// a later date than the newest record.
		s.c.LastTurnDate = floor.LastTurnDate
		s.c.LastTurn = floor.LastTurn
	}
	return s.c != before
}

// Persist atomically writes both counter files.
func (s *Store) Persist() error {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	if err := fsutil.WriteFileAtomic(s.idPath, []byte(strconv.FormatInt(c.LastID, 10)), 0o644); err != nil {
		return fmt.Errorf("persist last_id: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.turnPath, []byte(formatTurn(c)), 0o644); err != nil {
		return fmt.Errorf("persist turn: %w", err)
	}
	return nil
}

func formatTurn(c Counters) string {
	return c.LastTurnDate + "|" + strconv.Itoa(c.LastTurn)
}

func parseID(raw []byte) (int64, error) {
	v := strings.TrimSpace(string(raw))
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, fmt.Errorf("negative id %d", id)
	}
	return id, nil
}

func parseTurn(raw []byte) (string, int, error) {
	date, num, ok := strings.Cut(strings.TrimSpace(string(raw)), "|")
	if !ok {
		return "", 0, errors.New("missing '|' separator")
	}
	turn, err := strconv.Atoi(num)
	if err != nil {
		return "", 0, err
	}
	if turn < 0 {
		return "", 0, fmt.Errorf("negative turn %d", turn)
	}
	if date == "" {
		if turn != 0 {
			return "", 0, fmt.Errorf("turn %d without a date", turn)
		}
		return "", 0, nil
	}
	if _, err := time.Parse(record.DateLayout, date); err != nil {
		return "", 0, err
	}
	return date, turn, nil
}

func readIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func joinIfRelative(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
