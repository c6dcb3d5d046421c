package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/frontdesk/internal/fsutil"
	"github.com/roach88/frontdesk/internal/record"
	"github.com/roach88/frontdesk/internal/recordlog"
	"github.com/roach88/frontdesk/internal/sequence"
)

// CounterStore is the durable counter state used by the Service.
// *sequence.Store implements it.
type CounterStore interface {
	Load() (sequence.LoadReport, error)
	NextID() int64
	NextTurn(today string) int
	Current() sequence.Counters
	Snapshot() sequence.Counters
	Restore(sequence.Counters)
	Raise(sequence.Counters) bool
	Persist() error
}

// RecordStore is the append-only record log used by the Service.
// *recordlog.Log implements it.
type RecordStore interface {
	Path() string
	LoadAll() ([]record.Record, recordlog.LoadReport, error)
	Append(record.Record) error
	Records() []record.Record
	OrderedView() []record.Record
	Find(id int64) (record.Record, bool)
}

// Options configures Open. Zero values select file-backed stores in Dir.
type Options struct {
	// Dir is the data directory. Required unless both stores are supplied.
	Dir string

	// LogFile and counter file names, relative to Dir.
	LogFile  string
	IDFile   string
	TurnFile string

	// LoadPolicy applies to the default record log.
	LoadPolicy recordlog.LoadPolicy

	// Location decides calendar dates for turns. Defaults to time.Local.
	Location *time.Location

	// Clock defaults to a system clock in Location.
	Clock sequence.Clock

	Logger *slog.Logger

	// NoLock skips the data directory lock (tests with injected stores).
	NoLock bool

	Counters CounterStore
	Log      RecordStore
}

// StartupReport summarises what Open found on disk.
type StartupReport struct {
	Records        int
	CorruptCounter []*CorruptStateError
	SkippedLines   []*CorruptStateError
	TornTail       string
	Reconcile      ReconcileResult
}

// Service is the registry façade.
type Service struct {
	mu       sync.Mutex
	counters CounterStore
	log      RecordStore
	clock    sequence.Clock
	loc      *time.Location
	logger   *slog.Logger
	lock     *fsutil.DirLock
	closed   bool
	startup  StartupReport

	// skippedID is the largest id on a log line skipped in lenient mode.
	skippedID int64
}

// Open loads the counters and the record log, reconciles them, and returns a
// ready Service. The caller must Close it.
func Open(ctx context.Context, opts Options) (*Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	clock := opts.Clock
	if clock == nil {
		clock = sequence.NewSystemClock(loc)
	}

	if opts.Dir == "" && (opts.Counters == nil || opts.Log == nil) {
		return nil, errors.New("registry: data directory is required")
	}

	s := &Service{
		counters: opts.Counters,
		log:      opts.Log,
		clock:    clock,
		loc:      loc,
		logger:   logger,
	}

	if opts.Dir != "" && !opts.NoLock {
		lock, err := fsutil.LockDir(opts.Dir)
		if err != nil {
			return nil, &StorageUnavailableError{Op: "lock", Path: opts.Dir, Err: err}
		}
		s.lock = lock
	}

	if s.counters == nil {
		s.counters = sequence.NewStore(opts.Dir,
			sequence.WithFiles(opts.IDFile, opts.TurnFile),
			sequence.WithLogger(logger),
		)
	}
	if s.log == nil {
		name := opts.LogFile
		if name == "" {
			name = recordlog.DefaultFileName
		}
		if !filepath.IsAbs(name) {
			name = filepath.Join(opts.Dir, name)
		}
		s.log = recordlog.New(name,
			recordlog.WithPolicy(opts.LoadPolicy),
			recordlog.WithLogger(logger),
		)
	}

	if err := s.load(); err != nil {
		_ = s.lock.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *Service) load() error {
	creport, err := s.counters.Load()
	if err != nil {
		return &StorageUnavailableError{Op: "load counters", Err: err}
	}
	for _, c := range creport.Corrupt {
		s.startup.CorruptCounter = append(s.startup.CorruptCounter, &CorruptStateError{Path: c.Path, Raw: c.Raw, Err: c.Err})
	}

	records, lreport, err := s.log.LoadAll()
	if err != nil {
		var cerr *recordlog.CorruptLineError
		if errors.As(err, &cerr) {
			return &CorruptStateError{Path: cerr.Path, Line: cerr.Line, Raw: cerr.Raw, Err: cerr.Err}
		}
		return &StorageUnavailableError{Op: "load record log", Path: s.log.Path(), Err: err}
	}
	for _, c := range lreport.Skipped {
		s.startup.SkippedLines = append(s.startup.SkippedLines, &CorruptStateError{Path: c.Path, Line: c.Line, Raw: c.Raw, Err: c.Err})
	}
	s.startup.Records = len(records)
	s.startup.TornTail = lreport.TornTail
	s.skippedID = lreport.MaxSkippedID

	res, err := s.reconcile(records)
	if err != nil {
		return err
	}
	s.startup.Reconcile = res

	c := s.counters.Current()
	s.logger.Info("registry ready",
		"records", len(records),
		"last_id", c.LastID,
		"last_turn", c.LastTurn,
		"last_turn_date", c.LastTurnDate,
	)
	return nil
}

// Register assigns the next id and turn to fields, appends the record to the
// log, and persists the counters.
//
// On a *PartialPersistenceWarning the returned record is valid and durable.
// On any other error the record is zero and nothing was written.
func (s *Service) Register(ctx context.Context, fields record.Fields) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	f := fields.Normalize()
	if missing := f.Missing(); len(missing) > 0 {
		return record.Record{}, &ValidationError{Fields: missing, Reason: "required fields are empty"}
	}
	if bad := f.Unencodable(); len(bad) > 0 {
		return record.Record{}, &ValidationError{Fields: bad, Reason: "fields contain tabs or line breaks"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return record.Record{}, ErrClosed
	}

	now := s.clock.Now().In(s.loc)
	today := now.Format(record.DateLayout)

	snap := s.counters.Snapshot()
	if snap.LastTurnDate > today {
		s.logger.Warn("clock is behind the last turn date", "today", today, "last_turn_date", snap.LastTurnDate)
	}
	id := s.counters.NextID()
	turn := s.counters.NextTurn(today)
	rec := record.New(id, turn, now, f)

	if err := s.log.Append(rec); err != nil {
		s.counters.Restore(snap)
		s.logger.Error("record append failed", "id", id, "turn", turn, "error", err)
		return record.Record{}, &StorageUnavailableError{Op: "append record", Path: s.log.Path(), Err: err}
	}

	if err := s.counters.Persist(); err != nil {
		warn := &PartialPersistenceWarning{RecordID: id, Turn: turn, Err: err}
		s.logger.Warn("record saved but counters not persisted", "id", id, "turn", turn, "error", err)
		return rec, warn
	}

	s.logger.Info("registered", "id", id, "turn", turn, "date", today)
	return rec, nil
}

// Records returns every record, oldest first.
func (s *Service) Records() []record.Record {
	return s.log.Records()
}

// OrderedView returns every record, newest first.
func (s *Service) OrderedView() []record.Record {
	return s.log.OrderedView()
}

// Find returns the record with id.
func (s *Service) Find(id int64) (record.Record, bool) {
	return s.log.Find(id)
}

// Counters returns the current in-memory counters.
func (s *Service) Counters() sequence.Counters {
	return s.counters.Current()
}

// Location returns the time zone used for calendar dates.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Startup returns what Open found on disk.
func (s *Service) Startup() StartupReport {
	return s.startup
}

// Close releases the data directory lock. Register fails afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("close registry: %w", err)
	}
	return nil
}
