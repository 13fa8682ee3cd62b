// Package store keeps the output of clockbank runs in SQLite.
//
// A run is written once, while it executes: its audit events as they are
// emitted and the coordinator's aggregated balance histories at the end.
// Nothing here is read back into a live run; the CLI uses it to reprint
// histories and logs of finished runs.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daviddao/clockbank/pkg/model"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		workers    INTEGER NOT NULL,
		transport  TEXT NOT NULL,
		status     TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL REFERENCES runs(id),
		process_id INTEGER NOT NULL,
		lamport_ts INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		body       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_run_order ON events(run_id, lamport_ts, process_id);

	CREATE TABLE IF NOT EXISTS histories (
		run_id     TEXT NOT NULL REFERENCES runs(id),
		process_id INTEGER NOT NULL,
		tick       INTEGER NOT NULL,
		balance    INTEGER NOT NULL,
		PRIMARY KEY (run_id, process_id, tick)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// CreateRun registers a new run with a fresh id.
func (s *Store) CreateRun(workers int, transport string) (*model.Run, error) {
	r := &model.Run{
		ID:        uuid.NewString(),
		Workers:   workers,
		Transport: transport,
		Status:    RunRunning,
		CreatedAt: time.Now().UTC(),
	}
	err := retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO runs (id, workers, transport, status, created_at) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.Workers, r.Transport, r.Status, r.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// SetRunStatus updates a run's status.
func (s *Store) SetRunStatus(id, status string) error {
	return retryOnContention(func() error {
		res, err := s.db.Exec(`UPDATE runs SET status = ? WHERE id = ?`, status, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	})
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*model.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, workers, transport, status, created_at FROM runs WHERE id = ?`, id,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// LatestRun returns the most recently created run.
func (s *Store) LatestRun() (*model.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, workers, transport, status, created_at FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]model.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, workers, transport, status, created_at FROM runs ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var r model.Run
	var createdStr string
	if err := row.Scan(&r.ID, &r.Workers, &r.Transport, &r.Status, &createdStr); err != nil {
		return nil, err
	}
	var parseErr error
	r.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse created_at for run %s: %w", r.ID, parseErr)
	}
	return &r, nil
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// InsertEvent appends an audit event. Returns the row ID.
func (s *Store) InsertEvent(e *model.Event) (int64, error) {
	var lastID int64
	err := retryOnContention(func() error {
		res, err := s.db.Exec(
			`INSERT INTO events (run_id, process_id, lamport_ts, kind, body, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.RunID, int(e.ProcessID), e.LamportTS, string(e.Kind), e.Body,
			e.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		lastID, err = res.LastInsertId()
		return err
	})
	return lastID, err
}

// ListEvents returns a run's events in Lamport total order: by timestamp,
// ties broken by process id.
func (s *Store) ListEvents(runID string) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, process_id, lamport_ts, kind, body, created_at
		 FROM events WHERE run_id = ?
		 ORDER BY lamport_ts ASC, process_id ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var pid int
		var kindStr, createdStr string
		if err := rows.Scan(&e.ID, &e.RunID, &pid, &e.LamportTS, &kindStr, &e.Body, &createdStr); err != nil {
			return nil, err
		}
		e.ProcessID = model.ProcessID(pid)
		e.Kind = model.EventKind(kindStr)
		var parseErr error
		e.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, createdStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse created_at time for event %d: %w", e.ID, parseErr)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ---------------------------------------------------------------------------
// Histories
// ---------------------------------------------------------------------------

// SaveHistories stores every history of all under runID, replacing any
// previously stored entries for the same processes.
func (s *Store) SaveHistories(runID string, all model.AllHistory) error {
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		stmt, err := tx.Prepare(
			`INSERT INTO histories (run_id, process_id, tick, balance) VALUES (?, ?, ?, ?)
			 ON CONFLICT(run_id, process_id, tick) DO UPDATE SET balance = excluded.balance`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range all.IDs() {
			if _, err := tx.Exec(`DELETE FROM histories WHERE run_id = ? AND process_id = ?`, runID, int(id)); err != nil {
				return err
			}
			for _, st := range all[id].States {
				if _, err := stmt.Exec(runID, int(id), st.Time, int64(st.Balance)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
}

// LoadHistories returns the stored histories of a run.
func (s *Store) LoadHistories(runID string) (model.AllHistory, error) {
	rows, err := s.db.Query(
		`SELECT process_id, tick, balance FROM histories WHERE run_id = ?
		 ORDER BY process_id ASC, tick ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all := model.AllHistory{}
	for rows.Next() {
		var pid int
		var st model.BalanceState
		var bal int64
		if err := rows.Scan(&pid, &st.Time, &bal); err != nil {
			return nil, err
		}
		st.Balance = model.Balance(bal)
		id := model.ProcessID(pid)
		h := all[id]
		h.ID = id
		h.States = append(h.States, st)
		all[id] = h
	}
	return all, rows.Err()
}
