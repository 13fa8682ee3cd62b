package store

import "github.com/daviddao/clockbank/pkg/model"

// StoreInterface is the set of store operations the CLI and the runner use.
type StoreInterface interface {
	Close() error

	// --- Runs ---

	CreateRun(workers int, transport string) (*model.Run, error)
	SetRunStatus(id, status string) error
	GetRun(id string) (*model.Run, error)
	LatestRun() (*model.Run, error)
	ListRuns() ([]model.Run, error)

	// --- Events ---

	// InsertEvent appends an audit event. Returns the row ID.
	InsertEvent(e *model.Event) (int64, error)

	// ListEvents returns a run's events in Lamport total order.
	ListEvents(runID string) ([]model.Event, error)

	// --- Histories ---

	SaveHistories(runID string, all model.AllHistory) error
	LoadHistories(runID string) (model.AllHistory, error)
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
