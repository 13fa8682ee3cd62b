package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/daviddao/clockbank/pkg/model"
	"github.com/daviddao/clockbank/pkg/store"
)

// app holds shared state for all CLI subcommands.
type app struct {
	store store.StoreInterface
}

// newApp opens the database, creating .clockbank/ when the default path
// is used.
func newApp() (*app, error) {
	dbPath := envOr("CLOCKBANK_DB", defaultDB)
	if dbPath == defaultDB {
		if err := os.MkdirAll(defaultDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", defaultDir, err)
		}
	}
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %q: %w", dbPath, err)
	}
	return &app{store: s}, nil
}

// Close releases the database connection.
func (a *app) Close() { a.store.Close() }

// resolveRun returns the run named by id, or the latest run when id is empty.
func (a *app) resolveRun(id string) (*model.Run, error) {
	if id != "" {
		return a.store.GetRun(id)
	}
	r, err := a.store.LatestRun()
	if errors.Is(err, store.ErrRunNotFound) {
		return nil, fmt.Errorf("no runs stored yet; start one with 'clockbank run'")
	}
	return r, err
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
