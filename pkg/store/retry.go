// retry.go retries writes that lose a lock race with another clockbank
// process sharing the database file.
//
// Within one run writes never overlap: the auditor holds its mutex across
// InsertEvent, and run rows and histories are written before and after the
// actors. busy_timeout absorbs most cross-process waits inside SQLite. What
// still surfaces is SQLITE_LOCKED, SQLITE_BUSY returned without the busy
// handler (stale WAL snapshot, recovery) and WAL index short reads.
//
// Retries are bounded by time, not attempts. The auditor keeps its mutex
// while a write retries, so the budget is also the longest one audit line
// can stall every actor of the run.
package store

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type retryPolicy struct {
	budget   time.Duration // total time spent sleeping between attempts
	step     time.Duration // sleep grows by step per attempt
	maxSleep time.Duration
}

var writePolicy = retryPolicy{
	budget:   2 * time.Second,
	step:     5 * time.Millisecond,
	maxSleep: 100 * time.Millisecond,
}

// isContention reports whether err is a lock conflict worth retrying.
// Errors that lost their *sqlite.Error type are matched on SQLite's message.
func isContention(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return code == sqlite3.SQLITE_IOERR_SHORT_READ
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// retryOnContention runs fn with the default write policy.
func retryOnContention(fn func() error) error {
	return writePolicy.do(fn)
}

// do calls fn until it succeeds, fails with a non-contention error, or the
// next sleep would overrun the budget.
func (p retryPolicy) do(fn func() error) error {
	var slept time.Duration
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !isContention(err) {
			return err
		}
		d := p.sleep(attempt)
		if slept+d > p.budget {
			return fmt.Errorf("%w (gave up after %d attempts)", err, attempt)
		}
		time.Sleep(d)
		slept += d
	}
}

// sleep grows linearly with attempt up to maxSleep, jittered into [d/2, d]
// so two processes that collided do not retry in lockstep.
func (p retryPolicy) sleep(attempt int) time.Duration {
	d := p.step * time.Duration(attempt)
	if d > p.maxSleep || d <= 0 {
		d = p.maxSleep
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1))
}
