package bank

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/daviddao/clockbank/pkg/codec"
	"github.com/daviddao/clockbank/pkg/model"
)

// Audit line templates.
const (
	TransferOutFmt        = "%d: process %d transferred $%d to process %d\n"
	TransferInFmt         = "%d: process %d received $%d from process %d\n"
	ReceivedAllStartedFmt = "%d: process %d received all STARTED messages\n"
	ReceivedAllDoneFmt    = "%d: process %d received all DONE messages\n"
)

// EventSink persists audit events. *store.Store implements it.
type EventSink interface {
	InsertEvent(e *model.Event) (int64, error)
}

// Auditor writes audit lines for every process of a run. Writes from
// different processes are serialized.
type Auditor struct {
	mu    sync.Mutex
	out   *bufio.Writer
	sink  EventSink
	runID string
}

// NewAuditor writes lines to w (may be nil) and, when sink is non-nil,
// stores each line as an event of runID.
func NewAuditor(w io.Writer, sink EventSink, runID string) *Auditor {
	if w == nil {
		w = io.Discard
	}
	return &Auditor{out: bufio.NewWriter(w), sink: sink, runID: runID}
}

func (a *Auditor) emit(id model.ProcessID, ts int64, kind model.EventKind, line string) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.out.WriteString(line); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	if a.sink == nil {
		return nil
	}
	_, err := a.sink.InsertEvent(&model.Event{
		RunID:     a.runID,
		ProcessID: id,
		LamportTS: ts,
		Kind:      kind,
		Body:      line,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store audit event: %w", err)
	}
	return nil
}

// Status logs a Started or Done status line.
func (a *Auditor) Status(s codec.StatusLine) error {
	kind := model.EventStarted
	if s.Kind == model.Done {
		kind = model.EventDone
	}
	return a.emit(s.ID, s.Time, kind, s.String())
}

// TransferOut logs a debit on the source process.
func (a *Auditor) TransferOut(ts int64, id model.ProcessID, amount model.Balance, dst model.ProcessID) error {
	return a.emit(id, ts, model.EventTransferOut, fmt.Sprintf(TransferOutFmt, ts, id, amount, dst))
}

// TransferIn logs a credit on the destination process.
func (a *Auditor) TransferIn(ts int64, id model.ProcessID, amount model.Balance, src model.ProcessID) error {
	return a.emit(id, ts, model.EventTransferIn, fmt.Sprintf(TransferInFmt, ts, id, amount, src))
}

// ReceivedAll logs that id has heard Started or Done from every worker.
func (a *Auditor) ReceivedAll(ts int64, id model.ProcessID, typ model.MessageType) error {
	if typ == model.Started {
		return a.emit(id, ts, model.EventReceivedAllStarted, fmt.Sprintf(ReceivedAllStartedFmt, ts, id))
	}
	return a.emit(id, ts, model.EventReceivedAllDone, fmt.Sprintf(ReceivedAllDoneFmt, ts, id))
}

// Flush writes any buffered lines to the underlying writer.
func (a *Auditor) Flush() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Flush()
}
