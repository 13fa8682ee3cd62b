package codec

import (
	"fmt"

	"github.com/daviddao/clockbank/pkg/model"
)

// Status line templates carried by Started and Done messages. They double as
// the event log lines a process prints when it starts and finishes.
const (
	StartedFmt = "%d: process %d (pid %d, parent %d) has STARTED with balance $%d\n"
	DoneFmt    = "%d: process %d has DONE with balance $%d\n"
)

// StatusLine is the payload of Started and Done messages.
type StatusLine struct {
	Kind      model.MessageType
	Time      int64
	ID        model.ProcessID
	PID       int
	ParentPID int
	Balance   model.Balance
}

// String renders the line with the template for s.Kind.
func (s StatusLine) String() string {
	if s.Kind == model.Started {
		return fmt.Sprintf(StartedFmt, s.Time, s.ID, s.PID, s.ParentPID, s.Balance)
	}
	return fmt.Sprintf(DoneFmt, s.Time, s.ID, s.Balance)
}

// ParseStatus reads a line produced by StatusLine.String for kind t.
func ParseStatus(t model.MessageType, text string) (StatusLine, error) {
	var (
		ts, bal    int64
		id         uint8
		pid, ppid  int
		n          int
		err        error
		wantFields int
	)
	switch t {
	case model.Started:
		wantFields = 5
		n, err = fmt.Sscanf(text, StartedFmt, &ts, &id, &pid, &ppid, &bal)
	case model.Done:
		wantFields = 3
		n, err = fmt.Sscanf(text, DoneFmt, &ts, &id, &bal)
	default:
		return StatusLine{}, fmt.Errorf("%w: %s carries no status line", ErrMalformedMessage, t)
	}
	if err != nil || n != wantFields {
		return StatusLine{}, fmt.Errorf("%w: unparsable %s status %q: %v", ErrMalformedMessage, t, text, err)
	}
	s := StatusLine{
		Kind:      t,
		Time:      ts,
		ID:        model.ProcessID(id),
		PID:       pid,
		ParentPID: ppid,
		Balance:   model.Balance(bal),
	}
	// Reject trailing garbage: the line must re-render byte for byte.
	if s.String() != text {
		return StatusLine{}, fmt.Errorf("%w: non-canonical %s status %q", ErrMalformedMessage, t, text)
	}
	return s, nil
}
