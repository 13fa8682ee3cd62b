// Package transport delivers encoded messages between clockbank processes.
//
// The protocol only needs FIFO delivery per ordered (sender, receiver) pair.
// Messages from different senders may interleave arbitrarily. Receives block
// until a message arrives or the caller's context is cancelled; the
// transport itself never times out.
package transport

import (
	"context"
	"errors"

	"github.com/daviddao/clockbank/pkg/codec"
	"github.com/daviddao/clockbank/pkg/model"
)

// ErrTransport wraps every delivery failure. The core never retries it.
var ErrTransport = errors.New("transport error")

// Transport is the delivery contract consumed by the bank protocol.
type Transport interface {
	// Send delivers msg from process from to process to.
	Send(ctx context.Context, from, to model.ProcessID, msg *codec.Message) error

	// ReceiveAny blocks until any message for self arrives and returns it
	// with its sender.
	ReceiveAny(ctx context.Context, self model.ProcessID) (model.ProcessID, *codec.Message, error)

	// ReceiveFrom blocks until a message from src to self arrives. Messages
	// from other senders stay queued for later receives.
	ReceiveFrom(ctx context.Context, self, src model.ProcessID) (*codec.Message, error)

	// Close releases the transport.
	Close() error
}

// DropFunc decides whether a message is silently discarded instead of
// delivered. Used to simulate lost messages.
type DropFunc func(from, to model.ProcessID, t model.MessageType) bool

// envelope is an encoded message in flight.
type envelope struct {
	from model.ProcessID
	data []byte
}

// popFrom removes and returns the first envelope from src, or the first
// envelope of any sender when anySender is true.
func popFrom(queue []envelope, src model.ProcessID, anySender bool) (envelope, []envelope, bool) {
	for i, e := range queue {
		if anySender || e.from == src {
			rest := append(queue[:i:i], queue[i+1:]...)
			return e, rest, true
		}
	}
	return envelope{}, queue, false
}
