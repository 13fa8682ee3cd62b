package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/daviddao/clockbank/pkg/codec"
	"github.com/daviddao/clockbank/pkg/model"
)

// senderHeader carries the sending process id on every NATS message.
const senderHeader = "Clockbank-From"

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL            string
	Name           string
	RunID          string // namespaces subjects so concurrent runs do not mix
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// NATS delivers messages over core NATS subjects, one subject per process:
// clockbank.<run>.<id>. A single publishing connection keeps per-pair FIFO.
type NATS struct {
	conn   *nats.Conn
	prefix string

	mu    sync.Mutex
	boxes map[model.ProcessID]*natsInbox
}

type natsInbox struct {
	sub     *nats.Subscription
	pending []envelope
}

// NewNATS connects to the server and subscribes an inbox for each id.
func NewNATS(cfg NATSConfig, ids []model.ProcessID) (*NATS, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to NATS: %v", ErrTransport, err)
	}
	t := &NATS{
		conn:   conn,
		prefix: subjectPrefix(cfg.RunID),
		boxes:  make(map[model.ProcessID]*natsInbox, len(ids)),
	}
	for _, id := range ids {
		sub, err := conn.SubscribeSync(t.subject(id))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: subscribe process %d: %v", ErrTransport, id, err)
		}
		t.boxes[id] = &natsInbox{sub: sub}
	}
	// Make sure the server knows every subscription before the first publish.
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: flush subscriptions: %v", ErrTransport, err)
	}
	return t, nil
}

func subjectPrefix(runID string) string {
	if runID == "" {
		return "clockbank"
	}
	return "clockbank." + runID
}

func (t *NATS) subject(id model.ProcessID) string {
	return t.prefix + "." + strconv.Itoa(int(id))
}

func parseSender(msg *nats.Msg) (model.ProcessID, error) {
	v := msg.Header.Get(senderHeader)
	id, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s header %q", ErrTransport, senderHeader, v)
	}
	return model.ProcessID(id), nil
}

func (t *NATS) inbox(id model.ProcessID) (*natsInbox, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.boxes[id]
	if !ok {
		return nil, fmt.Errorf("%w: no subscription for process %d", ErrTransport, id)
	}
	return b, nil
}

// Send publishes msg on the recipient's subject.
func (t *NATS) Send(ctx context.Context, from, to model.ProcessID, msg *codec.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	out := nats.NewMsg(t.subject(to))
	out.Header.Set(senderHeader, strconv.Itoa(int(from)))
	out.Data = data
	if err := t.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("%w: publish %s to %d: %v", ErrTransport, msg.Type(), to, err)
	}
	return nil
}

// ReceiveAny returns the next message for self.
func (t *NATS) ReceiveAny(ctx context.Context, self model.ProcessID) (model.ProcessID, *codec.Message, error) {
	e, err := t.receive(ctx, self, 0, true)
	if err != nil {
		return 0, nil, err
	}
	msg, err := codec.Decode(e.data)
	return e.from, msg, err
}

// ReceiveFrom returns the next message from src, parking others.
func (t *NATS) ReceiveFrom(ctx context.Context, self, src model.ProcessID) (*codec.Message, error) {
	e, err := t.receive(ctx, self, src, false)
	if err != nil {
		return nil, err
	}
	return codec.Decode(e.data)
}

func (t *NATS) receive(ctx context.Context, self, src model.ProcessID, anySender bool) (envelope, error) {
	b, err := t.inbox(self)
	if err != nil {
		return envelope{}, err
	}
	if e, rest, ok := popFrom(b.pending, src, anySender); ok {
		b.pending = rest
		return e, nil
	}
	for {
		m, err := b.sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return envelope{}, ctx.Err()
			}
			return envelope{}, fmt.Errorf("%w: receive for %d: %v", ErrTransport, self, err)
		}
		from, err := parseSender(m)
		if err != nil {
			return envelope{}, err
		}
		e := envelope{from: from, data: m.Data}
		if anySender || from == src {
			return e, nil
		}
		b.pending = append(b.pending, e)
	}
}

// Close unsubscribes every inbox and closes the connection.
func (t *NATS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range t.boxes {
		_ = b.sub.Unsubscribe()
	}
	t.conn.Close()
	return nil
}

var _ Transport = (*NATS)(nil)
