package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/clockbank/pkg/codec"
	"github.com/daviddao/clockbank/pkg/model"
)

func TestNATS_Subjects(t *testing.T) {
	n := &NATS{prefix: subjectPrefix("run-1")}
	assert.Equal(t, "clockbank.run-1.0", n.subject(model.ParentID))
	assert.Equal(t, "clockbank.run-1.12", n.subject(12))

	n = &NATS{prefix: subjectPrefix("")}
	assert.Equal(t, "clockbank.3", n.subject(3))
}

func TestNATS_ParseSender(t *testing.T) {
	msg := nats.NewMsg("clockbank.0")
	msg.Header.Set(senderHeader, "4")
	id, err := parseSender(msg)
	require.NoError(t, err)
	assert.Equal(t, model.ProcessID(4), id)

	for _, bad := range []string{"", "x", "256", "-1"} {
		msg.Header.Set(senderHeader, bad)
		_, err := parseSender(msg)
		assert.ErrorIs(t, err, ErrTransport, "header %q", bad)
	}
}

func TestNATS_ConnectFailure(t *testing.T) {
	_, err := NewNATS(NATSConfig{URL: "nats://127.0.0.1:1", Name: "test", MaxReconnects: 0}, []model.ProcessID{0})
	assert.ErrorIs(t, err, ErrTransport)
}

func runNATSServer(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

// newTestNATS connects a transport for the coordinator and n workers to a
// fresh in-process server.
func newTestNATS(t *testing.T, n int) *NATS {
	t.Helper()
	ids := append([]model.ProcessID{model.ParentID}, model.Workers(n)...)
	tr, err := NewNATS(NATSConfig{
		URL:            runNATSServer(t),
		Name:           t.Name(),
		RunID:          "test-run",
		ConnectTimeout: 2 * time.Second,
	}, ids)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func natsCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNATS_FIFOPerPair(t *testing.T) {
	ctx := natsCtx(t)
	tr := newTestNATS(t, 2)
	for i := 1; i <= 5; i++ {
		require.NoError(t, tr.Send(ctx, 1, 2, transferMsg(t, int64(i), model.Balance(i))))
	}
	for i := 1; i <= 5; i++ {
		from, msg, err := tr.ReceiveAny(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, model.ProcessID(1), from)
		o, err := msg.Order()
		require.NoError(t, err)
		assert.Equal(t, model.Balance(i), o.Amount)
		assert.Equal(t, int64(i), msg.Time())
	}
}

func TestNATS_ReceiveFromParksOthers(t *testing.T) {
	ctx := natsCtx(t)
	tr := newTestNATS(t, 2)
	require.NoError(t, tr.Send(ctx, 1, 0, ackMsg(t, 1)))
	require.NoError(t, tr.Send(ctx, 1, 0, ackMsg(t, 2)))
	require.NoError(t, tr.Send(ctx, 2, 0, ackMsg(t, 3)))

	msg, err := tr.ReceiveFrom(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.Time())
	assert.Len(t, tr.boxes[0].pending, 2)

	// Parked messages come back first, in arrival order.
	for _, want := range []int64{1, 2} {
		from, msg, err := tr.ReceiveAny(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, model.ProcessID(1), from)
		assert.Equal(t, want, msg.Time())
	}
	assert.Empty(t, tr.boxes[0].pending)
}

func TestNATS_ReceiveFromSkipsParkedSenders(t *testing.T) {
	ctx := natsCtx(t)
	tr := newTestNATS(t, 2)
	require.NoError(t, tr.Send(ctx, 1, 0, ackMsg(t, 1)))
	require.NoError(t, tr.Send(ctx, 2, 0, ackMsg(t, 2)))
	require.NoError(t, tr.Send(ctx, 1, 0, ackMsg(t, 3)))

	msg, err := tr.ReceiveFrom(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Time())

	// Only one message from 1 is parked; the second is still on the wire.
	msg, err = tr.ReceiveFrom(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Time())
	msg, err = tr.ReceiveFrom(ctx, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.Time())
}

func TestNATS_ReceiveBlocksUntilSend(t *testing.T) {
	ctx := natsCtx(t)
	tr := newTestNATS(t, 1)
	got := make(chan *codec.Message, 1)
	go func() {
		msg, err := tr.ReceiveFrom(ctx, 0, 1)
		if err == nil {
			got <- msg
		}
	}()

	select {
	case <-got:
		t.Fatal("ReceiveFrom returned before any send")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tr.Send(ctx, 1, 0, ackMsg(t, 7)))
	select {
	case msg := <-got:
		assert.Equal(t, int64(7), msg.Time())
	case <-time.After(2 * time.Second):
		t.Fatal("ReceiveFrom did not return after send")
	}
}

func TestNATS_ContextCancelUnblocks(t *testing.T) {
	tr := newTestNATS(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := tr.ReceiveAny(ctx, 1)
		errc <- err
	}()
	cancel()
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReceiveAny ignored cancellation")
	}

	assert.ErrorIs(t, tr.Send(ctx, 0, 1, ackMsg(t, 1)), context.Canceled)
}

func TestNATS_Errors(t *testing.T) {
	ctx := natsCtx(t)
	tr := newTestNATS(t, 1)

	_, _, err := tr.ReceiveAny(ctx, 7)
	assert.ErrorIs(t, err, ErrTransport)

	require.NoError(t, tr.Close())
	err = tr.Send(ctx, 0, 1, ackMsg(t, 1))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestNATS_RunsAreIsolated(t *testing.T) {
	ctx := natsCtx(t)
	url := runNATSServer(t)
	ids := []model.ProcessID{0, 1}
	a, err := NewNATS(NATSConfig{URL: url, RunID: "a", ConnectTimeout: 2 * time.Second}, ids)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewNATS(NATSConfig{URL: url, RunID: "b", ConnectTimeout: 2 * time.Second}, ids)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send(ctx, 1, 0, ackMsg(t, 1)))
	require.NoError(t, b.Send(ctx, 1, 0, ackMsg(t, 2)))

	_, msg, err := b.ReceiveAny(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.Time())
	_, msg, err = a.ReceiveAny(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Time())
}
