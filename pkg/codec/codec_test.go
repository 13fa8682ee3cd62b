package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/clockbank/pkg/model"
)

func denseHistory(id model.ProcessID, k int) model.BalanceHistory {
	h := model.BalanceHistory{ID: id, States: make([]model.BalanceState, k)}
	for i := range h.States {
		h.States[i] = model.BalanceState{Balance: model.Balance(100 - i), Time: int64(i)}
	}
	return h
}

func roundTrip(t *testing.T, msg *Message) *Message {
	t.Helper()
	buf, err := msg.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, HeaderSize+int(msg.Header.PayloadLen))
	got, err := Decode(buf)
	require.NoError(t, err)
	return got
}

func TestRoundTrip_AllTypes(t *testing.T) {
	tests := []struct {
		name    string
		typ     model.MessageType
		payload Payload
	}{
		{"stop", model.Stop, nil},
		{"ack", model.Ack, nil},
		{"transfer", model.Transfer, model.TransferOrder{Src: 1, Dst: 2, Amount: 30}},
		{"negative transfer", model.Transfer, model.TransferOrder{Src: 3, Dst: 1, Amount: -7}},
		{"history", model.BalanceHistoryMsg, denseHistory(2, 5)},
		{"started", model.Started, StatusLine{Kind: model.Started, Time: 1, ID: 1, PID: 4242, ParentPID: 4241, Balance: 100}},
		{"done", model.Done, StatusLine{Kind: model.Done, Time: 9, ID: 3, Balance: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := New(tt.typ, 17, tt.payload)
			require.NoError(t, err)

			got := roundTrip(t, msg)
			assert.Equal(t, tt.typ, got.Type())
			assert.Equal(t, int64(17), got.Time())
			assert.Equal(t, msg.Payload, got.Payload)

			switch tt.typ {
			case model.Transfer:
				o, err := got.Order()
				require.NoError(t, err)
				assert.Equal(t, tt.payload, o)
			case model.BalanceHistoryMsg:
				h, err := got.History()
				require.NoError(t, err)
				assert.Equal(t, tt.payload, h)
			case model.Started, model.Done:
				s, err := got.Status()
				require.NoError(t, err)
				assert.Equal(t, tt.payload, s)
			}
		})
	}
}

func TestRoundTrip_EveryHistoryLength(t *testing.T) {
	for _, k := range []int{1, 2, 17, 128, MaxHistoryLen} {
		h := denseHistory(4, k)
		n, err := PayloadLen(model.BalanceHistoryMsg, h)
		require.NoError(t, err)
		assert.Equal(t, 1+2+k*BalanceStateSize, n, "k=%d", k)

		msg, err := New(model.BalanceHistoryMsg, 1, h)
		require.NoError(t, err)
		got, err := roundTrip(t, msg).History()
		require.NoError(t, err)
		require.Len(t, got.States, k)
		for i, s := range got.States {
			require.Equal(t, int64(i), s.Time)
		}
	}
}

func TestPayloadLen(t *testing.T) {
	n, err := PayloadLen(model.Stop, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = PayloadLen(model.Ack, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = PayloadLen(model.Transfer, model.TransferOrder{})
	require.NoError(t, err)
	assert.Equal(t, TransferOrderSize, n)

	s := StatusLine{Kind: model.Done, Time: 3, ID: 1, Balance: 70}
	n, err = PayloadLen(model.Done, s)
	require.NoError(t, err)
	assert.Equal(t, len("3: process 1 has DONE with balance $70\n"), n)
}

func TestNew_InvalidPayload(t *testing.T) {
	tests := []struct {
		name    string
		typ     model.MessageType
		payload Payload
	}{
		{"transfer without order", model.Transfer, nil},
		{"history without history", model.BalanceHistoryMsg, nil},
		{"empty history", model.BalanceHistoryMsg, model.BalanceHistory{ID: 1}},
		{"history too long", model.BalanceHistoryMsg, denseHistory(1, MaxHistoryLen+1)},
		{"started without line", model.Started, nil},
		{"done with started line", model.Done, StatusLine{Kind: model.Started}},
		{"ack with payload", model.Ack, model.TransferOrder{}},
		{"transfer with history", model.Transfer, denseHistory(1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.typ, 1, tt.payload)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(model.MessageType(99), 1, nil)
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestRaw(t *testing.T) {
	msg, err := Raw(model.Transfer, 5, encodeOrder(model.TransferOrder{Src: 1, Dst: 2, Amount: 3}))
	require.NoError(t, err)
	o, err := msg.Order()
	require.NoError(t, err)
	assert.Equal(t, model.Balance(3), o.Amount)

	_, err = Raw(model.Transfer, 5, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Raw(model.Stop, 5, []byte{0})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Raw(model.Started, 5, nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecode_Malformed(t *testing.T) {
	good, err := New(model.Transfer, 3, model.TransferOrder{Src: 1, Dst: 2, Amount: 30})
	require.NoError(t, err)
	buf, err := good.MarshalBinary()
	require.NoError(t, err)

	t.Run("short header", func(t *testing.T) {
		_, err := Decode(buf[:HeaderSize-1])
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), buf...)
		bad[0] = 0x00
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("declared length exceeds buffer", func(t *testing.T) {
		_, err := Decode(buf[:len(buf)-1])
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("payload inconsistent with type", func(t *testing.T) {
		bad := append([]byte(nil), buf...)
		bad[2] = byte(model.Ack)
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("unknown type", func(t *testing.T) {
		bad := append([]byte(nil), buf...)
		bad[2] = 0x7F
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrUnknownMessageType)
	})

	t.Run("trailing bytes ignored", func(t *testing.T) {
		got, err := Decode(append(append([]byte(nil), buf...), 0xFF, 0xFF))
		require.NoError(t, err)
		assert.Equal(t, good.Payload, got.Payload)
	})
}

func TestTypedAccessorsRejectOtherTypes(t *testing.T) {
	msg, err := New(model.Ack, 1, nil)
	require.NoError(t, err)

	_, err = msg.Order()
	assert.ErrorIs(t, err, ErrMalformedMessage)
	_, err = msg.History()
	assert.ErrorIs(t, err, ErrMalformedMessage)
	_, err = msg.Status()
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestMarshalBinary_LengthMismatch(t *testing.T) {
	msg := &Message{Header: Header{Magic: Magic, Type: model.Ack, PayloadLen: 2}}
	_, err := msg.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
