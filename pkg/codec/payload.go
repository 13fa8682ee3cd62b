package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/daviddao/clockbank/pkg/model"
)

// Payload is the typed body of a message: nil, model.TransferOrder,
// model.BalanceHistory or StatusLine, depending on the message type.
type Payload any

const (
	// TransferOrderSize is src(1) + dst(1) + amount(8).
	TransferOrderSize = 1 + 1 + 8

	// BalanceStateSize is balance(8) + time(8).
	BalanceStateSize = 8 + 8

	// historyPrefixSize is id(1) + count(2).
	historyPrefixSize = 1 + 2

	// MaxHistoryLen is the longest history that fits in one message.
	MaxHistoryLen = (MaxPayload - historyPrefixSize) / BalanceStateSize
)

// HistoryPayloadLen returns the encoded size of a history with k entries.
func HistoryPayloadLen(k int) int {
	return historyPrefixSize + k*BalanceStateSize
}

// PayloadLen returns the payload size a message of type t carrying p must
// have. It fails with ErrInvalidPayload when p is not the kind of value t
// carries.
func PayloadLen(t model.MessageType, p Payload) (int, error) {
	switch t {
	case model.Stop, model.Ack:
		if p != nil {
			return 0, fmt.Errorf("%w: %s takes no payload, got %T", ErrInvalidPayload, t, p)
		}
		return 0, nil
	case model.Transfer:
		if _, ok := p.(model.TransferOrder); !ok {
			return 0, fmt.Errorf("%w: %s needs a transfer order, got %T", ErrInvalidPayload, t, p)
		}
		return TransferOrderSize, nil
	case model.BalanceHistoryMsg:
		h, ok := p.(model.BalanceHistory)
		if !ok {
			return 0, fmt.Errorf("%w: %s needs a balance history, got %T", ErrInvalidPayload, t, p)
		}
		if len(h.States) == 0 || len(h.States) > MaxHistoryLen {
			return 0, fmt.Errorf("%w: history of %d entries, want 1..%d", ErrInvalidPayload, len(h.States), MaxHistoryLen)
		}
		return HistoryPayloadLen(len(h.States)), nil
	case model.Started, model.Done:
		s, ok := p.(StatusLine)
		if !ok {
			return 0, fmt.Errorf("%w: %s needs a status line, got %T", ErrInvalidPayload, t, p)
		}
		if s.Kind != t {
			return 0, fmt.Errorf("%w: %s status line for a %s message", ErrInvalidPayload, s.Kind, t)
		}
		return len(s.String()), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
}

func encodePayload(t model.MessageType, p Payload) []byte {
	switch t {
	case model.Transfer:
		return encodeOrder(p.(model.TransferOrder))
	case model.BalanceHistoryMsg:
		return encodeHistory(p.(model.BalanceHistory))
	case model.Started, model.Done:
		return []byte(p.(StatusLine).String())
	default:
		return []byte{}
	}
}

func checkPayload(t model.MessageType, b []byte) error {
	switch t {
	case model.Stop, model.Ack:
		if len(b) != 0 {
			return fmt.Errorf("%s carries %d payload bytes, want 0", t, len(b))
		}
		return nil
	case model.Transfer:
		_, err := decodeOrder(b)
		return err
	case model.BalanceHistoryMsg:
		_, err := decodeHistory(b)
		return err
	case model.Started, model.Done:
		_, err := ParseStatus(t, string(b))
		return err
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
}

func encodeOrder(o model.TransferOrder) []byte {
	buf := make([]byte, 0, TransferOrderSize)
	buf = append(buf, byte(o.Src), byte(o.Dst))
	return binary.LittleEndian.AppendUint64(buf, uint64(o.Amount))
}

func decodeOrder(b []byte) (model.TransferOrder, error) {
	if len(b) != TransferOrderSize {
		return model.TransferOrder{}, fmt.Errorf("%w: transfer order of %d bytes, want %d",
			ErrMalformedMessage, len(b), TransferOrderSize)
	}
	return model.TransferOrder{
		Src:    model.ProcessID(b[0]),
		Dst:    model.ProcessID(b[1]),
		Amount: model.Balance(binary.LittleEndian.Uint64(b[2:10])),
	}, nil
}

func encodeHistory(h model.BalanceHistory) []byte {
	buf := make([]byte, 0, HistoryPayloadLen(len(h.States)))
	buf = append(buf, byte(h.ID))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(h.States)))
	for _, s := range h.States {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Balance))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Time))
	}
	return buf
}

func decodeHistory(b []byte) (model.BalanceHistory, error) {
	if len(b) < historyPrefixSize {
		return model.BalanceHistory{}, fmt.Errorf("%w: history payload of %d bytes", ErrMalformedMessage, len(b))
	}
	count := int(binary.LittleEndian.Uint16(b[1:3]))
	if want := HistoryPayloadLen(count); len(b) != want {
		return model.BalanceHistory{}, fmt.Errorf("%w: history of %d entries needs %d bytes, got %d",
			ErrMalformedMessage, count, want, len(b))
	}
	h := model.BalanceHistory{
		ID:     model.ProcessID(b[0]),
		States: make([]model.BalanceState, count),
	}
	off := historyPrefixSize
	for i := range h.States {
		h.States[i] = model.BalanceState{
			Balance: model.Balance(binary.LittleEndian.Uint64(b[off : off+8])),
			Time:    int64(binary.LittleEndian.Uint64(b[off+8 : off+16])),
		}
		off += BalanceStateSize
	}
	return h, nil
}
