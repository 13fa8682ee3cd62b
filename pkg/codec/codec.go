// Package codec encodes and decodes the clockbank message envelope.
//
// A message is a fixed 14-byte header followed by a payload whose size and
// layout are fully determined by the message type, so a reader never needs
// out-of-band length information. All integers are little endian.
//
//	magic      uint16  (0xAFAF)
//	type       uint16
//	payloadLen uint16
//	localTime  int64   (sender's Lamport time)
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/daviddao/clockbank/pkg/model"
)

const (
	// Magic marks the start of every message.
	Magic uint16 = 0xAFAF

	// HeaderSize is the encoded size of Header.
	HeaderSize = 2 + 2 + 2 + 8

	// MaxMessageLen bounds a whole encoded message.
	MaxMessageLen = 4096

	// MaxPayload bounds the payload of a single message.
	MaxPayload = MaxMessageLen - HeaderSize
)

// Header is the fixed-layout message prefix.
type Header struct {
	Magic      uint16
	Type       model.MessageType
	PayloadLen uint16
	LocalTime  int64
}

// Message is a header plus its encoded payload.
type Message struct {
	Header  Header
	Payload []byte
}

// Type returns the message type from the header.
func (m *Message) Type() model.MessageType { return m.Header.Type }

// Time returns the sender's Lamport time from the header.
func (m *Message) Time() int64 { return m.Header.LocalTime }

// New builds a message of type t stamped with localTime. The payload must be
// the Go value matching t: nil for Stop and Ack, model.TransferOrder for
// Transfer, model.BalanceHistory for BalanceHistoryMsg, StatusLine for
// Started and Done.
func New(t model.MessageType, localTime int64, p Payload) (*Message, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
	n, err := PayloadLen(t, p)
	if err != nil {
		return nil, err
	}
	if n > MaxPayload {
		return nil, fmt.Errorf("%w: %s payload of %d bytes exceeds %d", ErrInvalidPayload, t, n, MaxPayload)
	}
	body := encodePayload(t, p)
	if len(body) != n {
		return nil, fmt.Errorf("%w: %s encoded %d bytes, want %d", ErrInvalidPayload, t, len(body), n)
	}
	return &Message{
		Header: Header{
			Magic:      Magic,
			Type:       t,
			PayloadLen: uint16(n),
			LocalTime:  localTime,
		},
		Payload: body,
	}, nil
}

// Raw builds a message from already encoded payload bytes, checking that
// they are consistent with t.
func Raw(t model.MessageType, localTime int64, payload []byte) (*Message, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidPayload, len(payload), MaxPayload)
	}
	if err := checkPayload(t, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	body := make([]byte, len(payload))
	copy(body, payload)
	return &Message{
		Header: Header{
			Magic:      Magic,
			Type:       t,
			PayloadLen: uint16(len(body)),
			LocalTime:  localTime,
		},
		Payload: body,
	}, nil
}

// MarshalBinary encodes m into its wire form.
func (m *Message) MarshalBinary() ([]byte, error) {
	if int(m.Header.PayloadLen) != len(m.Payload) {
		return nil, fmt.Errorf("%w: header declares %d bytes, payload has %d",
			ErrInvalidPayload, m.Header.PayloadLen, len(m.Payload))
	}
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = binary.LittleEndian.AppendUint16(buf, m.Header.Magic)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(m.Header.Type))
	buf = binary.LittleEndian.AppendUint16(buf, m.Header.PayloadLen)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Header.LocalTime))
	return append(buf, m.Payload...), nil
}

// Decode parses one message from the front of buf. Bytes after the declared
// payload are ignored.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedMessage, len(buf))
	}
	h := Header{
		Magic:      binary.LittleEndian.Uint16(buf[0:2]),
		Type:       model.MessageType(binary.LittleEndian.Uint16(buf[2:4])),
		PayloadLen: binary.LittleEndian.Uint16(buf[4:6]),
		LocalTime:  int64(binary.LittleEndian.Uint64(buf[6:14])),
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%04X", ErrMalformedMessage, h.Magic)
	}
	if !h.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, h.Type)
	}
	n := int(h.PayloadLen)
	if n > MaxPayload {
		return nil, fmt.Errorf("%w: declared payload %d exceeds %d", ErrMalformedMessage, n, MaxPayload)
	}
	if n > len(buf)-HeaderSize {
		return nil, fmt.Errorf("%w: declared payload %d, only %d bytes follow the header",
			ErrMalformedMessage, n, len(buf)-HeaderSize)
	}
	payload := make([]byte, n)
	copy(payload, buf[HeaderSize:HeaderSize+n])
	if err := checkPayload(h.Type, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &Message{Header: h, Payload: payload}, nil
}

// Order decodes a Transfer payload.
func (m *Message) Order() (model.TransferOrder, error) {
	if m.Header.Type != model.Transfer {
		return model.TransferOrder{}, fmt.Errorf("%w: %s carries no transfer order", ErrMalformedMessage, m.Header.Type)
	}
	return decodeOrder(m.Payload)
}

// History decodes a BalanceHistoryMsg payload.
func (m *Message) History() (model.BalanceHistory, error) {
	if m.Header.Type != model.BalanceHistoryMsg {
		return model.BalanceHistory{}, fmt.Errorf("%w: %s carries no balance history", ErrMalformedMessage, m.Header.Type)
	}
	return decodeHistory(m.Payload)
}

// Status decodes a Started or Done payload.
func (m *Message) Status() (StatusLine, error) {
	return ParseStatus(m.Header.Type, string(m.Payload))
}
