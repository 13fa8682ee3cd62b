package codec

import "errors"

// Sentinel errors. All of them are fatal to the process that hits them.
var (
	// ErrMalformedMessage indicates bytes that do not form a valid message:
	// bad magic, truncated header or a payload inconsistent with its type.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidPayload indicates a caller built an envelope whose payload
	// is missing, of the wrong kind or of the wrong size for its type.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnknownMessageType indicates a type outside the protocol's closed set.
	ErrUnknownMessageType = errors.New("unknown message type")
)
