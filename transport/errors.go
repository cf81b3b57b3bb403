package transport

import (
	"errors"

	"github.com/arloliu/go-hidlink/frame"
)

var (
	// ErrDisposed is returned by operations on a closed transport.
	ErrDisposed = errors.New("transport: disposed")

	// ErrWritePending is returned when a transaction is started while another one
	// holds the write reservation.
	ErrWritePending = errors.New("transport: write already pending")

	// ErrKeyInUse is returned when a second waiter registers for a correlation key
	// that already has one.
	ErrKeyInUse = errors.New("transport: correlation key in use")

	// ErrChannelClosed indicates that the underlying channel was closed by the device.
	ErrChannelClosed = errors.New("transport: channel closed")

	// ErrReplyTimeout indicates that no reply arrived within the reply timeout.
	ErrReplyTimeout = errors.New("transport: reply timeout")

	// ErrProtocolViolation indicates a well-formed reply that breaks the exchange
	// rules, such as an out of order packet offset.
	ErrProtocolViolation = errors.New("transport: protocol violation")

	// ErrBufferTooSmall indicates that the destination cannot hold the reassembled data.
	ErrBufferTooSmall = errors.New("transport: destination buffer too small")

	// ErrInvalidArgument indicates bad caller input. It is never retried.
	ErrInvalidArgument = errors.New("transport: invalid argument")

	// ErrTransient marks a device-side condition worth retrying, such as a busy status.
	ErrTransient = errors.New("transport: transient device error")
)

// ErrFraming aliases frame.ErrFraming so callers of this package can match framing
// failures without importing frame.
var ErrFraming = frame.ErrFraming
