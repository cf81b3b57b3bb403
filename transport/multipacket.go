package transport

import (
	"context"
	"fmt"
)

// MaxMultiPacketLength caps the total size of a reassembled multi-packet reply.
const MaxMultiPacketLength = 0xFFFF

// Accumulator reassembles a reply delivered as sequential offset-tagged packets.
//
// Each packet must start exactly where the previous one ended. An empty packet marks
// the end of the data.
type Accumulator struct {
	dst   []byte
	n     int
	limit int
	done  bool
}

// NewAccumulator writes into dst and rejects totals above limit.
// A non-positive limit selects MaxMultiPacketLength.
func NewAccumulator(dst []byte, limit int) *Accumulator {
	if limit <= 0 || limit > MaxMultiPacketLength {
		limit = MaxMultiPacketLength
	}

	return &Accumulator{dst: dst, limit: limit}
}

// Append adds the packet carrying data at offset.
func (a *Accumulator) Append(offset int, data []byte) error {
	if a.done {
		return fmt.Errorf("%w: packet at offset %d after end of data", ErrProtocolViolation, offset)
	}
	if offset != a.n {
		return fmt.Errorf("%w: packet offset %d, expected %d", ErrProtocolViolation, offset, a.n)
	}
	if len(data) == 0 {
		a.done = true
		return nil
	}

	total := a.n + len(data)
	if total > a.limit {
		return fmt.Errorf("%w: total length %d exceeds %d", ErrProtocolViolation, total, a.limit)
	}
	if total > len(a.dst) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, total, len(a.dst))
	}

	a.n += copy(a.dst[a.n:], data)

	return nil
}

// Len returns the number of bytes accumulated so far.
func (a *Accumulator) Len() int { return a.n }

// Done reports whether the terminating empty packet was seen.
func (a *Accumulator) Done() bool { return a.done }

// Bytes returns the accumulated data.
func (a *Accumulator) Bytes() []byte { return a.dst[:a.n] }

// PacketRequest issues whatever precedes the reply for the packet at offset and leaves
// the frame that triggers the reply in tx.Frame(). It returns the reply's correlation key.
type PacketRequest[K comparable] func(ctx context.Context, tx *Tx[K], offset int) (K, error)

// PacketParser extracts the offset and data of one packet from a reply payload.
type PacketParser func(payload []byte) (offset int, data []byte, err error)

// ReadMultiPacket drives request and reply rounds inside tx until the device sends an
// empty packet, and returns the number of bytes written to dst.
func ReadMultiPacket[K comparable](ctx context.Context, tx *Tx[K], dst []byte, request PacketRequest[K], parse PacketParser) (int, error) {
	acc := NewAccumulator(dst, MaxMultiPacketLength)

	for !acc.Done() {
		key, err := request(ctx, tx, acc.Len())
		if err != nil {
			return 0, err
		}

		err = tx.Exchange(ctx, key, func(payload []byte) (bool, error) {
			offset, data, err := parse(payload)
			if err != nil {
				return true, err
			}

			return true, acc.Append(offset, data)
		})
		if err != nil {
			return 0, err
		}
	}

	return acc.Len(), nil
}
