// Package ultragear controls the lighting of LG UltraGear monitors over their HID lighting interface.
//
// Only one command is outstanding at a time; its reply is matched on the command and
// direction bytes the monitor echoes.
package ultragear

import (
	"context"
	"fmt"

	"github.com/arloliu/go-hidlink/frame"
	"github.com/arloliu/go-hidlink/internal/util"
	"github.com/arloliu/go-hidlink/transport"
)

// FrameLength is the HID report size: the report id followed by 64 bytes.
const FrameLength = 65

const (
	requestLead0 byte = 0x53
	requestLead1 byte = 0x43
	requestTail0 byte = 0x45
	requestTail1 byte = 0x44
	responseLead byte = 0x52

	// maxParams keeps the checksum and trailer inside the report.
	maxParams = FrameLength - 1 - 8
)

// Command is a lighting command code.
type Command byte

const (
	CmdSetActiveEffect      Command = 0xC7
	CmdEnableLightingEffect Command = 0xCA
	CmdEnableLighting       Command = 0xCF
)

// Direction tells whether a command reads or writes a setting.
type Direction byte

const (
	Get Direction = 1
	Set Direction = 2
)

// Effect is a lighting effect index as understood by the monitor firmware.
type Effect byte

type commandKey struct {
	cmd Command
	dir Direction
}

func (k commandKey) String() string {
	return fmt.Sprintf("cmd=0x%02X dir=%d", byte(k.cmd), k.dir)
}

// codec frames: request [reportID, 0x53, 0x43, cmd, dir, n, params(n), xor, 0x45, 0x44],
// response [reportID, 0x52, cmd, dir, n, data(n), xor] where the xor folds the span to zero.
type codec struct{}

func (codec) FrameLength() int { return FrameLength }

func (codec) Correlate(f []byte) (commandKey, bool) {
	if f[1] != responseLead {
		return commandKey{}, false
	}

	return commandKey{cmd: Command(f[2]), dir: Direction(f[3])}, true
}

func (codec) Unwrap(f []byte) ([]byte, error) {
	span := f[1:]
	n := int(span[3])
	if n+5 > len(span) {
		return nil, frame.Fail(frame.CheckLength, 4, n, len(span)-5)
	}
	if err := frame.ValidateXOR(0, span[:n+5]); err != nil {
		return nil, err
	}

	return span[4 : 4+n], nil
}

func putRequest(f []byte, cmd Command, dir Direction, params []byte) {
	f[1], f[2] = requestLead0, requestLead1
	f[3], f[4], f[5] = byte(cmd), byte(dir), byte(len(params))
	end := 6 + copy(f[6:], params)
	f[end] = frame.XOR(0, f[1:end])
	f[end+1], f[end+2] = requestTail0, requestTail1
}

// Lighting is an opened UltraGear lighting interface.
type Lighting struct {
	t *transport.Transport[commandKey]
}

// Open starts the lighting transport on ch.
func Open(ch transport.Channel, opts ...transport.Option) (*Lighting, error) {
	t, err := transport.New[commandKey](ch, codec{}, append([]transport.Option{transport.WithName("ultragear")}, opts...)...)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Lighting{t: t}, nil
}

// Close stops the transport and closes the channel.
func (l *Lighting) Close() error {
	return l.t.Close()
}

// Metrics returns the transport counters.
func (l *Lighting) Metrics() *transport.Metrics {
	return l.t.Metrics()
}

// SetActiveEffect selects the running effect.
func (l *Lighting) SetActiveEffect(ctx context.Context, effect Effect) error {
	_, err := l.Exchange(ctx, CmdSetActiveEffect, Set, 0, byte(effect))
	return err
}

// EnableLighting switches the lighting on or off.
func (l *Lighting) EnableLighting(ctx context.Context, enable bool) error {
	p := byte(2)
	if enable {
		p = 1
	}
	_, err := l.Exchange(ctx, CmdEnableLighting, Set, p, 0)

	return err
}

// EnableLightingEffect enables effect in the effect rotation.
func (l *Lighting) EnableLightingEffect(ctx context.Context, effect Effect) error {
	_, err := l.Exchange(ctx, CmdEnableLightingEffect, Set, 3, byte(effect))
	return err
}

// Exchange sends a raw command and returns a copy of the reply data.
func (l *Lighting) Exchange(ctx context.Context, cmd Command, dir Direction, params ...byte) ([]byte, error) {
	if len(params) > maxParams {
		return nil, fmt.Errorf("%w: %d parameters", transport.ErrInvalidArgument, len(params))
	}

	key := commandKey{cmd: cmd, dir: dir}
	var data []byte
	err := l.t.Do(ctx, func(ctx context.Context, tx *transport.Tx[commandKey]) error {
		putRequest(tx.Frame(), cmd, dir, params)

		return tx.Exchange(ctx, key, func(payload []byte) (bool, error) {
			data = util.CloneSlice(payload, 0)
			return true, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ultragear: %s: %w", key, err)
	}

	return data, nil
}
