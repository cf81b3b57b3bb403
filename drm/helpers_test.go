package drm

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/ddcci"
)

func makeEDID(mfg string, product uint16, serial uint32, serialText, name string) []byte {
	b := make([]byte, edidBlockLength)
	copy(b, edidHeader[:])
	vendor := uint16(mfg[0]-'A'+1)<<10 | uint16(mfg[1]-'A'+1)<<5 | uint16(mfg[2]-'A'+1)
	binary.BigEndian.PutUint16(b[8:], vendor)
	binary.LittleEndian.PutUint16(b[10:], product)
	binary.LittleEndian.PutUint32(b[12:], serial)
	putDescriptor(b[54:72], descriptorSerial, serialText)
	putDescriptor(b[72:90], descriptorName, name)
	b[90] = 0x01 // a detailed timing descriptor, not text

	var sum byte
	for _, c := range b[:edidBlockLength-1] {
		sum += c
	}
	b[edidBlockLength-1] = -sum

	return b
}

func putDescriptor(d []byte, tag byte, text string) {
	d[3] = tag
	n := copy(d[5:], text+"\n")
	for i := 5 + n; i < 18; i++ {
		d[i] = ' '
	}
}

// writeConnector creates a sysfs connector entry under root.
func writeConnector(t *testing.T, root, name, status string, edid []byte, ddc string) {
	t.Helper()

	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "edid"), edid, 0o644))
	if ddc != "" {
		require.NoError(t, os.Symlink(filepath.Join("..", "..", "i2c", ddc), filepath.Join(dir, "ddc")))
	}
}

// fakeDisplay answers DDC/CI requests the way a display behind i2c-dev does.
type fakeDisplay struct {
	mu      sync.Mutex
	values  map[byte]ddcci.VCPValue
	caps    string
	reply   []byte
	corrupt int
	writes  [][]byte
	closed  bool
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		values: map[byte]ddcci.VCPValue{0x10: {Current: 30, Maximum: 100}},
		caps:   "(prot(monitor)type(lcd)model(27GN950)cmds(01 02 03 0C E3 F3)vcp(02 04 05 08 10 12 14(05 08 0B) 16 18 1A 52 60(0F 10 11 12) AC AE B2 B6 C0 C6 C8 C9 D6(01 04) DF)mswhql(1)asset_eep(40)mccs_ver(2.1))",
	}
}

func (d *fakeDisplay) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.writes = append(d.writes, append([]byte(nil), p...))
	d.reply = nil

	switch p[2] {
	case ddcci.OpVCPRequest:
		if v, ok := d.values[p[3]]; ok {
			d.reply = ddcci.AppendVCPReply(nil, p[3], v)
		} else {
			d.reply = ddcci.AppendReply(nil, ddcci.OpVCPReply, []byte{1, p[3], 0, 0, 0, 0, 0})
		}
	case ddcci.OpVCPSet:
		v := d.values[p[3]]
		v.Current = binary.BigEndian.Uint16(p[4:])
		d.values[p[3]] = v
	case ddcci.OpCapabilitiesRequest:
		off := int(binary.BigEndian.Uint16(p[3:]))
		end := min(off+ddcci.MaxChunkData, len(d.caps))
		var data []byte
		if off < end {
			data = []byte(d.caps[off:end])
		}
		d.reply = ddcci.AppendChunkReply(nil, ddcci.OpCapabilitiesReply, uint16(off), data) //nolint:gosec
	}

	if d.corrupt > 0 && d.reply != nil {
		d.corrupt--
		d.reply[len(d.reply)-1] ^= 0xFF
	}

	return len(p), nil
}

func (d *fakeDisplay) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := copy(p, d.reply)
	clear(p[n:])

	return len(p), nil
}

func (d *fakeDisplay) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	return nil
}

func (d *fakeDisplay) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closed
}
