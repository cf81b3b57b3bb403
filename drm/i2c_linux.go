//go:build linux

package drm

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/arloliu/go-hidlink/ddcci"
)

// i2cSlave is the I2C_SLAVE ioctl from linux/i2c-dev.h.
const i2cSlave = 0x0703

func openI2C(path string) (io.ReadWriteCloser, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, ddcci.DisplayAddress); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("set slave address 0x%02X: %w", ddcci.DisplayAddress, err)
	}

	return f, nil
}
