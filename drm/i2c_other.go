//go:build !linux

package drm

import (
	"errors"
	"io"
)

func openI2C(string) (io.ReadWriteCloser, error) {
	return nil, errors.New("drm: i2c-dev is only available on linux")
}
