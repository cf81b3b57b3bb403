// Package drm is the Linux backend of the remote executor. It finds monitors through
// the DRM connectors in sysfs and talks DDC/CI to them over i2c-dev.
package drm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/remote"
	"github.com/arloliu/go-hidlink/transport"
)

// Backend implements remote.Backend on top of sysfs and i2c-dev.
type Backend struct {
	sysfsRoot string
	devRoot   string
	retries   int
	logger    logger.Logger
	metrics   *transport.Metrics
	openBus   func(path string) (io.ReadWriteCloser, error)
}

var _ remote.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(b *Backend) error

// WithSysfsRoot overrides DefaultSysfsRoot.
func WithSysfsRoot(dir string) Option {
	return func(b *Backend) error {
		if dir == "" {
			return errors.New("drm: empty sysfs root")
		}
		b.sysfsRoot = dir

		return nil
	}
}

// WithDevRoot sets the directory holding the i2c-N device nodes. The default is /dev.
func WithDevRoot(dir string) Option {
	return func(b *Backend) error {
		if dir == "" {
			return errors.New("drm: empty device root")
		}
		b.devRoot = dir

		return nil
	}
}

// WithRetries sets how many times a failed DDC/CI exchange is retried.
func WithRetries(n int) Option {
	return func(b *Backend) error {
		if n < 0 {
			return errors.New("drm: negative retry count")
		}
		b.retries = n

		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Backend) error {
		if l == nil {
			return errors.New("drm: nil logger")
		}
		b.logger = l

		return nil
	}
}

// WithMetrics records DDC/CI retries into m.
func WithMetrics(m *transport.Metrics) Option {
	return func(b *Backend) error {
		b.metrics = m
		return nil
	}
}

// NewBackend creates a backend.
func NewBackend(opts ...Option) (*Backend, error) {
	b := &Backend{
		sysfsRoot: DefaultSysfsRoot,
		devRoot:   "/dev",
		retries:   ddcci.DefaultRetries,
		logger:    logger.GetLogger(),
		openBus:   openI2C,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "drm")

	return b, nil
}

// Connectors lists the connected monitors.
func (b *Backend) Connectors() ([]Connector, error) {
	return Scan(b.sysfsRoot, b.devRoot, b.logger)
}

// ResolveAdapter maps a card name such as "card0" to its index.
func (b *Backend) ResolveAdapter(_ context.Context, deviceName string) (uint64, error) {
	idx, err := strconv.ParseUint(strings.TrimPrefix(deviceName, "card"), 10, 32)
	if err != nil || !strings.HasPrefix(deviceName, "card") || !cardExists(b.sysfsRoot, deviceName) {
		return 0, fmt.Errorf("drm: adapter %q: %w", deviceName, remote.ErrNotFound)
	}

	return idx, nil
}

// OpenMonitor opens the DDC/CI channel of the monitor on adapter adapterID matching id.
// The serial string is only compared when id carries one.
func (b *Backend) OpenMonitor(_ context.Context, adapterID uint64, id remote.MonitorIdentity) (remote.MonitorHandle, error) {
	conns, err := b.Connectors()
	if err != nil {
		return nil, err
	}

	for _, c := range conns {
		if c.CardIndex != adapterID || !matchIdentity(c.EDID.Identity, id) {
			continue
		}
		if c.I2CDevice == "" {
			return nil, fmt.Errorf("drm: %s has no DDC bus: %w", c.Name, remote.ErrNotFound)
		}

		bus, err := b.openBus(c.I2CDevice)
		if err != nil {
			return nil, fmt.Errorf("drm: open %s: %w", c.I2CDevice, err)
		}
		b.logger.Debug("monitor opened", "connector", c.Name, "bus", c.I2CDevice)

		return newMonitor(c, bus, transport.Retrier{Retries: b.retries, Logger: b.logger, Metrics: b.metrics}), nil
	}

	return nil, fmt.Errorf("drm: monitor %04X:%04X on card%d: %w", id.VendorID, id.ProductID, adapterID, remote.ErrNotFound)
}

func matchIdentity(have, want remote.MonitorIdentity) bool {
	if have.VendorID != want.VendorID || have.ProductID != want.ProductID || have.IDSerial != want.IDSerial {
		return false
	}

	return want.SerialNumber == "" || have.SerialNumber == want.SerialNumber
}
