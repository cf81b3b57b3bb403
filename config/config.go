// Package config loads the TOML configuration used by the hidlink command.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/drm"
	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/remote"
	"github.com/arloliu/go-hidlink/transport"
)

// ErrInvalidConfig wraps every validation failure returned by Load and Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Duration is a time.Duration written as a string such as "1.5s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the root of the configuration file.
type Config struct {
	Log     Log     `toml:"log"`
	Service Service `toml:"service"`
	Helper  Helper  `toml:"helper"`
	Metrics Metrics `toml:"metrics"`
}

// Log selects the logger level and output format.
type Log struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	AddSource bool   `toml:"add_source"`
}

// Service configures the proxy endpoint the helper connects to.
type Service struct {
	Listen         string   `toml:"listen"`
	Path           string   `toml:"path"`
	RequestTimeout Duration `toml:"request_timeout"`
	SendQueueSize  int      `toml:"send_queue_size"`
}

// Helper configures the executor that owns the displays.
type Helper struct {
	URL               string   `toml:"url"`
	ReconnectDelay    Duration `toml:"reconnect_delay"`
	MaxReconnectDelay Duration `toml:"max_reconnect_delay"`
	SysfsRoot         string   `toml:"sysfs_root"`
	DevRoot           string   `toml:"dev_root"`
	Retries           int      `toml:"retries"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "console"},
		Service: Service{
			Listen:         "127.0.0.1:7580",
			Path:           "/session",
			RequestTimeout: Duration{remote.DefaultRequestTimeout},
			SendQueueSize:  remote.DefaultSendQueueSize,
		},
		Helper: Helper{
			URL:               "ws://127.0.0.1:7580/session",
			ReconnectDelay:    Duration{remote.DefaultReconnectDelay},
			MaxReconnectDelay: Duration{remote.DefaultMaxReconnectDelay},
			SysfsRoot:         drm.DefaultSysfsRoot,
			DevRoot:           "/dev",
			Retries:           ddcci.DefaultRetries,
		},
		Metrics: Metrics{Enabled: true, Path: "/metrics"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalidConfig, c.Log.Format)
	}

	if c.Service.Listen == "" {
		return fmt.Errorf("%w: service.listen is empty", ErrInvalidConfig)
	}
	if c.Service.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("%w: service.request_timeout must be positive", ErrInvalidConfig)
	}
	if c.Service.SendQueueSize < 1 {
		return fmt.Errorf("%w: service.send_queue_size must be at least 1", ErrInvalidConfig)
	}

	u, err := url.Parse(c.Helper.URL)
	if err != nil {
		return fmt.Errorf("%w: helper.url: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: helper.url scheme must be ws or wss, got %q", ErrInvalidConfig, u.Scheme)
	}
	if c.Helper.ReconnectDelay.Duration <= 0 || c.Helper.MaxReconnectDelay.Duration < c.Helper.ReconnectDelay.Duration {
		return fmt.Errorf("%w: helper reconnect delays must satisfy 0 < reconnect_delay <= max_reconnect_delay", ErrInvalidConfig)
	}
	if c.Helper.Retries < 0 {
		return fmt.Errorf("%w: helper.retries must not be negative", ErrInvalidConfig)
	}

	if c.Metrics.Enabled && (c.Metrics.Path == "" || c.Metrics.Path == c.Service.Path) {
		return fmt.Errorf("%w: metrics.path must be set and differ from service.path", ErrInvalidConfig)
	}

	return nil
}

// LogLevel returns the parsed log level. Call after Validate.
func (c *Config) LogLevel() logger.LogLevel {
	level, _ := logger.ParseLevel(c.Log.Level)
	return level
}

// ServiceOptions returns the remote options for the service side.
func (c *Config) ServiceOptions(l logger.Logger, m *remote.ProxyMetrics) []remote.Option {
	return []remote.Option{
		remote.WithLogger(l),
		remote.WithMetrics(m),
		remote.WithRequestTimeout(c.Service.RequestTimeout.Duration),
		remote.WithSendQueueSize(c.Service.SendQueueSize),
	}
}

// HelperOptions returns the remote options for the executor side.
func (c *Config) HelperOptions(l logger.Logger, m *remote.ProxyMetrics) []remote.Option {
	return []remote.Option{
		remote.WithLogger(l),
		remote.WithMetrics(m),
		remote.WithReconnectDelay(c.Helper.ReconnectDelay.Duration),
		remote.WithMaxReconnectDelay(c.Helper.MaxReconnectDelay.Duration),
	}
}

// BackendOptions returns the drm backend options.
func (c *Config) BackendOptions(l logger.Logger, m *transport.Metrics) []drm.Option {
	return []drm.Option{
		drm.WithSysfsRoot(c.Helper.SysfsRoot),
		drm.WithDevRoot(c.Helper.DevRoot),
		drm.WithRetries(c.Helper.Retries),
		drm.WithLogger(l),
		drm.WithMetrics(m),
	}
}
