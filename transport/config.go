package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-hidlink/logger"
)

const (
	// DefaultReplyTimeout bounds every await for a reply.
	DefaultReplyTimeout = 2 * time.Second
	// MaxReplyTimeout is the largest accepted reply timeout.
	MaxReplyTimeout = 60 * time.Second
)

// Config holds the settings shared by every transport built on this package.
type Config struct {
	name         string
	replyTimeout time.Duration
	metrics      *Metrics
	logger       logger.Logger
}

// Option configures a transport.
type Option interface {
	apply(cfg *Config) error
}

type optFunc func(cfg *Config) error

func (f optFunc) apply(cfg *Config) error {
	return f(cfg)
}

// NewConfig builds a Config from opts.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		name:         "transport",
		replyTimeout: DefaultReplyTimeout,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.metrics == nil {
		cfg.metrics = &Metrics{}
	}

	return cfg, nil
}

// WithName sets the name used in log records.
func WithName(name string) Option {
	return optFunc(func(cfg *Config) error {
		if name == "" {
			return errors.New("transport: empty name")
		}
		cfg.name = name

		return nil
	})
}

// WithReplyTimeout sets the reply timeout. Zero disables it, leaving only the caller's context.
func WithReplyTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxReplyTimeout {
			return fmt.Errorf("transport: reply timeout %v out of range [0, %v]", d, MaxReplyTimeout)
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithMetrics makes the transport record into m instead of a private Metrics.
func WithMetrics(m *Metrics) Option {
	return optFunc(func(cfg *Config) error {
		cfg.metrics = m
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("transport: nil logger")
		}
		cfg.logger = l

		return nil
	})
}

func (cfg *Config) Name() string                { return cfg.name }
func (cfg *Config) ReplyTimeout() time.Duration { return cfg.replyTimeout }
func (cfg *Config) Metrics() *Metrics           { return cfg.metrics }
func (cfg *Config) Logger() logger.Logger       { return cfg.logger }
