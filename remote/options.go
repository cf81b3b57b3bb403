package remote

import (
	"errors"
	"time"

	"github.com/arloliu/go-hidlink/logger"
)

const (
	DefaultRequestTimeout    = 10 * time.Second
	DefaultSendQueueSize     = 16
	DefaultReconnectDelay    = time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
)

type options struct {
	logger            logger.Logger
	metrics           *ProxyMetrics
	requestTimeout    time.Duration
	sendQueueSize     int
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
}

// Option configures a Service or an Executor.
type Option interface {
	apply(o *options) error
}

type optFunc func(o *options) error

func (f optFunc) apply(o *options) error {
	return f(o)
}

func newOptions(opts []Option) (*options, error) {
	o := &options{
		logger:            logger.GetLogger(),
		requestTimeout:    DefaultRequestTimeout,
		sendQueueSize:     DefaultSendQueueSize,
		reconnectDelay:    DefaultReconnectDelay,
		maxReconnectDelay: DefaultMaxReconnectDelay,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}

	if o.metrics == nil {
		o.metrics = &ProxyMetrics{}
	}
	if o.maxReconnectDelay < o.reconnectDelay {
		o.maxReconnectDelay = o.reconnectDelay
	}

	return o, nil
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return errors.New("remote: nil logger")
		}
		o.logger = l

		return nil
	})
}

// WithMetrics records into m instead of a private ProxyMetrics.
func WithMetrics(m *ProxyMetrics) Option {
	return optFunc(func(o *options) error {
		o.metrics = m
		return nil
	})
}

// WithRequestTimeout bounds every request round trip and the hello exchange. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d < 0 {
			return errors.New("remote: negative request timeout")
		}
		o.requestTimeout = d

		return nil
	})
}

// WithSendQueueSize sets how many encoded requests may wait for the stream writer.
func WithSendQueueSize(n int) Option {
	return optFunc(func(o *options) error {
		if n < 1 {
			return errors.New("remote: send queue size must be positive")
		}
		o.sendQueueSize = n

		return nil
	})
}

// WithReconnectDelay sets the first delay between executor reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d <= 0 {
			return errors.New("remote: reconnect delay must be positive")
		}
		o.reconnectDelay = d

		return nil
	})
}

// WithMaxReconnectDelay caps the exponential reconnect backoff.
func WithMaxReconnectDelay(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d <= 0 {
			return errors.New("remote: max reconnect delay must be positive")
		}
		o.maxReconnectDelay = d

		return nil
	})
}
