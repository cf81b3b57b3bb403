package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/transport"
)

// deviceFlags are shared by the commands that open a hidraw node directly.
type deviceFlags struct {
	path         string
	replyTimeout time.Duration
}

func (f *deviceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "device", "d", "", "hidraw device node, e.g. /dev/hidraw3")
	cmd.Flags().DurationVar(&f.replyTimeout, "reply-timeout", transport.DefaultReplyTimeout, "per reply timeout, 0 disables it")
	_ = cmd.MarkFlagRequired("device")
}

func (f *deviceFlags) open() (*transport.StreamChannel, error) {
	return transport.OpenDevice(f.path)
}

func (f *deviceFlags) transportOptions(m *transport.Metrics) []transport.Option {
	return []transport.Option{
		transport.WithLogger(logger.With("device", f.path)),
		transport.WithReplyTimeout(f.replyTimeout),
		transport.WithMetrics(m),
	}
}
