package transport

import "sync/atomic"

// Metrics contains atomic counters for one transport instance.
// The fields can back prometheus CounterFunc or GaugeFunc collectors.
type Metrics struct {
	// FrameSendCount is the number of frames written to the channel.
	FrameSendCount atomic.Uint64
	// FrameRecvCount is the number of complete frames read from the channel.
	FrameRecvCount atomic.Uint64
	// UnmatchedFrameCount is the number of received frames no waiter claimed.
	UnmatchedFrameCount atomic.Uint64
	// FramingErrCount is the number of received frames rejected by validation.
	FramingErrCount atomic.Uint64
	// TimeoutCount is the number of awaits that hit the reply timeout.
	TimeoutCount atomic.Uint64
	// RetryCount is the number of operation retries.
	RetryCount atomic.Uint64
	// TxInflightCount is the number of transactions holding the write reservation.
	TxInflightCount atomic.Int64
}

func (m *Metrics) incFrameSendCount()      { m.FrameSendCount.Add(1) }
func (m *Metrics) incFrameRecvCount()      { m.FrameRecvCount.Add(1) }
func (m *Metrics) incUnmatchedFrameCount() { m.UnmatchedFrameCount.Add(1) }
func (m *Metrics) incFramingErrCount()     { m.FramingErrCount.Add(1) }
func (m *Metrics) incTimeoutCount()        { m.TimeoutCount.Add(1) }
func (m *Metrics) incRetryCount()          { m.RetryCount.Add(1) }
func (m *Metrics) incTxInflightCount()     { m.TxInflightCount.Add(1) }
func (m *Metrics) decTxInflightCount()     { m.TxInflightCount.Add(-1) }
