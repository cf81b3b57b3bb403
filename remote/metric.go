package remote

import "sync/atomic"

// ProxyMetrics contains atomic counters shared by the sessions of a Service or Executor.
type ProxyMetrics struct {
	// SessionCount is the number of sessions that completed the hello.
	SessionCount atomic.Uint64
	// RequestCount is the number of requests issued or executed.
	RequestCount atomic.Uint64
	// FailureCount is the number of requests that ended with an error.
	FailureCount atomic.Uint64
	// QueuedSessions is the number of sessions waiting to become current.
	QueuedSessions atomic.Int64
	// LeasedHandles is the number of monitor handles currently leased.
	LeasedHandles atomic.Int64
}

func (m *ProxyMetrics) incSessionCount() { m.SessionCount.Add(1) }
func (m *ProxyMetrics) incRequestCount() { m.RequestCount.Add(1) }
func (m *ProxyMetrics) incFailureCount() { m.FailureCount.Add(1) }
