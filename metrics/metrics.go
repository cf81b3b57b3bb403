// Package metrics exports the transport and proxy counters to prometheus.
//
// The counters live in lock-free structs owned by each transport or proxy; the
// Collector reads them at scrape time.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-hidlink/remote"
	"github.com/arloliu/go-hidlink/transport"
)

const namespace = "hidlink"

var (
	framesSent = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "transport", "frames_sent_total"),
		"Frames written to the channel.", []string{"transport"}, nil)
	framesReceived = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "transport", "frames_received_total"),
		"Complete frames read from the channel.", []string{"transport"}, nil)
	framesUnmatched = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "transport", "frames_unmatched_total"),
		"Received frames no waiter claimed.", []string{"transport"}, nil)
	framingErrors = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "transport", "framing_errors_total"),
		"Received frames rejected by envelope validation.", []string{"transport"}, nil)
	replyTimeouts = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "transport", "reply_timeouts_total"),
		"Awaits that hit the reply timeout.", []string{"transport"}, nil)
	retries = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "transport", "retries_total"),
		"Operation retries.", []string{"transport"}, nil)
	inflight = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "transport", "transactions_inflight"),
		"Transactions holding the write reservation.", []string{"transport"}, nil)

	sessions = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "proxy", "sessions_total"),
		"Proxy sessions that completed the hello.", []string{"role"}, nil)
	requests = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "proxy", "requests_total"),
		"Proxy requests issued or executed.", []string{"role"}, nil)
	failures = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "proxy", "request_failures_total"),
		"Proxy requests that ended with an error.", []string{"role"}, nil)
	queued = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "proxy", "queued_sessions"),
		"Sessions waiting to become current.", []string{"role"}, nil)
	leased = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "proxy", "leased_handles"),
		"Monitor handles currently leased.", []string{"role"}, nil)
)

// Collector is a prometheus.Collector over registered counter sets.
type Collector struct {
	mu         sync.RWMutex
	transports map[string]*transport.Metrics
	proxies    map[string]*remote.ProxyMetrics
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		transports: make(map[string]*transport.Metrics),
		proxies:    make(map[string]*remote.ProxyMetrics),
	}
}

// AddTransport exports m under the transport label name, replacing a previous set with that name.
func (c *Collector) AddTransport(name string, m *transport.Metrics) {
	c.mu.Lock()
	c.transports[name] = m
	c.mu.Unlock()
}

// RemoveTransport stops exporting the set registered as name.
func (c *Collector) RemoveTransport(name string) {
	c.mu.Lock()
	delete(c.transports, name)
	c.mu.Unlock()
}

// AddProxy exports m under the role label, e.g. "service" or "executor".
func (c *Collector) AddProxy(role string, m *remote.ProxyMetrics) {
	c.mu.Lock()
	c.proxies[role] = m
	c.mu.Unlock()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		framesSent, framesReceived, framesUnmatched, framingErrors, replyTimeouts, retries, inflight,
		sessions, requests, failures, queued, leased,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, m := range c.transports {
		counter(ch, framesSent, m.FrameSendCount.Load(), name)
		counter(ch, framesReceived, m.FrameRecvCount.Load(), name)
		counter(ch, framesUnmatched, m.UnmatchedFrameCount.Load(), name)
		counter(ch, framingErrors, m.FramingErrCount.Load(), name)
		counter(ch, replyTimeouts, m.TimeoutCount.Load(), name)
		counter(ch, retries, m.RetryCount.Load(), name)
		ch <- prometheus.MustNewConstMetric(inflight, prometheus.GaugeValue, float64(m.TxInflightCount.Load()), name)
	}

	for role, m := range c.proxies {
		counter(ch, sessions, m.SessionCount.Load(), role)
		counter(ch, requests, m.RequestCount.Load(), role)
		counter(ch, failures, m.FailureCount.Load(), role)
		ch <- prometheus.MustNewConstMetric(queued, prometheus.GaugeValue, float64(m.QueuedSessions.Load()), role)
		ch <- prometheus.MustNewConstMetric(leased, prometheus.GaugeValue, float64(m.LeasedHandles.Load()), role)
	}
}

func counter(ch chan<- prometheus.Metric, d *prometheus.Desc, v uint64, label string) {
	ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), label)
}

// NewRegistry returns a registry holding c plus the Go runtime and process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return reg
}

// Handler serves reg in the prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
