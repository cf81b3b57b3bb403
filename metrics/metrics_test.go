package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/remote"
	"github.com/arloliu/go-hidlink/transport"
)

func gather(t *testing.T, c *Collector) map[string]float64 {
	t.Helper()

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName() + "{" + m.GetLabel()[0].GetValue() + "}"
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
	}

	return values
}

func TestCollector(t *testing.T) {
	c := NewCollector()

	tm := &transport.Metrics{}
	tm.FrameSendCount.Add(3)
	tm.UnmatchedFrameCount.Add(1)
	tm.TxInflightCount.Add(1)
	c.AddTransport("hidi2c", tm)

	pm := &remote.ProxyMetrics{}
	pm.SessionCount.Add(2)
	pm.LeasedHandles.Add(4)
	c.AddProxy("service", pm)

	values := gather(t, c)
	assert.Len(t, values, 12)
	assert.InDelta(t, 3, values["hidlink_transport_frames_sent_total{hidi2c}"], 0)
	assert.InDelta(t, 1, values["hidlink_transport_frames_unmatched_total{hidi2c}"], 0)
	assert.InDelta(t, 1, values["hidlink_transport_transactions_inflight{hidi2c}"], 0)
	assert.InDelta(t, 0, values["hidlink_transport_retries_total{hidi2c}"], 0)
	assert.InDelta(t, 2, values["hidlink_proxy_sessions_total{service}"], 0)
	assert.InDelta(t, 4, values["hidlink_proxy_leased_handles{service}"], 0)

	// counters are read at scrape time
	tm.FrameSendCount.Add(2)
	values = gather(t, c)
	assert.InDelta(t, 5, values["hidlink_transport_frames_sent_total{hidi2c}"], 0)

	c.RemoveTransport("hidi2c")
	assert.Len(t, gather(t, c), 5)
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	tm := &transport.Metrics{}
	tm.RetryCount.Add(7)
	c.AddTransport("pmbus", tm)

	rec := httptest.NewRecorder()
	Handler(NewRegistry(c)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hidlink_transport_retries_total{transport="pmbus"} 7`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
