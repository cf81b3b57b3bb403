package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-hidlink/drm"
	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/remote"
	"github.com/arloliu/go-hidlink/transport"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hidlink.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, remote.DefaultRequestTimeout, cfg.Service.RequestTimeout.Duration)
	assert.Equal(t, drm.DefaultSysfsRoot, cfg.Helper.SysfsRoot)
	assert.Equal(t, logger.InfoLevel, cfg.LogLevel())
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
[log]
level = "debug"
format = "json"

[service]
listen = "0.0.0.0:9000"
request_timeout = "2.5s"

[helper]
url = "wss://proxy.local/session"
reconnect_delay = "500ms"
max_reconnect_delay = "1m"
retries = 0

[metrics]
enabled = false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logger.DebugLevel, cfg.LogLevel())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "0.0.0.0:9000", cfg.Service.Listen)
	assert.Equal(t, "/session", cfg.Service.Path)
	assert.Equal(t, 2500*time.Millisecond, cfg.Service.RequestTimeout.Duration)
	assert.Equal(t, remote.DefaultSendQueueSize, cfg.Service.SendQueueSize)
	assert.Equal(t, "wss://proxy.local/session", cfg.Helper.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Helper.ReconnectDelay.Duration)
	assert.Equal(t, time.Minute, cfg.Helper.MaxReconnectDelay.Duration)
	assert.Equal(t, 0, cfg.Helper.Retries)
	assert.False(t, cfg.Metrics.Enabled)

	assert.Len(t, cfg.ServiceOptions(logger.GetLogger(), &remote.ProxyMetrics{}), 4)
	assert.Len(t, cfg.HelperOptions(logger.GetLogger(), &remote.ProxyMetrics{}), 4)

	b, err := drm.NewBackend(cfg.BackendOptions(logger.GetLogger(), &transport.Metrics{})...)
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		invalid bool
	}{
		{name: "syntax", content: `[log`},
		{name: "bad duration", content: "[service]\nrequest_timeout = \"soon\""},
		{name: "unknown key", content: "[service]\nport = 80", invalid: true},
		{name: "bad level", content: "[log]\nlevel = \"loud\"", invalid: true},
		{name: "bad format", content: "[log]\nformat = \"xml\"", invalid: true},
		{name: "zero timeout", content: "[service]\nrequest_timeout = \"0s\"", invalid: true},
		{name: "zero queue", content: "[service]\nsend_queue_size = 0", invalid: true},
		{name: "http url", content: "[helper]\nurl = \"http://proxy\"", invalid: true},
		{name: "delays", content: "[helper]\nreconnect_delay = \"10s\"\nmax_reconnect_delay = \"1s\"", invalid: true},
		{name: "negative retries", content: "[helper]\nretries = -1", invalid: true},
		{name: "metrics path", content: "[metrics]\npath = \"/session\"", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NotErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}
