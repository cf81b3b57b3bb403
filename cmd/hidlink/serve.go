package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-hidlink/config"
	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/metrics"
	"github.com/arloliu/go-hidlink/remote"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy service that helpers connect to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, c *config.Config) error {
	l := logger.With("component", "serve")

	svc, err := remote.NewService(c.ServiceOptions(l, &remote.ProxyMetrics{})...)
	if err != nil {
		return err
	}
	defer svc.Close()

	collector := metrics.NewCollector()
	collector.AddProxy("service", svc.Metrics())

	srv := &http.Server{
		Addr:              c.Service.Listen,
		Handler:           newServeMux(c, svc, metrics.NewRegistry(collector)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	pterm.Info.Printfln("listening on %s (session endpoint %s)", c.Service.Listen, c.Service.Path)

	return serveHTTP(ctx, srv)
}

// serveHTTP runs srv until ctx is done.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func newServeMux(c *config.Config, svc *remote.Service, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(c.Service.Path, svc)
	if c.Metrics.Enabled {
		mux.Handle(c.Metrics.Path, metrics.Handler(reg))
	}
	mux.Handle("GET /vcp", vcpHandler(svc, c.Service.RequestTimeout.Duration))
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		info, ok := svc.Current()
		if !ok {
			http.Error(w, "no helper connected", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{
			"id":         info.ID,
			"generation": info.Generation,
			"state":      info.State.String(),
			"queued":     info.Queued,
		})
	})

	return mux
}

type vcpResult struct {
	Adapter   string `json:"adapter"`
	Handle    uint32 `json:"handle"`
	Code      byte   `json:"code"`
	Current   uint16 `json:"current"`
	Maximum   uint16 `json:"maximum"`
	Temporary bool   `json:"temporary"`
}

// vcpHandler reads one VCP code of a remote monitor:
// GET /vcp?adapter=card0&vendor=0x1e6d&product=0x5b0a&serial=0&code=0x10
func vcpHandler(svc *remote.Service, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		adapter := q.Get("adapter")
		if adapter == "" {
			http.Error(w, "missing adapter", http.StatusBadRequest)
			return
		}
		vendor, err1 := parseUint(q.Get("vendor"), 16)
		product, err2 := parseUint(q.Get("product"), 16)
		serial, err3 := parseOptionalUint(q.Get("serial"), 32)
		code, err4 := parseUint(q.Get("code"), 8)
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		a, err := svc.ResolveAdapter(ctx, adapter)
		if err != nil {
			writeError(w, err)
			return
		}
		m, err := a.ResolveMonitor(ctx, remote.MonitorIdentity{
			VendorID:  uint16(vendor),
			ProductID: uint16(product),
			IDSerial:  uint32(serial),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		defer func() { _ = m.Release(context.WithoutCancel(ctx)) }()

		v, err := m.GetVCP(ctx, byte(code))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, vcpResult{
			Adapter:   a.DeviceName(),
			Handle:    m.Handle(),
			Code:      byte(code),
			Current:   v.Current,
			Maximum:   v.Maximum,
			Temporary: v.Temporary,
		})
	})
}

func parseUint(s string, bits int) (uint64, error) {
	if s == "" {
		return 0, errors.New("missing parameter")
	}
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}

	return v, nil
}

func parseOptionalUint(s string, bits int) (uint64, error) {
	if s == "" {
		return 0, nil
	}

	return parseUint(s, bits)
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ddcci.ErrUnsupportedVCP):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, remote.ErrRequestTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, remote.ErrServiceClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), errorCode(err))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
