package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/go-hidlink/config"
	"github.com/arloliu/go-hidlink/drm"
	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/metrics"
	"github.com/arloliu/go-hidlink/remote"
	"github.com/arloliu/go-hidlink/transport"
)

func newHelperCmd() *cobra.Command {
	var metricsListen string

	cmd := &cobra.Command{
		Use:   "helper",
		Short: "Connect to the proxy service and execute its display requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHelper(cmd.Context(), cfg, metricsListen)
		},
	}
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve prometheus metrics on this address")

	return cmd
}

func runHelper(ctx context.Context, c *config.Config, metricsListen string) error {
	l := logger.With("component", "helper")

	ddcMetrics := &transport.Metrics{}
	backend, err := drm.NewBackend(c.BackendOptions(l, ddcMetrics)...)
	if err != nil {
		return err
	}

	conns, err := backend.Connectors()
	if err != nil {
		return err
	}
	printConnectors(conns)

	exec, err := remote.NewExecutor(backend, c.HelperOptions(l, &remote.ProxyMetrics{})...)
	if err != nil {
		return err
	}
	pterm.Info.Printfln("helper %s connecting to %s", exec.ID(), c.Helper.URL)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := exec.Run(ctx, func(ctx context.Context) (remote.Stream, error) {
			return remote.Dial(ctx, c.Helper.URL, nil)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	if metricsListen != "" && c.Metrics.Enabled {
		collector := metrics.NewCollector()
		collector.AddProxy("executor", exec.Metrics())
		collector.AddTransport("drm", ddcMetrics)

		mux := http.NewServeMux()
		mux.Handle(c.Metrics.Path, metrics.Handler(metrics.NewRegistry(collector)))
		srv := &http.Server{Addr: metricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error { return serveHTTP(ctx, srv) })
	}

	return g.Wait()
}

func printConnectors(conns []drm.Connector) {
	if len(conns) == 0 {
		pterm.Warning.Println("no connected monitors found")
		return
	}

	rows := [][]string{{"Connector", "Adapter", "Monitor", "Vendor", "Product", "Serial", "Bus"}}
	for _, conn := range conns {
		id := conn.EDID.Identity
		rows = append(rows, []string{
			conn.Name,
			conn.Card,
			conn.EDID.Name,
			conn.EDID.Manufacturer,
			pterm.Sprintf("0x%04X", id.ProductID),
			id.SerialNumber,
			conn.I2CDevice,
		})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
