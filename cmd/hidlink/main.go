// Command hidlink drives HID attached displays and power supplies, and runs both
// halves of the remote display proxy.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-hidlink/config"
	"github.com/arloliu/go-hidlink/logger"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

var (
	flags globalFlags
	cfg   *config.Config
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hidlink",
		Short:         "Correlated request/response access to HID attached devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			cfg, err = loadConfig(flags)
			if err != nil {
				return err
			}
			logger.SetLogger(logger.NewSlogWriter(os.Stderr, cfg.Log.Format, cfg.LogLevel(), cfg.Log.AddSource))

			return nil
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "TOML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(), newHelperCmd(), newVCPCmd(), newPSUCmd(), newLightingCmd())

	return root
}

func loadConfig(f globalFlags) (*config.Config, error) {
	c, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		c.Log.Level = f.logLevel
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err)
		stop()
		os.Exit(1)
	}
}
