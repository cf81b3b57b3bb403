package main

import (
	"context"
	"errors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-hidlink/ultragear"
)

type lightingFlags struct {
	device deviceFlags
	effect uint8
	on     bool
	off    bool
	add    bool
}

func newLightingCmd() *cobra.Command {
	var f lightingFlags

	cmd := &cobra.Command{
		Use:   "lighting",
		Short: "Control the lighting of an LG UltraGear monitor",
		Example: `  hidlink lighting -d /dev/hidraw5 --effect 2
  hidlink lighting -d /dev/hidraw5 --off`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !f.on && !f.off && !cmd.Flags().Changed("effect") {
				return errors.New("nothing to do: pass --on, --off or --effect")
			}

			return runLighting(cmd.Context(), f, cmd.Flags().Changed("effect"))
		},
	}
	f.device.register(cmd)
	cmd.Flags().Uint8Var(&f.effect, "effect", 0, "effect index to activate")
	cmd.Flags().BoolVar(&f.add, "add", false, "add --effect to the rotation instead of activating it")
	cmd.Flags().BoolVar(&f.on, "on", false, "switch the lighting on")
	cmd.Flags().BoolVar(&f.off, "off", false, "switch the lighting off")
	cmd.MarkFlagsMutuallyExclusive("on", "off")

	return cmd
}

func runLighting(ctx context.Context, f lightingFlags, setEffect bool) error {
	ch, err := f.device.open()
	if err != nil {
		return err
	}

	l, err := ultragear.Open(ch, f.device.transportOptions(nil)...)
	if err != nil {
		return err
	}
	defer l.Close()

	if f.on || f.off {
		if err := l.EnableLighting(ctx, f.on); err != nil {
			return err
		}
		pterm.Success.Printfln("lighting on: %t", f.on)
	}

	if setEffect {
		effect := ultragear.Effect(f.effect)
		if f.add {
			err = l.EnableLightingEffect(ctx, effect)
		} else {
			err = l.SetActiveEffect(ctx, effect)
		}
		if err != nil {
			return err
		}
		pterm.Success.Printfln("effect %d applied", f.effect)
	}

	return nil
}
