package main

import (
	"context"
	"errors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-hidlink/ddcci"
	"github.com/arloliu/go-hidlink/hidi2c"
	"github.com/arloliu/go-hidlink/logger"
	"github.com/arloliu/go-hidlink/transport"
)

type vcpFlags struct {
	device  deviceFlags
	session uint8
	address uint8
	code    uint8
	set     uint16
	caps    bool
	retries int
}

func newVCPCmd() *cobra.Command {
	var f vcpFlags

	cmd := &cobra.Command{
		Use:   "vcp",
		Short: "Read or write a VCP control through a HID I2C bridge",
		Example: `  hidlink vcp -d /dev/hidraw3 --code 0x10
  hidlink vcp -d /dev/hidraw3 --code 0x10 --set 60
  hidlink vcp -d /dev/hidraw3 --caps`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !f.caps && !cmd.Flags().Changed("code") {
				return errors.New("one of --code or --caps is required")
			}

			return runVCP(cmd.Context(), f, cmd.Flags().Changed("set"))
		},
	}
	f.device.register(cmd)
	cmd.Flags().Uint8Var(&f.session, "session", 1, "bridge session id")
	cmd.Flags().Uint8Var(&f.address, "address", ddcci.DisplayAddress, "7-bit DDC/CI address of the display")
	cmd.Flags().Uint8Var(&f.code, "code", 0, "VCP code, e.g. 0x10 for luminance")
	cmd.Flags().Uint16Var(&f.set, "set", 0, "value to write instead of reading")
	cmd.Flags().BoolVar(&f.caps, "caps", false, "print the capabilities string")
	cmd.Flags().IntVar(&f.retries, "retries", ddcci.DefaultRetries, "retries for framing errors and timeouts")

	return cmd
}

func runVCP(ctx context.Context, f vcpFlags, write bool) error {
	ch, err := f.device.open()
	if err != nil {
		return err
	}

	m := &transport.Metrics{}
	bridge, err := hidi2c.Open(ctx, ch, f.session,
		hidi2c.WithDeviceAddress(f.address),
		hidi2c.WithTransportOptions(f.device.transportOptions(m)...),
	)
	if err != nil {
		return err
	}
	defer bridge.Close()

	retrier := transport.Retrier{Retries: f.retries, Logger: logger.GetLogger(), Metrics: m}

	if f.caps {
		buf := make([]byte, transport.MaxMultiPacketLength)
		n, err := transport.RetryValue(ctx, retrier, func(ctx context.Context) (int, error) {
			return bridge.Capabilities(ctx, buf)
		})
		if err != nil {
			return err
		}
		pterm.DefaultSection.Println("Capabilities")
		pterm.Println(string(buf[:n]))

		return nil
	}

	ctl := ddcci.WithRetry(bridge, retrier)
	if write {
		if err := ctl.SetVCP(ctx, f.code, f.set); err != nil {
			return err
		}
		pterm.Success.Printfln("VCP 0x%02X set to %d", f.code, f.set)

		return nil
	}

	v, err := ctl.GetVCP(ctx, f.code)
	if err != nil {
		return err
	}

	return pterm.DefaultTable.WithHasHeader().WithData([][]string{
		{"Code", "Current", "Maximum", "Temporary", "Retries"},
		{
			pterm.Sprintf("0x%02X", f.code),
			pterm.Sprint(v.Current),
			pterm.Sprint(v.Maximum),
			pterm.Sprint(v.Temporary),
			pterm.Sprint(m.RetryCount.Load()),
		},
	}).Render()
}
