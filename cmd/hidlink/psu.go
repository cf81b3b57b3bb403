package main

import (
	"context"
	"errors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-hidlink/pmbus"
)

type sensor struct {
	name string
	cmd  byte
	unit string
}

var psuSensors = []sensor{
	{"Input voltage", pmbus.CmdReadVIn, "V"},
	{"Input current", pmbus.CmdReadIIn, "A"},
	{"Input power", pmbus.CmdReadPIn, "W"},
	{"Output voltage", pmbus.CmdReadVOut, "V"},
	{"Output current", pmbus.CmdReadIOut, "A"},
	{"Output power", pmbus.CmdReadPOut, "W"},
	{"Temperature 1", pmbus.CmdReadTemperature1, "°C"},
	{"Temperature 2", pmbus.CmdReadTemperature2, "°C"},
	{"Fan speed", pmbus.CmdReadFanSpeed1, "RPM"},
}

func newPSUCmd() *cobra.Command {
	var f deviceFlags

	cmd := &cobra.Command{
		Use:   "psu",
		Short: "Print the telemetry of a Corsair Link power supply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPSU(cmd.Context(), f)
		},
	}
	f.register(cmd)

	return cmd
}

func runPSU(ctx context.Context, f deviceFlags) error {
	ch, err := f.open()
	if err != nil {
		return err
	}

	dev, err := pmbus.Open(ctx, ch, f.transportOptions(nil)...)
	if err != nil {
		return err
	}
	defer dev.Close()

	pterm.DefaultSection.Println(dev.DeviceName())

	rows, err := readSensors(ctx, dev)
	if err != nil {
		return err
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// readSensors reads psuSensors into table rows. Sensors the device doesn't implement are
// shown as n/a.
func readSensors(ctx context.Context, dev *pmbus.Device) ([][]string, error) {
	rows := [][]string{{"Sensor", "Value"}}

	if model, err := dev.ReadString(ctx, pmbus.CmdMfrModel); err == nil {
		rows = append(rows, []string{"Model", model})
	} else if !errors.Is(err, pmbus.ErrInvalidEndpoint) {
		return nil, err
	}

	for _, s := range psuSensors {
		v, err := dev.ReadLinear11(ctx, s.cmd)
		switch {
		case err == nil:
			rows = append(rows, []string{s.name, pterm.Sprintf("%.2f %s", v.Float64(), s.unit)})
		case errors.Is(err, pmbus.ErrInvalidEndpoint):
			rows = append(rows, []string{s.name, "n/a"})
		default:
			return nil, err
		}
	}

	return rows, nil
}
