package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List ALSA capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := ctx.capture().Devices(ctx.runContext(cmd))
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, devices)
			}
			p := newPrinter(cmd)
			if len(devices) == 0 {
				p.line("No capture devices found.")
				return nil
			}
			configured := ctx.config.Recording.Device
			rows := make([][]string, 0, len(devices))
			for _, d := range devices {
				marker := ""
				if d.ID == configured {
					marker = "*"
				}
				rows = append(rows, []string{d.ID + marker, strconv.Itoa(d.Card), strconv.Itoa(d.Device), d.Name})
			}
			p.table(rightAlign(cols("Device", "Card", "PCM", "Name"), 1, 2), rows)
			return nil
		},
	}
}
