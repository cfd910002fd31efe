package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quill/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	var skipDevices bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directories, devices and service credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := preflight.Options{Offline: offline}
			if !skipDevices {
				opts.Devices = ctx.capture()
			}
			results := preflight.RunAll(ctx.runContext(cmd), ctx.config, ctx.layout(), opts)

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				p := newPrinter(cmd)
				p.section("Preflight")
				for _, r := range results {
					p.status(r.Name, checkKind(r), r.Detail)
				}
			}
			if preflight.Failed(results) {
				return fmt.Errorf("doctor: required checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip network checks against the service endpoints")
	cmd.Flags().BoolVar(&skipDevices, "no-devices", false, "Skip capture device enumeration")
	return cmd
}

func checkKind(r preflight.Result) statusKind {
	switch {
	case r.Passed:
		return statusOK
	case r.Optional:
		return statusWarn
	default:
		return statusError
	}
}
