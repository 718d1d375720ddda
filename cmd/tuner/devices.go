package main

import (
	"github.com/spf13/cobra"

	"github.com/metalblueberry/tuner/pkg/audio"
)

func newDevicesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the portaudio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.ListDevices()

			if err != nil {
				return err
			}

			return e.printer.Print(devices)
		},
	}
}
