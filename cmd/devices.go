// cmd/devices.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/bpmdetect/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	Long:  `List the capture devices known to the audio backend. Use the index with --device or device_index.`,
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, _ []string) error {
	settings, _, err := setup()
	if err != nil {
		return err
	}

	capture := audio.New(settings.AudioConfig())
	if err := capture.Init(); err != nil {
		return err
	}
	defer capture.Close()

	infos, err := capture.ListDevices()
	if err != nil {
		return err
	}

	names := make([]string, len(infos))
	for i := range infos {
		names[i] = infos[i].Name()
	}
	printDevices(cmd.OutOrStdout(), names, settings.DeviceIndex)
	return nil
}

// printDevices writes one indexed line per device and marks the selected one
func printDevices(w io.Writer, names []string, selected int) {
	if len(names) == 0 {
		fmt.Fprintln(w, "no capture devices found")
		return
	}
	for i, name := range names {
		mark := " "
		if i == selected {
			mark = "*"
		}
		fmt.Fprintf(w, "%s [%d] %s\n", mark, i, name)
	}
}
