package app

import (
	"fmt"
	"io"

	"github.com/emmett/hark/internal/audio"
)

// ListDevices prints the capture devices to w
func ListDevices(w io.Writer) error {
	devices, err := audio.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	return PrintDevices(w, devices)
}

// PrintDevices prints devices with usage hints
func PrintDevices(w io.Writer, devices []audio.DeviceInfo) error {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No audio capture devices found.")
		return fmt.Errorf("no devices found")
	}

	fmt.Fprintf(w, "Found %d capture device(s):\n\n", len(devices))
	for i, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " [DEFAULT]"
		}
		fmt.Fprintf(w, "%d. %s%s\n", i+1, d.Name, marker)
		fmt.Fprintf(w, "   ID: %s\n\n", d.ID)
	}
	fmt.Fprintf(w, "To use a specific device, run:\n  hark --device %q\n", devices[0].ID)
	return nil
}
