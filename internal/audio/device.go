package audio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes one capture device
type DeviceInfo struct {
	ID        string // "capture-N", stable for the lifetime of the process
	Name      string
	IsDefault bool
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	if d.IsDefault {
		return fmt.Sprintf("%s: %s [DEFAULT]", d.ID, d.Name)
	}
	return fmt.Sprintf("%s: %s", d.ID, d.Name)
}

// ListDevices enumerates the capture devices
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	return describe(infos), nil
}

// FindDevice resolves id against the capture devices, by ID or name fragment
func FindDevice(id string) (*DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	idx, err := matchDevice(infos, id)
	if err != nil {
		return nil, err
	}
	d := describe(infos)[idx]
	return &d, nil
}

func describe(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			ID:        fmt.Sprintf("capture-%d", i),
			Name:      info.Name(),
			IsDefault: info.IsDefault > 0,
		})
	}
	return devices
}

func matchDevice(infos []malgo.DeviceInfo, id string) (int, error) {
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return selectDevice(names, id)
}

// selectDevice picks the index for "capture-N", else the first name containing
// id case-insensitively
func selectDevice(names []string, id string) (int, error) {
	if n, ok := strings.CutPrefix(id, "capture-"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 0 && i < len(names) {
			return i, nil
		}
	}
	needle := strings.ToLower(id)
	for i, name := range names {
		if strings.Contains(strings.ToLower(name), needle) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no capture device matching %q", id)
}
