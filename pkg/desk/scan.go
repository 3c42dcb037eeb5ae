package desk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aklajnert/idasen/pkg/ble"
)

// Discover scans for desks advertising the Linak control service.
//
// With a non-empty filter address the scan stops at the first matching desk
// and fails with ErrDeviceNotFound if none appears before the timeout.
// Without a filter it collects every desk seen until the timeout; zero
// matches is ErrNoDevicesFound, multiple matches are all returned and the
// choice is the caller's. Radio scanning is stopped on every exit path.
func Discover(ctx context.Context, adapter ble.Adapter, filter string, timeout time.Duration) ([]ble.Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("desk: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var devices []ble.Device
	err := adapter.Scan(ctx, ControlServiceUUID, func(d ble.Device) bool {
		if filter != "" {
			if !strings.EqualFold(d.Address, filter) {
				return true
			}
			devices = append(devices, d)
			return false
		}
		slog.Debug("[desk] found", "name", d.Name, "address", d.Address, "rssi", d.RSSI)
		devices = append(devices, d)
		return true
	})
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("desk: scan: %w", err)
	}

	if len(devices) == 0 {
		if filter != "" {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, filter)
		}
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}
