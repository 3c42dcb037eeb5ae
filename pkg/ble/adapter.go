// Package ble defines the BLE transport boundary used by the desk session.
// It abstracts scanning, connecting, and GATT characteristic access behind
// small interfaces so the core logic can be driven by any backend — the real
// tinygo-org/bluetooth adapter in production, mocks in tests.
package ble

import "context"

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Read fetches the characteristic's current value.
	Read() ([]byte, error)
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral, before connection.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports peripherals advertising the given service UUID to handler
	// as they are discovered. Scanning continues until ctx is cancelled or
	// handler returns false, and is always stopped before Scan returns.
	Scan(ctx context.Context, serviceUUID string, handler func(Device) bool) error
	// Connect establishes a connection to the device at the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
