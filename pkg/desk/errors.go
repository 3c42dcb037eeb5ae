package desk

import "errors"

// Sentinel errors returned by discovery, connection, and motion operations.
// Wrapped errors carry the underlying transport failure; discriminate with
// errors.Is.
var (
	// ErrNoDevicesFound means an unfiltered scan finished with zero desks.
	ErrNoDevicesFound = errors.New("desk: no desks found")
	// ErrDeviceNotFound means a scan filtered by address timed out without
	// seeing the requested desk.
	ErrDeviceNotFound = errors.New("desk: desk not found")
	// ErrConnectionFailed wraps a transport-level connect failure.
	ErrConnectionFailed = errors.New("desk: connection failed")
	// ErrCharacteristicNotFound means GATT discovery could not resolve one of
	// the characteristics the session needs. No session is returned.
	ErrCharacteristicNotFound = errors.New("desk: characteristic not found")
	// ErrDisconnected means the link dropped; the session is no longer usable.
	ErrDisconnected = errors.New("desk: disconnected")
	// ErrMalformedPayload means the desk reported a position in an
	// unexpected byte format.
	ErrMalformedPayload = errors.New("desk: malformed position payload")
	// ErrOutOfRange means a move target is outside the desk's physical travel.
	ErrOutOfRange = errors.New("desk: target height out of range")
	// ErrStalled means no position progress arrived within the silence
	// window during a move; the desk may have hit a limit or the link died.
	ErrStalled = errors.New("desk: no position progress")
	// ErrBusy means another motion command is already in flight on this
	// session. The protocol has no request correlation, so concurrent motion
	// commands are rejected rather than interleaved.
	ErrBusy = errors.New("desk: motion command already in flight")
)
