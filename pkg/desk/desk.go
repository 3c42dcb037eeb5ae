// Package desk drives a Linak-based motorized standing desk (IKEA Idasen)
// over BLE: discovery, session binding, height reads, and closed-loop
// move-to-height control. All BLE access goes through the pkg/ble transport
// boundary so the package can be exercised against mocks.
package desk

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aklajnert/idasen/pkg/ble"
)

// Linak DPG GATT profile. The control characteristic takes 2-byte
// little-endian command codes; the position characteristic is readable and
// notifies on change.
const (
	ControlServiceUUID  = "99fa0001-338a-1024-8a49-009c0215f78a"
	ControlCharUUID     = "99fa0002-338a-1024-8a49-009c0215f78a"
	PositionServiceUUID = "99fa0020-338a-1024-8a49-009c0215f78a"
	PositionCharUUID    = "99fa0021-338a-1024-8a49-009c0215f78a"
)

// Command codes written to the control characteristic. Up and Down start
// continuous movement; the desk keeps moving until Stop or a mechanical
// limit. Fixed device constants, not derivable.
var (
	commandUp   = []byte{0x47, 0x00}
	commandDown = []byte{0x46, 0x00}
	commandStop = []byte{0xff, 0x00}
)

// Options configures session and motion-controller behavior.
type Options struct {
	Deadband     Height        // arrival tolerance around a move target (default 50 = 5 mm)
	Tolerance    Height        // overshoot band considered normal (default 100 = 1 cm)
	StallTimeout time.Duration // silence window before a move is declared stalled (default 2s)
	StopGrace    time.Duration // how long a cancelled move waits for its stop write (default 500ms)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Deadband:     50,
		Tolerance:    100,
		StallTimeout: 2 * time.Second,
		StopGrace:    500 * time.Millisecond,
	}
}

// Session is one controlled desk: an exclusively-owned BLE connection with
// the control and position characteristics bound. A session is either fully
// bound or Connect fails; there is no partially-usable session.
//
// Operations on one Session must not be issued concurrently from multiple
// callers: the desk protocol has no request correlation, so interleaved
// motion commands produce undefined behavior. Concurrent motion commands are
// rejected with ErrBusy; Stop is always allowed.
type Session struct {
	conn ble.Connection
	opts Options

	control        ble.Characteristic // directional command writes
	positionRead   ble.Characteristic // height, read on demand
	positionNotify ble.Characteristic // height, pushed on change

	moving atomic.Bool // at most one motion command in flight

	mu        sync.Mutex
	lastKnown Height
	hasLast   bool
	watcher   chan Height // at most one, registered during MoveTo

	closed    chan struct{} // closed when the link drops
	closeOnce sync.Once
}

// Connect opens a BLE connection to the desk at the given address, binds the
// control and position characteristics, and subscribes to position
// notifications. The returned session has a live-updating position stream
// from the moment it is returned.
func Connect(ctx context.Context, adapter ble.Adapter, address string, opts Options) (*Session, error) {
	if opts.Deadband <= 0 {
		opts.Deadband = 50
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 100
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = 2 * time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 500 * time.Millisecond
	}

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("desk: enable adapter: %w", err)
	}

	conn, err := adapter.Connect(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s := &Session{
		conn:   conn,
		opts:   opts,
		closed: make(chan struct{}),
	}

	s.control, err = conn.DiscoverCharacteristic(ControlServiceUUID, ControlCharUUID)
	if err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("%w: control: %w", ErrCharacteristicNotFound, err)
	}

	// The Linak position characteristic serves both roles: read on demand
	// and notify on change.
	position, err := conn.DiscoverCharacteristic(PositionServiceUUID, PositionCharUUID)
	if err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("%w: position: %w", ErrCharacteristicNotFound, err)
	}
	s.positionRead = position
	s.positionNotify = position

	if err := s.positionNotify.Subscribe(s.handleNotification); err != nil {
		conn.Disconnect()
		return nil, fmt.Errorf("%w: subscribe position: %w", ErrConnectionFailed, err)
	}

	conn.OnDisconnect(func() {
		slog.Warn("[desk] disconnected", "address", address)
		s.markClosed()
	})

	slog.Info("[desk] connected", "address", address)
	return s, nil
}

// handleNotification decodes a pushed position update, refreshes the cache,
// and feeds the active watcher if one is registered.
func (s *Session) handleNotification(data []byte) {
	h, err := decodePosition(data)
	if err != nil {
		slog.Debug("[desk] dropping notification", "error", err)
		return
	}
	s.mu.Lock()
	s.lastKnown = h
	s.hasLast = true
	w := s.watcher
	s.mu.Unlock()
	if w != nil {
		select {
		case w <- h:
		default:
			// Watcher lagging. Stale positions are useless to the motion
			// controller, so drop the oldest buffered update instead of the
			// freshest one.
			select {
			case <-w:
			default:
			}
			select {
			case w <- h:
			default:
			}
		}
	}
}

// watch registers the session's single position watcher. The returned cancel
// func must be called before another watcher can register.
func (s *Session) watch() (<-chan Height, func()) {
	ch := make(chan Height, 8)
	s.mu.Lock()
	s.watcher = ch
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		s.watcher = nil
		s.mu.Unlock()
	}
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Session) disconnected() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Position reads and decodes the desk's current height.
func (s *Session) Position() (Height, error) {
	if s.disconnected() {
		return 0, ErrDisconnected
	}
	data, err := s.positionRead.Read()
	if err != nil {
		if s.disconnected() {
			return 0, ErrDisconnected
		}
		return 0, fmt.Errorf("desk: read position: %w", err)
	}
	return decodePosition(data)
}

// LastKnown returns the most recent position pushed by the desk, if any
// notification has arrived yet.
func (s *Session) LastKnown() (Height, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastKnown, s.hasLast
}

// Up starts continuous upward movement. The desk keeps moving until Stop or
// the upper mechanical limit.
func (s *Session) Up() error {
	if s.moving.Load() {
		return ErrBusy
	}
	return s.writeCommand(commandUp)
}

// Down starts continuous downward movement.
func (s *Session) Down() error {
	if s.moving.Load() {
		return ErrBusy
	}
	return s.writeCommand(commandDown)
}

// Stop halts the desk. Safe to call at any time, including when the desk is
// already stationary.
func (s *Session) Stop() error {
	return s.writeCommand(commandStop)
}

func (s *Session) writeCommand(code []byte) error {
	if s.disconnected() {
		return ErrDisconnected
	}
	if err := s.control.Write(code); err != nil {
		if s.disconnected() {
			return ErrDisconnected
		}
		return fmt.Errorf("desk: write command: %w", err)
	}
	return nil
}

// Disconnect tears down the session. Any in-flight operation fails with
// ErrDisconnected.
func (s *Session) Disconnect() error {
	s.markClosed()
	return s.conn.Disconnect()
}

// decodePosition decodes a little-endian height payload. The desk reports
// either a bare uint16 height or a uint16 height followed by an int16 speed;
// the speed half is ignored.
func decodePosition(data []byte) (Height, error) {
	switch len(data) {
	case 2, 4:
		return Height(binary.LittleEndian.Uint16(data[:2])), nil
	default:
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(data))
	}
}
