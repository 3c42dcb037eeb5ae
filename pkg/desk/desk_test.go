package desk

import (
	"context"
	"errors"
	"testing"
)

func TestConnectBindsAllCharacteristics(t *testing.T) {
	s, adapter := connectTestSession(t, 7000, DefaultOptions())

	if s.control == nil || s.positionRead == nil || s.positionNotify == nil {
		t.Fatal("session returned with unbound characteristics")
	}

	// Binding must have subscribed to position notifications.
	if adapter.connection.position.callback == nil {
		t.Error("Connect() did not subscribe to position notifications")
	}
}

func TestConnectFailsOnMissingControlCharacteristic(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.connection.missingControl = true

	_, err := Connect(context.Background(), adapter, "EE:4D:A2:34:D5:8B", DefaultOptions())
	if !errors.Is(err, ErrCharacteristicNotFound) {
		t.Fatalf("Connect() error = %v, want ErrCharacteristicNotFound", err)
	}
	if !adapter.connection.isDisconnected() {
		t.Error("connection should be torn down when binding fails")
	}
}

func TestConnectFailsOnMissingPositionCharacteristic(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.connection.missingPosition = true

	_, err := Connect(context.Background(), adapter, "EE:4D:A2:34:D5:8B", DefaultOptions())
	if !errors.Is(err, ErrCharacteristicNotFound) {
		t.Fatalf("Connect() error = %v, want ErrCharacteristicNotFound", err)
	}
	if !adapter.connection.isDisconnected() {
		t.Error("connection should be torn down when binding fails")
	}
}

func TestPositionReadsAndDecodes(t *testing.T) {
	s, _ := connectTestSession(t, 7430, DefaultOptions())

	got, err := s.Position()
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	if got != 7430 {
		t.Errorf("Position() = %d, want 7430", got)
	}
}

func TestPositionMalformedPayload(t *testing.T) {
	s, adapter := connectTestSession(t, 7000, DefaultOptions())

	for _, payload := range [][]byte{nil, {0x01}, {0x01, 0x02, 0x03}, {1, 2, 3, 4, 5}} {
		adapter.connection.position.value = payload
		_, err := s.Position()
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("Position() with %d-byte payload: error = %v, want ErrMalformedPayload", len(payload), err)
		}
	}
}

func TestDecodePosition(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    Height
		wantErr bool
	}{
		{"two bytes", []byte{0x58, 0x1b}, 7000, false},
		{"four bytes with speed", []byte{0x28, 0x23, 0x40, 0x00}, 9000, false},
		{"max height", []byte{0x9c, 0x31}, 12700, false},
		{"empty", nil, 0, true},
		{"one byte", []byte{0x58}, 0, true},
		{"three bytes", []byte{0x58, 0x1b, 0x00}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePosition(tt.payload)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("decodePosition() error = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodePosition() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("decodePosition() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommandWireFormat(t *testing.T) {
	s, adapter := connectTestSession(t, 7000, DefaultOptions())

	if err := s.Up(); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if err := s.Down(); err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	writes := adapter.connection.control.Writes()
	want := [][]byte{{0x47, 0x00}, {0x46, 0x00}, {0xff, 0x00}}
	if len(writes) != len(want) {
		t.Fatalf("got %d control writes, want %d", len(writes), len(want))
	}
	for i := range want {
		if len(writes[i]) != 2 || writes[i][0] != want[i][0] || writes[i][1] != want[i][1] {
			t.Errorf("write %d = % x, want % x", i, writes[i], want[i])
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s, adapter := connectTestSession(t, 7000, DefaultOptions())

	// Desk is stationary; repeated stops must succeed and only write.
	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	_, _, stops := countCommands(adapter.connection.control.Writes())
	if stops != 2 {
		t.Errorf("got %d stop writes, want 2", stops)
	}
}

func TestNotificationUpdatesLastKnown(t *testing.T) {
	s, adapter := connectTestSession(t, 7000, DefaultOptions())

	if _, ok := s.LastKnown(); ok {
		t.Fatal("LastKnown() should report nothing before any notification")
	}

	adapter.connection.position.SimulateNotification(encodePosition(8120))

	got, ok := s.LastKnown()
	if !ok {
		t.Fatal("LastKnown() should report a value after a notification")
	}
	if got != 8120 {
		t.Errorf("LastKnown() = %d, want 8120", got)
	}
}

func TestMalformedNotificationIsIgnored(t *testing.T) {
	s, adapter := connectTestSession(t, 7000, DefaultOptions())

	adapter.connection.position.SimulateNotification([]byte{0xde})

	if _, ok := s.LastKnown(); ok {
		t.Error("malformed notification should not update the cache")
	}
}

func TestOperationsFailAfterDisconnect(t *testing.T) {
	s, adapter := connectTestSession(t, 7000, DefaultOptions())

	adapter.connection.SimulateDisconnect()

	if _, err := s.Position(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Position() after disconnect: error = %v, want ErrDisconnected", err)
	}
	if err := s.Up(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Up() after disconnect: error = %v, want ErrDisconnected", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Stop() after disconnect: error = %v, want ErrDisconnected", err)
	}
}

func TestExplicitDisconnectInvalidatesSession(t *testing.T) {
	s, adapter := connectTestSession(t, 7000, DefaultOptions())

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if !adapter.connection.isDisconnected() {
		t.Error("underlying connection should be closed")
	}
	if _, err := s.Position(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Position() after Disconnect(): error = %v, want ErrDisconnected", err)
	}
}

func TestDirectionalCommandsRejectedWhileMoving(t *testing.T) {
	s, _ := connectTestSession(t, 7000, DefaultOptions())

	s.moving.Store(true)
	defer s.moving.Store(false)

	if err := s.Up(); !errors.Is(err, ErrBusy) {
		t.Errorf("Up() during move: error = %v, want ErrBusy", err)
	}
	if err := s.Down(); !errors.Is(err, ErrBusy) {
		t.Errorf("Down() during move: error = %v, want ErrBusy", err)
	}
	// Stop is the safety valve and is never rejected.
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() during move: error = %v, want nil", err)
	}
}

func TestHeightConversions(t *testing.T) {
	if got := HeightFromCm(74.3); got != 7430 {
		t.Errorf("HeightFromCm(74.3) = %d, want 7430", got)
	}
	if got := Height(7430).Cm(); got != 74.3 {
		t.Errorf("Height(7430).Cm() = %v, want 74.3", got)
	}
	if got := Height(9050).String(); got != "90.5 cm" {
		t.Errorf("Height(9050).String() = %q, want \"90.5 cm\"", got)
	}
	if Height(6199).InRange() || Height(12701).InRange() {
		t.Error("heights outside physical travel should not be in range")
	}
	if !MinHeight.InRange() || !MaxHeight.InRange() {
		t.Error("travel limits themselves are reachable")
	}
}
