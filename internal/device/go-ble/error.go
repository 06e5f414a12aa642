package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/beacon/internal/device"
)

// ErrBluetoothOff is returned when the adapter is powered down or missing
var ErrBluetoothOff = errors.New("bluetooth is turned off")

// NormalizeError maps known go-ble error strings to the device error taxonomy.
// The original error stays wrapped.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "already advertising"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyAdvertising, err)
	case containsIgnoreCase(msg, "not advertising"):
		return fmt.Errorf("%w: %v", device.ErrNotAdvertising, err)
	default:
		return err
	}
}

// ATTStatus maps a gateway error to the ATT error code sent to the peer.
func ATTStatus(err error, write bool) ble.ATTError {
	if err == nil {
		return ble.ErrSuccess
	}

	var e *device.Error
	if !errors.As(err, &e) {
		return ble.ErrUnlikely
	}

	switch e.Kind {
	case device.PermissionDenied:
		if write {
			return ble.ErrWriteNotPerm
		}
		return ble.ErrReadNotPerm
	case device.InvalidParameter:
		switch e.Reason {
		case device.ReasonOffset:
			return ble.ErrInvalidOffset
		case device.ReasonLength:
			return ble.ErrInvalAttrValueLen
		default:
			return ble.ErrWriteNotPerm
		}
	case device.Unsupported:
		return ble.ErrReqNotSupp
	default:
		return ble.ErrUnlikely
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
