package device

import (
	"context"
	"time"
)

// ButtonState is the sampled level of the user button.
type ButtonState uint16

const (
	ButtonReleased ButtonState = 0
	ButtonPressed  ButtonState = 1
)

func (s ButtonState) String() string {
	if s == ButtonPressed {
		return "pressed"
	}
	return "released"
}

// BatterySensor reports the battery voltage in millivolts
type BatterySensor interface {
	BatteryMillivolts() (uint16, error)
}

// Button samples the raw button line
type Button interface {
	State() (ButtonState, error)
}

// InterruptObserver is notified from interrupt context. Implementations must not block.
type InterruptObserver interface {
	OnButtonInterrupt()
}

// InterruptSource delivers button edges to a single observer registered at startup.
type InterruptSource interface {
	Observe(o InterruptObserver)
}

// Runner is implemented by collaborators that need a goroutine of their own
// (e.g. an edge-polling GPIO line).
type Runner interface {
	Run(ctx context.Context) error
}

// Buzzer emits an audible pulse and returns once it ends.
type Buzzer interface {
	Beep(ctx context.Context, d time.Duration) error
}

// LED identifies a feedback LED
type LED int

const (
	LEDRed LED = iota
	LEDGreen
)

func (l LED) String() string {
	switch l {
	case LEDRed:
		return "red"
	case LEDGreen:
		return "green"
	default:
		return "unknown"
	}
}

// Indicator drives the feedback LEDs
type Indicator interface {
	Set(led LED, on bool) error
	Toggle(led LED) error
	SetAll(on bool) error
}

// Identity exposes the factory serial number used to derive the advertised name.
type Identity interface {
	SerialNumber() []byte
}

// ConnectionObserver receives peer-link notifications from the transport.
// Implementations may only record the new status.
type ConnectionObserver interface {
	OnConnected()
	OnDisconnected()
}

// NopIndicator is an Indicator for boards without LEDs
type NopIndicator struct{}

func (NopIndicator) Set(LED, bool) error { return nil }
func (NopIndicator) Toggle(LED) error    { return nil }
func (NopIndicator) SetAll(bool) error   { return nil }

// NopBuzzer is a Buzzer for boards without a sounder. Beep still takes d.
type NopBuzzer struct{}

func (NopBuzzer) Beep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
