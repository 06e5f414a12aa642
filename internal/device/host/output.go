package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/srg/beacon/internal/device"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// DefaultTone is the buzzer PWM frequency
const DefaultTone = 2 * physic.KiloHertz

// Buzzer drives a piezo. It uses PWM when the pin supports it and falls
// back to holding the line high.
type Buzzer struct {
	pin  gpio.PinIO
	tone physic.Frequency
	mu   sync.Mutex
}

func NewBuzzer(pin gpio.PinIO, tone physic.Frequency) (*Buzzer, error) {
	if tone <= 0 {
		tone = DefaultTone
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, err
	}
	return &Buzzer{pin: pin, tone: tone}, nil
}

func OpenBuzzer(name string, tone physic.Frequency) (*Buzzer, error) {
	pin, err := pinByName(name)
	if err != nil {
		return nil, err
	}
	return NewBuzzer(pin, tone)
}

// Beep sounds the buzzer for d or until ctx is cancelled.
func (b *Buzzer) Beep(ctx context.Context, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.pin.PWM(gpio.DutyHalf, b.tone); err != nil {
		if err := b.pin.Out(gpio.High); err != nil {
			return err
		}
	}
	defer b.pin.Out(gpio.Low)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// LEDs drives the red and green indicator lines. A nil pin is skipped.
type LEDs struct {
	mu    sync.Mutex
	pins  map[device.LED]gpio.PinIO
	state map[device.LED]bool
}

func NewLEDs(red, green gpio.PinIO) (*LEDs, error) {
	l := &LEDs{
		pins:  make(map[device.LED]gpio.PinIO, 2),
		state: make(map[device.LED]bool, 2),
	}
	for led, pin := range map[device.LED]gpio.PinIO{device.LEDRed: red, device.LEDGreen: green} {
		if pin == nil {
			continue
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, err
		}
		l.pins[led] = pin
	}
	return l, nil
}

// OpenLEDs resolves the pins by name. An empty name leaves that LED unwired.
func OpenLEDs(red, green string) (*LEDs, error) {
	var pins [2]gpio.PinIO
	for i, name := range []string{red, green} {
		if name == "" {
			continue
		}
		p, err := pinByName(name)
		if err != nil {
			return nil, err
		}
		pins[i] = p
	}
	return NewLEDs(pins[0], pins[1])
}

func (l *LEDs) Set(led device.LED, on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set(led, on)
}

func (l *LEDs) Toggle(led device.LED) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set(led, !l.state[led])
}

func (l *LEDs) SetAll(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for led := range l.pins {
		if err := l.set(led, on); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// On reports the last level written to led.
func (l *LEDs) On(led device.LED) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state[led]
}

func (l *LEDs) set(led device.LED, on bool) error {
	pin, ok := l.pins[led]
	if !ok {
		return nil
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := pin.Out(level); err != nil {
		return fmt.Errorf("led %s: %w", led, err)
	}
	l.state[led] = on
	return nil
}
