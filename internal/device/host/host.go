// Package host provides periph.io backed implementations of the device
// collaborators: GPIO button, buzzer and LEDs, battery sensors and the board
// identity.
package host

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	periphhost "periph.io/x/host/v3"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph.io host drivers once per process.
func Init() error {
	initOnce.Do(func() {
		_, initErr = periphhost.Init()
	})
	return initErr
}

// pinByName resolves a GPIO pin from the registry
func pinByName(name string) (gpio.PinIO, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return p, nil
}
