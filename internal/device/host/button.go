package host

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/device"
	"periph.io/x/conn/v3/gpio"
)

// DefaultEdgePoll bounds each wait for a button edge
const DefaultEdgePoll = 250 * time.Millisecond

// Button is a push button on a GPIO line. It samples the level and turns
// press edges into interrupt notifications while Run is active.
type Button struct {
	pin       gpio.PinIO
	activeLow bool
	poll      time.Duration
	logger    *logrus.Logger

	observer atomic.Pointer[device.InterruptObserver]
}

// NewButton configures pin as an input with an edge on press.
func NewButton(pin gpio.PinIO, activeLow bool, poll time.Duration, logger *logrus.Logger) (*Button, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if poll <= 0 {
		poll = DefaultEdgePoll
	}

	pull, edge := gpio.PullDown, gpio.RisingEdge
	if activeLow {
		pull, edge = gpio.PullUp, gpio.FallingEdge
	}
	if err := pin.In(pull, edge); err != nil {
		return nil, err
	}

	return &Button{pin: pin, activeLow: activeLow, poll: poll, logger: logger}, nil
}

// OpenButton looks the pin up by name
func OpenButton(name string, activeLow bool, poll time.Duration, logger *logrus.Logger) (*Button, error) {
	pin, err := pinByName(name)
	if err != nil {
		return nil, err
	}
	return NewButton(pin, activeLow, poll, logger)
}

// State implements device.Button
func (b *Button) State() (device.ButtonState, error) {
	if (b.pin.Read() == gpio.High) != b.activeLow {
		return device.ButtonPressed, nil
	}
	return device.ButtonReleased, nil
}

// Observe implements device.InterruptSource
func (b *Button) Observe(o device.InterruptObserver) {
	b.observer.Store(&o)
}

// Run waits for edges and forwards them to the observer.
func (b *Button) Run(ctx context.Context) error {
	b.logger.WithField("pin", b.pin.Name()).Debug("Watching button edges")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if !b.pin.WaitForEdge(b.poll) {
			continue
		}
		if o := b.observer.Load(); o != nil {
			(*o).OnButtonInterrupt()
		}
	}
}

// releasedButton stands in when no button is wired. It never fires.
type releasedButton struct{}

func (releasedButton) State() (device.ButtonState, error) { return device.ButtonReleased, nil }
func (releasedButton) Observe(device.InterruptObserver)   {}
func (releasedButton) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

