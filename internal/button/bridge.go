// Package button bridges button interrupts into coalesced scheduler events.
package button

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/ringchan"
)

// Kind is the reason for an advertising window
type Kind int

const (
	Ping Kind = iota
	Emergency
)

func (k Kind) String() string {
	if k == Emergency {
		return "emergency"
	}
	return "ping"
}

// Event is raised once per confirmed press
type Event struct {
	Kind Kind
	At   time.Time
}

// Config holds the debounce and feedback timing
type Config struct {
	Debounce     time.Duration
	BeepCount    int
	BeepDuration time.Duration
	BeepPeriod   time.Duration
}

// DefaultConfig returns the stock timing
func DefaultConfig() Config {
	return Config{
		Debounce:     75 * time.Millisecond,
		BeepCount:    10,
		BeepDuration: 100 * time.Millisecond,
		BeepPeriod:   500 * time.Millisecond,
	}
}

// Bridge turns interrupts into at most one pending Emergency event.
//
// OnButtonInterrupt runs in interrupt context and only signals the deferred
// task started by Run. The deferred task debounces, plays the feedback and
// raises the event. Interrupts stay disabled after an event until Enable is
// called by the scheduler.
type Bridge struct {
	button device.Button
	buzzer device.Buzzer
	cfg    Config
	logger *logrus.Logger

	enabled atomic.Bool
	wake    *ringchan.Signal
	events  *ringchan.RingChannel[Event]

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewBridge creates an enabled bridge
func NewBridge(button device.Button, buzzer device.Buzzer, cfg Config, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	b := &Bridge{
		button: button,
		buzzer: buzzer,
		cfg:    cfg,
		logger: logger,
		wake:   ringchan.NewSignal(),
		events: ringchan.New[Event](1),
		sleep:  sleep,
		now:    time.Now,
	}
	b.enabled.Store(true)
	return b
}

// OnButtonInterrupt implements device.InterruptObserver
func (b *Bridge) OnButtonInterrupt() {
	if b.enabled.Load() {
		b.wake.Notify()
	}
}

// Enable re-arms interrupt handling
func (b *Bridge) Enable() {
	if !b.enabled.Swap(true) {
		b.logger.Debug("Button interrupts enabled")
	}
}

// Disable ignores interrupts until the next Enable
func (b *Bridge) Disable() {
	b.enabled.Store(false)
}

// Enabled reports whether interrupts are handled
func (b *Bridge) Enabled() bool {
	return b.enabled.Load()
}

// Events delivers raised events. At most one is pending.
func (b *Bridge) Events() <-chan Event {
	return b.events.C()
}

// TryEvent consumes the pending event, if any
func (b *Bridge) TryEvent() (Event, bool) {
	return b.events.TryReceive()
}

// Run is the deferred task. It returns when ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.wake.C():
			b.handle(ctx)
		}
	}
}

func (b *Bridge) handle(ctx context.Context) {
	b.Disable()
	b.wake.Clear()

	if err := b.sleep(ctx, b.cfg.Debounce); err != nil {
		return
	}

	state, err := b.button.State()
	if err != nil {
		b.logger.WithError(err).Warn("Failed to sample button")
		b.Enable()
		return
	}
	if state == device.ButtonReleased {
		b.logger.Debug("Button bounce ignored")
		b.Enable()
		return
	}

	b.logger.Info("Emergency button press detected")
	b.feedback(ctx)

	if !b.events.TrySend(Event{Kind: Emergency, At: b.now()}) {
		b.logger.Debug("Emergency event already pending")
	}
}

// feedback plays BeepCount pulses of BeepDuration, one every BeepPeriod.
func (b *Bridge) feedback(ctx context.Context) {
	gap := b.cfg.BeepPeriod - b.cfg.BeepDuration
	for i := 0; i < b.cfg.BeepCount; i++ {
		if err := b.buzzer.Beep(ctx, b.cfg.BeepDuration); err != nil {
			b.logger.WithError(err).Warn("Beep failed")
		}
		if i == b.cfg.BeepCount-1 || gap <= 0 {
			continue
		}
		if err := b.sleep(ctx, gap); err != nil {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
