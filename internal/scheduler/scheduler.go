// Package scheduler drives the duty cycle: periodic and emergency advertising
// windows, connection awareness and the idle fallback.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/advertising"
	"github.com/srg/beacon/internal/beacon"
	"github.com/srg/beacon/internal/button"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/eddystone"
	"github.com/srg/beacon/internal/status"
)

// ErrStopped is returned by Do once Run has returned
var ErrStopped = errors.New("scheduler stopped")

// State of the duty cycle
type State int32

const (
	StateIdle State = iota
	StateAdvertising
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvertising:
		return "advertising"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds the duty-cycle timing
type Config struct {
	Tick            time.Duration
	ActiveWindow    time.Duration
	WakeupPeriod    time.Duration
	AdvertiseOnBoot bool
	ConnectionLED   bool
	ConnectBeep     time.Duration
}

// DefaultConfig returns the stock timing
func DefaultConfig() Config {
	return Config{
		Tick:            250 * time.Millisecond,
		ActiveWindow:    30 * time.Second,
		WakeupPeriod:    600 * time.Second,
		AdvertiseOnBoot: true,
		ConnectionLED:   true,
		ConnectBeep:     100 * time.Millisecond,
	}
}

// Advertiser is the advertising controller as seen by the scheduler
type Advertiser interface {
	Restart(src advertising.FrameSource) error
	Stop() error
	Refresh(rec status.Record) error
	UpdateStatus(rec status.Record)
}

// Buttons is the scheduler side of the button bridge
type Buttons interface {
	Enable()
	Disable()
	Events() <-chan button.Event
	TryEvent() (button.Event, bool)
}

// Sampler produces status records and the power verdict
type Sampler interface {
	Sample(pinPressed bool) status.Record
	Power() status.Power
}

// Hardware groups the feedback peripherals the scheduler drives directly.
type Hardware struct {
	Button device.Button
	LEDs   device.Indicator
	Buzzer device.Buzzer
}

type request struct {
	fn   func() error
	done chan error
}

// Scheduler is the single cooperative flow that owns the beacon state.
// Everything except Do, State and Run must be called from that flow.
type Scheduler struct {
	cfg     Config
	state   *beacon.State
	adv     Advertiser
	buttons Buttons
	sampler Sampler
	hw      Hardware
	logger  *logrus.Logger

	requests chan request
	stopped  chan struct{}
	now      func() time.Time

	mode         atomic.Int32
	kind         button.Kind
	src          advertising.FrameSource
	pending      *button.Event
	windowStart  time.Time
	deadline     time.Time
	startFailed  bool
	links        int64
	awaitRelease bool
	awaitSince   time.Time
	stuck        bool
}

// New creates a scheduler in Idle
func New(cfg Config, state *beacon.State, adv Advertiser, buttons Buttons, sampler Sampler, hw Hardware, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if hw.LEDs == nil {
		hw.LEDs = device.NopIndicator{}
	}
	if hw.Buzzer == nil {
		hw.Buzzer = device.NopBuzzer{}
	}
	return &Scheduler{
		cfg:      cfg,
		state:    state,
		adv:      adv,
		buttons:  buttons,
		sampler:  sampler,
		hw:       hw,
		logger:   logger,
		requests: make(chan request),
		stopped:  make(chan struct{}),
		now:      time.Now,
	}
}

// State returns the current duty-cycle state. Safe from any goroutine.
func (s *Scheduler) State() State {
	return State(s.mode.Load())
}

func (s *Scheduler) setState(st State) {
	prev := State(s.mode.Swap(int32(st)))
	if prev != st {
		s.logger.WithFields(logrus.Fields{
			"from": prev,
			"to":   st,
		}).Debug("Duty cycle state changed")
	}
}

// Deadline returns the next periodic wake time
func (s *Scheduler) Deadline() time.Time {
	return s.deadline
}

// boot arms the first deadline relative to now.
func (s *Scheduler) boot(now time.Time) {
	s.links = s.state.Links()
	if s.cfg.AdvertiseOnBoot {
		s.deadline = now
	} else {
		s.deadline = now.Add(s.cfg.WakeupPeriod)
	}
	s.logger.WithFields(logrus.Fields{
		"wakeup_period": s.cfg.WakeupPeriod,
		"active_window": s.cfg.ActiveWindow,
		"next_wakeup":   s.deadline,
	}).Info("Duty cycle armed")
}

// Run drives the flow until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.stopped)

	s.boot(s.now())

	timer := time.NewTimer(s.cfg.Tick)
	defer timer.Stop()

	for {
		now := s.now()
		s.Step(now)
		timer.Reset(s.nextWait(now))

	wait:
		for {
			var events <-chan button.Event
			if s.State() == StateIdle && !s.awaitRelease && s.pending == nil {
				events = s.buttons.Events()
			}

			select {
			case <-ctx.Done():
				s.shutdown()
				return nil
			case req := <-s.requests:
				req.done <- req.fn()
			case ev := <-events:
				s.pending = &ev
				timer.Stop()
				break wait
			case <-timer.C:
				break wait
			}
		}
	}
}

// Do runs fn inside the flow and returns its result.
func (s *Scheduler) Do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, done: make(chan error, 1)}

	select {
	case s.requests <- req:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nextWait bounds the next wait by the tick and, in Idle, by the deadline.
func (s *Scheduler) nextWait(now time.Time) time.Duration {
	wait := s.cfg.Tick
	if s.State() == StateIdle && !s.awaitRelease {
		if until := s.deadline.Sub(now); until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Step advances the flow by one tick observed at now.
func (s *Scheduler) Step(now time.Time) {
	switch s.State() {
	case StateIdle:
		s.stepIdle(now)
	case StateAdvertising:
		s.stepAdvertising(now)
	case StateConnected:
		s.stepConnected(now)
	}
}

func (s *Scheduler) stepIdle(now time.Time) {
	if s.awaitRelease && !s.checkRelease(now) {
		return
	}

	if s.pending == nil {
		if ev, ok := s.buttons.TryEvent(); ok {
			s.pending = &ev
		}
	}
	if s.pending != nil {
		kind := s.pending.Kind
		s.pending = nil
		s.enter(now, kind)
		return
	}

	if !now.Before(s.deadline) {
		s.enter(now, button.Ping)
	}
}

func (s *Scheduler) stepAdvertising(now time.Time) {
	if s.state.Connected() {
		s.setState(StateConnected)
		s.logger.WithField("elapsed", now.Sub(s.windowStart)).Info("Configuration peer connected")
		s.showConnection()
		return
	}

	if now.Sub(s.windowStart) >= s.cfg.ActiveWindow {
		s.logger.Info("Advertising window elapsed without connection")
		s.leave(now)
		return
	}

	if s.startFailed {
		s.start()
	} else if err := s.adv.Refresh(s.sampler.Sample(s.kind == button.Emergency)); err != nil {
		s.logger.WithError(err).Warn("Failed to refresh advertising payload")
	}
	s.showConnection()
}

func (s *Scheduler) stepConnected(now time.Time) {
	if !s.state.Connected() {
		s.logger.Info("Configuration peer disconnected")
		s.leave(now)
		return
	}
	s.showConnection()
}

// enter opens an advertising window of the given kind.
func (s *Scheduler) enter(now time.Time, kind button.Kind) {
	s.buttons.Disable()

	if p := s.sampler.Power(); p != status.PowerOK {
		s.logger.WithField("power", p).Warn("Battery power not good")
		s.led(device.LEDRed, true)
	}

	s.kind = kind
	s.src = s.source(kind)
	s.windowStart = now
	s.setState(StateAdvertising)

	s.logger.WithFields(logrus.Fields{
		"kind":   kind,
		"source": s.src,
	}).Info("Advertising window opened")

	s.start()
}

func (s *Scheduler) start() {
	s.adv.UpdateStatus(s.sampler.Sample(s.kind == button.Emergency))
	if err := s.adv.Restart(s.src); err != nil {
		s.startFailed = true
		s.logger.WithError(err).Warn("Advertising start failed, retrying next tick")
		return
	}
	s.startFailed = false
}

// source picks identity unless a ping can carry a non-connectable URL slot.
func (s *Scheduler) source(kind button.Kind) advertising.FrameSource {
	if kind != button.Ping {
		return advertising.SourceIdentity
	}
	slot := s.state.Slots.Active()
	if slot.Type == eddystone.FrameURL && !slot.Connectable {
		return advertising.SourceSlot
	}
	return advertising.SourceIdentity
}

// leave closes the window and returns to Idle.
func (s *Scheduler) leave(now time.Time) {
	if err := s.adv.Stop(); err != nil {
		s.logger.WithError(err).Warn("Failed to stop advertising")
	}
	if err := s.hw.LEDs.SetAll(false); err != nil {
		s.logger.WithError(err).Debug("Failed to clear LEDs")
	}

	s.startFailed = false
	s.deadline = now.Add(s.cfg.WakeupPeriod)
	s.awaitRelease = true
	s.awaitSince = now
	s.stuck = false
	s.setState(StateIdle)

	s.logger.WithField("next_wakeup", s.deadline).Info("Advertising window closed")
	s.checkRelease(now)
}

// checkRelease re-enables the button once it is released. A button held for
// longer than the active window lights every LED. Returns true once released.
func (s *Scheduler) checkRelease(now time.Time) bool {
	state, err := s.hw.Button.State()
	if err != nil {
		s.logger.WithError(err).Warn("Failed to sample button")
		return false
	}

	if state == device.ButtonReleased {
		if s.stuck {
			s.logger.Info("Stuck button released")
			if err := s.hw.LEDs.SetAll(false); err != nil {
				s.logger.WithError(err).Debug("Failed to clear LEDs")
			}
		}
		s.awaitRelease = false
		s.stuck = false
		s.buttons.Enable()
		return true
	}

	if !s.stuck && now.Sub(s.awaitSince) > s.cfg.ActiveWindow {
		s.stuck = true
		s.logger.Warn("Button stuck pressed")
		if err := s.hw.LEDs.SetAll(true); err != nil {
			s.logger.WithError(err).Debug("Failed to light LEDs")
		}
	}
	return false
}

// showConnection drives the green LED: steady while connected, blinking while
// waiting, with a short beep on each new connection.
func (s *Scheduler) showConnection() {
	if !s.cfg.ConnectionLED {
		return
	}

	if !s.state.Connected() {
		if err := s.hw.LEDs.Toggle(device.LEDGreen); err != nil {
			s.logger.WithError(err).Debug("Failed to toggle LED")
		}
		return
	}

	s.led(device.LEDGreen, true)
	if links := s.state.Links(); links != s.links {
		s.links = links
		if err := s.hw.Buzzer.Beep(context.Background(), s.cfg.ConnectBeep); err != nil {
			s.logger.WithError(err).Debug("Connection beep failed")
		}
	}
}

func (s *Scheduler) led(led device.LED, on bool) {
	if err := s.hw.LEDs.Set(led, on); err != nil {
		s.logger.WithError(err).WithField("led", led).Debug("Failed to set LED")
	}
}

func (s *Scheduler) shutdown() {
	if s.State() != StateIdle {
		if err := s.adv.Stop(); err != nil {
			s.logger.WithError(err).Warn("Failed to stop advertising on shutdown")
		}
	}
	if err := s.hw.LEDs.SetAll(false); err != nil {
		s.logger.WithError(err).Debug("Failed to clear LEDs")
	}
	s.setState(StateIdle)
	s.logger.Info("Duty cycle stopped")
}
