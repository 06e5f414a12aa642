package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/srg/beacon/internal/advertising"
	"github.com/srg/beacon/internal/button"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/status"
)

type fakeAdvertiser struct {
	mu        sync.Mutex
	restarts  []advertising.FrameSource
	stops     int
	refreshes []status.Record
	updates   []status.Record
	startErrs []error
}

func (a *fakeAdvertiser) Restart(src advertising.FrameSource) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restarts = append(a.restarts, src)
	if len(a.startErrs) > 0 {
		err := a.startErrs[0]
		a.startErrs = a.startErrs[1:]
		return err
	}
	return nil
}

func (a *fakeAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return nil
}

func (a *fakeAdvertiser) Refresh(rec status.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes = append(a.refreshes, rec)
	return nil
}

func (a *fakeAdvertiser) UpdateStatus(rec status.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, rec)
}

func (a *fakeAdvertiser) restartCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.restarts)
}

type fakeButtons struct {
	enabled  bool
	enables  int
	disables int
	events   chan button.Event
}

func newFakeButtons() *fakeButtons {
	return &fakeButtons{enabled: true, events: make(chan button.Event, 1)}
}

func (b *fakeButtons) Enable() {
	b.enabled = true
	b.enables++
}

func (b *fakeButtons) Disable() {
	b.enabled = false
	b.disables++
}

func (b *fakeButtons) Events() <-chan button.Event { return b.events }
func (b *fakeButtons) raise(k button.Kind)         { b.events <- button.Event{Kind: k} }

func (b *fakeButtons) TryEvent() (button.Event, bool) {
	select {
	case ev := <-b.events:
		return ev, true
	default:
		return button.Event{}, false
	}
}

type fakeSampler struct {
	power  status.Power
	pinned []bool
}

func (s *fakeSampler) Sample(pinPressed bool) status.Record {
	s.pinned = append(s.pinned, pinPressed)
	rec := status.Record{CompanyID: status.DefaultCompanyID, BatteryMV: 3000}
	if pinPressed {
		rec.Button = device.ButtonPressed
	}
	return rec
}

func (s *fakeSampler) Power() status.Power { return s.power }

type fakeButton struct {
	state device.ButtonState
}

func (b *fakeButton) State() (device.ButtonState, error) { return b.state, nil }

type fakeLEDs struct {
	on      map[device.LED]bool
	toggles int
}

func newFakeLEDs() *fakeLEDs {
	return &fakeLEDs{on: map[device.LED]bool{}}
}

func (l *fakeLEDs) Set(led device.LED, on bool) error {
	l.on[led] = on
	return nil
}

func (l *fakeLEDs) Toggle(led device.LED) error {
	l.toggles++
	l.on[led] = !l.on[led]
	return nil
}

func (l *fakeLEDs) SetAll(on bool) error {
	l.on[device.LEDRed] = on
	l.on[device.LEDGreen] = on
	return nil
}

func (l *fakeLEDs) allOn() bool {
	return l.on[device.LEDRed] && l.on[device.LEDGreen]
}

type fakeBuzzer struct {
	beeps int
}

func (b *fakeBuzzer) Beep(context.Context, time.Duration) error {
	b.beeps++
	return nil
}
