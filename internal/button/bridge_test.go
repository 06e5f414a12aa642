package button

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeButton struct {
	state atomic.Uint32
}

func (b *fakeButton) set(s device.ButtonState) { b.state.Store(uint32(s)) }

func (b *fakeButton) State() (device.ButtonState, error) {
	return device.ButtonState(b.state.Load()), nil
}

type fakeBuzzer struct {
	mu    sync.Mutex
	beeps []time.Duration
}

func (b *fakeBuzzer) Beep(_ context.Context, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beeps = append(b.beeps, d)
	return nil
}

func (b *fakeBuzzer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.beeps)
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	l.waits = append(l.waits, d)
	l.mu.Unlock()
	return ctx.Err()
}

func newTestBridge(btn *fakeButton, buz *fakeBuzzer, log *sleepLog) *Bridge {
	logger := testutils.NewLogger()
	b := NewBridge(btn, buz, DefaultConfig(), logger)
	b.sleep = log.sleep
	return b
}

func startBridge(t *testing.T, b *Bridge) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestBridge_EmergencyCoalesces(t *testing.T) {
	btn := &fakeButton{}
	btn.set(device.ButtonPressed)
	buz := &fakeBuzzer{}
	waits := &sleepLog{}
	b := newTestBridge(btn, buz, waits)

	b.OnButtonInterrupt()
	b.OnButtonInterrupt()
	b.OnButtonInterrupt()
	startBridge(t, b)

	select {
	case ev := <-b.Events():
		assert.Equal(t, Emergency, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no emergency event")
	}

	// further interrupts are ignored while disabled
	b.OnButtonInterrupt()
	time.Sleep(20 * time.Millisecond)

	_, ok := b.TryEvent()
	assert.False(t, ok)
	assert.Equal(t, 10, buz.count())
	assert.False(t, b.Enabled())

	waits.mu.Lock()
	defer waits.mu.Unlock()
	require.NotEmpty(t, waits.waits)
	assert.Equal(t, 75*time.Millisecond, waits.waits[0])
	// debounce plus nine gaps between ten pulses
	assert.Len(t, waits.waits, 10)
	assert.Equal(t, 400*time.Millisecond, waits.waits[1])
}

func TestBridge_BounceReenables(t *testing.T) {
	btn := &fakeButton{}
	buz := &fakeBuzzer{}
	b := newTestBridge(btn, buz, &sleepLog{})
	startBridge(t, b)

	b.OnButtonInterrupt()

	assert.Eventually(t, func() bool {
		return b.Enabled() && b.wake.Coalesced() == 0 && len(b.wake.C()) == 0
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	_, ok := b.TryEvent()
	assert.False(t, ok)
	assert.Equal(t, 0, buz.count())
}

func TestBridge_DisabledIgnoresInterrupts(t *testing.T) {
	b := newTestBridge(&fakeButton{}, &fakeBuzzer{}, &sleepLog{})

	b.Disable()
	b.OnButtonInterrupt()
	assert.Len(t, b.wake.C(), 0)

	b.Enable()
	b.OnButtonInterrupt()
	assert.Len(t, b.wake.C(), 1)
}

func TestBridge_SecondPressAfterEnable(t *testing.T) {
	btn := &fakeButton{}
	btn.set(device.ButtonPressed)
	buz := &fakeBuzzer{}
	b := newTestBridge(btn, buz, &sleepLog{})
	startBridge(t, b)

	b.OnButtonInterrupt()
	require.Eventually(t, func() bool { return len(b.Events()) == 1 }, time.Second, 5*time.Millisecond)

	// scheduler has not consumed the first event yet
	b.Enable()
	b.OnButtonInterrupt()
	require.Eventually(t, func() bool { return b.events.GetMetrics().Dropped == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 20, buz.count())

	_, ok := b.TryEvent()
	assert.True(t, ok)
	_, ok = b.TryEvent()
	assert.False(t, ok)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "ping", Ping.String())
	assert.Equal(t, "emergency", Emergency.String())
}
