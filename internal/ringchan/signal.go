package ringchan

// Signal is a level-triggered wakeup. Any number of Notify calls made before
// the consumer wakes collapse into a single pending notification.
type Signal struct {
	rc *RingChannel[struct{}]
}

// NewSignal creates a signal with no pending notification.
func NewSignal() *Signal {
	return &Signal{rc: New[struct{}](1)}
}

// Notify marks the signal pending. It never blocks and is safe to call from
// interrupt context. Returns false if a notification was already pending.
func (s *Signal) Notify() bool {
	return s.rc.TrySend(struct{}{})
}

// C returns the channel that becomes readable while a notification is pending.
func (s *Signal) C() <-chan struct{} {
	return s.rc.C()
}

// Clear drops a pending notification. Returns true if one was pending.
func (s *Signal) Clear() bool {
	_, ok := s.rc.TryReceive()
	return ok
}

// Coalesced reports how many notifications were folded into a pending one.
func (s *Signal) Coalesced() int64 {
	return s.rc.GetMetrics().Dropped
}
