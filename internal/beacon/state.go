// Package beacon holds the state shared by the scheduler, the configuration
// gateway and the advertising controller.
package beacon

import (
	"sync/atomic"

	"github.com/srg/beacon/internal/eddystone"
)

// State is owned by the scheduler flow. Slots must only be touched from that
// flow; the link flag may be flipped from any transport callback.
type State struct {
	Slots *eddystone.Store

	connected atomic.Bool
	links     atomic.Int64
}

// NewState wraps a slot store
func NewState(slots *eddystone.Store) *State {
	return &State{Slots: slots}
}

// OnConnected records that a configuration peer connected
func (s *State) OnConnected() {
	s.links.Add(1)
	s.connected.Store(true)
}

// OnDisconnected records that the peer went away
func (s *State) OnDisconnected() {
	s.connected.Store(false)
}

// Connected reports the current link status
func (s *State) Connected() bool {
	return s.connected.Load()
}

// Links returns how many connections have been seen since boot. The scheduler
// compares it across ticks to spot a new connection.
func (s *State) Links() int64 {
	return s.links.Load()
}
