// Package gateway implements the attribute read/write surface of the
// configuration service. It enforces the lock gates, validates writes and
// commits slot changes to the advertising controller.
package gateway

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/beacon/internal/advertising"
	"github.com/srg/beacon/internal/beacon"
	"github.com/srg/beacon/internal/device"
	"github.com/srg/beacon/internal/eddystone"
)

// Advertiser is the part of the advertising controller the gateway drives.
type Advertiser interface {
	Restart(src advertising.FrameSource) error
	Stop() error
}

// Executor runs fn in the context that owns the beacon state.
type Executor interface {
	Do(ctx context.Context, fn func() error) error
}

// Inline runs requests on the calling goroutine. It is only correct when the
// caller already owns the beacon state.
type Inline struct{}

// Do runs fn unless ctx is already done
func (Inline) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// Gateway serves attribute requests from a configuration peer.
type Gateway struct {
	table  *Table
	state  *beacon.State
	adv    Advertiser
	exec   Executor
	logger *logrus.Logger
}

// New creates a gateway. A nil exec runs requests inline.
func New(state *beacon.State, adv Advertiser, exec Executor, logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	if exec == nil {
		exec = Inline{}
	}
	return &Gateway{
		table:  NewTable(),
		state:  state,
		adv:    adv,
		exec:   exec,
		logger: logger,
	}
}

// Table returns the attribute table
func (g *Gateway) Table() *Table {
	return g.table
}

// Read serves a read of id starting at offset.
func (g *Gateway) Read(ctx context.Context, id ID, offset int) ([]byte, error) {
	attr, ok := g.table.Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown attribute %q", id)
	}

	var out []byte
	err := g.exec.Do(ctx, func() error {
		locked := g.state.Slots.IsLocked()
		if !attr.Readable() || !attr.Read.allows(locked) {
			return device.Denied("read %s while %s", id, g.state.Slots.LockState())
		}

		// A long read continues the value produced at offset 0; generating
		// a fresh challenge per blob would corrupt it.
		var (
			data []byte
			err  error
		)
		if offset > 0 && id == UnlockChallenge {
			c := g.state.Slots.Active().Challenge
			data = c[:]
		} else {
			data, err = attr.read(g.state.Slots)
		}
		if err != nil {
			return err
		}
		if offset > len(data) {
			return device.InvalidOffset(offset)
		}
		out = data[offset:]
		return nil
	})

	g.log(id, "read", err).Debug("Attribute read")
	return out, err
}

// Write serves a write of data to id at offset.
func (g *Gateway) Write(ctx context.Context, id ID, data []byte, offset int) error {
	attr, ok := g.table.Get(id)
	if !ok {
		return fmt.Errorf("unknown attribute %q", id)
	}

	err := g.exec.Do(ctx, func() error {
		locked := g.state.Slots.IsLocked()
		if !attr.Writable() || !attr.Write.allows(locked) {
			return device.Denied("write %s while %s", id, g.state.Slots.LockState())
		}
		if attr.Unchecked {
			return attr.write(g, data)
		}
		if offset != 0 {
			return device.InvalidOffset(offset)
		}
		if len(data) > attr.MaxLen || (attr.Exact && len(data) != attr.MaxLen) {
			return device.InvalidLength(len(data), attr.MaxLen)
		}
		if len(data) == 0 && id != SlotPayload {
			return device.InvalidLength(0, attr.MaxLen)
		}
		return attr.write(g, data)
	})

	entry := g.log(id, "write", err).WithField("len", len(data))
	if err != nil {
		entry.Info("Attribute write rejected")
	} else {
		entry.Debug("Attribute written")
	}
	return err
}

// commitFrame stores a slot frame and moves the radio to it. A radio failure
// rolls the slot back.
func (g *Gateway) commitFrame(data []byte) error {
	slots := g.state.Slots
	snap := slots.Snapshot()

	if len(data) == 0 {
		slots.ClearFrame()
		if err := g.adv.Stop(); err != nil {
			slots.Restore(snap)
			return err
		}
		g.logger.Info("Slot cleared, transmission stopped")
		return nil
	}

	frameType, err := slots.WriteFrame(data)
	if err != nil {
		return err
	}
	if err := g.adv.Restart(advertising.SourceSlot); err != nil {
		slots.Restore(snap)
		return err
	}

	fields := logrus.Fields{
		"frame_type": frameType,
		"len":        len(data),
	}
	if url, err := eddystone.DecodeURL(data); err == nil {
		fields["url"] = url
	}
	g.logger.WithFields(fields).Info("Slot frame committed")
	return nil
}

func (g *Gateway) log(id ID, op string, err error) *logrus.Entry {
	entry := g.logger.WithFields(logrus.Fields{
		"attribute": id,
		"op":        op,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	return entry
}
