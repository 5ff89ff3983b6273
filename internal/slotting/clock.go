// Package slotting turns wall-clock time into a stream of slot notifications.
package slotting

import (
	"context"
	"fmt"
	"time"

	clock "github.com/jonboulle/clockwork"

	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/internal/metrics"
)

// Clock tells the time in slots.
type Clock struct {
	clock  clock.Clock
	params slot.Params
	l      log.Logger
}

// New returns a slot clock over c.
func New(l log.Logger, c clock.Clock, params slot.Params) (*Clock, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Clock{clock: c, params: params, l: l.Named("slotting")}, nil
}

// CurrentTime returns the current wall-clock time.
func (c *Clock) CurrentTime() time.Time {
	return c.clock.Now()
}

// SlotStart returns the wall-clock start of the slot.
func (c *Clock) SlotStart(id slot.ID) (time.Time, error) {
	if uint64(id.Index) >= c.params.EpochSlots() {
		return time.Time{}, fmt.Errorf("slotting: index %d out of an epoch of %d slots", id.Index, c.params.EpochSlots())
	}
	return c.params.Start(id), nil
}

// CurrentSlot returns the slot in progress. It returns false before genesis.
func (c *Clock) CurrentSlot() (slot.ID, bool) {
	return c.params.SlotAt(c.clock.Now())
}

// OnNewSlot calls fn once for every newly observed slot until ctx is done.
// Calls are serialized: when fn outlasts a slot, the slots it covered are
// skipped and the next call receives the slot in progress. With
// trackEpochBoundary, entering a new epoch is logged.
func (c *Clock) OnNewSlot(ctx context.Context, trackEpochBoundary bool, fn func(context.Context, slot.ID)) error {
	var (
		last    slot.ID
		started bool
	)
	for {
		now := c.clock.Now()
		id, ok := c.params.SlotAt(now)
		if ok && (!started || c.params.Flatten(id) > c.params.Flatten(last)) {
			if started && c.params.Flatten(id) > c.params.Flatten(last)+1 {
				c.l.Warnw("skipped slots", "from", c.params.Next(last).String(), "to", id.String())
			}
			if !started || id.Epoch != last.Epoch {
				metrics.CurrentEpoch.Set(float64(id.Epoch))
				if trackEpochBoundary {
					c.l.Infow("new epoch", "epoch", id.Epoch)
				}
			}
			last, started = id, true
			c.l.Debugw("new slot", "slot", id.String())
			fn(ctx, id)
			continue
		}

		next := c.params.Genesis
		if ok {
			next = c.params.Start(c.params.Next(id))
		}
		select {
		case <-c.clock.After(next.Sub(now)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
