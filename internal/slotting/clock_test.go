package slotting

import (
	"context"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/testlogger"
)

func newTestClock(t *testing.T, offset time.Duration) (*Clock, clock.FakeClock, slot.Params) {
	genesis := time.Unix(1_600_000_000, 0)
	fake := clock.NewFakeClockAt(genesis.Add(offset))
	params := slot.DefaultParams(genesis)
	c, err := New(testlogger.New(t), fake, params)
	require.NoError(t, err)
	return c, fake, params
}

func TestSlotStart(t *testing.T) {
	c, fake, params := newTestClock(t, 45*time.Second)

	id, ok := c.CurrentSlot()
	require.True(t, ok)
	require.Equal(t, slot.ID{Epoch: 0, Index: 2}, id)
	require.Equal(t, fake.Now(), c.CurrentTime())

	start, err := c.SlotStart(slot.ID{Epoch: 1, Index: 3})
	require.NoError(t, err)
	require.Equal(t, params.Genesis.Add(23*params.SlotDuration), start)

	_, err = c.SlotStart(slot.ID{Epoch: 1, Index: slot.LocalIndex(params.EpochSlots())})
	require.Error(t, err)

	_, err = New(testlogger.New(t), fake, slot.Params{})
	require.Error(t, err)
}

func TestCurrentSlotBeforeGenesis(t *testing.T) {
	c, _, _ := newTestClock(t, -time.Second)
	_, ok := c.CurrentSlot()
	require.False(t, ok)
}

func TestOnNewSlot(t *testing.T) {
	c, fake, params := newTestClock(t, -time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slots := make(chan slot.ID, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.OnNewSlot(ctx, true, func(_ context.Context, id slot.ID) {
			slots <- id
		})
	}()

	fake.BlockUntil(1)
	require.Empty(t, slots)
	fake.Advance(time.Second)
	require.Equal(t, slot.ID{Epoch: 0, Index: 0}, <-slots)

	fake.BlockUntil(1)
	fake.Advance(params.SlotDuration)
	require.Equal(t, slot.ID{Epoch: 0, Index: 1}, <-slots)

	// a jump over several slots delivers the slot in progress only
	fake.BlockUntil(1)
	fake.Advance(3 * params.SlotDuration)
	require.Equal(t, slot.ID{Epoch: 0, Index: 4}, <-slots)

	// cross the epoch boundary
	fake.BlockUntil(1)
	fake.Advance(time.Duration(params.EpochSlots()-4) * params.SlotDuration)
	require.Equal(t, slot.ID{Epoch: 1, Index: 0}, <-slots)

	fake.BlockUntil(1)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Empty(t, slots)
}

func TestOnNewSlotStartsWithSlotInProgress(t *testing.T) {
	c, fake, _ := newTestClock(t, 45*time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan slot.ID, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.OnNewSlot(ctx, false, func(_ context.Context, id slot.ID) {
			got <- id
		})
	}()
	require.Equal(t, slot.ID{Epoch: 0, Index: 2}, <-got)
	fake.BlockUntil(1)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
