// Package slot holds the epoch and slot arithmetic of the shared seed
// computation: slot identifiers, the three protocol windows inside an epoch and
// the wall-clock start of every slot.
package slot

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Epoch identifies a protocol round.
type Epoch uint64

// LocalIndex is the position of a slot inside its epoch.
type LocalIndex uint64

// ID identifies a slot.
type ID struct {
	Epoch Epoch
	Index LocalIndex
}

func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.Epoch, id.Index)
}

// Window is the half-open range [From, To) of local slot indexes.
type Window struct {
	From LocalIndex
	To   LocalIndex
}

// Contains reports whether i falls inside the window.
func (w Window) Contains(i LocalIndex) bool {
	return i >= w.From && i < w.To
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.From, w.To)
}

// DefaultSecurityParam is the security parameter k used when none is
// configured.
const DefaultSecurityParam = 2

// DefaultSlotDuration is the wall-clock length of a slot.
const DefaultSlotDuration = 20 * time.Second

// Params are the slotting constants. An epoch is made of 10k slots; the
// commitment window spans [0,2k), the opening window [4k,6k) and the shares
// window [8k,10k).
type Params struct {
	// SecurityParam is the k parameter.
	SecurityParam uint64
	// SlotDuration is the length of every slot.
	SlotDuration time.Duration
	// Genesis is the start of slot 0.0.
	Genesis time.Time
}

// DefaultParams returns the default parameters anchored at the given genesis.
func DefaultParams(genesis time.Time) Params {
	return Params{
		SecurityParam: DefaultSecurityParam,
		SlotDuration:  DefaultSlotDuration,
		Genesis:       genesis,
	}
}

// Validate checks the parameters can be used to slot time.
func (p Params) Validate() error {
	if p.SecurityParam == 0 {
		return errors.New("slot: security parameter must be positive")
	}
	if p.SlotDuration <= 0 {
		return errors.New("slot: slot duration must be positive")
	}
	if p.Genesis.IsZero() {
		return errors.New("slot: genesis time not set")
	}
	return nil
}

// EpochSlots returns the number of slots in an epoch.
func (p Params) EpochSlots() uint64 {
	return 10 * p.SecurityParam
}

// CommitmentWindow is the range in which commitments are sent.
func (p Params) CommitmentWindow() Window {
	return p.window(0, 2)
}

// OpeningWindow is the range in which openings are sent.
func (p Params) OpeningWindow() Window {
	return p.window(4, 6)
}

// SharesWindow is the range in which decrypted shares are sent.
func (p Params) SharesWindow() Window {
	return p.window(8, 10)
}

func (p Params) window(from, to uint64) Window {
	return Window{
		From: LocalIndex(from * p.SecurityParam),
		To:   LocalIndex(to * p.SecurityParam),
	}
}

// Flatten returns the absolute number of the slot counted from genesis.
func (p Params) Flatten(id ID) uint64 {
	return uint64(id.Epoch)*p.EpochSlots() + uint64(id.Index)
}

// Unflatten is the inverse of Flatten.
func (p Params) Unflatten(n uint64) ID {
	return ID{
		Epoch: Epoch(n / p.EpochSlots()),
		Index: LocalIndex(n % p.EpochSlots()),
	}
}

// Start returns the wall-clock time at which the slot begins.
func (p Params) Start(id ID) time.Time {
	flat := p.Flatten(id)
	if flat > uint64(math.MaxInt64/int64(p.SlotDuration)) {
		return time.Unix(0, math.MaxInt64)
	}
	return p.Genesis.Add(time.Duration(flat) * p.SlotDuration)
}

// SlotAt returns the slot active at t. It returns false before genesis.
func (p Params) SlotAt(t time.Time) (ID, bool) {
	if t.Before(p.Genesis) {
		return ID{}, false
	}
	flat := uint64(t.Sub(p.Genesis) / p.SlotDuration)
	return p.Unflatten(flat), true
}

// Next returns the slot following id.
func (p Params) Next(id ID) ID {
	return p.Unflatten(p.Flatten(id) + 1)
}
