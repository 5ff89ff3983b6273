package worker

import (
	"errors"
	"time"

	"github.com/drand/ssc/common/slot"
)

const (
	// DefaultSendInterval is the length of the randomized broadcast window.
	DefaultSendInterval = 5 * time.Second
	// DefaultVssMaxTTL is the number of epochs a fresh certificate lasts.
	DefaultVssMaxTTL = 6
)

// Params are the protocol constants of the worker.
type Params struct {
	Slot slot.Params
	// SendInterval is the window, from the start of the anchor slot, over
	// which broadcasts are randomly spread.
	SendInterval time.Duration
	// VssMaxTTL bounds the lifetime of a certificate, in epochs.
	VssMaxTTL uint64
	// The broadcast window of each phase starts at slot multiplier*k.
	CommitmentMultiplier uint64
	OpeningMultiplier    uint64
	SharesMultiplier     uint64
	// MaxBroadcastWait bounds the window the randomized wait is drawn from.
	// Zero disables the bound.
	MaxBroadcastWait time.Duration
}

// DefaultParams returns the default worker parameters over sp.
func DefaultParams(sp slot.Params) Params {
	return Params{
		Slot:                 sp,
		SendInterval:         DefaultSendInterval,
		VssMaxTTL:            DefaultVssMaxTTL,
		CommitmentMultiplier: 0,
		OpeningMultiplier:    4,
		SharesMultiplier:     8,
	}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if err := p.Slot.Validate(); err != nil {
		return err
	}
	if p.SendInterval < 0 || p.MaxBroadcastWait < 0 {
		return errors.New("worker: negative broadcast timing")
	}
	if p.VssMaxTTL == 0 {
		return errors.New("worker: vss max ttl must be positive")
	}
	for _, m := range []uint64{p.CommitmentMultiplier, p.OpeningMultiplier, p.SharesMultiplier} {
		if m*p.Slot.SecurityParam >= p.Slot.EpochSlots() {
			return errors.New("worker: broadcast anchor outside of the epoch")
		}
	}
	return nil
}

// certificateExpiry is the expiry epoch of a certificate created in epoch.
func (p Params) certificateExpiry(epoch slot.Epoch) slot.Epoch {
	return epoch + slot.Epoch(p.VssMaxTTL) - 1
}
