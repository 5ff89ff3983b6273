package worker

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	clock "github.com/jonboulle/clockwork"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/internal/metrics"
)

// RandomDelay draws a delay uniformly from [0, windowEnd-now). It is zero once
// the window is over.
func RandomDelay(r io.Reader, now, windowEnd time.Time) (time.Duration, error) {
	if !now.Before(windowEnd) {
		return 0, nil
	}
	n, err := rand.Int(r, big.NewInt(int64(windowEnd.Sub(now))))
	if err != nil {
		return 0, fmt.Errorf("drawing broadcast delay: %w", err)
	}
	return time.Duration(n.Int64()), nil
}

// scheduler spreads our announcements randomly over the send window so their
// timing does not leak who we are.
type scheduler struct {
	params    Params
	slotting  Slotting
	transport Transport
	clock     clock.Clock
	rand      io.Reader
	id        key.StakeholderID
	l         log.Logger
}

// Delay returns how long to wait before announcing data of the phase anchored
// at slot multiplier*k of epoch.
func (s *scheduler) Delay(epoch slot.Epoch, multiplier uint64) (time.Duration, error) {
	anchor := slot.ID{Epoch: epoch, Index: slot.LocalIndex(multiplier * s.params.Slot.SecurityParam)}
	start, err := s.slotting.SlotStart(anchor)
	if err != nil {
		return 0, fmt.Errorf("start of slot %s: %w", anchor, err)
	}
	now := s.slotting.CurrentTime()
	windowEnd := start.Add(s.params.SendInterval)
	// the cap shrinks the window so the delay stays uniform below it
	if s.params.MaxBroadcastWait > 0 && now.Add(s.params.MaxBroadcastWait).Before(windowEnd) {
		windowEnd = now.Add(s.params.MaxBroadcastWait)
	}
	return RandomDelay(s.rand, now, windowEnd)
}

// Broadcast waits the randomized delay then announces our data for tag.
func (s *scheduler) Broadcast(ctx context.Context, tag ssc.MsgTag, epoch slot.Epoch, multiplier uint64) error {
	delay, err := s.Delay(epoch, multiplier)
	if err != nil {
		return err
	}
	metrics.BroadcastDelay.WithLabelValues(tag.String()).Observe(delay.Seconds())

	if delay > 0 {
		s.l.Debugw("delaying announcement", "tag", tag, "epoch", epoch, "delay", delay)
		select {
		case <-s.clock.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Send(ctx, tag)
}

// Send announces our data for tag right away. Transport failures are logged
// and swallowed; any other error is returned.
func (s *scheduler) Send(ctx context.Context, tag ssc.MsgTag) error {
	err := s.transport.SendToPeers(ctx, ssc.NewInvMsg(tag, s.id))
	var terr *ssc.TransportError
	switch {
	case err == nil:
		s.l.Infow("announced our data", "tag", tag)
		metrics.Broadcast(tag.String(), "sent")
		return nil
	case errors.As(err, &terr):
		s.l.Errorw("failed to announce our data", "tag", tag, "err", err)
		metrics.Broadcast(tag.String(), "failed")
		return nil
	default:
		return fmt.Errorf("announcing %s: %w", tag, err)
	}
}

func isRejected(err error) bool {
	return errors.Is(err, ssc.ErrRejected)
}
