// Package worker drives the shared seed computation of a node. It is invoked
// once per slot and walks four phases: announcing its VSS certificate,
// committing to a fresh secret, opening it, and publishing the decrypted
// shares that let the network recover the secrets of committers that never
// opened.
package worker

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	clock "github.com/jonboulle/clockwork"

	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/internal/metrics"
)

func errMissing(what string) error {
	return fmt.Errorf("worker: missing %s", what)
}

// Option customizes a Worker.
type Option func(*Worker)

// WithClock sets the clock the broadcast wait sleeps on.
func WithClock(c clock.Clock) Option {
	return func(w *Worker) {
		w.clock = c
	}
}

// WithRandomness sets the source of the broadcast delays.
func WithRandomness(r io.Reader) Option {
	return func(w *Worker) {
		w.rand = r
	}
}

// WithLogger sets the logger of the worker.
func WithLogger(l log.Logger) Option {
	return func(w *Worker) {
		w.l = l
	}
}

// Worker is the per-slot SSC orchestrator. OnNewSlot must not be called
// concurrently with itself.
type Worker struct {
	node   *NodeContext
	params Params
	deps   Deps

	clock clock.Clock
	rand  io.Reader
	l     log.Logger

	scheduler *scheduler
}

// New returns a worker acting for node.
func New(node *NodeContext, params Params, deps Deps, opts ...Option) (*Worker, error) {
	if node == nil || node.Signing == nil || node.Vss == nil {
		return nil, errMissing("node keys")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	w := &Worker{
		node:   node,
		params: params,
		deps:   deps,
		clock:  clock.NewRealClock(),
		rand:   rand.Reader,
		l:      log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.l = w.l.Named("sscWorker").With("stakeholder", node.ID().Short())
	w.scheduler = &scheduler{
		params:    params,
		slotting:  deps.Slotting,
		transport: deps.Transport,
		clock:     w.clock,
		rand:      w.rand,
		id:        node.ID(),
		l:         w.l,
	}
	return w, nil
}

// OnNewSlot runs the protocol for a newly observed slot.
func (w *Worker) OnNewSlot(ctx context.Context, id slot.ID) {
	l := w.l.With("slot", id.String())

	richmen, ok := w.deps.Richmen.RichmenFor(id.Epoch)
	if !ok {
		l.Errorw("richmen unavailable for epoch, skipping slot", "epoch", id.Epoch)
		metrics.SlotsProcessed.WithLabelValues("no_richmen").Inc()
		return
	}

	enabled := w.node.Participating()
	metrics.SetParticipation(enabled)
	if !enabled {
		metrics.SlotsProcessed.WithLabelValues("disabled").Inc()
		return
	}
	if !richmen.Contains(w.node.ID()) {
		l.Debugw("not enough stake to take part in this epoch", "epoch", id.Epoch)
		metrics.SlotsProcessed.WithLabelValues("ineligible").Inc()
		return
	}

	w.runPhases(ctx, id, richmen)
	metrics.SlotsProcessed.WithLabelValues("ran").Inc()
}

func (w *Worker) runPhases(ctx context.Context, id slot.ID, richmen ssc.RichmenSet) {
	for phase := PhaseIdle.Next(); phase != PhaseDone; phase = phase.Next() {
		if ctx.Err() != nil {
			w.l.Debugw("slot processing interrupted", "slot", id.String(), "phase", phase)
			return
		}

		var err error
		switch phase {
		case PhaseAnnouncing:
			err = w.announceCertificate(ctx, id, richmen)
		case PhaseCommitting:
			err = w.commit(ctx, id, richmen)
		case PhaseOpening:
			err = w.open(ctx, id, richmen)
		case PhaseSharing:
			err = w.share(ctx, id, richmen)
		}
		if err != nil {
			w.l.Errorw("phase failed", "slot", id.String(), "phase", phase, "err", err)
			metrics.PhaseAction(phase.String(), "error")
		}
	}
}

// submit feeds our own message through the acceptance path. It reports
// whether the message was accepted; a rejection is logged, not returned.
func (w *Worker) submit(ctx context.Context, epoch slot.Epoch, richmen ssc.RichmenSet, c ssc.Contents) (bool, error) {
	err := w.deps.Mempool.Submit(ctx, epoch, richmen, c)
	switch {
	case err == nil:
		return true, nil
	case isRejected(err):
		w.l.Warnw("our message was rejected", "tag", c.Tag(), "epoch", epoch, "err", err)
		return false, nil
	default:
		return false, fmt.Errorf("submitting %s: %w", c.Tag(), err)
	}
}

// submitAndBroadcast submits c and, once accepted, announces it after the
// randomized delay of its phase.
func (w *Worker) submitAndBroadcast(ctx context.Context, phase Phase, epoch slot.Epoch,
	richmen ssc.RichmenSet, c ssc.Contents, multiplier uint64) error {
	accepted, err := w.submit(ctx, epoch, richmen, c)
	if err != nil {
		return err
	}
	if !accepted {
		metrics.PhaseAction(phase.String(), "rejected")
		return nil
	}
	metrics.PhaseAction(phase.String(), "submitted")
	return w.scheduler.Broadcast(ctx, c.Tag(), epoch, multiplier)
}
