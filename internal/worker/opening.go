package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/internal/secret"
)

// open reveals our secret during the opening window, once the chain holds our
// commitment and as long as it does not hold our opening.
func (w *Worker) open(ctx context.Context, id slot.ID, richmen ssc.RichmenSet) error {
	if !w.params.Slot.OpeningWindow().Contains(id.Index) {
		return nil
	}
	epoch := id.Epoch
	if w.deps.State.HasOpening(epoch, w.node.ID()) {
		return nil
	}
	if !w.deps.State.HasCommitment(epoch, w.node.ID()) {
		w.l.Infow("no confirmed commitment, nothing to open", "epoch", epoch)
		return nil
	}

	_, opening, err := w.deps.Secrets.Get(ctx, epoch)
	switch {
	case errors.Is(err, secret.ErrNotFound):
		w.l.Warnw("commitment confirmed but no stored opening, node probably started mid-epoch", "epoch", epoch)
		return nil
	case err != nil:
		return fmt.Errorf("loading secret of epoch %d: %w", epoch, err)
	}

	return w.submitAndBroadcast(ctx, PhaseOpening, epoch, richmen,
		ssc.OpeningContents{ID: w.node.ID(), Opening: opening}, w.params.OpeningMultiplier)
}
