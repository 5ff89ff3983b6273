package worker

import (
	"context"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
)

// share publishes, during the shares window, the shares addressed to us of
// every committer that has not opened, until the chain holds our shares.
func (w *Worker) share(ctx context.Context, id slot.ID, richmen ssc.RichmenSet) error {
	if !w.params.Slot.SharesWindow().Contains(id.Index) {
		return nil
	}
	epoch := id.Epoch
	if w.deps.State.HasShares(epoch, w.node.ID()) {
		return nil
	}

	shares := w.decryptShares(epoch)
	if len(shares) == 0 {
		w.l.Debugw("no share to decrypt", "epoch", epoch)
		return nil
	}
	return w.submitAndBroadcast(ctx, PhaseSharing, epoch, richmen,
		ssc.SharesContents{ID: w.node.ID(), Shares: shares}, w.params.SharesMultiplier)
}

// decryptShares decrypts our share of every confirmed commitment whose owner
// did not open it. Our own commitment and those we are not a participant of
// are skipped.
func (w *Worker) decryptShares(epoch slot.Epoch) map[key.StakeholderID]*vss.DecryptedShare {
	me := w.node.ID()
	shares := make(map[key.StakeholderID]*vss.DecryptedShare)
	for owner, comm := range w.deps.State.Commitments(epoch) {
		if owner == me || w.deps.State.HasOpening(epoch, owner) {
			continue
		}
		if !comm.Commitment.HasParticipant(w.node.Vss.Public) {
			continue
		}
		d, err := vss.DecryptShare(comm.Commitment, w.node.Vss)
		if err != nil {
			w.l.Errorw("decrypting share failed", "epoch", epoch, "committer", owner.Short(), "err", err)
			continue
		}
		shares[owner] = d
	}
	return shares
}
