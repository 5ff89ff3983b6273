package worker

import (
	"context"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
	"github.com/drand/ssc/internal/metrics"
	"github.com/drand/ssc/internal/secret"
)

// commit sends our commitment during the commitment window until the chain
// confirms it. The commitment of an epoch is generated once and then reused
// from the secret store.
func (w *Worker) commit(ctx context.Context, id slot.ID, richmen ssc.RichmenSet) error {
	if !w.params.Slot.CommitmentWindow().Contains(id.Index) {
		return nil
	}
	epoch := id.Epoch
	if w.deps.State.HasCommitment(epoch, w.node.ID()) {
		return nil
	}
	if cert, ok := w.deps.State.StableCertificates(epoch)[w.node.ID()]; !ok || !cert.ValidFor(epoch) {
		w.l.Debugw("no stable certificate yet, not committing", "epoch", epoch)
		return nil
	}

	comm, _, err := w.deps.Secrets.Get(ctx, epoch)
	switch {
	case err == nil:
		w.l.Infow("secret already generated, reusing it", "epoch", epoch)
	case errors.Is(err, secret.ErrNotFound):
		comm, err = w.generateSecret(ctx, epoch, richmen)
		if err != nil {
			return err
		}
		if comm == nil {
			w.l.Warnw("could not generate a secret, not committing", "epoch", epoch)
			metrics.PhaseAction(PhaseCommitting.String(), "skipped")
			return nil
		}
	default:
		return fmt.Errorf("loading secret of epoch %d: %w", epoch, err)
	}

	return w.submitAndBroadcast(ctx, PhaseCommitting, epoch, richmen,
		ssc.CommitmentContents{Commitment: comm}, w.params.CommitmentMultiplier)
}

// generateSecret splits a fresh secret among the participants of the epoch,
// signs the commitment and persists it with its opening. It returns nil
// without error when nothing could be generated.
func (w *Worker) generateSecret(ctx context.Context, epoch slot.Epoch, richmen ssc.RichmenSet) (*ssc.SignedCommitment, error) {
	keys := participants(w.deps.State.StableCertificates(epoch), richmen, epoch)
	if len(keys) == 0 {
		w.l.Warnw("no participants for the epoch", "epoch", epoch)
		return nil, nil
	}

	threshold := vss.Threshold(len(keys))
	comm, opening, err := vss.GenerateSecret(threshold, keys)
	if err != nil {
		w.l.Errorw("secret generation failed", "epoch", epoch, "participants", len(keys), "err", err)
		return nil, nil
	}
	signed, err := ssc.SignCommitment(w.node.Signing, comm, epoch)
	if err != nil {
		w.l.Errorw("signing commitment failed", "epoch", epoch, "err", err)
		return nil, nil
	}
	if err := w.deps.Secrets.Put(ctx, signed, opening, epoch); err != nil {
		return nil, fmt.Errorf("persisting secret of epoch %d: %w", epoch, err)
	}
	w.l.Infow("generated secret", "epoch", epoch, "participants", len(keys), "threshold", threshold)
	return signed, nil
}

// participants returns the VSS keys of the richmen holding a certificate valid
// for the epoch, ordered by owner.
func participants(certs map[key.StakeholderID]*key.VssCertificate, richmen ssc.RichmenSet, epoch slot.Epoch) []kyber.Point {
	owners := make([]key.StakeholderID, 0, len(certs))
	for id, cert := range certs {
		if richmen.Contains(id) && cert.ValidFor(epoch) {
			owners = append(owners, id)
		}
	}
	key.SortIDs(owners)
	keys := make([]kyber.Point, len(owners))
	for i, id := range owners {
		keys[i] = certs[id].VssKey
	}
	return keys
}
