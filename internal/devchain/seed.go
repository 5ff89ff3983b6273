package devchain

import (
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"golang.org/x/crypto/blake2b"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/crypto/vss"
)

// ErrNoSeed is returned when no secret of the epoch can be recovered.
var ErrNoSeed = errors.New("devchain: no secret recoverable for epoch")

// Seed computes the shared seed of the epoch from the confirmed state: every
// opened secret, plus the secrets recovered from the decrypted shares of the
// committers that did not open. Commitments that can be neither opened nor
// recovered are left out.
func (c *Chain) Seed(epoch slot.Epoch) ([]byte, error) {
	c.RLock()
	defer c.RUnlock()

	state, ok := c.confirmed[epoch]
	if !ok || len(state.commitments) == 0 {
		return nil, ErrNoSeed
	}
	certs := c.stableCertificates(epoch)

	owners := make([]key.StakeholderID, 0, len(state.commitments))
	for id := range state.commitments {
		owners = append(owners, id)
	}
	key.SortIDs(owners)

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	used := 0
	for _, owner := range owners {
		comm := state.commitments[owner].Commitment
		var secret kyber.Point
		if o, ok := state.openings[owner]; ok {
			secret = o.Point()
		} else {
			var shares []vss.KeyedShare
			for holder, byOwner := range state.shares {
				cert, ok := certs[holder]
				if d, has := byOwner[owner]; ok && has {
					shares = append(shares, vss.KeyedShare{Key: cert.VssKey, Share: d})
				}
			}
			if len(shares) < comm.Threshold() {
				c.l.Warnw("secret neither opened nor recoverable", "epoch", epoch, "committer", owner.Short(),
					"shares", len(shares), "threshold", comm.Threshold())
				continue
			}
			p, err := vss.RecoverSecret(comm, shares)
			if err != nil {
				c.l.Warnw("secret recovery failed", "epoch", epoch, "committer", owner.Short(), "err", err)
				continue
			}
			secret = p
		}
		b, err := secret.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("devchain: encoding secret of %s: %w", owner.Short(), err)
		}
		_, _ = h.Write(owner[:])
		_, _ = h.Write(b)
		used++
	}
	if used == 0 {
		return nil, ErrNoSeed
	}
	return h.Sum(nil), nil
}
