package devchain

import (
	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
)

// The Confirm* helpers write straight into the confirmed state, skipping the
// mempool and its validation. They seed genesis data and drive tests.

// ConfirmCertificate confirms cert as if it had been included at slot at.
func (c *Chain) ConfirmCertificate(cert *key.VssCertificate, at slot.ID) {
	c.Lock()
	defer c.Unlock()
	c.certs[cert.Owner()] = confirmedCert{cert: cert, at: at}
}

// ConfirmCommitment confirms comm for epoch.
func (c *Chain) ConfirmCommitment(epoch slot.Epoch, comm *ssc.SignedCommitment) {
	c.Lock()
	defer c.Unlock()
	c.state(epoch).commitments[comm.Owner()] = comm
}

// ConfirmOpening confirms the opening of id for epoch.
func (c *Chain) ConfirmOpening(epoch slot.Epoch, id key.StakeholderID, o *vss.Opening) {
	c.Lock()
	defer c.Unlock()
	c.state(epoch).openings[id] = o
}

// ConfirmShares confirms the shares decrypted by id for epoch.
func (c *Chain) ConfirmShares(epoch slot.Epoch, id key.StakeholderID, shares map[key.StakeholderID]*vss.DecryptedShare) {
	c.Lock()
	defer c.Unlock()
	c.state(epoch).shares[id] = shares
}

func (c *Chain) state(epoch slot.Epoch) *epochState {
	s, ok := c.confirmed[epoch]
	if !ok {
		s = newEpochState()
		c.confirmed[epoch] = s
	}
	return s
}
