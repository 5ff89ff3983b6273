package devchain

import (
	"bytes"

	"go.dedis.ch/kyber/v3"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
)

func (c *Chain) addCertificate(epoch slot.Epoch, richmen ssc.RichmenSet, cert *key.VssCertificate) error {
	const tag = ssc.TagCertificate
	if cert == nil {
		return ssc.Rejectf(tag, "empty certificate")
	}
	owner := cert.Owner()
	if !richmen.Contains(owner) {
		return ssc.Rejectf(tag, "%s is not a richman", owner.Short())
	}
	if !cert.ValidFor(epoch) || uint64(cert.ExpiryEpoch-epoch) >= c.maxTTL {
		return ssc.Rejectf(tag, "expiry %d out of range for epoch %d", cert.ExpiryEpoch, epoch)
	}
	if err := cert.Verify(); err != nil {
		return ssc.Rejectf(tag, "invalid signature: %v", err)
	}
	if pending, ok := c.pendingCerts[owner]; ok {
		if pending.Equal(cert) {
			return nil
		}
		return ssc.Rejectf(tag, "another certificate of %s is pending", owner.Short())
	}
	if cc, ok := c.certs[owner]; ok && cc.cert.ValidFor(epoch) {
		return ssc.Rejectf(tag, "%s already has a certificate until epoch %d", owner.Short(), cc.cert.ExpiryEpoch)
	}
	c.pendingCerts[owner] = cert
	return nil
}

func (c *Chain) addCommitment(epoch slot.Epoch, richmen ssc.RichmenSet, comm *ssc.SignedCommitment) error {
	const tag = ssc.TagCommitment
	if comm == nil || comm.SigningKey == nil || comm.Commitment == nil {
		return ssc.Rejectf(tag, "empty commitment")
	}
	owner := comm.Owner()
	if !richmen.Contains(owner) {
		return ssc.Rejectf(tag, "%s is not a richman", owner.Short())
	}
	if comm.Epoch != epoch {
		return ssc.Rejectf(tag, "commitment signed for epoch %d, not %d", comm.Epoch, epoch)
	}
	if _, ok := c.epoch(epoch).commitments[owner]; ok {
		return ssc.Rejectf(tag, "commitment of %s already confirmed", owner.Short())
	}
	if pending, ok := c.pending.commitments[owner]; ok {
		if sameCommitment(pending, comm) {
			return nil
		}
		return ssc.Rejectf(tag, "another commitment of %s is pending", owner.Short())
	}
	stable := c.stableCertificates(epoch)
	if _, ok := stable[owner]; !ok {
		return ssc.Rejectf(tag, "%s has no stable certificate", owner.Short())
	}
	for _, s := range comm.Commitment.Shares {
		if s == nil || !isParticipant(stable, s.Key) {
			return ssc.Rejectf(tag, "share addressed to a non participant")
		}
	}
	if err := comm.Verify(); err != nil {
		return ssc.Rejectf(tag, "invalid commitment: %v", err)
	}
	c.pending.commitments[owner] = comm
	return nil
}

func (c *Chain) addOpening(epoch slot.Epoch, richmen ssc.RichmenSet, owner key.StakeholderID, o *vss.Opening) error {
	const tag = ssc.TagOpening
	if !richmen.Contains(owner) {
		return ssc.Rejectf(tag, "%s is not a richman", owner.Short())
	}
	state := c.epoch(epoch)
	comm, ok := state.commitments[owner]
	if !ok {
		return ssc.Rejectf(tag, "no confirmed commitment of %s", owner.Short())
	}
	if _, ok := state.openings[owner]; ok {
		return ssc.Rejectf(tag, "opening of %s already confirmed", owner.Short())
	}
	if err := vss.VerifyOpening(comm.Commitment, o); err != nil {
		return ssc.Rejectf(tag, "opening does not match commitment: %v", err)
	}
	if pending, ok := c.pending.openings[owner]; ok && !pending.Secret.Equal(o.Secret) {
		return ssc.Rejectf(tag, "another opening of %s is pending", owner.Short())
	}
	c.pending.openings[owner] = o
	return nil
}

func (c *Chain) addShares(epoch slot.Epoch, richmen ssc.RichmenSet, holder key.StakeholderID,
	shares map[key.StakeholderID]*vss.DecryptedShare) error {
	const tag = ssc.TagShares
	if !richmen.Contains(holder) {
		return ssc.Rejectf(tag, "%s is not a richman", holder.Short())
	}
	if len(shares) == 0 {
		return ssc.Rejectf(tag, "no share")
	}
	state := c.epoch(epoch)
	if _, ok := state.shares[holder]; ok {
		return ssc.Rejectf(tag, "shares of %s already confirmed", holder.Short())
	}
	cert, ok := c.stableCertificates(epoch)[holder]
	if !ok {
		return ssc.Rejectf(tag, "%s has no stable certificate", holder.Short())
	}
	for owner, d := range shares {
		comm, ok := state.commitments[owner]
		if !ok {
			return ssc.Rejectf(tag, "no confirmed commitment of %s", owner.Short())
		}
		if d == nil {
			return ssc.Rejectf(tag, "empty share for %s", owner.Short())
		}
		if err := vss.VerifyDecryptedShare(comm.Commitment, cert.VssKey, d); err != nil {
			return ssc.Rejectf(tag, "invalid share for %s: %v", owner.Short(), err)
		}
	}
	c.pending.shares[holder] = shares
	return nil
}

func isParticipant(certs map[key.StakeholderID]*key.VssCertificate, vssKey kyber.Point) bool {
	if vssKey == nil {
		return false
	}
	for _, cert := range certs {
		if cert.VssKey.Equal(vssKey) {
			return true
		}
	}
	return false
}

func sameCommitment(a, b *ssc.SignedCommitment) bool {
	ab, err := a.MarshalBinary()
	if err != nil {
		return false
	}
	bb, err := b.MarshalBinary()
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
