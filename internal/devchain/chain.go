// Package devchain is a single-process stand-in for the blockchain the SSC
// worker runs against. It keeps a mempool of pending SSC messages, validates
// them the way block validation would, and moves them into the confirmed state
// when a slot is confirmed.
package devchain

import (
	"context"
	"sync"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
)

type confirmedCert struct {
	cert *key.VssCertificate
	at   slot.ID
}

type epochState struct {
	commitments map[key.StakeholderID]*ssc.SignedCommitment
	openings    map[key.StakeholderID]*vss.Opening
	shares      map[key.StakeholderID]map[key.StakeholderID]*vss.DecryptedShare
}

func newEpochState() *epochState {
	return &epochState{
		commitments: make(map[key.StakeholderID]*ssc.SignedCommitment),
		openings:    make(map[key.StakeholderID]*vss.Opening),
		shares:      make(map[key.StakeholderID]map[key.StakeholderID]*vss.DecryptedShare),
	}
}

// Chain holds the confirmed SSC state and the mempool. It is safe for
// concurrent use.
type Chain struct {
	sync.RWMutex
	params slot.Params
	maxTTL uint64
	l      log.Logger

	stakeholders ssc.RichmenSet
	richmen      map[slot.Epoch]ssc.RichmenSet

	certs     map[key.StakeholderID]confirmedCert
	confirmed map[slot.Epoch]*epochState

	pendingEpoch slot.Epoch
	pendingCerts map[key.StakeholderID]*key.VssCertificate
	pending      *epochState
}

// New returns an empty chain. Certificates may live at most maxTTL epochs.
func New(l log.Logger, params slot.Params, maxTTL uint64) *Chain {
	return &Chain{
		params:       params,
		maxTTL:       maxTTL,
		l:            l.Named("devchain"),
		richmen:      make(map[slot.Epoch]ssc.RichmenSet),
		certs:        make(map[key.StakeholderID]confirmedCert),
		confirmed:    make(map[slot.Epoch]*epochState),
		pendingCerts: make(map[key.StakeholderID]*key.VssCertificate),
		pending:      newEpochState(),
	}
}

// SetStakeholders sets the richmen of every epoch without an explicit set.
func (c *Chain) SetStakeholders(ids ...key.StakeholderID) {
	c.Lock()
	defer c.Unlock()
	c.stakeholders = ssc.NewRichmenSet(ids...)
}

// SetRichmen sets the richmen of one epoch.
func (c *Chain) SetRichmen(epoch slot.Epoch, richmen ssc.RichmenSet) {
	c.Lock()
	defer c.Unlock()
	c.richmen[epoch] = richmen
}

// RichmenFor returns the richmen of the epoch, if known.
func (c *Chain) RichmenFor(epoch slot.Epoch) (ssc.RichmenSet, bool) {
	c.RLock()
	defer c.RUnlock()
	if r, ok := c.richmen[epoch]; ok {
		return r, true
	}
	if c.stakeholders != nil {
		return c.stakeholders, true
	}
	return nil, false
}

func (c *Chain) epoch(e slot.Epoch) *epochState {
	if s, ok := c.confirmed[e]; ok {
		return s
	}
	return newEpochState()
}

// HasCommitment reports whether the commitment of id is confirmed for epoch.
func (c *Chain) HasCommitment(epoch slot.Epoch, id key.StakeholderID) bool {
	c.RLock()
	defer c.RUnlock()
	_, ok := c.epoch(epoch).commitments[id]
	return ok
}

// HasOpening reports whether the opening of id is confirmed for epoch.
func (c *Chain) HasOpening(epoch slot.Epoch, id key.StakeholderID) bool {
	c.RLock()
	defer c.RUnlock()
	_, ok := c.epoch(epoch).openings[id]
	return ok
}

// HasShares reports whether the shares of id are confirmed for epoch.
func (c *Chain) HasShares(epoch slot.Epoch, id key.StakeholderID) bool {
	c.RLock()
	defer c.RUnlock()
	_, ok := c.epoch(epoch).shares[id]
	return ok
}

// Commitments returns the confirmed commitments of the epoch.
func (c *Chain) Commitments(epoch slot.Epoch) map[key.StakeholderID]*ssc.SignedCommitment {
	c.RLock()
	defer c.RUnlock()
	out := make(map[key.StakeholderID]*ssc.SignedCommitment)
	for id, comm := range c.epoch(epoch).commitments {
		out[id] = comm
	}
	return out
}

// Opening returns the confirmed opening of id for epoch.
func (c *Chain) Opening(epoch slot.Epoch, id key.StakeholderID) (*vss.Opening, bool) {
	c.RLock()
	defer c.RUnlock()
	o, ok := c.epoch(epoch).openings[id]
	return o, ok
}

// StableCertificates returns the certificates valid for epoch that were
// confirmed before the first k slots of the epoch had passed.
func (c *Chain) StableCertificates(epoch slot.Epoch) map[key.StakeholderID]*key.VssCertificate {
	c.RLock()
	defer c.RUnlock()
	return c.stableCertificates(epoch)
}

func (c *Chain) stableCertificates(epoch slot.Epoch) map[key.StakeholderID]*key.VssCertificate {
	last := c.params.Flatten(slot.ID{Epoch: epoch, Index: slot.LocalIndex(c.params.SecurityParam - 1)})
	out := make(map[key.StakeholderID]*key.VssCertificate)
	for id, cc := range c.certs {
		if cc.cert.ValidFor(epoch) && c.params.Flatten(cc.at) <= last {
			out[id] = cc.cert
		}
	}
	return out
}

// GlobalCertificates returns every confirmed certificate as of the slot,
// expired ones included.
func (c *Chain) GlobalCertificates(id slot.ID) map[key.StakeholderID]*key.VssCertificate {
	c.RLock()
	defer c.RUnlock()
	flat := c.params.Flatten(id)
	out := make(map[key.StakeholderID]*key.VssCertificate)
	for owner, cc := range c.certs {
		if c.params.Flatten(cc.at) <= flat {
			out[owner] = cc.cert
		}
	}
	return out
}

// LocalCertificates returns the certificates waiting in the mempool.
func (c *Chain) LocalCertificates() map[key.StakeholderID]*key.VssCertificate {
	c.RLock()
	defer c.RUnlock()
	out := make(map[key.StakeholderID]*key.VssCertificate, len(c.pendingCerts))
	for id, cert := range c.pendingCerts {
		out[id] = cert
	}
	return out
}

// Submit validates contents for epoch and adds them to the mempool. Submitting
// again exactly what is already pending is accepted and changes nothing.
func (c *Chain) Submit(_ context.Context, epoch slot.Epoch, richmen ssc.RichmenSet, contents ssc.Contents) error {
	c.Lock()
	defer c.Unlock()
	if epoch != c.pendingEpoch {
		c.pendingEpoch = epoch
		c.pending = newEpochState()
	}

	var err error
	switch m := contents.(type) {
	case ssc.CertificateContents:
		err = c.addCertificate(epoch, richmen, m.Certificate)
	case ssc.CommitmentContents:
		err = c.addCommitment(epoch, richmen, m.Commitment)
	case ssc.OpeningContents:
		err = c.addOpening(epoch, richmen, m.ID, m.Opening)
	case ssc.SharesContents:
		err = c.addShares(epoch, richmen, m.ID, m.Shares)
	default:
		err = ssc.Rejectf(contents.Tag(), "unknown contents %T", contents)
	}
	if err != nil {
		c.l.Debugw("rejected message", "tag", contents.Tag(), "epoch", epoch, "err", err)
	}
	return err
}

// Confirm includes every pending message in the block of the slot.
func (c *Chain) Confirm(id slot.ID) {
	c.Lock()
	defer c.Unlock()

	for owner, cert := range c.pendingCerts {
		c.certs[owner] = confirmedCert{cert: cert, at: id}
	}
	c.pendingCerts = make(map[key.StakeholderID]*key.VssCertificate)

	if c.pendingEpoch == id.Epoch {
		state := c.state(id.Epoch)
		for owner, comm := range c.pending.commitments {
			state.commitments[owner] = comm
		}
		for owner, o := range c.pending.openings {
			state.openings[owner] = o
		}
		for owner, s := range c.pending.shares {
			state.shares[owner] = s
		}
	}
	c.pending = newEpochState()
	c.pendingEpoch = id.Epoch
}
