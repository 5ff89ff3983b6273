package worker

import (
	"context"
	"time"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/internal/secret"
)

// Slotting gives the wall-clock view of slots.
type Slotting interface {
	CurrentTime() time.Time
	SlotStart(id slot.ID) (time.Time, error)
}

// Richmen returns the stake-eligible set of an epoch, if it is known yet.
type Richmen interface {
	RichmenFor(epoch slot.Epoch) (ssc.RichmenSet, bool)
}

// GlobalState is the consensus-confirmed SSC state. The worker only reads it.
type GlobalState interface {
	HasCommitment(epoch slot.Epoch, id key.StakeholderID) bool
	HasOpening(epoch slot.Epoch, id key.StakeholderID) bool
	HasShares(epoch slot.Epoch, id key.StakeholderID) bool
	// Commitments returns the confirmed commitments of the epoch.
	Commitments(epoch slot.Epoch) map[key.StakeholderID]*ssc.SignedCommitment
	// StableCertificates is the certificate snapshot the participants of the
	// epoch are drawn from.
	StableCertificates(epoch slot.Epoch) map[key.StakeholderID]*key.VssCertificate
	// GlobalCertificates returns the certificates confirmed as of the slot.
	GlobalCertificates(id slot.ID) map[key.StakeholderID]*key.VssCertificate
}

// Mempool holds messages not confirmed yet.
type Mempool interface {
	// LocalCertificates returns the certificates waiting for confirmation.
	LocalCertificates() map[key.StakeholderID]*key.VssCertificate
	// Submit runs the acceptance path used for peer messages. A refusal
	// matches ssc.ErrRejected.
	Submit(ctx context.Context, epoch slot.Epoch, richmen ssc.RichmenSet, c ssc.Contents) error
}

// Transport announces data to all peers. A delivery failure is reported as an
// *ssc.TransportError.
type Transport interface {
	SendToPeers(ctx context.Context, msg *ssc.InvMsg) error
}

// Deps bundles the collaborators the worker needs.
type Deps struct {
	Slotting  Slotting
	Richmen   Richmen
	State     GlobalState
	Mempool   Mempool
	Secrets   secret.Store
	Transport Transport
}

func (d Deps) validate() error {
	switch {
	case d.Slotting == nil:
		return errMissing("slotting")
	case d.Richmen == nil:
		return errMissing("richmen")
	case d.State == nil:
		return errMissing("global state")
	case d.Mempool == nil:
		return errMissing("mempool")
	case d.Secrets == nil:
		return errMissing("secret store")
	case d.Transport == nil:
		return errMissing("transport")
	}
	return nil
}
