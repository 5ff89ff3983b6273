package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/common/testlogger"
	"github.com/drand/ssc/crypto/vss"
	"github.com/drand/ssc/internal/secret"
)

func TestNewValidatesDeps(t *testing.T) {
	h := newHarness(t, 1, 1)
	_, err := New(h.node, h.params, Deps{Slotting: h.slotting})
	require.Error(t, err)

	_, err = New(&NodeContext{}, h.params, Deps{})
	require.Error(t, err)

	bad := h.params
	bad.VssMaxTTL = 0
	_, err = New(h.node, bad, Deps{})
	require.Error(t, err)
}

func TestPhaseOrder(t *testing.T) {
	var seen []Phase
	for p := PhaseIdle; p != PhaseDone; p = p.Next() {
		seen = append(seen, p)
	}
	require.Equal(t, []Phase{PhaseIdle, PhaseAnnouncing, PhaseCommitting, PhaseOpening, PhaseSharing}, seen)
	require.Equal(t, PhaseDone, PhaseDone.Next())
	require.Equal(t, "sharing", PhaseSharing.String())
}

func TestNoRichmenAbortsSlot(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.w.OnNewSlot(context.Background(), slot.ID{Epoch: 11, Index: 0})
	require.Empty(t, h.pool.submitted)
	require.Empty(t, h.transport.sent)
	require.Contains(t, h.logs.String(), "richmen unavailable")
}

func TestParticipationDisabled(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.node.SetParticipation(false)
	h.run(0)
	require.Empty(t, h.pool.submitted)
	require.Empty(t, h.transport.sent)

	h.node.SetParticipation(true)
	h.run(1)
	require.Len(t, h.pool.tagged(ssc.TagCertificate), 1)
}

func TestNotARichman(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.chain.SetRichmen(10, ssc.NewRichmenSet(h.members[1].id(), h.members[2].id()))
	h.run(0)
	require.Empty(t, h.pool.submitted)
	require.Empty(t, h.transport.sent)
}

func TestCertificateAnnouncedOnce(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.run(5)
	certs := h.pool.tagged(ssc.TagCertificate)
	require.Len(t, certs, 1)
	cert := certs[0].(ssc.CertificateContents).Certificate
	require.Equal(t, slot.Epoch(10+DefaultVssMaxTTL-1), cert.ExpiryEpoch)
	require.NoError(t, cert.Verify())
	require.Equal(t, 1, h.transport.count(ssc.TagCertificate))

	h.chain.Confirm(slot.ID{Epoch: 10, Index: 5})
	h.run(6)
	require.Len(t, h.pool.tagged(ssc.TagCertificate), 1)
	require.Equal(t, 1, h.transport.count(ssc.TagCertificate))
}

func TestExpiredCertificateIsRenewed(t *testing.T) {
	h := newHarness(t, 10, 3)
	old := h.members[0].certificate(t, 9)
	h.chain.ConfirmCertificate(old, slot.ID{Epoch: 4, Index: 0})

	h.run(5)
	certs := h.pool.tagged(ssc.TagCertificate)
	require.Len(t, certs, 1)
	require.Equal(t, 1, h.transport.count(ssc.TagCertificate))
	renewed := certs[0].(ssc.CertificateContents).Certificate
	require.True(t, renewed.ValidFor(10))
	require.False(t, renewed.Equal(old))

	logs := h.logs.String()
	require.Contains(t, logs, "expired_certificate")
	require.NotContains(t, logs, "certificate not announced yet")
}

func TestCertificateResentAfterTransportFailure(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.transport.fail = &ssc.TransportError{Tag: ssc.TagCertificate, Err: errBoom}

	h.run(5)
	require.Contains(t, h.logs.String(), "failed to announce our data")
	require.NotContains(t, h.chain.GlobalCertificates(slot.ID{Epoch: 10, Index: 5}), h.node.ID())

	h.run(6)
	certs := h.pool.tagged(ssc.TagCertificate)
	require.Len(t, certs, 2)
	require.Equal(t, 2, h.transport.count(ssc.TagCertificate))
	first := certs[0].(ssc.CertificateContents).Certificate
	second := certs[1].(ssc.CertificateContents).Certificate
	require.True(t, first.Equal(second))
}

func TestIdempotentCommitment(t *testing.T) {
	dir := t.TempDir()
	store, err := secret.NewBoltStore(testlogger.New(t), dir, nil)
	require.NoError(t, err)

	h := newHarnessWithStore(t, 10, 3, store)
	h.confirmCertificates()
	h.run(0)
	comms := h.pool.tagged(ssc.TagCommitment)
	require.Len(t, comms, 1)
	require.Equal(t, 1, h.transport.count(ssc.TagCommitment))

	// restart: a new store over the same folder and a new worker
	require.NoError(t, store.Close())
	store, err = secret.NewBoltStore(testlogger.New(t), dir, nil)
	require.NoError(t, err)
	defer store.Close()
	h.secrets = store
	h.w = h.newWorker()
	h.run(1)

	comms = h.pool.tagged(ssc.TagCommitment)
	require.Len(t, comms, 2)
	first, err := comms[0].(ssc.CommitmentContents).Commitment.MarshalBinary()
	require.NoError(t, err)
	second, err := comms[1].(ssc.CommitmentContents).Commitment.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Contains(t, h.logs.String(), "secret already generated, reusing it")
}

func TestCommitmentNeedsStableCertificate(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.run(0)
	require.Empty(t, h.pool.tagged(ssc.TagCommitment))
	_, _, err := h.secrets.Get(context.Background(), 10)
	require.ErrorIs(t, err, secret.ErrNotFound)
}

func TestCommitmentWithoutParticipants(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.chain.ConfirmCertificate(h.members[0].certificate(t, 12), slot.ID{Epoch: 10})

	// the only richman holds no certificate
	comm, err := h.w.generateSecret(context.Background(), 10, ssc.NewRichmenSet(h.members[1].id()))
	require.NoError(t, err)
	require.Nil(t, comm)
	require.Contains(t, h.logs.String(), "no participants for the epoch")
	_, _, err = h.secrets.Get(context.Background(), 10)
	require.ErrorIs(t, err, secret.ErrNotFound)
}

func TestParticipantsAreOrderedRichmen(t *testing.T) {
	h := newHarness(t, 10, 4)
	h.confirmCertificates()
	stable := h.chain.StableCertificates(10)
	richmen := ssc.NewRichmenSet(h.members[0].id(), h.members[2].id(), h.members[3].id())

	keys := participants(stable, richmen, 10)
	require.Len(t, keys, 3)
	ids := []key.StakeholderID{h.members[0].id(), h.members[2].id(), h.members[3].id()}
	key.SortIDs(ids)
	for i, id := range ids {
		require.True(t, stable[id].VssKey.Equal(keys[i]))
	}
	require.Empty(t, participants(stable, richmen, 20))
}

func TestWindowGating(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.confirmCertificates()
	sp := h.params.Slot

	// nothing confirmed: only the commitment window may commit
	for i := slot.LocalIndex(0); i < slot.LocalIndex(sp.EpochSlots()); i++ {
		h.pool.reset()
		h.run(i)
		for _, c := range h.pool.submitted {
			require.Equal(t, ssc.TagCommitment, c.Tag(), "slot %d", i)
			require.True(t, sp.CommitmentWindow().Contains(i), "slot %d", i)
		}
	}

	// our commitment and an unopened one confirmed: openings and shares
	// only in their own window
	comm, _, err := h.secrets.Get(context.Background(), 10)
	require.NoError(t, err)
	h.chain.ConfirmCommitment(10, comm)
	other, _ := h.commitmentOf(h.members[1])
	h.chain.ConfirmCommitment(10, other)

	for i := slot.LocalIndex(0); i < slot.LocalIndex(sp.EpochSlots()); i++ {
		h.pool.reset()
		h.run(i)
		for _, c := range h.pool.submitted {
			switch c.Tag() {
			case ssc.TagOpening:
				require.True(t, sp.OpeningWindow().Contains(i), "slot %d", i)
			case ssc.TagShares:
				require.True(t, sp.SharesWindow().Contains(i), "slot %d", i)
			default:
				t.Fatalf("unexpected %s at slot %d", c.Tag(), i)
			}
		}
	}
	require.Equal(t, int(2*sp.SecurityParam), h.transport.count(ssc.TagOpening))
	require.Equal(t, int(2*sp.SecurityParam), h.transport.count(ssc.TagShares))
}

func TestNoPrematureOpening(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.confirmCertificates()
	h.run(0)
	require.Len(t, h.pool.tagged(ssc.TagCommitment), 1)

	openingStart := h.params.Slot.OpeningWindow().From
	h.run(openingStart)
	require.Empty(t, h.pool.tagged(ssc.TagOpening))
	require.Contains(t, h.logs.String(), "no confirmed commitment, nothing to open")

	// someone else's confirmed commitment does not count
	other, _ := h.commitmentOf(h.members[1])
	h.chain.ConfirmCommitment(10, other)
	h.run(openingStart + 1)
	require.Empty(t, h.pool.tagged(ssc.TagOpening))
}

func TestOpeningWithoutStoredSecret(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.confirmCertificates()
	comm, _ := h.commitmentOf(h.members[0])
	h.chain.ConfirmCommitment(10, comm)

	h.run(h.params.Slot.OpeningWindow().From)
	require.Empty(t, h.pool.tagged(ssc.TagOpening))
	require.Contains(t, h.logs.String(), "node probably started mid-epoch")
}

func TestOpeningStopsOnceConfirmed(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.confirmCertificates()
	h.run(0)
	h.chain.Confirm(slot.ID{Epoch: 10, Index: 1})

	w := h.params.Slot.OpeningWindow()
	h.run(w.From)
	require.Len(t, h.pool.tagged(ssc.TagOpening), 1)
	h.chain.Confirm(slot.ID{Epoch: 10, Index: w.From})
	h.run(w.From + 1)
	require.Len(t, h.pool.tagged(ssc.TagOpening), 1)
}

func TestSharesAtMostOnce(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.confirmCertificates()
	b, _ := h.commitmentOf(h.members[1])
	c, openC := h.commitmentOf(h.members[2])
	h.chain.ConfirmCommitment(10, b)
	h.chain.ConfirmCommitment(10, c)
	h.chain.ConfirmOpening(10, h.members[2].id(), openC)

	w := h.params.Slot.SharesWindow()
	h.run(w.From)
	shares := h.pool.tagged(ssc.TagShares)
	require.Len(t, shares, 1)
	sc := shares[0].(ssc.SharesContents)
	require.Equal(t, h.node.ID(), sc.ID)
	// c opened, so only b needs our share
	require.Len(t, sc.Shares, 1)
	require.Contains(t, sc.Shares, h.members[1].id())
	require.NoError(t, vss.VerifyDecryptedShare(b.Commitment, h.node.Vss.Public, sc.Shares[h.members[1].id()]))

	h.chain.Confirm(slot.ID{Epoch: 10, Index: w.From})
	require.True(t, h.chain.HasShares(10, h.node.ID()))
	for i := w.From + 1; i < w.To; i++ {
		h.run(i)
	}
	require.Len(t, h.pool.tagged(ssc.TagShares), 1)
	require.Equal(t, 1, h.transport.count(ssc.TagShares))
}

func TestSharesOnlyForOurCommitments(t *testing.T) {
	h := newHarness(t, 10, 4)
	h.confirmCertificates()
	outside := h.commitmentAmong(h.members[1], h.members[1], h.members[2])
	inside := h.commitmentAmong(h.members[2], h.members...)
	h.chain.ConfirmCommitment(10, outside)
	h.chain.ConfirmCommitment(10, inside)

	h.run(h.params.Slot.SharesWindow().From)
	shares := h.pool.tagged(ssc.TagShares)
	require.Len(t, shares, 1)
	sc := shares[0].(ssc.SharesContents)
	require.Len(t, sc.Shares, 1)
	require.NotContains(t, sc.Shares, h.members[1].id())
	require.Contains(t, sc.Shares, h.members[2].id())
	require.NoError(t, vss.VerifyDecryptedShare(inside.Commitment, h.node.Vss.Public, sc.Shares[h.members[2].id()]))
}

func TestNoSharesWhenNotAParticipant(t *testing.T) {
	h := newHarness(t, 10, 4)
	h.confirmCertificates()
	h.chain.ConfirmCommitment(10, h.commitmentAmong(h.members[1], h.members[1], h.members[2], h.members[3]))

	h.run(h.params.Slot.SharesWindow().From)
	require.Empty(t, h.pool.tagged(ssc.TagShares))
	require.Zero(t, h.transport.count(ssc.TagShares))
}

func TestNoSharesWithoutCommitments(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.confirmCertificates()
	h.run(h.params.Slot.SharesWindow().From)
	require.Empty(t, h.pool.tagged(ssc.TagShares))
}

func TestEndToEndEpoch(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.confirmCertificates()
	sp := h.params.Slot

	h.run(sp.CommitmentWindow().From)
	comms := h.pool.tagged(ssc.TagCommitment)
	require.Len(t, comms, 1)
	commA := comms[0].(ssc.CommitmentContents).Commitment
	require.Equal(t, 2, commA.Commitment.Threshold())
	require.Len(t, commA.Commitment.Shares, 3)

	stored, openA, err := h.secrets.Get(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, commA.Signature, stored.Signature)

	h.chain.Confirm(slot.ID{Epoch: 10, Index: sp.CommitmentWindow().From + 1})
	require.True(t, h.chain.HasCommitment(10, h.node.ID()))

	h.run(sp.OpeningWindow().From)
	openings := h.pool.tagged(ssc.TagOpening)
	require.Len(t, openings, 1)
	oc := openings[0].(ssc.OpeningContents)
	require.Equal(t, h.node.ID(), oc.ID)
	require.True(t, oc.Opening.Secret.Equal(openA.Secret))
	require.NoError(t, vss.VerifyOpening(commA.Commitment, oc.Opening))

	h.chain.Confirm(slot.ID{Epoch: 10, Index: sp.OpeningWindow().From})
	seed, err := h.chain.Seed(10)
	require.NoError(t, err)
	require.NotEmpty(t, seed)
}

func TestPhaseErrorDoesNotStopSlot(t *testing.T) {
	h := newHarness(t, 10, 3)
	h.confirmCertificates()
	h.secrets = failingStore{}
	h.w = h.newWorker()

	h.run(0)
	require.Contains(t, h.logs.String(), "phase failed")
	require.Contains(t, h.logs.String(), `"phase":"committing"`)
}

type failingStore struct{}

func (failingStore) Get(context.Context, slot.Epoch) (*ssc.SignedCommitment, *vss.Opening, error) {
	return nil, nil, errBoom
}

func (failingStore) Put(context.Context, *ssc.SignedCommitment, *vss.Opening, slot.Epoch) error {
	return errBoom
}

func (failingStore) Close() error {
	return nil
}
