package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
	"go.uber.org/zap/zapcore"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/common/testlogger"
	"github.com/drand/ssc/crypto/vss"
	"github.com/drand/ssc/internal/devchain"
	"github.com/drand/ssc/internal/secret"
)

type testSlotting struct {
	sync.Mutex
	params slot.Params
	now    time.Time
}

func (s *testSlotting) CurrentTime() time.Time {
	s.Lock()
	defer s.Unlock()
	return s.now
}

func (s *testSlotting) SlotStart(id slot.ID) (time.Time, error) {
	return s.params.Start(id), nil
}

func (s *testSlotting) set(t time.Time) {
	s.Lock()
	defer s.Unlock()
	s.now = t
}

type recordingMempool struct {
	*devchain.Chain
	sync.Mutex
	submitted []ssc.Contents
}

func (m *recordingMempool) Submit(ctx context.Context, epoch slot.Epoch, richmen ssc.RichmenSet, c ssc.Contents) error {
	m.Lock()
	m.submitted = append(m.submitted, c)
	m.Unlock()
	return m.Chain.Submit(ctx, epoch, richmen, c)
}

func (m *recordingMempool) tagged(tag ssc.MsgTag) []ssc.Contents {
	m.Lock()
	defer m.Unlock()
	var out []ssc.Contents
	for _, c := range m.submitted {
		if c.Tag() == tag {
			out = append(out, c)
		}
	}
	return out
}

func (m *recordingMempool) reset() {
	m.Lock()
	defer m.Unlock()
	m.submitted = nil
}

type testTransport struct {
	sync.Mutex
	sent []*ssc.InvMsg
	fail error
}

func (t *testTransport) SendToPeers(_ context.Context, msg *ssc.InvMsg) error {
	t.Lock()
	defer t.Unlock()
	t.sent = append(t.sent, msg)
	if t.fail != nil {
		return t.fail
	}
	return nil
}

func (t *testTransport) count(tag ssc.MsgTag) int {
	t.Lock()
	defer t.Unlock()
	n := 0
	for _, m := range t.sent {
		if m.Tag == tag {
			n++
		}
	}
	return n
}

type member struct {
	signing *key.Pair
	vss     *vss.KeyPair
}

func (m *member) id() key.StakeholderID {
	return m.signing.ID()
}

func (m *member) certificate(t *testing.T, expiry slot.Epoch) *key.VssCertificate {
	t.Helper()
	cert, err := key.NewVssCertificate(m.signing, m.vss.Public, expiry)
	require.NoError(t, err)
	return cert
}

// harness runs a worker for members[0] against a dev chain where every member
// is a richman of epoch.
type harness struct {
	t         *testing.T
	epoch     slot.Epoch
	params    Params
	members   []*member
	node      *NodeContext
	chain     *devchain.Chain
	pool      *recordingMempool
	transport *testTransport
	slotting  *testSlotting
	secrets   secret.Store
	clock     clock.FakeClock
	logs      *bytes.Buffer
	w         *Worker
}

func newHarness(t *testing.T, epoch slot.Epoch, n int) *harness {
	return newHarnessWithStore(t, epoch, n, secret.NewMemStore())
}

func newHarnessWithStore(t *testing.T, epoch slot.Epoch, n int, store secret.Store) *harness {
	params := DefaultParams(slot.DefaultParams(time.Unix(1_600_000_000, 0)))
	h := &harness{
		t:         t,
		epoch:     epoch,
		params:    params,
		chain:     devchain.New(testlogger.New(t), params.Slot, params.VssMaxTTL),
		transport: &testTransport{},
		slotting:  &testSlotting{params: params.Slot},
		secrets:   store,
		clock:     clock.NewFakeClock(),
		logs:      new(bytes.Buffer),
	}
	h.pool = &recordingMempool{Chain: h.chain}

	richmen := make(ssc.RichmenSet)
	for i := 0; i < n; i++ {
		m := &member{signing: key.NewKeyPair(), vss: vss.NewKeyPair()}
		h.members = append(h.members, m)
		richmen[m.id()] = struct{}{}
	}
	h.chain.SetRichmen(epoch, richmen)
	h.node = NewNodeContext(h.members[0].signing, h.members[0].vss, true)
	h.w = h.newWorker()
	return h
}

func (h *harness) newWorker() *Worker {
	l := log.New(zapcore.Lock(zapcore.AddSync(h.logs)), log.DebugLevel, true)
	w, err := New(h.node, h.params, Deps{
		Slotting:  h.slotting,
		Richmen:   h.chain,
		State:     h.chain,
		Mempool:   h.pool,
		Secrets:   h.secrets,
		Transport: h.transport,
	}, WithClock(h.clock), WithLogger(l))
	require.NoError(h.t, err)
	return w
}

// confirmCertificates makes the certificates of every member stable for the
// epoch.
func (h *harness) confirmCertificates() {
	for _, m := range h.members {
		h.chain.ConfirmCertificate(m.certificate(h.t, h.epoch+3), slot.ID{Epoch: h.epoch})
	}
}

// run processes the slot at the end of its broadcast window, so no wait
// happens.
func (h *harness) run(index slot.LocalIndex) {
	id := slot.ID{Epoch: h.epoch, Index: index}
	h.slotting.set(h.params.Slot.Start(id).Add(h.params.SendInterval))
	h.w.OnNewSlot(context.Background(), id)
}

// commitmentOf confirms a fresh commitment of m over every member.
func (h *harness) commitmentOf(m *member) (*ssc.SignedCommitment, *vss.Opening) {
	stable := h.chain.StableCertificates(h.epoch)
	richmen, _ := h.chain.RichmenFor(h.epoch)
	keys := participants(stable, richmen, h.epoch)
	require.Len(h.t, keys, len(h.members))
	c, o, err := vss.GenerateSecret(vss.Threshold(len(keys)), keys)
	require.NoError(h.t, err)
	sc, err := ssc.SignCommitment(m.signing, c, h.epoch)
	require.NoError(h.t, err)
	return sc, o
}

// commitmentAmong returns a commitment of m split among the given members
// only.
func (h *harness) commitmentAmong(m *member, among ...*member) *ssc.SignedCommitment {
	keys := make([]kyber.Point, len(among))
	for i, p := range among {
		keys[i] = p.vss.Public
	}
	c, _, err := vss.GenerateSecret(vss.Threshold(len(keys)), keys)
	require.NoError(h.t, err)
	sc, err := ssc.SignCommitment(m.signing, c, h.epoch)
	require.NoError(h.t, err)
	return sc
}

var errBoom = errors.New("boom")
