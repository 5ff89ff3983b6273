package lp2p

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/common/testlogger"
)

func TestLoadOrCreatePrivKey(t *testing.T) {
	lg := testlogger.New(t)
	identityPath := filepath.Join(t.TempDir(), "not-exists-dir", "identity.key")

	priv0, err := LoadOrCreatePrivKey(identityPath, lg)
	require.NoError(t, err)
	info, err := os.Stat(identityPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	priv1, err := LoadOrCreatePrivKey(identityPath, lg)
	require.NoError(t, err)
	require.True(t, priv0.Equals(priv1))

	require.NoError(t, os.WriteFile(identityPath, []byte("garbage!"), 0o600))
	_, err = LoadOrCreatePrivKey(identityPath, lg)
	require.Error(t, err)
}

func TestParseMultiaddrSlice(t *testing.T) {
	addrs, err := ParseMultiaddrSlice([]string{"/ip4/127.0.0.1/tcp/4444", "/dnsaddr/example.com"})
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	_, err = ParseMultiaddrSlice([]string{"127.0.0.1:4444"})
	require.Error(t, err)
}

func newTestTransport(t *testing.T, onInv InvHandler) *Transport {
	lg := testlogger.New(t)
	priv, err := LoadOrCreatePrivKey(filepath.Join(t.TempDir(), "identity.key"), lg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h, ps, err := ConstructHost(ctx, priv, "/ip4/127.0.0.1/tcp/0", nil, lg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	tr, err := NewTransport(lg, clock.NewRealClock(), h, ps, "test", onInv)
	require.NoError(t, err)
	return tr
}

func TestTransportSend(t *testing.T) {
	tr := newTestTransport(t, nil)
	id := key.NewKeyPair().ID()
	require.NoError(t, tr.SendToPeers(context.Background(), ssc.NewInvMsg(ssc.TagCommitment, id)))

	// our own announcements are delivered locally but not handed over
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m, err := tr.sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, tr.self, m.ReceivedFrom)

	require.Error(t, tr.SendToPeers(context.Background(), &ssc.InvMsg{Tag: 42}))
}

func TestTransportSendAfterClose(t *testing.T) {
	tr := newTestTransport(t, nil)
	require.NoError(t, tr.Close())

	err := tr.SendToPeers(context.Background(), ssc.NewInvMsg(ssc.TagCertificate, key.NewKeyPair().ID()))
	var terr *ssc.TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ssc.TagCertificate, terr.Tag)
}

func TestTransportDropsRepeatedInventories(t *testing.T) {
	var got []*ssc.InvMsg
	tr := newTestTransport(t, func(_ peer.ID, msg *ssc.InvMsg) {
		got = append(got, msg)
	})
	from := peer.ID("remote")
	id := key.NewKeyPair().ID()
	sent := time.Unix(1_600_000_000, 0)

	send := func(tag ssc.MsgTag, at time.Time) {
		data, err := EncodeInv(ssc.NewInvMsg(tag, id), at)
		require.NoError(t, err)
		tr.handle(from, data)
	}
	send(ssc.TagOpening, sent)
	send(ssc.TagOpening, sent.Add(20*time.Second))
	require.Len(t, got, 1)

	send(ssc.TagShares, sent.Add(20*time.Second))
	require.Len(t, got, 2)

	send(ssc.TagOpening, sent.Add(2*time.Minute))
	require.Len(t, got, 3)

	tr.handle(from, []byte("garbage"))
	require.Len(t, got, 3)
}
