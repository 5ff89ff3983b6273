// Package lp2p carries the SSC inventory announcements over libp2p gossipsub.
package lp2p

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	mrand "math/rand"
	"os"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pubsubpb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	connmgr "github.com/libp2p/go-libp2p/p2p/net/connmgr"
	noise "github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2ptls "github.com/libp2p/go-libp2p/p2p/security/tls"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/xerrors"

	"github.com/drand/ssc/common"
	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/internal/fs"
)

const (
	// directConnectTicks makes pubsub check it's connected to direct peers every N seconds.
	directConnectTicks uint64 = 5
	lowWater                  = 50
	highWater                 = 200
	gracePeriod               = time.Minute
	bootstrapTimeout          = 5 * time.Second
)

// InventoryTopic is the pubsub topic inventory announcements are published on.
func InventoryTopic(network string) string {
	return fmt.Sprintf("/ssc/pubsub/v0.0.0/%s/inv", network)
}

// ConstructHost builds a libp2p host and the gossipsub router announcements
// travel through. Bootstrap peers are kept as direct peers.
func ConstructHost(ctx context.Context, priv crypto.PrivKey, listenAddr string,
	bootstrap []ma.Multiaddr, l log.Logger) (host.Host, *pubsub.PubSub, error) {
	addrInfos, err := resolveAddresses(ctx, bootstrap, nil)
	if err != nil {
		return nil, nil, xerrors.Errorf("parsing addrInfos: %w", err)
	}

	cmgr, err := connmgr.NewConnManager(lowWater, highWater, connmgr.WithGracePeriod(gracePeriod))
	if err != nil {
		return nil, nil, xerrors.Errorf("creating connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ChainOptions(
			libp2p.Security(libp2ptls.ID, libp2ptls.New),
			libp2p.Security(noise.ID, noise.New)),
		libp2p.DisableRelay(),
		libp2p.UserAgent(common.UserAgent()),
		libp2p.ConnectionManager(cmgr),
	}
	if listenAddr != "" {
		opts = append(opts, libp2p.ListenAddrStrings(listenAddr))
	} else {
		opts = append(opts, libp2p.NoListenAddrs)
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, nil, xerrors.Errorf("constructing host: %w", err)
	}

	p, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithPeerExchange(true),
		pubsub.WithMessageIdFn(func(pmsg *pubsubpb.Message) string {
			hash := blake2b.Sum256(pmsg.Data)
			return string(hash[:])
		}),
		pubsub.WithDirectPeers(addrInfos),
		pubsub.WithFloodPublish(true),
		pubsub.WithDirectConnectTicks(directConnectTicks),
	)
	if err != nil {
		_ = h.Close()
		return nil, nil, xerrors.Errorf("constructing pubsub: %w", err)
	}

	go func() {
		mrand.Shuffle(len(addrInfos), func(i, j int) {
			addrInfos[i], addrInfos[j] = addrInfos[j], addrInfos[i]
		})
		for _, ai := range addrInfos {
			cctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
			err := h.Connect(cctx, ai)
			cancel()
			if err != nil {
				l.Warnw("could not bootstrap", "addr", ai, "err", err)
			}
		}
	}()
	return h, p, nil
}

// LoadOrCreatePrivKey loads a base64 encoded libp2p private key from a file or creates one if it does not exist.
func LoadOrCreatePrivKey(identityPath string, l log.Logger) (crypto.PrivKey, error) {
	privB64, err := os.ReadFile(identityPath)

	var priv crypto.PrivKey
	switch {
	case err == nil:
		privBytes, err := base64.RawStdEncoding.DecodeString(string(privB64))
		if err != nil {
			return nil, xerrors.Errorf("decoding base64 key: %w", err)
		}
		priv, err = crypto.UnmarshalEd25519PrivateKey(privBytes)
		if err != nil {
			return nil, xerrors.Errorf("unmarshaling ed25519 key: %w", err)
		}
		l.Infow("loaded p2p identity", "path", identityPath)

	case xerrors.Is(err, os.ErrNotExist):
		priv, _, err = crypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, xerrors.Errorf("generating private key: %w", err)
		}
		b, err := priv.Raw()
		if err != nil {
			return nil, xerrors.Errorf("marshaling private key: %w", err)
		}
		if err := fs.WriteSecureFile(identityPath, []byte(base64.RawStdEncoding.EncodeToString(b))); err != nil {
			return nil, xerrors.Errorf("writing identity file: %w", err)
		}
		l.Infow("created p2p identity", "path", identityPath)

	default:
		return nil, xerrors.Errorf("getting private key: %w", err)
	}

	return priv, nil
}

// ParseMultiaddrSlice parses a list of addresses into multiaddrs
func ParseMultiaddrSlice(peers []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, len(peers))
	for i, peer := range peers {
		m, err := ma.NewMultiaddr(peer)
		if err != nil {
			return nil, xerrors.Errorf("parsing multiaddr %q: %w", peer, err)
		}
		out[i] = m
	}
	return out, nil
}
