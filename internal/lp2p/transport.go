package lp2p

import (
	"context"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru"
	clock "github.com/jonboulle/clockwork"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/xerrors"

	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/internal/metrics"
)

const (
	seenCacheSize = 1024
	// announcements of the same data repeated within seenWindow are
	// duplicates
	seenWindow = time.Minute
)

// InvHandler is called with every new announcement received from a peer.
type InvHandler func(from peer.ID, msg *ssc.InvMsg)

// Transport publishes our announcements on the inventory topic and listens to
// the announcements of the other nodes.
type Transport struct {
	l     log.Logger
	clock clock.Clock
	self  peer.ID
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	seen  *lru.Cache
	onInv InvHandler
}

// NewTransport joins the inventory topic of the network. onInv may be nil.
func NewTransport(l log.Logger, c clock.Clock, h host.Host, ps *pubsub.PubSub, network string, onInv InvHandler) (*Transport, error) {
	topic, err := ps.Join(InventoryTopic(network))
	if err != nil {
		return nil, xerrors.Errorf("joining topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return nil, xerrors.Errorf("subscribing: %w", err)
	}
	seen, err := lru.New(seenCacheSize)
	if err != nil {
		return nil, err
	}
	for _, a := range h.Addrs() {
		l.Infow("p2p transport listening", "addr", a.String()+"/p2p/"+h.ID().String())
	}
	return &Transport{
		l:     l.Named("lp2p"),
		clock: c,
		self:  h.ID(),
		topic: topic,
		sub:   sub,
		seen:  seen,
		onInv: onInv,
	}, nil
}

// SendToPeers publishes msg. A publication failure is returned as an
// *ssc.TransportError.
func (t *Transport) SendToPeers(ctx context.Context, msg *ssc.InvMsg) error {
	data, err := EncodeInv(msg, t.clock.Now())
	if err != nil {
		return err
	}
	if err := t.topic.Publish(ctx, data); err != nil {
		return &ssc.TransportError{Tag: msg.Tag, Err: err}
	}
	return nil
}

// Run reads announcements until ctx is done or the subscription is closed.
func (t *Transport) Run(ctx context.Context) {
	for {
		m, err := t.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				t.l.Warnw("inventory subscription closed", "err", err)
			}
			return
		}
		if m.ReceivedFrom == t.self {
			continue
		}
		t.handle(m.ReceivedFrom, m.Data)
	}
}

func (t *Transport) handle(from peer.ID, data []byte) {
	msg, sent, err := DecodeInv(data)
	if err != nil {
		t.l.Warnw("invalid inventory", "from", from.String(), "err", err)
		return
	}
	metrics.InventoriesReceived.WithLabelValues(msg.Tag.String()).Inc()

	fresh := false
	for _, k := range msg.Keys {
		id := msg.Tag.String() + "/" + hex.EncodeToString(k[:])
		if last, ok := t.seen.Get(id); ok && sent.Sub(last.(time.Time)) < seenWindow {
			continue
		}
		t.seen.Add(id, sent)
		fresh = true
	}
	if !fresh {
		t.l.Debugw("inventory already seen", "from", from.String(), "tag", msg.Tag)
		return
	}
	t.l.Infow("new inventory", "from", from.String(), "tag", msg.Tag, "keys", len(msg.Keys))
	if t.onInv != nil {
		t.onInv(from, msg)
	}
}

// Close leaves the inventory topic.
func (t *Transport) Close() error {
	t.sub.Cancel()
	return t.topic.Close()
}
