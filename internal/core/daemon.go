package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p/core/host"
	bolt "go.etcd.io/bbolt"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
	"github.com/drand/ssc/internal/devchain"
	"github.com/drand/ssc/internal/lp2p"
	"github.com/drand/ssc/internal/metrics"
	"github.com/drand/ssc/internal/secret"
	"github.com/drand/ssc/internal/slotting"
	"github.com/drand/ssc/internal/worker"
)

// Daemon runs the SSC worker of a node along with its collaborators: the
// secret store, the slot clock, the gossip transport and the dev chain.
type Daemon struct {
	opts *Config
	log  log.Logger

	node      *worker.NodeContext
	secrets   secret.Store
	chain     *devchain.Chain
	slots     *slotting.Clock
	host      host.Host
	transport *lp2p.Transport
	worker    *worker.Worker
	metricsL  net.Listener

	state    sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	exitCh   chan struct{}
}

// NewDaemon loads the keys of the node and builds everything it needs to run.
func NewDaemon(ctx context.Context, c *Config) (*Daemon, error) {
	l := c.Logger()
	signing, vssPair, err := key.NewFileStore(c.ConfigFolder()).LoadKeys()
	if errors.Is(err, key.ErrAbsent) {
		return nil, fmt.Errorf("no keys in %s, generate them first: %w", c.ConfigFolder(), err)
	}
	if err != nil {
		return nil, err
	}
	params := c.Params()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{
		opts:   c,
		log:    l.Named("daemon").With("stakeholder", signing.ID().Short()),
		node:   worker.NewNodeContext(signing, vssPair, c.participate),
		exitCh: make(chan struct{}),
	}
	if err := d.init(ctx, params); err != nil {
		if cerr := multierror.Append(d.closeNetwork(), d.closeStore()).ErrorOrNil(); cerr != nil {
			d.log.Warnw("cleaning up after failed init", "err", cerr)
		}
		return nil, err
	}
	return d, nil
}

func (d *Daemon) init(ctx context.Context, params worker.Params) error {
	c := d.opts
	l := c.Logger()

	boltOpts := c.boltOpts
	if boltOpts == nil {
		boltOpts = &bolt.Options{Timeout: storeOpenTimeout}
	}
	secrets, err := secret.NewBoltStore(l, c.DBFolder(), boltOpts)
	if err != nil {
		return err
	}
	d.secrets = secrets

	d.chain = devchain.New(l, params.Slot, params.VssMaxTTL)
	d.chain.SetStakeholders(append([]key.StakeholderID{d.node.ID()}, c.stakeholders...)...)

	d.slots, err = slotting.New(l, c.clock, params.Slot)
	if err != nil {
		return err
	}

	priv, err := lp2p.LoadOrCreatePrivKey(path.Join(c.ConfigFolder(), IdentityFileName), l)
	if err != nil {
		return err
	}
	bootstrap, err := lp2p.ParseMultiaddrSlice(c.Peers())
	if err != nil {
		return err
	}
	h, ps, err := lp2p.ConstructHost(ctx, priv, c.ListenAddress(), bootstrap, l)
	if err != nil {
		return err
	}
	d.host = h
	d.transport, err = lp2p.NewTransport(l, c.clock, h, ps, c.network, nil)
	if err != nil {
		return err
	}

	d.worker, err = worker.New(d.node, params, worker.Deps{
		Slotting:  d.slots,
		Richmen:   d.chain,
		State:     d.chain,
		Mempool:   d.chain,
		Secrets:   d.secrets,
		Transport: d.transport,
	}, worker.WithClock(c.clock), worker.WithLogger(l))
	return err
}

// Node returns the identity and participation switch of the node.
func (d *Daemon) Node() *worker.NodeContext {
	return d.node
}

// Start launches the slot loop, the gossip listener and, when configured, the
// metrics and control endpoint.
func (d *Daemon) Start() {
	d.state.Lock()
	defer d.state.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	metrics.SetParticipation(d.node.Participating())
	if addr := d.opts.MetricsAddress(); addr != "" {
		d.metricsL = metrics.Start(d.log, addr, map[string]http.Handler{
			ParticipationPath: ParticipationHandler(d.node, d.log),
		})
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.transport.Run(ctx)
	}()
	go func() {
		defer d.wg.Done()
		err := d.slots.OnNewSlot(ctx, true, d.onSlot)
		d.log.Infow("slot loop stopped", "err", err)
	}()
	d.log.Infow("daemon started", "participate", d.node.Participating())
}

func (d *Daemon) onSlot(ctx context.Context, id slot.ID) {
	d.worker.OnNewSlot(ctx, id)
	d.chain.Confirm(id)

	if uint64(id.Index) == d.opts.params.Slot.EpochSlots()-1 {
		seed, err := d.chain.Seed(id.Epoch)
		if err != nil {
			d.log.Warnw("no seed for epoch", "epoch", id.Epoch, "err", err)
			return
		}
		d.log.Infow("epoch seed", "epoch", id.Epoch, "seed", hex.EncodeToString(seed))
	}
}

// Stop halts the daemon and releases its resources. The secret store is
// closed only once the slot loop has returned, even when ctx expires first.
// Calling Stop again is a no-op.
func (d *Daemon) Stop(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		d.state.Lock()
		if d.cancel != nil {
			d.cancel()
		}
		d.state.Unlock()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			err = multierror.Append(d.closeNetwork(), d.closeStore()).ErrorOrNil()
			close(d.exitCh)
		case <-ctx.Done():
			d.log.Warnw("slot loop still running, secret store closes once it returns", "err", ctx.Err())
			err = d.closeNetwork()
			go func() {
				<-done
				if cerr := d.closeStore(); cerr != nil {
					d.log.Errorw("closing secret store", "err", cerr)
				}
				close(d.exitCh)
			}()
		}
	})
	return err
}

// WaitExit returns a channel closed once the daemon is stopped and its secret
// store closed.
func (d *Daemon) WaitExit() <-chan struct{} {
	return d.exitCh
}

func (d *Daemon) closeNetwork() error {
	var result *multierror.Error
	if d.metricsL != nil {
		if err := d.metricsL.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if d.host != nil {
		if err := d.host.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (d *Daemon) closeStore() error {
	if d.secrets == nil {
		return nil
	}
	return d.secrets.Close()
}

// GenerateKeys creates and saves the signing and VSS keys of a node. Existing
// keys are only replaced with force.
func GenerateKeys(c *Config, force bool) (*key.Pair, error) {
	store := key.NewFileStore(c.ConfigFolder())
	if _, _, err := store.LoadKeys(); err == nil && !force {
		return nil, fmt.Errorf("keys already present in %s", c.ConfigFolder())
	}
	signing := key.NewKeyPair()
	if err := store.SaveKeys(signing, vss.NewKeyPair()); err != nil {
		return nil, err
	}
	return signing, nil
}

// LoadSecret reads the secret stored for epoch. It fails while a daemon holds
// the db.
func LoadSecret(ctx context.Context, c *Config, epoch slot.Epoch) (*ssc.SignedCommitment, *vss.Opening, error) {
	store, err := secret.NewBoltStore(c.Logger(), c.DBFolder(), &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()
	return store.Get(ctx, epoch)
}
