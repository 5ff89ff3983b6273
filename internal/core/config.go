package core

import (
	"path"
	"time"

	clock "github.com/jonboulle/clockwork"
	bolt "go.etcd.io/bbolt"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/internal/worker"
)

// ConfigOption is a function that applies a specific setting to a Config.
type ConfigOption func(*Config)

// Config holds all relevant information for an SSC node to run.
type Config struct {
	configFolder string
	dbFolder     string
	listenAddr   string
	peers        []string
	metricsAddr  string
	network      string
	participate  bool
	stakeholders []key.StakeholderID
	params       worker.Params
	boltOpts     *bolt.Options
	logger       log.Logger
	clock        clock.Clock
}

// NewConfig returns the config to pass to the daemon with the default options
// set and the updated values given by the options.
func NewConfig(opts ...ConfigOption) *Config {
	d := &Config{
		configFolder: DefaultConfigFolder(),
		listenAddr:   DefaultListenAddr,
		network:      DefaultNetwork,
		participate:  true,
		params:       worker.DefaultParams(slot.DefaultParams(time.Unix(0, 0))),
		logger:       log.DefaultLogger(),
		clock:        clock.NewRealClock(),
	}
	d.dbFolder = path.Join(d.configFolder, DefaultDBFolder)
	for i := range opts {
		opts[i](d)
	}
	return d
}

// ConfigFolder returns the folder under which the node stores all its
// configuration.
func (d *Config) ConfigFolder() string {
	return d.configFolder
}

// DBFolder returns the folder under which the node stores its secrets.
func (d *Config) DBFolder() string {
	return d.dbFolder
}

// ListenAddress returns the multiaddress the p2p host listens on.
func (d *Config) ListenAddress() string {
	return d.listenAddr
}

// Peers returns the bootstrap peers.
func (d *Config) Peers() []string {
	return d.peers
}

// MetricsAddress returns the address of the metrics and control endpoint.
// Empty means disabled.
func (d *Config) MetricsAddress() string {
	return d.metricsAddr
}

// Params returns the protocol parameters.
func (d *Config) Params() worker.Params {
	return d.params
}

// Logger returns the logger associated with this config.
func (d *Config) Logger() log.Logger {
	return d.logger
}

// WithConfigFolder sets the base configuration folder to the given string.
func WithConfigFolder(folder string) ConfigOption {
	return func(d *Config) {
		d.configFolder = folder
		d.dbFolder = path.Join(d.configFolder, DefaultDBFolder)
	}
}

// WithDBFolder sets the path folder for the db file. This path is NOT relative
// to the config folder path if set.
func WithDBFolder(folder string) ConfigOption {
	return func(d *Config) {
		d.dbFolder = folder
	}
}

// WithBoltOptions applies boltdb specific options when storing secrets.
func WithBoltOptions(opts *bolt.Options) ConfigOption {
	return func(d *Config) {
		d.boltOpts = opts
	}
}

// WithListenAddress sets the multiaddress the p2p host listens on. Empty
// disables listening.
func WithListenAddress(addr string) ConfigOption {
	return func(d *Config) {
		d.listenAddr = addr
	}
}

// WithPeers sets the multiaddresses of the bootstrap peers.
func WithPeers(peers ...string) ConfigOption {
	return func(d *Config) {
		d.peers = peers
	}
}

// WithMetricsAddress enables the metrics and control endpoint on addr.
func WithMetricsAddress(addr string) ConfigOption {
	return func(d *Config) {
		d.metricsAddr = addr
	}
}

// WithNetwork sets the name of the gossip network to join.
func WithNetwork(name string) ConfigOption {
	return func(d *Config) {
		d.network = name
	}
}

// WithParticipation sets whether the node takes part in the protocol at
// startup.
func WithParticipation(enabled bool) ConfigOption {
	return func(d *Config) {
		d.participate = enabled
	}
}

// WithStakeholders sets the other richmen of the dev chain. The node itself is
// always one.
func WithStakeholders(ids ...key.StakeholderID) ConfigOption {
	return func(d *Config) {
		d.stakeholders = ids
	}
}

// WithParams sets the protocol parameters.
func WithParams(p worker.Params) ConfigOption {
	return func(d *Config) {
		d.params = p
	}
}

// WithLogger sets the logger used by the node.
func WithLogger(l log.Logger) ConfigOption {
	return func(d *Config) {
		d.logger = l
	}
}

// WithClock sets the clock slots are measured with.
func WithClock(c clock.Clock) ConfigOption {
	return func(d *Config) {
		d.clock = c
	}
}
