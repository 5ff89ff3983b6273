package core

import (
	"path"
	"time"

	"github.com/drand/ssc/internal/fs"
)

// DefaultConfigFolderName is the name of the folder containing all key materials
// (and the secret db file by default). It is relative to the user's home
// directory.
const DefaultConfigFolderName = ".ssc"

// DefaultConfigFolder returns the default path of the configuration folder.
func DefaultConfigFolder() string {
	return path.Join(fs.HomeFolder(), DefaultConfigFolderName)
}

// DefaultDBFolder is the name of the folder in which the db file is saved.
// It is relative to the DefaultConfigFolder path.
const DefaultDBFolder = "db"

// ConfigFileName is the name of the optional TOML configuration file inside the
// config folder.
const ConfigFileName = "ssc.toml"

// IdentityFileName is the name of the libp2p identity file inside the config
// folder.
const IdentityFileName = "p2p.key"

// DefaultListenAddr is the multiaddress the p2p host listens on.
const DefaultListenAddr = "/ip4/0.0.0.0/tcp/4455"

// DefaultNetwork names the gossip network nodes join.
const DefaultNetwork = "devnet"

// storeOpenTimeout bounds how long opening the secret db waits for a lock held
// by another process.
const storeOpenTimeout = time.Second
