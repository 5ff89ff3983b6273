package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/internal/fs"
	"github.com/drand/ssc/internal/worker"
)

// FileConfig is the content of the optional ssc.toml file. Unset fields keep
// their default.
type FileConfig struct {
	Network       string   `toml:"network,omitempty"`
	ListenAddr    string   `toml:"listen_addr,omitempty"`
	Peers         []string `toml:"peers,omitempty"`
	MetricsAddr   string   `toml:"metrics_addr,omitempty"`
	Participate   *bool    `toml:"participate,omitempty"`
	Stakeholders  []string `toml:"stakeholders,omitempty"`
	Genesis       int64    `toml:"genesis,omitempty"`
	SecurityParam uint64   `toml:"security_param,omitempty"`
	SlotDuration  string   `toml:"slot_duration,omitempty"`
	SendInterval  string   `toml:"send_interval,omitempty"`
	VssMaxTTL     uint64   `toml:"vss_max_ttl,omitempty"`
	MaxWait       string   `toml:"max_broadcast_wait,omitempty"`
}

// LoadFileConfig reads the config file of the folder. A missing file yields an
// empty config.
func LoadFileConfig(folder string) (*FileConfig, error) {
	fc := new(FileConfig)
	file := path.Join(folder, ConfigFileName)
	if _, err := toml.DecodeFile(file, fc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fc, nil
		}
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return fc, nil
}

// Save writes the config file into the folder.
func (f *FileConfig) Save(folder string) error {
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(f); err != nil {
		return err
	}
	return fs.WriteSecureFile(path.Join(folder, ConfigFileName), b.Bytes())
}

// Options turns the file content into config options.
func (f *FileConfig) Options() ([]ConfigOption, error) {
	var opts []ConfigOption
	if f.Network != "" {
		opts = append(opts, WithNetwork(f.Network))
	}
	if f.ListenAddr != "" {
		opts = append(opts, WithListenAddress(f.ListenAddr))
	}
	if len(f.Peers) > 0 {
		opts = append(opts, WithPeers(f.Peers...))
	}
	if f.MetricsAddr != "" {
		opts = append(opts, WithMetricsAddress(f.MetricsAddr))
	}
	if f.Participate != nil {
		opts = append(opts, WithParticipation(*f.Participate))
	}
	if len(f.Stakeholders) > 0 {
		ids := make([]key.StakeholderID, len(f.Stakeholders))
		for i, s := range f.Stakeholders {
			id, err := key.IDFromString(s)
			if err != nil {
				return nil, fmt.Errorf("stakeholder %q: %w", s, err)
			}
			ids[i] = id
		}
		opts = append(opts, WithStakeholders(ids...))
	}

	params, err := f.params()
	if err != nil {
		return nil, err
	}
	return append(opts, WithParams(params)), nil
}

func (f *FileConfig) params() (worker.Params, error) {
	sp := slot.DefaultParams(time.Unix(f.Genesis, 0))
	if f.SecurityParam != 0 {
		sp.SecurityParam = f.SecurityParam
	}
	if err := parseDuration(f.SlotDuration, &sp.SlotDuration); err != nil {
		return worker.Params{}, fmt.Errorf("slot_duration: %w", err)
	}

	p := worker.DefaultParams(sp)
	if err := parseDuration(f.SendInterval, &p.SendInterval); err != nil {
		return worker.Params{}, fmt.Errorf("send_interval: %w", err)
	}
	if err := parseDuration(f.MaxWait, &p.MaxBroadcastWait); err != nil {
		return worker.Params{}, fmt.Errorf("max_broadcast_wait: %w", err)
	}
	if f.VssMaxTTL != 0 {
		p.VssMaxTTL = f.VssMaxTTL
	}
	return p, p.Validate()
}

func parseDuration(s string, d *time.Duration) error {
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
