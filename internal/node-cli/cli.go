// Package node is the command line interface of an SSC node.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/nikkolasg/hexjson"
	"github.com/urfave/cli/v2"

	"github.com/drand/ssc/common"
	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/internal/core"
	"github.com/drand/ssc/internal/secret"
)

const stopTimeout = 10 * time.Second

func banner(w io.Writer) {
	_, _ = fmt.Fprintf(w, "ssc-node %s (date %v, commit %v)\n", common.GetAppVersion(), common.BUILDDATE, common.COMMIT)
}

var folderFlag = &cli.StringFlag{
	Name:    "folder",
	Value:   core.DefaultConfigFolder(),
	Usage:   "Folder to keep the keys, the config file and the secret db, with absolute path.",
	EnvVars: []string{"SSC_FOLDER"},
}

var verboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	Usage:   "If set, verbosity is at the debug level",
	EnvVars: []string{"SSC_VERBOSE"},
}

var jsonFlag = &cli.BoolFlag{
	Name:    "json",
	Usage:   "Set the output as json format",
	EnvVars: []string{"SSC_JSON"},
}

var dbFlag = &cli.StringFlag{
	Name:    "db",
	Usage:   "Folder of the secret db. Defaults to the db folder inside --folder.",
	EnvVars: []string{"SSC_DB"},
}

var listenFlag = &cli.StringFlag{
	Name:    "listen",
	Usage:   "Multiaddress the p2p host listens on. Empty disables listening.",
	EnvVars: []string{"SSC_LISTEN"},
}

var peersFlag = &cli.StringSliceFlag{
	Name:    "peers",
	Usage:   "Multiaddresses of the bootstrap peers. Can be repeated.",
	EnvVars: []string{"SSC_PEERS"},
}

var metricsFlag = &cli.StringFlag{
	Name:    "metrics",
	Usage:   "Launch a metrics and participation control server at the specified (host:)port.",
	EnvVars: []string{"SSC_METRICS"},
}

var networkFlag = &cli.StringFlag{
	Name:    "network",
	Usage:   "Name of the gossip network to join.",
	EnvVars: []string{"SSC_NETWORK"},
}

var participateFlag = &cli.BoolFlag{
	Name:    "participate",
	Usage:   "Take part in the protocol at startup. It can be switched at runtime on the metrics server.",
	Value:   true,
	EnvVars: []string{"SSC_PARTICIPATE"},
}

var stakeholdersFlag = &cli.StringSliceFlag{
	Name:    "stakeholders",
	Usage:   "Hex identifiers of the other richmen. Can be repeated.",
	EnvVars: []string{"SSC_STAKEHOLDERS"},
}

var genesisFlag = &cli.Int64Flag{
	Name:    "genesis",
	Usage:   "Unix time of the start of the first slot.",
	EnvVars: []string{"SSC_GENESIS"},
}

var forceFlag = &cli.BoolFlag{
	Name:    "force",
	Aliases: []string{"f"},
	Usage:   "Overwrite existing keys.",
	EnvVars: []string{"SSC_FORCE"},
}

var epochFlag = &cli.Uint64Flag{
	Name:     "epoch",
	Usage:    "Epoch of the secret to show.",
	Required: true,
	EnvVars:  []string{"SSC_EPOCH"},
}

var appCommands = []*cli.Command{
	{
		Name:  "generate-keypair",
		Usage: "Generate the signing and VSS keys of the node.",
		Flags: toArray(folderFlag, forceFlag, verboseFlag, jsonFlag),
		Action: func(c *cli.Context) error {
			l := log.New(nil, logLevel(c), logJSON(c)).
				Named("generateKeyPair")
			return keygenCmd(c, l)
		},
	},
	{
		Name:  "start",
		Usage: "Start the SSC node.",
		Flags: toArray(folderFlag, dbFlag, listenFlag, peersFlag, metricsFlag,
			networkFlag, participateFlag, stakeholdersFlag, genesisFlag,
			verboseFlag, jsonFlag),
		Action: func(c *cli.Context) error {
			banner(c.App.Writer)
			l := log.New(nil, logLevel(c), logJSON(c)).
				Named("startCmd")
			return startCmd(c, l)
		},
	},
	{
		Name:  "show-secret",
		Usage: "Print the secret the node committed to for an epoch.",
		Flags: toArray(folderFlag, dbFlag, epochFlag, verboseFlag, jsonFlag),
		Action: func(c *cli.Context) error {
			l := log.New(nil, logLevel(c), logJSON(c)).
				Named("showSecret")
			return showSecretCmd(c, l)
		},
	},
}

// CLI runs the ssc-node app
func CLI() *cli.App {
	app := cli.NewApp()
	app.Name = "ssc-node"
	app.Version = common.GetAppVersion().String()
	app.Usage = "shared seed computation node"
	app.ExitErrHandler = func(context *cli.Context, err error) {
		// override to prevent default behavior of calling OS.exit(1),
		// when tests expect to be able to run multiple commands.
	}
	// cli doesn't support concurrent executions well, copy the commands
	appComm := make([]*cli.Command, len(appCommands))
	for i, p := range appCommands {
		v := *p
		appComm[i] = &v
	}
	app.Commands = appComm
	verbFlag := *verboseFlag
	foldFlag := *folderFlag
	app.Flags = toArray(&verbFlag, &foldFlag)
	return app
}

func keygenCmd(c *cli.Context, l log.Logger) error {
	conf := core.NewConfig(core.WithConfigFolder(c.String(folderFlag.Name)), core.WithLogger(l))
	pair, err := core.GenerateKeys(conf, c.Bool(forceFlag.Name))
	if err != nil {
		return fmt.Errorf("generating keys: %w (use --%s to overwrite)", err, forceFlag.Name)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "Generated keys in %s\nStakeholder ID: %s\n", conf.ConfigFolder(), pair.ID())
	return nil
}

func startCmd(c *cli.Context, l log.Logger) error {
	conf, err := contextToConfig(c, l)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon, err := core.NewDaemon(ctx, conf)
	if err != nil {
		return fmt.Errorf("can't instantiate ssc daemon: %w", err)
	}
	daemon.Start()
	_, _ = fmt.Fprintf(c.App.Writer, "Node %s started\n", daemon.Node().ID())

	select {
	case <-ctx.Done():
		l.Infow("shutting down", "reason", ctx.Err())
	case <-daemon.WaitExit():
		return nil
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return daemon.Stop(stopCtx)
}

type secretOutput struct {
	Epoch        uint64
	Owner        string
	Threshold    int
	Participants int
	Secret       []byte
}

func showSecretCmd(c *cli.Context, l log.Logger) error {
	conf := core.NewConfig(configFolderOptions(c, l)...)
	epoch := slot.Epoch(c.Uint64(epochFlag.Name))
	comm, opening, err := core.LoadSecret(c.Context, conf, epoch)
	if errors.Is(err, secret.ErrNotFound) {
		return fmt.Errorf("no secret stored for epoch %d", epoch)
	}
	if err != nil {
		return err
	}

	point, err := opening.Point().MarshalBinary()
	if err != nil {
		return err
	}
	out := secretOutput{
		Epoch:        uint64(epoch),
		Owner:        key.IDFromPublic(comm.SigningKey).String(),
		Threshold:    comm.Commitment.Threshold(),
		Participants: len(comm.Commitment.Shares),
		Secret:       point,
	}
	if !logJSON(c) {
		_, _ = fmt.Fprintf(c.App.Writer, "epoch %d owner %s threshold %d/%d secret %x\n",
			out.Epoch, out.Owner, out.Threshold, out.Participants, out.Secret)
		return nil
	}
	buff, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding secret: %w", err)
	}
	_, _ = fmt.Fprintln(c.App.Writer, string(buff))
	return nil
}

func configFolderOptions(c *cli.Context, l log.Logger) []core.ConfigOption {
	opts := []core.ConfigOption{
		core.WithConfigFolder(c.String(folderFlag.Name)),
		core.WithLogger(l),
	}
	if c.IsSet(dbFlag.Name) {
		opts = append(opts, core.WithDBFolder(c.String(dbFlag.Name)))
	}
	return opts
}

// contextToConfig merges the config file of the folder with the flags. Flags
// win over the file.
func contextToConfig(c *cli.Context, l log.Logger) (*core.Config, error) {
	fc, err := core.LoadFileConfig(c.String(folderFlag.Name))
	if err != nil {
		return nil, err
	}
	if c.IsSet(genesisFlag.Name) {
		fc.Genesis = c.Int64(genesisFlag.Name)
	}
	if c.IsSet(stakeholdersFlag.Name) {
		fc.Stakeholders = c.StringSlice(stakeholdersFlag.Name)
	}
	fileOpts, err := fc.Options()
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	opts := append(configFolderOptions(c, l), fileOpts...)
	if c.IsSet(listenFlag.Name) {
		opts = append(opts, core.WithListenAddress(c.String(listenFlag.Name)))
	}
	if c.IsSet(peersFlag.Name) {
		opts = append(opts, core.WithPeers(c.StringSlice(peersFlag.Name)...))
	}
	if c.IsSet(metricsFlag.Name) {
		opts = append(opts, core.WithMetricsAddress(c.String(metricsFlag.Name)))
	}
	if c.IsSet(networkFlag.Name) {
		opts = append(opts, core.WithNetwork(c.String(networkFlag.Name)))
	}
	if c.IsSet(participateFlag.Name) {
		opts = append(opts, core.WithParticipation(c.Bool(participateFlag.Name)))
	}
	return core.NewConfig(opts...), nil
}

func isVerbose(c *cli.Context) bool {
	return c.IsSet(verboseFlag.Name)
}

func logLevel(c *cli.Context) int {
	if isVerbose(c) {
		return log.DebugLevel
	}

	return log.InfoLevel
}

func logJSON(c *cli.Context) bool {
	return c.Bool(jsonFlag.Name)
}

func toArray(flags ...cli.Flag) []cli.Flag {
	return flags
}
