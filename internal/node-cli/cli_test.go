package node

import (
	"bytes"
	"context"
	"strings"
	"testing"

	json "github.com/nikkolasg/hexjson"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/common/testlogger"
	"github.com/drand/ssc/crypto/vss"
	"github.com/drand/ssc/internal/core"
	"github.com/drand/ssc/internal/secret"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := CLI()
	app.Writer = &out
	err := app.Run(append([]string{"ssc-node"}, args...))
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	tmp := t.TempDir()

	out, err := run(t, "generate-keypair", "--folder", tmp)
	require.NoError(t, err)
	require.Contains(t, out, "Stakeholder ID")

	signing, _, err := key.NewFileStore(tmp).LoadKeys()
	require.NoError(t, err)
	require.Contains(t, out, signing.ID().String())

	_, err = run(t, "generate-keypair", "--folder", tmp)
	require.Error(t, err)

	_, err = run(t, "generate-keypair", "--folder", tmp, "--force")
	require.NoError(t, err)
	again, _, err := key.NewFileStore(tmp).LoadKeys()
	require.NoError(t, err)
	require.NotEqual(t, signing.ID(), again.ID())
}

func storeSecret(t *testing.T, folder string) (*key.Pair, *vss.Opening) {
	t.Helper()
	pair := key.NewKeyPair()
	keys := []kyber.Point{vss.NewKeyPair().Public, vss.NewKeyPair().Public, vss.NewKeyPair().Public}
	comm, opening, err := vss.GenerateSecret(vss.Threshold(len(keys)), keys)
	require.NoError(t, err)
	signed, err := ssc.SignCommitment(pair, comm, 3)
	require.NoError(t, err)

	conf := core.NewConfig(core.WithConfigFolder(folder))
	store, err := secret.NewBoltStore(testlogger.New(t), conf.DBFolder(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), signed, opening, 3))
	require.NoError(t, store.Close())
	return pair, opening
}

func TestShowSecret(t *testing.T) {
	tmp := t.TempDir()
	pair, opening := storeSecret(t, tmp)

	_, err := run(t, "show-secret", "--folder", tmp, "--epoch", "4")
	require.Error(t, err)

	out, err := run(t, "show-secret", "--folder", tmp, "--epoch", "3")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "epoch 3 owner "+pair.ID().String()))
	require.Contains(t, out, "threshold 2/3")

	out, err = run(t, "show-secret", "--folder", tmp, "--epoch", "3", "--json")
	require.NoError(t, err)
	var decoded secretOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	point, err := opening.Point().MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, point, decoded.Secret)
	require.Equal(t, 3, decoded.Participants)
}

func TestShowSecretRequiresEpoch(t *testing.T) {
	_, err := run(t, "show-secret", "--folder", t.TempDir())
	require.Error(t, err)
}

func TestStartWithoutKeys(t *testing.T) {
	_, err := run(t, "start", "--folder", t.TempDir(), "--listen", "")
	require.ErrorIs(t, err, key.ErrAbsent)
}

func TestStartWithBadConfigFile(t *testing.T) {
	tmp := t.TempDir()
	fc := &core.FileConfig{SlotDuration: "forever"}
	require.NoError(t, fc.Save(tmp))

	_, err := run(t, "start", "--folder", tmp)
	require.ErrorContains(t, err, "slot_duration")
}
