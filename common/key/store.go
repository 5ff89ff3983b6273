package key

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/BurntSushi/toml"
	"go.dedis.ch/kyber/v3"

	"github.com/drand/ssc/crypto/vss"
	"github.com/drand/ssc/internal/fs"
)

// KeyFolderName is the folder, relative to the config folder, holding the key
// files.
const KeyFolderName = "key"

const (
	signingFileName = "ssc_id.private"
	vssFileName     = "vss.private"
)

// ErrAbsent is returned when the key files do not exist yet.
var ErrAbsent = errors.New("key: keys not found")

// Store saves and loads the key material of a node.
type Store interface {
	SaveKeys(signing *Pair, vssPair *vss.KeyPair) error
	LoadKeys() (*Pair, *vss.KeyPair, error)
}

// privateTOML is the TOML-able version of a private scalar.
type privateTOML struct {
	Key string
}

type fileStore struct {
	folder string
}

// NewFileStore returns a Store keeping its files under baseFolder/key.
func NewFileStore(baseFolder string) Store {
	return &fileStore{folder: path.Join(baseFolder, KeyFolderName)}
}

func (f *fileStore) SaveKeys(signing *Pair, vssPair *vss.KeyPair) error {
	if err := f.save(signingFileName, signing.Key); err != nil {
		return err
	}
	return f.save(vssFileName, vssPair.Private)
}

func (f *fileStore) LoadKeys() (*Pair, *vss.KeyPair, error) {
	sk, err := f.load(signingFileName)
	if err != nil {
		return nil, nil, err
	}
	vk, err := f.load(vssFileName)
	if err != nil {
		return nil, nil, err
	}
	return &Pair{Key: sk, Public: Group.Point().Mul(sk, nil)},
		&vss.KeyPair{Private: vk, Public: vss.Suite.Point().Mul(vk, nil)},
		nil
}

func (f *fileStore) save(name string, s kyber.Scalar) error {
	buff, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(&privateTOML{Key: hex.EncodeToString(buff)}); err != nil {
		return err
	}
	return fs.WriteSecureFile(path.Join(f.folder, name), b.Bytes())
}

func (f *fileStore) load(name string) (kyber.Scalar, error) {
	file := path.Join(f.folder, name)
	var t privateTOML
	if _, err := toml.DecodeFile(file, &t); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("key: reading %s: %w", file, err)
	}
	buff, err := hex.DecodeString(t.Key)
	if err != nil {
		return nil, err
	}
	s := Group.Scalar()
	if err := s.UnmarshalBinary(buff); err != nil {
		return nil, err
	}
	return s, nil
}
