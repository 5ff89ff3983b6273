package secret

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path"

	"github.com/BurntSushi/toml"
	bolt "go.etcd.io/bbolt"

	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
)

// BoltFileName is the name of the database file inside the db folder.
const BoltFileName = "secret.db"

// BoltStoreOpenPerm is the permission of the database file.
const BoltStoreOpenPerm = 0600

// DirPerm is the permission of the db folder.
const DirPerm = 0700

var secretBucket = []byte("ssc_secret")

type boltStore struct {
	db  *bolt.DB
	log log.Logger
}

// NewBoltStore opens, creating it if needed, the secret database inside folder.
func NewBoltStore(l log.Logger, folder string, opts *bolt.Options) (Store, error) {
	if err := os.MkdirAll(folder, DirPerm); err != nil {
		return nil, err
	}
	dbPath := path.Join(folder, BoltFileName)
	db, err := bolt.Open(dbPath, BoltStoreOpenPerm, opts)
	if err != nil {
		return nil, fmt.Errorf("secret: opening %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(secretBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &boltStore{
		db:  db,
		log: l.Named("secretStore"),
	}, nil
}

func epochKey(e slot.Epoch) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(e))
	return k[:]
}

func (s *boltStore) Get(_ context.Context, epoch slot.Epoch) (*ssc.SignedCommitment, *vss.Opening, error) {
	var rec *recordTOML
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(secretBucket)
		if bucket == nil {
			return fmt.Errorf("%s bucket was nil - this should never happen", secretBucket)
		}
		value := bucket.Get(epochKey(epoch))
		if value == nil {
			return ErrNotFound
		}
		rec = new(recordTOML)
		_, err := toml.NewDecoder(bytes.NewReader(value)).Decode(rec)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return rec.decode()
}

func (s *boltStore) Put(_ context.Context, comm *ssc.SignedCommitment, opening *vss.Opening, epoch slot.Epoch) error {
	rec, err := newRecord(comm, opening, epoch)
	if err != nil {
		return err
	}
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(rec); err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(secretBucket)
		if bucket == nil {
			return fmt.Errorf("%s bucket was nil - this should never happen", secretBucket)
		}
		return bucket.Put(epochKey(epoch), b.Bytes())
	})
	if err != nil {
		return err
	}
	s.log.Debugw("stored secret", "epoch", epoch)
	return nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
