package secret

import (
	"context"
	"sync"

	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
)

// memStore keeps encoded records in memory. It does not survive a restart and
// is meant for tests and throwaway nodes.
type memStore struct {
	sync.RWMutex
	records map[slot.Epoch]*recordTOML
}

// NewMemStore returns an in-memory Store.
func NewMemStore() Store {
	return &memStore{records: make(map[slot.Epoch]*recordTOML)}
}

func (m *memStore) Get(_ context.Context, epoch slot.Epoch) (*ssc.SignedCommitment, *vss.Opening, error) {
	m.RLock()
	rec, ok := m.records[epoch]
	m.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	return rec.decode()
}

func (m *memStore) Put(_ context.Context, comm *ssc.SignedCommitment, opening *vss.Opening, epoch slot.Epoch) error {
	rec, err := newRecord(comm, opening, epoch)
	if err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.records[epoch] = rec
	return nil
}

func (m *memStore) Close() error {
	return nil
}
