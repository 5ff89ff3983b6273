// Package secret keeps, per epoch, the commitment and opening this node
// generated so that a restarted node never commits twice in the same epoch.
package secret

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/common/ssc"
	"github.com/drand/ssc/crypto/vss"
)

// ErrNotFound is returned by Get when no secret was stored for the epoch.
var ErrNotFound = errors.New("secret: no secret stored for epoch")

// Store is the durable epoch -> (commitment, opening) mapping. A record is only
// ever replaced by an explicit Put.
type Store interface {
	Get(ctx context.Context, epoch slot.Epoch) (*ssc.SignedCommitment, *vss.Opening, error)
	Put(ctx context.Context, comm *ssc.SignedCommitment, opening *vss.Opening, epoch slot.Epoch) error
	Close() error
}

// recordTOML is the serialized form of a stored secret.
type recordTOML struct {
	Epoch      uint64
	Commitment string
	Opening    string
}

func newRecord(comm *ssc.SignedCommitment, opening *vss.Opening, epoch slot.Epoch) (*recordTOML, error) {
	if comm == nil || opening == nil {
		return nil, errors.New("secret: nil commitment or opening")
	}
	cb, err := comm.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("secret: encoding commitment: %w", err)
	}
	ob, err := opening.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("secret: encoding opening: %w", err)
	}
	return &recordTOML{
		Epoch:      uint64(epoch),
		Commitment: hex.EncodeToString(cb),
		Opening:    hex.EncodeToString(ob),
	}, nil
}

func (r *recordTOML) decode() (*ssc.SignedCommitment, *vss.Opening, error) {
	cb, err := hex.DecodeString(r.Commitment)
	if err != nil {
		return nil, nil, err
	}
	ob, err := hex.DecodeString(r.Opening)
	if err != nil {
		return nil, nil, err
	}
	comm := new(ssc.SignedCommitment)
	if err := comm.UnmarshalBinary(cb); err != nil {
		return nil, nil, fmt.Errorf("secret: decoding commitment: %w", err)
	}
	opening := new(vss.Opening)
	if err := opening.UnmarshalBinary(ob); err != nil {
		return nil, nil, fmt.Errorf("secret: decoding opening: %w", err)
	}
	return comm, opening, nil
}
