package ssc

import (
	"encoding/binary"
	"errors"

	"github.com/fxamacker/cbor/v2"
	"go.dedis.ch/kyber/v3"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/slot"
	"github.com/drand/ssc/crypto/vss"
)

var commitmentDomain = []byte("ssc/commitment/v1")

// SignedCommitment is a commitment signed by its owner for one epoch.
type SignedCommitment struct {
	SigningKey kyber.Point
	Commitment *vss.Commitment
	Epoch      slot.Epoch
	Signature  []byte
}

// SignCommitment binds c to epoch with the signing key of p.
func SignCommitment(p *key.Pair, c *vss.Commitment, epoch slot.Epoch) (*SignedCommitment, error) {
	msg, err := commitmentMessage(c, epoch)
	if err != nil {
		return nil, err
	}
	sig, err := p.Sign(msg)
	if err != nil {
		return nil, err
	}
	return &SignedCommitment{
		SigningKey: p.Public,
		Commitment: c,
		Epoch:      epoch,
		Signature:  sig,
	}, nil
}

// Owner returns the stakeholder that signed the commitment.
func (s *SignedCommitment) Owner() key.StakeholderID {
	return key.IDFromPublic(s.SigningKey)
}

// Verify checks the signature and the VSS proofs of the commitment.
func (s *SignedCommitment) Verify() error {
	if s.SigningKey == nil || s.Commitment == nil {
		return errors.New("ssc: incomplete signed commitment")
	}
	msg, err := commitmentMessage(s.Commitment, s.Epoch)
	if err != nil {
		return err
	}
	if err := key.Verify(s.SigningKey, msg, s.Signature); err != nil {
		return err
	}
	return vss.VerifyCommitment(s.Commitment)
}

func commitmentMessage(c *vss.Commitment, epoch slot.Epoch) ([]byte, error) {
	cb, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(commitmentDomain)+8+len(cb))
	msg = append(msg, commitmentDomain...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(epoch))
	return append(msg, cb...), nil
}

type signedCommitmentWire struct {
	SigningKey []byte `cbor:"1,keyasint"`
	Commitment []byte `cbor:"2,keyasint"`
	Epoch      uint64 `cbor:"3,keyasint"`
	Signature  []byte `cbor:"4,keyasint"`
}

// MarshalBinary returns the encoding of the signed commitment.
func (s *SignedCommitment) MarshalBinary() ([]byte, error) {
	kb, err := s.SigningKey.MarshalBinary()
	if err != nil {
		return nil, err
	}
	cb, err := s.Commitment.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(signedCommitmentWire{
		SigningKey: kb,
		Commitment: cb,
		Epoch:      uint64(s.Epoch),
		Signature:  s.Signature,
	})
}

// UnmarshalBinary decodes a signed commitment produced by MarshalBinary.
func (s *SignedCommitment) UnmarshalBinary(buff []byte) error {
	var w signedCommitmentWire
	if err := cbor.Unmarshal(buff, &w); err != nil {
		return err
	}
	pub := key.Group.Point()
	if err := pub.UnmarshalBinary(w.SigningKey); err != nil {
		return err
	}
	c := new(vss.Commitment)
	if err := c.UnmarshalBinary(w.Commitment); err != nil {
		return err
	}
	s.SigningKey = pub
	s.Commitment = c
	s.Epoch = slot.Epoch(w.Epoch)
	s.Signature = w.Signature
	return nil
}
