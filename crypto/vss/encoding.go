package vss

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/proof/dleq"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/share/pvss"
)

// encMode produces canonical encodings so that a commitment always serializes
// to the same bytes, which is what gets signed.
var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

type pubVerShareWire struct {
	Index int    `cbor:"1,keyasint"`
	V     []byte `cbor:"2,keyasint"`
	C     []byte `cbor:"3,keyasint"`
	R     []byte `cbor:"4,keyasint"`
	VG    []byte `cbor:"5,keyasint"`
	VH    []byte `cbor:"6,keyasint"`
}

type encShareWire struct {
	Key   []byte          `cbor:"1,keyasint"`
	Share pubVerShareWire `cbor:"2,keyasint"`
}

type commitmentWire struct {
	Commits [][]byte       `cbor:"1,keyasint"`
	Shares  []encShareWire `cbor:"2,keyasint"`
}

// MarshalBinary returns the canonical encoding of the commitment.
func (c *Commitment) MarshalBinary() ([]byte, error) {
	w := commitmentWire{
		Commits: make([][]byte, len(c.Commits)),
		Shares:  make([]encShareWire, len(c.Shares)),
	}
	var err error
	for i, p := range c.Commits {
		if w.Commits[i], err = p.MarshalBinary(); err != nil {
			return nil, err
		}
	}
	for i, s := range c.Shares {
		if w.Shares[i].Key, err = s.Key.MarshalBinary(); err != nil {
			return nil, err
		}
		if w.Shares[i].Share, err = pubVerShareToWire(s.Share); err != nil {
			return nil, err
		}
	}
	return encMode.Marshal(w)
}

// UnmarshalBinary decodes a commitment produced by MarshalBinary.
func (c *Commitment) UnmarshalBinary(buff []byte) error {
	var w commitmentWire
	if err := cbor.Unmarshal(buff, &w); err != nil {
		return err
	}
	commits := make([]kyber.Point, len(w.Commits))
	for i, b := range w.Commits {
		p, err := unmarshalPoint(b)
		if err != nil {
			return err
		}
		commits[i] = p
	}
	shares := make([]*EncryptedShare, len(w.Shares))
	for i, sw := range w.Shares {
		k, err := unmarshalPoint(sw.Key)
		if err != nil {
			return err
		}
		pvs, err := pubVerShareFromWire(sw.Share)
		if err != nil {
			return err
		}
		shares[i] = &EncryptedShare{Key: k, Share: pvs}
	}
	c.Commits = commits
	c.Shares = shares
	return nil
}

// MarshalBinary returns the encoding of the opened secret.
func (o *Opening) MarshalBinary() ([]byte, error) {
	if o.Secret == nil {
		return nil, errors.New("vss: empty opening")
	}
	return o.Secret.MarshalBinary()
}

// UnmarshalBinary decodes an opening produced by MarshalBinary.
func (o *Opening) UnmarshalBinary(buff []byte) error {
	s := Suite.Scalar()
	if err := s.UnmarshalBinary(buff); err != nil {
		return err
	}
	o.Secret = s
	return nil
}

// MarshalBinary returns the encoding of the decrypted share.
func (d *DecryptedShare) MarshalBinary() ([]byte, error) {
	w, err := pubVerShareToWire(d.Share)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(w)
}

// UnmarshalBinary decodes a share produced by MarshalBinary.
func (d *DecryptedShare) UnmarshalBinary(buff []byte) error {
	var w pubVerShareWire
	if err := cbor.Unmarshal(buff, &w); err != nil {
		return err
	}
	pvs, err := pubVerShareFromWire(w)
	if err != nil {
		return err
	}
	d.Share = pvs
	return nil
}

func pubVerShareToWire(s *pvss.PubVerShare) (pubVerShareWire, error) {
	var (
		w   = pubVerShareWire{Index: s.S.I}
		err error
	)
	if w.V, err = s.S.V.MarshalBinary(); err != nil {
		return w, err
	}
	if w.C, err = s.P.C.MarshalBinary(); err != nil {
		return w, err
	}
	if w.R, err = s.P.R.MarshalBinary(); err != nil {
		return w, err
	}
	if w.VG, err = s.P.VG.MarshalBinary(); err != nil {
		return w, err
	}
	w.VH, err = s.P.VH.MarshalBinary()
	return w, err
}

func pubVerShareFromWire(w pubVerShareWire) (*pvss.PubVerShare, error) {
	v, err := unmarshalPoint(w.V)
	if err != nil {
		return nil, err
	}
	c, err := unmarshalScalar(w.C)
	if err != nil {
		return nil, err
	}
	r, err := unmarshalScalar(w.R)
	if err != nil {
		return nil, err
	}
	vg, err := unmarshalPoint(w.VG)
	if err != nil {
		return nil, err
	}
	vh, err := unmarshalPoint(w.VH)
	if err != nil {
		return nil, err
	}
	return &pvss.PubVerShare{
		S: share.PubShare{I: w.Index, V: v},
		P: dleq.Proof{C: c, R: r, VG: vg, VH: vh},
	}, nil
}

func unmarshalPoint(b []byte) (kyber.Point, error) {
	p := Suite.Point()
	return p, p.UnmarshalBinary(b)
}

func unmarshalScalar(b []byte) (kyber.Scalar, error) {
	s := Suite.Scalar()
	return s, s.UnmarshalBinary(b)
}
