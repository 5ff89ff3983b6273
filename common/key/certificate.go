package key

import (
	"encoding/binary"
	"errors"

	"go.dedis.ch/kyber/v3"

	"github.com/drand/ssc/common/slot"
)

var certificateDomain = []byte("ssc/vss-certificate/v1")

// VssCertificate binds a VSS public key to a stakeholder until ExpiryEpoch.
type VssCertificate struct {
	SigningKey  kyber.Point
	VssKey      kyber.Point
	ExpiryEpoch slot.Epoch
	Signature   []byte
}

// NewVssCertificate signs a certificate for vssKey that expires after the given
// epoch.
func NewVssCertificate(p *Pair, vssKey kyber.Point, expiry slot.Epoch) (*VssCertificate, error) {
	msg, err := certificateMessage(vssKey, expiry)
	if err != nil {
		return nil, err
	}
	sig, err := p.Sign(msg)
	if err != nil {
		return nil, err
	}
	return &VssCertificate{
		SigningKey:  p.Public,
		VssKey:      vssKey,
		ExpiryEpoch: expiry,
		Signature:   sig,
	}, nil
}

// Owner returns the stakeholder the certificate belongs to.
func (c *VssCertificate) Owner() StakeholderID {
	return IDFromPublic(c.SigningKey)
}

// ValidFor reports whether the certificate may be used in epoch e.
func (c *VssCertificate) ValidFor(e slot.Epoch) bool {
	return c.ExpiryEpoch >= e
}

// Verify checks the owner signature of the certificate.
func (c *VssCertificate) Verify() error {
	if c.SigningKey == nil || c.VssKey == nil {
		return errors.New("key: incomplete certificate")
	}
	msg, err := certificateMessage(c.VssKey, c.ExpiryEpoch)
	if err != nil {
		return err
	}
	return Verify(c.SigningKey, msg, c.Signature)
}

// Equal reports whether both certificates carry the same content.
func (c *VssCertificate) Equal(o *VssCertificate) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.ExpiryEpoch == o.ExpiryEpoch &&
		c.SigningKey.Equal(o.SigningKey) &&
		c.VssKey.Equal(o.VssKey) &&
		string(c.Signature) == string(o.Signature)
}

func certificateMessage(vssKey kyber.Point, expiry slot.Epoch) ([]byte, error) {
	kb, err := vssKey.MarshalBinary()
	if err != nil {
		return nil, err
	}
	msg := make([]byte, 0, len(certificateDomain)+len(kb)+8)
	msg = append(msg, certificateDomain...)
	msg = append(msg, kb...)
	return binary.BigEndian.AppendUint64(msg, uint64(expiry)), nil
}
