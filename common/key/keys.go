// Package key holds the identity material of a node: its signing key pair, the
// StakeholderID derived from it and the VSS certificate that binds a VSS
// encryption key to that identity.
package key

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"golang.org/x/crypto/blake2b"

	"github.com/drand/ssc/crypto/vss"
)

// Group is the group of the signing keys. It is the same group the VSS keys
// live in.
var Group = vss.Suite

// IDSize is the length of a StakeholderID.
const IDSize = 28

// StakeholderID identifies a stakeholder. It is the blake2b-224 hash of its
// public signing key.
type StakeholderID [IDSize]byte

// IDFromPublic derives the StakeholderID of a public signing key.
func IDFromPublic(pub kyber.Point) StakeholderID {
	var id StakeholderID
	buff, err := pub.MarshalBinary()
	if err != nil {
		return id
	}
	h, _ := blake2b.New(IDSize, nil)
	_, _ = h.Write(buff)
	copy(id[:], h.Sum(nil))
	return id
}

// IDFromString parses the hex form returned by String.
func IDFromString(s string) (StakeholderID, error) {
	var id StakeholderID
	buff, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(buff) != IDSize {
		return id, fmt.Errorf("key: stakeholder id of %d bytes", len(buff))
	}
	copy(id[:], buff)
	return id, nil
}

func (id StakeholderID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns a prefix of the id suitable for logs.
func (id StakeholderID) Short() string {
	return hex.EncodeToString(id[:4])
}

// SortIDs sorts ids in increasing byte order.
func SortIDs(ids []StakeholderID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

// Pair is a signing key pair.
type Pair struct {
	Key    kyber.Scalar
	Public kyber.Point
}

// NewKeyPair returns a freshly created signing key pair.
func NewKeyPair() *Pair {
	priv := Group.Scalar().Pick(Group.RandomStream())
	return &Pair{
		Key:    priv,
		Public: Group.Point().Mul(priv, nil),
	}
}

// ID returns the StakeholderID of the pair.
func (p *Pair) ID() StakeholderID {
	return IDFromPublic(p.Public)
}

// Sign signs msg with the private key.
func (p *Pair) Sign(msg []byte) ([]byte, error) {
	return schnorr.Sign(Group, p.Key, msg)
}

// ErrInvalidSignature is returned when a signature does not verify.
var ErrInvalidSignature = errors.New("key: invalid signature")

// Verify checks sig is a signature of msg under pub.
func Verify(pub kyber.Point, msg, sig []byte) error {
	if pub == nil {
		return ErrInvalidSignature
	}
	if err := schnorr.Verify(Group, pub, msg, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
