// Package vss binds the verifiable secret sharing primitives used by the
// shared seed computation to kyber's publicly verifiable secret sharing over
// edwards25519.
//
// A committer splits a fresh secret s among the VSS public keys of all
// participants. The Commitment carries the public polynomial committed over the
// second generator H together with every encrypted share and its proof. The
// Opening is s itself. Participants can decrypt their own share and publish it
// so that the secret of a committer that never opened can be recovered.
package vss

import (
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/share/pvss"
)

// Suite is the group every VSS key, share and commitment lives in.
var Suite = edwards25519.NewBlakeSHA256Ed25519()

// H is the second generator the public polynomials are committed over.
var H = Suite.Point().Pick(Suite.XOF([]byte("ssc/vss/H")))

var (
	// ErrNoParticipants is returned when a secret is split among nobody.
	ErrNoParticipants = errors.New("vss: no participants")
	// ErrInvalidThreshold is returned for a threshold outside [1, n].
	ErrInvalidThreshold = errors.New("vss: invalid threshold")
	// ErrInvalidKey is returned for a missing or degenerate VSS public key.
	ErrInvalidKey = errors.New("vss: invalid public key")
	// ErrInvalidCommitment is returned when a commitment fails verification.
	ErrInvalidCommitment = errors.New("vss: invalid commitment")
	// ErrInvalidOpening is returned when an opening does not match its commitment.
	ErrInvalidOpening = errors.New("vss: opening does not match commitment")
	// ErrNotParticipant is returned when a key holds no share of a commitment.
	ErrNotParticipant = errors.New("vss: key is not a participant of the commitment")
)

// KeyPair is a VSS encryption key pair.
type KeyPair struct {
	Private kyber.Scalar
	Public  kyber.Point
}

// NewKeyPair returns a fresh VSS key pair.
func NewKeyPair() *KeyPair {
	priv := Suite.Scalar().Pick(Suite.RandomStream())
	return &KeyPair{
		Private: priv,
		Public:  Suite.Point().Mul(priv, nil),
	}
}

// EncryptedShare is the share of one participant, encrypted to its VSS key.
type EncryptedShare struct {
	Key   kyber.Point
	Share *pvss.PubVerShare
}

// Commitment binds a committer to its secret.
type Commitment struct {
	// Commits are the coefficients of the public polynomial over H.
	Commits []kyber.Point
	// Shares holds one encrypted share per participant, in participant order.
	Shares []*EncryptedShare
}

// Opening is the revealed secret of a Commitment.
type Opening struct {
	Secret kyber.Scalar
}

// DecryptedShare is a participant's share of someone else's secret, decrypted
// with its VSS private key.
type DecryptedShare struct {
	Share *pvss.PubVerShare
}

// Threshold returns how many decrypted shares are needed to recover a secret
// split among n participants.
func Threshold(n int) int {
	return n/2 + 1
}

// GenerateSecret draws a fresh secret and splits it among the given keys.
func GenerateSecret(threshold int, keys []kyber.Point) (*Commitment, *Opening, error) {
	if len(keys) == 0 {
		return nil, nil, ErrNoParticipants
	}
	if threshold < 1 || threshold > len(keys) {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrInvalidThreshold, threshold, len(keys))
	}
	null := Suite.Point().Null()
	for i, k := range keys {
		if k == nil || k.Equal(null) {
			return nil, nil, fmt.Errorf("%w: participant %d", ErrInvalidKey, i)
		}
	}

	secret := Suite.Scalar().Pick(Suite.RandomStream())
	encShares, pubPoly, err := pvss.EncShares(Suite, H, keys, secret, threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("vss: splitting secret: %w", err)
	}
	_, commits := pubPoly.Info()

	shares := make([]*EncryptedShare, len(keys))
	for i := range keys {
		shares[i] = &EncryptedShare{Key: keys[i], Share: encShares[i]}
	}
	return &Commitment{Commits: commits, Shares: shares}, &Opening{Secret: secret}, nil
}

// Threshold returns the reconstruction threshold of the commitment.
func (c *Commitment) Threshold() int {
	return len(c.Commits)
}

func (c *Commitment) pubPoly() *share.PubPoly {
	return share.NewPubPoly(Suite, H, c.Commits)
}

func (c *Commitment) find(key kyber.Point) *EncryptedShare {
	for _, s := range c.Shares {
		if s.Key.Equal(key) {
			return s
		}
	}
	return nil
}

// HasParticipant reports whether key holds a share of the commitment.
func (c *Commitment) HasParticipant(key kyber.Point) bool {
	return c.find(key) != nil
}

// VerifyCommitment checks the structure of the commitment and the proof of
// every encrypted share.
func VerifyCommitment(c *Commitment) error {
	if c == nil || len(c.Commits) == 0 || len(c.Shares) < len(c.Commits) {
		return ErrInvalidCommitment
	}
	poly := c.pubPoly()
	seen := make(map[int]bool, len(c.Shares))
	for _, s := range c.Shares {
		if s == nil || s.Key == nil || s.Share == nil {
			return ErrInvalidCommitment
		}
		idx := s.Share.S.I
		if idx < 0 || idx >= len(c.Shares) || seen[idx] {
			return fmt.Errorf("%w: share index %d", ErrInvalidCommitment, idx)
		}
		seen[idx] = true
		sH := poly.Eval(idx).V
		if err := pvss.VerifyEncShare(Suite, H, s.Key, sH, s.Share); err != nil {
			return fmt.Errorf("%w: share %d: %v", ErrInvalidCommitment, idx, err)
		}
	}
	return nil
}

// VerifyOpening checks that o opens c.
func VerifyOpening(c *Commitment, o *Opening) error {
	if c == nil || o == nil || o.Secret == nil || len(c.Commits) == 0 {
		return ErrInvalidOpening
	}
	if !Suite.Point().Mul(o.Secret, H).Equal(c.Commits[0]) {
		return ErrInvalidOpening
	}
	return nil
}

// Point returns the secret as a point of the base group, the form in which
// RecoverSecret yields it.
func (o *Opening) Point() kyber.Point {
	return Suite.Point().Mul(o.Secret, nil)
}

// DecryptShare decrypts the share of c addressed to kp.
func DecryptShare(c *Commitment, kp *KeyPair) (*DecryptedShare, error) {
	enc := c.find(kp.Public)
	if enc == nil {
		return nil, ErrNotParticipant
	}
	sH := c.pubPoly().Eval(enc.Share.S.I).V
	dec, err := pvss.DecShare(Suite, H, kp.Public, sH, kp.Private, enc.Share)
	if err != nil {
		return nil, fmt.Errorf("vss: decrypting share: %w", err)
	}
	return &DecryptedShare{Share: dec}, nil
}

// VerifyDecryptedShare checks that d is the correct decryption of the share of
// c held by key.
func VerifyDecryptedShare(c *Commitment, key kyber.Point, d *DecryptedShare) error {
	enc := c.find(key)
	if enc == nil {
		return ErrNotParticipant
	}
	return pvss.VerifyDecShare(Suite, Suite.Point().Base(), key, enc.Share, d.Share)
}

// KeyedShare pairs a decrypted share with the VSS key of the participant that
// produced it.
type KeyedShare struct {
	Key   kyber.Point
	Share *DecryptedShare
}

// RecoverSecret reconstructs the committed secret, as a base group point, from
// at least Threshold decrypted shares.
func RecoverSecret(c *Commitment, shares []KeyedShare) (kyber.Point, error) {
	var (
		keys []kyber.Point
		encs []*pvss.PubVerShare
		decs []*pvss.PubVerShare
	)
	for _, ks := range shares {
		enc := c.find(ks.Key)
		if enc == nil {
			continue
		}
		keys = append(keys, ks.Key)
		encs = append(encs, enc.Share)
		decs = append(decs, ks.Share.Share)
	}
	return pvss.RecoverSecret(Suite, Suite.Point().Base(), keys, encs, decs, c.Threshold(), len(c.Shares))
}
