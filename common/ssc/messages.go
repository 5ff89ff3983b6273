// Package ssc defines the messages of the shared seed computation: the
// inventory announcements exchanged between peers, the data payloads they
// advertise and the set of richmen allowed to take part in an epoch.
package ssc

import (
	"fmt"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/crypto/vss"
)

// MsgTag identifies the kind of data an inventory message announces.
type MsgTag uint8

const (
	TagCommitment MsgTag = iota + 1
	TagOpening
	TagShares
	TagCertificate
)

func (t MsgTag) String() string {
	switch t {
	case TagCommitment:
		return "commitment"
	case TagOpening:
		return "opening"
	case TagShares:
		return "shares"
	case TagCertificate:
		return "certificate"
	default:
		return fmt.Sprintf("[invalid tag: %d]", uint8(t))
	}
}

// Valid reports whether t is a known tag.
func (t MsgTag) Valid() bool {
	return t >= TagCommitment && t <= TagCertificate
}

// InvMsg announces that data with the given tag is available for the keys.
type InvMsg struct {
	Tag  MsgTag
	Keys []key.StakeholderID
}

// NewInvMsg returns the announcement a node sends about its own data.
func NewInvMsg(tag MsgTag, id key.StakeholderID) *InvMsg {
	return &InvMsg{Tag: tag, Keys: []key.StakeholderID{id}}
}

// RichmenSet is the set of stakeholders eligible for an epoch.
type RichmenSet map[key.StakeholderID]struct{}

// NewRichmenSet returns the set holding ids.
func NewRichmenSet(ids ...key.StakeholderID) RichmenSet {
	r := make(RichmenSet, len(ids))
	for _, id := range ids {
		r[id] = struct{}{}
	}
	return r
}

// Contains reports whether id is a richman.
func (r RichmenSet) Contains(id key.StakeholderID) bool {
	_, ok := r[id]
	return ok
}

// Contents is the payload of a data message.
type Contents interface {
	Tag() MsgTag
	contents()
}

// CertificateContents carries a VSS certificate.
type CertificateContents struct {
	Certificate *key.VssCertificate
}

// CommitmentContents carries a signed commitment.
type CommitmentContents struct {
	Commitment *SignedCommitment
}

// OpeningContents carries the opening of the given stakeholder.
type OpeningContents struct {
	ID      key.StakeholderID
	Opening *vss.Opening
}

// SharesContents carries every share ID decrypted, keyed by the committer the
// share belongs to.
type SharesContents struct {
	ID     key.StakeholderID
	Shares map[key.StakeholderID]*vss.DecryptedShare
}

func (CertificateContents) Tag() MsgTag { return TagCertificate }
func (CommitmentContents) Tag() MsgTag  { return TagCommitment }
func (OpeningContents) Tag() MsgTag     { return TagOpening }
func (SharesContents) Tag() MsgTag      { return TagShares }

func (CertificateContents) contents() {}
func (CommitmentContents) contents()  {}
func (OpeningContents) contents()     {}
func (SharesContents) contents()      {}
