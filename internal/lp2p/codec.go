package lp2p

import (
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/common/ssc"
)

// invWire is the gossip encoding of an inventory message. The send time keeps
// repeated announcements from being dropped as gossip duplicates.
type invWire struct {
	Tag  uint8    `cbor:"1,keyasint"`
	Keys [][]byte `cbor:"2,keyasint"`
	Sent int64    `cbor:"3,keyasint"`
}

// EncodeInv encodes msg for gossip.
func EncodeInv(msg *ssc.InvMsg, sent time.Time) ([]byte, error) {
	if msg == nil || !msg.Tag.Valid() {
		return nil, xerrors.New("invalid inventory message")
	}
	w := invWire{Tag: uint8(msg.Tag), Sent: sent.UnixNano()}
	for _, k := range msg.Keys {
		k := k
		w.Keys = append(w.Keys, k[:])
	}
	return cbor.Marshal(w)
}

// DecodeInv decodes an inventory message received from gossip.
func DecodeInv(data []byte) (*ssc.InvMsg, time.Time, error) {
	var w invWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, time.Time{}, xerrors.Errorf("decoding inventory: %w", err)
	}
	tag := ssc.MsgTag(w.Tag)
	if !tag.Valid() {
		return nil, time.Time{}, xerrors.Errorf("unknown inventory tag %d", w.Tag)
	}
	if len(w.Keys) == 0 {
		return nil, time.Time{}, xerrors.New("inventory without keys")
	}
	msg := &ssc.InvMsg{Tag: tag, Keys: make([]key.StakeholderID, len(w.Keys))}
	for i, k := range w.Keys {
		if len(k) != key.IDSize {
			return nil, time.Time{}, xerrors.Errorf("inventory key of %d bytes", len(k))
		}
		copy(msg.Keys[i][:], k)
	}
	return msg, time.Unix(0, w.Sent), nil
}
