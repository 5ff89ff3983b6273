package worker

import (
	"sync/atomic"

	"github.com/drand/ssc/common/key"
	"github.com/drand/ssc/crypto/vss"
)

// NodeContext carries the identity of the node and its participation switch.
// It is shared by reference between the worker and the control surface.
type NodeContext struct {
	Signing *key.Pair
	Vss     *vss.KeyPair

	id          key.StakeholderID
	participate atomic.Bool
}

// NewNodeContext returns the context of a node holding the given keys.
func NewNodeContext(signing *key.Pair, vssPair *vss.KeyPair, participate bool) *NodeContext {
	n := &NodeContext{
		Signing: signing,
		Vss:     vssPair,
		id:      signing.ID(),
	}
	n.participate.Store(participate)
	return n
}

// ID returns the stakeholder id of the node.
func (n *NodeContext) ID() key.StakeholderID {
	return n.id
}

// Participating reports whether the node takes part in the protocol.
func (n *NodeContext) Participating() bool {
	return n.participate.Load()
}

// SetParticipation turns participation on or off.
func (n *NodeContext) SetParticipation(enabled bool) {
	n.participate.Store(enabled)
}
