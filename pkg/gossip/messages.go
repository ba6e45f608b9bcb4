// Package gossip implements the per-authority gossip task that wraps a
// nightshade.Engine: draining the shared inbox, verifying payloads,
// routing State updates into the engine, and broadcasting the owner's
// own State every round.
package gossip

import (
	"github.com/nsprotocol/nightshade/pkg/nightshade"
)

// AuthorityId is re-exported from nightshade for callers that only
// import the gossip package.
type AuthorityId = nightshade.AuthorityId

// Message carries one authority's State addressed to another, the
// payload of a StateUpdate gossip.
type Message struct {
	SenderID   AuthorityId
	ReceiverID AuthorityId
	State      nightshade.State
}

// GossipBody is the tagged sum of the three message kinds a Gossip can
// carry (§4.6): StateUpdate, PayloadRequest, PayloadReply. Rendered as
// a marker interface rather than a Rust-style enum; bodyKind identifies
// the concrete variant in the envelope's signed encoding.
type GossipBody interface {
	bodyKind() bodyKind
}

type bodyKind uint8

const (
	kindStateUpdate bodyKind = iota
	kindPayloadRequest
	kindPayloadReply
)

// StateUpdate gossips one authority's current State to a peer.
type StateUpdate struct {
	Msg Message
}

func (StateUpdate) bodyKind() bodyKind { return kindStateUpdate }

// PayloadRequest asks the receiver for the SignedBlockProposals of the
// listed authorities.
type PayloadRequest struct {
	Authorities []AuthorityId
}

func (PayloadRequest) bodyKind() bodyKind { return kindPayloadRequest }

// PayloadReply answers a PayloadRequest with whichever
// SignedBlockProposals the sender currently holds.
type PayloadReply struct {
	Proposals []nightshade.SignedBlockProposal
}

func (PayloadReply) bodyKind() bodyKind { return kindPayloadReply }
