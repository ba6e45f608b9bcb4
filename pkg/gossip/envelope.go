package gossip

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	nscrypto "github.com/nsprotocol/nightshade/pkg/crypto"
	"github.com/nsprotocol/nightshade/pkg/nightshade"
)

// Gossip is the outer envelope wrapping every message exchanged
// between authorities (§4.6). Signature covers a canonical hash of
// SenderID, ReceiverID, Body, and BlockIndex using the sender's
// classical key.
type Gossip struct {
	SenderID   AuthorityId
	ReceiverID AuthorityId
	Body       GossipBody
	BlockIndex uint64
	Signature  []byte
}

func encodeAuthorityList(as []AuthorityId) []byte {
	buf := make([]byte, 8*len(as))
	for i, a := range as {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(a))
	}
	return buf
}

func encodeSignedProposal(p nightshade.SignedBlockProposal) []byte {
	buf := nightshade.EncodeBlockProposal(p.Proposal)
	return append(buf, p.Signature...)
}

func encodeBody(body GossipBody) []byte {
	switch b := body.(type) {
	case StateUpdate:
		buf := make([]byte, 0, 16)
		var senderBuf, receiverBuf [8]byte
		binary.BigEndian.PutUint64(senderBuf[:], uint64(b.Msg.SenderID))
		binary.BigEndian.PutUint64(receiverBuf[:], uint64(b.Msg.ReceiverID))
		buf = append(buf, senderBuf[:]...)
		buf = append(buf, receiverBuf[:]...)
		buf = append(buf, b.Msg.State.Encode()...)
		return buf
	case PayloadRequest:
		return encodeAuthorityList(b.Authorities)
	case PayloadReply:
		buf := make([]byte, 0)
		for _, p := range b.Proposals {
			buf = append(buf, encodeSignedProposal(p)...)
		}
		return buf
	default:
		return nil
	}
}

// hash computes the canonical hash the envelope signature covers.
func (g Gossip) hash() []byte {
	buf := make([]byte, 0, 32)
	var senderBuf, receiverBuf, blockBuf [8]byte
	binary.BigEndian.PutUint64(senderBuf[:], uint64(g.SenderID))
	binary.BigEndian.PutUint64(receiverBuf[:], uint64(g.ReceiverID))
	binary.BigEndian.PutUint64(blockBuf[:], g.BlockIndex)
	buf = append(buf, senderBuf[:]...)
	buf = append(buf, receiverBuf[:]...)
	buf = append(buf, byte(g.Body.bodyKind()))
	buf = append(buf, blockBuf[:]...)
	buf = append(buf, encodeBody(g.Body)...)
	return crypto.Keccak256(buf)
}

// newGossip builds and signs a Gossip envelope.
func newGossip(sender, receiver AuthorityId, body GossipBody, blockIndex uint64, signer *nscrypto.Signer) (Gossip, error) {
	g := Gossip{SenderID: sender, ReceiverID: receiver, Body: body, BlockIndex: blockIndex}
	sig, err := signer.Sign(g.hash())
	if err != nil {
		return Gossip{}, fmt.Errorf("sign gossip: %w", err)
	}
	g.Signature = sig
	return g, nil
}

// verify checks the envelope signature against the sender's classical
// address.
func (g Gossip) verify(senderAddr common.Address) bool {
	return nscrypto.VerifySignature(senderAddr, g.hash(), g.Signature)
}
