package nightshade

import (
	"fmt"

	"github.com/nsprotocol/nightshade/pkg/crypto"
)

// Proof is a BFT-quorum certificate: a BareState plus the bitmask of
// contributing authorities and their aggregated BLS signature.
//
// The aggregated signature certifies that the masked authorities
// endorse Proof.BareState.Endorses — it does not, by itself, re-prove
// the confidence numbers (those ride on the classically-signed
// BareState bytes that traveled with each contributor's State; see
// DESIGN.md's "What BLS actually signs" entry for the full reasoning). This lets
// contributors at different confidence levels, all endorsing the same
// proposal, aggregate into one Proof without needing a synchronized
// snapshot.
type Proof struct {
	BareState    BareState
	Mask         Bitmask
	AggregateSig []byte
}

// Encode produces a canonical byte encoding of a Proof, used when a
// Proof is nested inside a State for the outer gossip envelope's
// signed hash.
func (p Proof) Encode() []byte {
	buf := append([]byte(nil), encodeBareState(p.BareState)...)
	buf = append(buf, p.Mask.Bytes()...)
	buf = append(buf, p.AggregateSig...)
	return buf
}

// endorseShare is the message an authority's BLS key signs to attest
// "I currently endorse this proposal" — stable across confidence
// levels, changing only when the authority performs an alternate
// endorsement switch (§4.4).
func endorseShare(signer *crypto.BLSSigner, p BlockProposal) []byte {
	return signer.Sign(encodeBlockProposal(p))
}

// buildProof aggregates contributors' endorsement shares into a Proof
// for the given target BareState. contributors must all currently
// endorse target.Endorses; shareOf supplies each contributor's BLS
// endorsement share (see endorseShare).
func buildProof(n int, target BareState, contributors []AuthorityId, shareOf func(AuthorityId) []byte) (Proof, error) {
	q := Quorum(n)
	if len(contributors) < q {
		return Proof{}, fmt.Errorf("buildProof: %d contributors < quorum %d", len(contributors), q)
	}
	mask := NewBitmask(n)
	shares := make([][]byte, 0, len(contributors))
	for _, a := range contributors {
		share := shareOf(a)
		if share == nil {
			continue
		}
		mask.Set(a)
		shares = append(shares, share)
	}
	if mask.PopCount() < q {
		return Proof{}, fmt.Errorf("buildProof: %d usable shares < quorum %d", mask.PopCount(), q)
	}
	agg := crypto.Aggregate(shares)
	if agg == nil {
		return Proof{}, fmt.Errorf("buildProof: aggregation failed")
	}
	return Proof{BareState: target, Mask: mask, AggregateSig: agg}, nil
}

// verifyProof checks the invariants of §4.2: mask popcount >= quorum,
// and the aggregate signature verifies against the aggregated BLS
// public keys of the masked authorities over the endorsed proposal.
func verifyProof(n int, proof Proof, pubKeys []*crypto.BLSPubKey) error {
	q := Quorum(n)
	if proof.Mask.PopCount() < q {
		return fmt.Errorf("%w: mask popcount %d < quorum %d", ErrInvalidProof, proof.Mask.PopCount(), q)
	}
	members := proof.Mask.Members()
	keys := make([]*crypto.BLSPubKey, 0, len(members))
	for _, a := range members {
		if int(a) < 0 || int(a) >= len(pubKeys) || pubKeys[a] == nil {
			return fmt.Errorf("%w: missing BLS public key for authority %d", ErrInvalidProof, a)
		}
		keys = append(keys, pubKeys[a])
	}
	msg := encodeBlockProposal(proof.BareState.Endorses)
	if !crypto.VerifyAggregateSameMsg(keys, msg, proof.AggregateSig) {
		return fmt.Errorf("%w: aggregate signature verification failed", ErrInvalidProof)
	}
	return nil
}
