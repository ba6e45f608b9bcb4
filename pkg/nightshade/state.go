package nightshade

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	nscrypto "github.com/nsprotocol/nightshade/pkg/crypto"
)

// State is the full payload an authority gossips: its BareState plus
// the Proofs (if any) that justify its confidence levels, the
// classical signature over the encoded BareState, and the sender's own
// BLS endorsement share over its current Endorses (EndorseSig). Other
// authorities' engines collect EndorseSig values from their states[]
// table as the raw material for the next Proof they build (§4.2);
// PrimaryProof is present once PrimaryConfidence > 0; SecondaryProof is
// present once SecondaryConfidence > 0 (§3).
type State struct {
	BareState      BareState
	PrimaryProof   *Proof
	SecondaryProof *Proof
	EndorseSig     []byte
	Signature      []byte
}

// Encode produces a canonical byte encoding of a State, used when a
// State is nested inside a gossip StateUpdate message for the outer
// envelope's signed hash.
func (s State) Encode() []byte {
	buf := append([]byte(nil), encodeBareState(s.BareState)...)
	if s.PrimaryProof != nil {
		buf = append(buf, s.PrimaryProof.Encode()...)
	}
	if s.SecondaryProof != nil {
		buf = append(buf, s.SecondaryProof.Encode()...)
	}
	buf = append(buf, s.EndorseSig...)
	buf = append(buf, s.Signature...)
	return buf
}

// Validate checks the structural invariants of §3: confidence ordering,
// presence of proofs matching nonzero confidence, each present proof's
// own quorum/signature validity, and the outer classical signature.
func (s State) Validate(n int, author AuthorityId, pubKeys []*nscrypto.BLSPubKey, signerAddr common.Address) error {
	if s.BareState.PrimaryConfidence < s.BareState.SecondaryConfidence {
		return fmt.Errorf("%w: primary confidence %d < secondary %d", ErrInvalidProof, s.BareState.PrimaryConfidence, s.BareState.SecondaryConfidence)
	}
	if s.BareState.PrimaryConfidence > 0 {
		if s.PrimaryProof == nil {
			return fmt.Errorf("%w: missing primary proof for confidence %d", ErrInvalidProof, s.BareState.PrimaryConfidence)
		}
		if !s.PrimaryProof.BareState.Endorses.Equal(s.BareState.Endorses) {
			return fmt.Errorf("%w: primary proof endorses a different proposal", ErrInvalidProof)
		}
		if err := verifyProof(n, *s.PrimaryProof, pubKeys); err != nil {
			return err
		}
	}
	if s.BareState.SecondaryConfidence > 0 {
		if s.SecondaryProof == nil {
			return fmt.Errorf("%w: missing secondary proof for confidence %d", ErrInvalidProof, s.BareState.SecondaryConfidence)
		}
		if s.SecondaryProof.BareState.Endorses.Equal(s.BareState.Endorses) {
			return fmt.Errorf("%w: secondary proof endorses the same proposal as primary", ErrInvalidProof)
		}
		if err := verifyProof(n, *s.SecondaryProof, pubKeys); err != nil {
			return err
		}
	}
	hash := crypto.Keccak256(encodeBareState(s.BareState))
	if !nscrypto.VerifySignature(signerAddr, hash, s.Signature) {
		return fmt.Errorf("%w: classical signature over bare state", ErrBadSignature)
	}
	return nil
}

// signState produces the classical signature over the canonical
// encoding of a BareState, as required before a State is gossiped.
func signState(signer *nscrypto.Signer, b BareState) ([]byte, error) {
	hash := crypto.Keccak256(encodeBareState(b))
	return signer.Sign(hash)
}

// buildOwnState assembles and signs a new own State: classical
// signature over the BareState bytes, BLS endorsement share over the
// endorsed proposal, and whichever Proofs the caller already holds.
func buildOwnState(classical *nscrypto.Signer, bls *nscrypto.BLSSigner, b BareState, primary, secondary *Proof) (State, error) {
	sig, err := signState(classical, b)
	if err != nil {
		return State{}, fmt.Errorf("sign own state: %w", err)
	}
	return State{
		BareState:      b,
		PrimaryProof:   primary,
		SecondaryProof: secondary,
		EndorseSig:     endorseShare(bls, b.Endorses),
		Signature:      sig,
	}, nil
}
