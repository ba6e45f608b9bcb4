package nightshade

import "encoding/binary"

// BareState is the minimal agreement-carrying triple: how many rounds
// of quorum endorsement the proposal has accumulated (PrimaryConfidence),
// which proposal it endorses, and the best alternate endorsement's
// confidence (SecondaryConfidence). Invariant: PrimaryConfidence >=
// SecondaryConfidence >= 0, enforced by whoever constructs a BareState
// in this package (NewEngine, advanceOwnState) rather than at the
// type itself.
type BareState struct {
	PrimaryConfidence   uint64
	Endorses            BlockProposal
	SecondaryConfidence uint64
}

// Compare returns -1, 0, or 1 for (a < b), (a == b), (a > b) under the
// total order: lexicographic on (PrimaryConfidence, Endorses,
// SecondaryConfidence), with BlockProposal ordered by (author, hash).
func (a BareState) Compare(b BareState) int {
	if a.PrimaryConfidence != b.PrimaryConfidence {
		if a.PrimaryConfidence < b.PrimaryConfidence {
			return -1
		}
		return 1
	}
	if !a.Endorses.Equal(b.Endorses) {
		if a.Endorses.Less(b.Endorses) {
			return -1
		}
		return 1
	}
	if a.SecondaryConfidence != b.SecondaryConfidence {
		if a.SecondaryConfidence < b.SecondaryConfidence {
			return -1
		}
		return 1
	}
	return 0
}

func (a BareState) Less(b BareState) bool    { return a.Compare(b) < 0 }
func (a BareState) GreaterEq(b BareState) bool { return a.Compare(b) >= 0 }
func (a BareState) Equal(b BareState) bool   { return a.Compare(b) == 0 }

// Merge returns the greater of the two BareStates under Compare.
func Merge(a, b BareState) BareState {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}

// encodeBareState produces the canonical, deterministic byte encoding
// of a BareState. This is the payload the emitting authority's
// classical signature (State.Signature) covers, per spec.md §3.
func encodeBareState(b BareState) []byte {
	buf := make([]byte, 0, 8+40+8)
	var pc [8]byte
	binary.BigEndian.PutUint64(pc[:], b.PrimaryConfidence)
	buf = append(buf, pc[:]...)
	buf = append(buf, encodeBlockProposal(b.Endorses)...)
	var sc [8]byte
	binary.BigEndian.PutUint64(sc[:], b.SecondaryConfidence)
	buf = append(buf, sc[:]...)
	return buf
}

// EncodeBareState exposes the canonical encoding for callers outside
// this package that need to reproduce or inspect the signed payload
// (e.g. tests, the gossip wire format).
func EncodeBareState(b BareState) []byte { return encodeBareState(b) }
