package nightshade

import "testing"

func proposal(author int, b byte) BlockProposal {
	var h Hash
	h[0] = b
	return BlockProposal{Author: AuthorityId(author), Hash: h}
}

func TestBareStateCompareOrdersByPrimaryConfidenceFirst(t *testing.T) {
	low := BareState{PrimaryConfidence: 1, Endorses: proposal(0, 0xff)}
	high := BareState{PrimaryConfidence: 2, Endorses: proposal(0, 0x00)}
	if !low.Less(high) {
		t.Fatalf("expected lower primary_confidence to sort first regardless of endorses")
	}
}

func TestBareStateCompareTieBreaksOnEndorses(t *testing.T) {
	a := BareState{PrimaryConfidence: 1, Endorses: proposal(0, 0x01)}
	b := BareState{PrimaryConfidence: 1, Endorses: proposal(0, 0x02)}
	if !a.Less(b) {
		t.Fatalf("expected a < b by endorses hash")
	}
	if b.Less(a) {
		t.Fatalf("comparison should not be symmetric here")
	}
}

func TestBareStateCompareTieBreaksOnSecondary(t *testing.T) {
	p := proposal(0, 0x01)
	a := BareState{PrimaryConfidence: 1, Endorses: p, SecondaryConfidence: 0}
	b := BareState{PrimaryConfidence: 1, Endorses: p, SecondaryConfidence: 1}
	if !a.Less(b) {
		t.Fatalf("expected lower secondary_confidence to sort first at equal primary/endorses")
	}
}

func TestMergeReturnsGreater(t *testing.T) {
	p := proposal(0, 0x01)
	a := BareState{PrimaryConfidence: 1, Endorses: p}
	b := BareState{PrimaryConfidence: 3, Endorses: p}
	if got := Merge(a, b); !got.Equal(b) {
		t.Fatalf("Merge(a,b) = %+v, want %+v", got, b)
	}
	if got := Merge(b, a); !got.Equal(b) {
		t.Fatalf("Merge(b,a) = %+v, want %+v", got, b)
	}
}

func TestQuorumMatchesSpecBoundaryTable(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 4: 3, 5: 4, 10: 7}
	for n, want := range cases {
		if got := Quorum(n); got != want {
			t.Errorf("Quorum(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestEncodeBareStateIsDeterministic(t *testing.T) {
	b := BareState{PrimaryConfidence: 7, Endorses: proposal(2, 0xab), SecondaryConfidence: 3}
	first := EncodeBareState(b)
	second := EncodeBareState(b)
	if len(first) != len(second) {
		t.Fatalf("encoding length differs across calls")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("encoding differs at byte %d", i)
		}
	}
}
