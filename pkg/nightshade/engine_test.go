package nightshade

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nscrypto "github.com/nsprotocol/nightshade/pkg/crypto"
)

type authoritySet struct {
	n          int
	classical  []*nscrypto.Signer
	bls        []*nscrypto.BLSSigner
	addrs      []common.Address
	blsPubKeys []*nscrypto.BLSPubKey
	engines    []*Engine
}

func newAuthoritySet(t *testing.T, n int) *authoritySet {
	t.Helper()
	set := &authoritySet{n: n}
	for i := 0; i < n; i++ {
		cs, err := nscrypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate classical key %d: %v", i, err)
		}
		bs := nscrypto.NewBLSSignerFromSeed([]byte{byte(i), byte(i), byte(i), 0x42})
		set.classical = append(set.classical, cs)
		set.bls = append(set.bls, bs)
		set.addrs = append(set.addrs, cs.Address())
		set.blsPubKeys = append(set.blsPubKeys, bs.Pubkey())
	}

	shared := BlockProposal{Author: 0, Hash: Hash{0xAA}}
	for i := 0; i < n; i++ {
		e, err := NewEngine(AuthorityId(i), n, shared, set.addrs, set.blsPubKeys, set.classical[i], set.bls[i], nil)
		if err != nil {
			t.Fatalf("new engine %d: %v", i, err)
		}
		set.engines = append(set.engines, e)
	}
	return set
}

// exchangeRound delivers every engine's current own State to every
// other engine once, mirroring one broadcast round of §4.7.
func (s *authoritySet) exchangeRound() {
	snapshots := make([]State, s.n)
	for i := range s.engines {
		snapshots[i] = s.engines[i].State()
	}
	for i, e := range s.engines {
		for j := range s.engines {
			if i == j {
				continue
			}
			_ = e.UpdateState(AuthorityId(j), snapshots[j])
		}
	}
}

func TestEngineAllHonestCommitOnSameProposal(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 10} {
		n := n
		t.Run("", func(t *testing.T) {
			set := newAuthoritySet(t, n)
			for round := 0; round < 20 && !allCommitted(set.engines); round++ {
				set.exchangeRound()
			}
			for i, e := range set.engines {
				if !e.IsFinal() {
					t.Fatalf("authority %d did not commit after 20 rounds (N=%d)", i, n)
				}
			}
			first := *set.engines[0].Committed()
			for i, e := range set.engines {
				got := *e.Committed()
				if !got.Equal(first) {
					t.Errorf("authority %d committed %+v, want %+v", i, got, first)
				}
				bare := e.State().BareState
				if bare.PrimaryConfidence-bare.SecondaryConfidence < 3 {
					t.Errorf("authority %d confidence gap %d < 3", i, bare.PrimaryConfidence-bare.SecondaryConfidence)
				}
			}
		})
	}
}

func allCommitted(engines []*Engine) bool {
	for _, e := range engines {
		if !e.IsFinal() {
			return false
		}
	}
	return true
}

func TestEngineMonotonicity(t *testing.T) {
	set := newAuthoritySet(t, 4)
	prev := set.engines[0].State().BareState
	for round := 0; round < 10; round++ {
		set.exchangeRound()
		cur := set.engines[0].State().BareState
		if cur.Compare(prev) < 0 {
			t.Fatalf("round %d: own bare state decreased from %+v to %+v", round, prev, cur)
		}
		prev = cur
	}
}

func TestEngineIgnoredAdversary(t *testing.T) {
	set := newAuthoritySet(t, 4)
	e := set.engines[0]
	e.SetAdversary(1)
	err := e.UpdateState(1, set.engines[1].State())
	if !errors.Is(err, ErrIgnoredAdversary) {
		t.Fatalf("UpdateState from flagged adversary = %v, want ErrIgnoredAdversary", err)
	}
}

func TestEngineStaleStateRejected(t *testing.T) {
	set := newAuthoritySet(t, 4)
	e := set.engines[0]
	sender := set.engines[1]
	if err := e.UpdateState(1, sender.State()); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := e.UpdateState(1, sender.State()); !errors.Is(err, ErrStaleState) {
		t.Fatalf("repeat update = %v, want ErrStaleState", err)
	}
}

func TestEngineBadSignatureRejected(t *testing.T) {
	set := newAuthoritySet(t, 4)
	e := set.engines[0]
	bad := set.engines[1].State()
	bad.Signature = append([]byte(nil), bad.Signature...)
	bad.Signature[0] ^= 0xFF
	if err := e.UpdateState(1, bad); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered signature = %v, want ErrBadSignature", err)
	}
}
