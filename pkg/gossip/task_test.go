package gossip

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nscrypto "github.com/nsprotocol/nightshade/pkg/crypto"
	"github.com/nsprotocol/nightshade/pkg/nightshade"
)

type harness struct {
	n           int
	addrs       []common.Address
	classical   []*nscrypto.Signer
	bls         []*nscrypto.BLSSigner
	blsPubKeys  []*nscrypto.BLSPubKey
	inbox       *Inbox
	commitments *Commitments
	tasks       []*Task
}

func newHarness(t *testing.T, n int, quota int) *harness {
	t.Helper()
	h := &harness{n: n, inbox: NewInbox(n), commitments: NewCommitments()}
	for i := 0; i < n; i++ {
		cs, err := nscrypto.GenerateKey()
		if err != nil {
			t.Fatalf("generate key %d: %v", i, err)
		}
		bs := nscrypto.NewBLSSignerFromSeed([]byte{byte(i), 0x11, 0x22, 0x33})
		h.classical = append(h.classical, cs)
		h.bls = append(h.bls, bs)
		h.addrs = append(h.addrs, cs.Address())
		h.blsPubKeys = append(h.blsPubKeys, bs.Pubkey())
	}

	shared := nightshade.BlockProposal{Author: 0, Hash: nightshade.Hash{0x7}}
	for i := 0; i < n; i++ {
		eng, err := nightshade.NewEngine(nightshade.AuthorityId(i), n, shared, h.addrs, h.blsPubKeys, h.classical[i], h.bls[i], nil)
		if err != nil {
			t.Fatalf("new engine %d: %v", i, err)
		}
		task, err := NewTask(nightshade.AuthorityId(i), 0, eng, h.classical[i], h.addrs, h.inbox, h.commitments, quota, nil)
		if err != nil {
			t.Fatalf("new task %d: %v", i, err)
		}
		h.tasks = append(h.tasks, task)
	}
	return h
}

// stepAll runs one RunOnce iteration for every task, round-robin, and
// fails the test if any task reports a fatal error.
func (h *harness) stepAll(t *testing.T) bool {
	t.Helper()
	allDone := true
	for i, task := range h.tasks {
		done, err := task.RunOnce()
		if err != nil {
			t.Fatalf("task %d: fatal: %v", i, err)
		}
		if !done {
			allDone = false
		}
	}
	return allDone
}

func TestGossipScenarioAllHonestCommitSameProposal(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 10} {
		n := n
		t.Run("", func(t *testing.T) {
			h := newHarness(t, n, 100)
			for round := 0; round < 200; round++ {
				if h.stepAll(t) {
					break
				}
			}
			if got := h.commitments.Len(); got != n {
				t.Fatalf("N=%d: commitments.Len() = %d, want %d", n, got, n)
			}
			snap := h.commitments.Snapshot()
			var first *ProposalRecord
			for _, rec := range snap {
				rec := rec
				if first == nil {
					first = &rec
					continue
				}
				if rec.Author != first.Author || rec.Hash != first.Hash {
					t.Errorf("N=%d: commitments disagree: %+v vs %+v", n, rec, *first)
				}
			}
		})
	}
}

func TestGossipScenarioOneAuthorityNeverCommits(t *testing.T) {
	h := newHarness(t, 1, 100)
	for round := 0; round < 50; round++ {
		h.stepAll(t)
	}
	if got := h.commitments.Len(); got != 0 {
		t.Fatalf("N=1: commitments.Len() = %d, want 0 (no quorum reachable)", got)
	}
}

func TestGossipEnvelopeRoundTrip(t *testing.T) {
	h := newHarness(t, 2, 10)
	body := PayloadRequest{Authorities: []AuthorityId{0}}
	g, err := newGossip(0, 1, body, 0, h.classical[0])
	if err != nil {
		t.Fatalf("newGossip: %v", err)
	}
	if !g.verify(h.addrs[0]) {
		t.Fatalf("gossip should verify against its signer's address")
	}
	if g.verify(h.addrs[1]) {
		t.Fatalf("gossip should not verify against a different address")
	}
}

func TestGossipAdjacentDuplicateSuppression(t *testing.T) {
	h := newHarness(t, 3, 10)
	g, err := newGossip(1, 0, PayloadRequest{Authorities: []AuthorityId{1}}, 0, h.classical[1])
	if err != nil {
		t.Fatalf("newGossip: %v", err)
	}
	// Deposit the identical gossip twice, then a distinct one; only the
	// first of the adjacent pair and the distinct one should process.
	h.inbox.Deposit(0, g)
	h.inbox.Deposit(0, g)
	g2, err := newGossip(2, 0, PayloadRequest{Authorities: []AuthorityId{2}}, 0, h.classical[2])
	if err != nil {
		t.Fatalf("newGossip: %v", err)
	}
	h.inbox.Deposit(0, g2)

	processed := 0
	drained := h.inbox.Drain(0)
	var prevSig []byte
	for _, gg := range drained {
		if prevSig != nil && bytesEqual(prevSig, gg.Signature) {
			continue
		}
		prevSig = gg.Signature
		processed++
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2 (one deduped pair + one distinct)", processed)
	}
}
