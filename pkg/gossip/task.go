package gossip

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	nscrypto "github.com/nsprotocol/nightshade/pkg/crypto"
	"github.com/nsprotocol/nightshade/pkg/nightshade"
)

// Task wraps one authority's Engine with the gossip loop of §4.6: it
// owns the table of known SignedBlockProposals, drains its slot of the
// shared Inbox, verifies and dispatches Gossip, broadcasts the
// engine's own State every round, and reports a commit into the
// shared Commitments map exactly once.
type Task struct {
	ownerID    AuthorityId
	engine     *nightshade.Engine
	signer     *nscrypto.Signer
	addrs      []common.Address
	blockIndex uint64

	proposals []*nightshade.SignedBlockProposal

	inbox       *Inbox
	commitments *Commitments

	messageQuota      int
	consensusReported bool

	// OnCommit and OnAdversary, if set, are invoked synchronously the
	// moment this authority observes the corresponding event — a
	// commit in RunOnce, a freshly flagged adversary in
	// receivePayloads — so a caller (e.g. the status server) can
	// stream it live instead of polling Commitments/Engine after the
	// run finishes.
	OnCommit    func(owner, author AuthorityId, hash [32]byte)
	OnAdversary func(reporter, flagged AuthorityId)

	Logger         *zap.SugaredLogger
	VerboseLogging bool
}

// NewTask creates a Task. If ownerID is the author of the engine's own
// endorsed proposal, the Task self-signs that SignedBlockProposal and
// announces it to every other authority before the main loop starts
// (the same seeding broadcast as the source's init_nightshade);
// otherwise it starts with that author's proposal unknown, to be
// learned lazily via PayloadRequest/PayloadReply like any other.
func NewTask(ownerID AuthorityId, blockIndex uint64, engine *nightshade.Engine, signer *nscrypto.Signer, addrs []common.Address, inbox *Inbox, commitments *Commitments, messageQuota int, logger *zap.SugaredLogger) (*Task, error) {
	n := engine.N
	if len(addrs) != n {
		return nil, fmt.Errorf("gossip: addrs must have length %d", n)
	}
	t := &Task{
		ownerID:      ownerID,
		engine:       engine,
		signer:       signer,
		addrs:        addrs,
		blockIndex:   blockIndex,
		proposals:    make([]*nightshade.SignedBlockProposal, n),
		inbox:        inbox,
		commitments:  commitments,
		messageQuota: messageQuota,
		Logger:       logger,
	}

	ownProposal := engine.State().BareState.Endorses
	if ownProposal.Author == ownerID {
		sig, err := signer.Sign(crypto256(ownProposal))
		if err != nil {
			return nil, fmt.Errorf("gossip: sign own proposal: %w", err)
		}
		t.proposals[ownerID] = &nightshade.SignedBlockProposal{Proposal: ownProposal, Signature: sig}
	}

	for a := 0; a < n; a++ {
		if AuthorityId(a) == ownerID {
			continue
		}
		t.sendPayloads(AuthorityId(a), []AuthorityId{ownerID})
	}
	return t, nil
}

func (t *Task) sendGossip(receiver AuthorityId, body GossipBody) {
	g, err := newGossip(t.ownerID, receiver, body, t.blockIndex, t.signer)
	if err != nil {
		if t.Logger != nil {
			t.Logger.Errorw("sign_gossip_failed", "owner", t.ownerID, "err", err)
		}
		return
	}
	t.inbox.Deposit(receiver, g)
	t.messageQuota--
}

func (t *Task) sendPayloads(receiver AuthorityId, authorities []AuthorityId) {
	var payloads []nightshade.SignedBlockProposal
	for _, a := range authorities {
		if int(a) < 0 || int(a) >= len(t.proposals) {
			continue
		}
		if p := t.proposals[a]; p != nil {
			payloads = append(payloads, *p)
		}
	}
	t.sendGossip(receiver, PayloadReply{Proposals: payloads})
}

func (t *Task) sendState(receiver AuthorityId) {
	msg := Message{SenderID: t.ownerID, ReceiverID: receiver, State: t.engine.State()}
	t.sendGossip(receiver, StateUpdate{Msg: msg})
}

// gossipState broadcasts the engine's current own State to every
// other authority (§4.7).
func (t *Task) gossipState() {
	for a := 0; a < t.engine.N; a++ {
		if AuthorityId(a) == t.ownerID {
			continue
		}
		t.sendState(AuthorityId(a))
	}
}

func (t *Task) processMessage(msg Message) error {
	author := msg.State.BareState.Endorses.Author
	known := t.proposals[author]
	if known == nil {
		t.sendGossip(author, PayloadRequest{Authorities: []AuthorityId{author}})
		return nil
	}
	if known.Proposal.Hash != msg.State.BareState.Endorses.Hash {
		// A forked author's proposal was relayed; we cannot tell
		// whether the sender or the author is at fault from this
		// message alone, so we drop it without flagging either.
		return nil
	}
	if err := t.engine.UpdateState(msg.SenderID, msg.State); err != nil {
		if t.Logger != nil && t.VerboseLogging {
			t.Logger.Debugw("update_state_rejected", "owner", t.ownerID, "sender", msg.SenderID, "err", err)
		}
	}
	return nil
}

// receivePayloads processes a PayloadReply: verifying author
// signatures (flagging the sender on failure), and raising the fatal
// ConflictingProposals condition should two distinct signed proposals
// surface for the same author (§4.5, §4.6).
func (t *Task) receivePayloads(sender AuthorityId, payloads []nightshade.SignedBlockProposal) error {
	for _, sp := range payloads {
		author := sp.Proposal.Author
		if int(author) < 0 || int(author) >= len(t.proposals) {
			continue
		}
		hash := crypto256(sp.Proposal)
		if !nscrypto.VerifySignature(t.addrs[author], hash, sp.Signature) {
			if t.engine.SetAdversary(sender) && t.OnAdversary != nil {
				t.OnAdversary(t.ownerID, sender)
			}
			continue
		}
		existing := t.proposals[author]
		if existing == nil {
			t.proposals[author] = &sp
			continue
		}
		if existing.Proposal.Hash != sp.Proposal.Hash {
			if t.engine.SetAdversary(author) && t.OnAdversary != nil {
				t.OnAdversary(t.ownerID, author)
			}
			t.proposals[author] = nil
			return fmt.Errorf("%w: author %d", nightshade.ErrConflictingProposals, author)
		}
	}
	return nil
}

func crypto256(p nightshade.BlockProposal) []byte {
	return ethcrypto.Keccak256(nightshade.EncodeBlockProposal(p))
}

func (t *Task) processGossip(g Gossip) error {
	if g.BlockIndex != t.blockIndex {
		return nil
	}
	if int(g.SenderID) < 0 || int(g.SenderID) >= len(t.addrs) {
		return nil
	}
	if !g.verify(t.addrs[g.SenderID]) {
		return nil
	}
	switch body := g.Body.(type) {
	case StateUpdate:
		return t.processMessage(body.Msg)
	case PayloadRequest:
		t.sendPayloads(g.SenderID, body.Authorities)
		return nil
	case PayloadReply:
		return t.receivePayloads(g.SenderID, body.Proposals)
	default:
		return nil
	}
}

// RunOnce executes one iteration of the main loop (§4.6): drain,
// adjacency-only dedup, verify+dispatch, report commit, broadcast. It
// returns (done, err): done is true once the message quota is
// exhausted; err is non-nil only for the fatal ConflictingProposals
// condition, which callers MUST propagate, not swallow.
func (t *Task) RunOnce() (bool, error) {
	gossips := t.inbox.Drain(t.ownerID)
	var prevSig []byte
	for _, g := range gossips {
		if prevSig != nil && bytesEqual(prevSig, g.Signature) {
			continue
		}
		prevSig = g.Signature
		if err := t.processGossip(g); err != nil {
			return true, err
		}
		if !t.consensusReported {
			if outcome := t.engine.Committed(); outcome != nil {
				t.consensusReported = true
				t.commitments.Insert(t.ownerID, outcome.Author, outcome.Hash)
				if t.OnCommit != nil {
					t.OnCommit(t.ownerID, outcome.Author, outcome.Hash)
				}
			}
		}
	}
	t.gossipState()
	return t.messageQuota <= 0, nil
}

// Run drives RunOnce until the message quota is exhausted or a fatal
// error is returned.
func (t *Task) Run() error {
	for {
		done, err := t.RunOnce()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
