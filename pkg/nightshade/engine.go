package nightshade

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	nscrypto "github.com/nsprotocol/nightshade/pkg/crypto"
)

// EngineStatus is the coarse phase of an Engine, per §4.4's state
// machine: Collecting -> Advancing (once primary_confidence > 0) ->
// Committed (terminal).
type EngineStatus int

const (
	Collecting EngineStatus = iota
	Advancing
	Committed
)

func (s EngineStatus) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Advancing:
		return "advancing"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Engine is the per-authority Nightshade state machine. One Engine is
// owned exclusively by the goroutine running its authority's gossip
// task; nothing about it is safe for concurrent access from more than
// one goroutine (the shared inbox and commitments map are the only
// structures multiple authorities touch).
type Engine struct {
	OwnerID        AuthorityId
	N              int
	States         []State
	ClassicalAddrs []common.Address
	BLSPubKeys     []*nscrypto.BLSPubKey

	classicalSigner *nscrypto.Signer
	blsSigner       *nscrypto.BLSSigner

	adversaries map[AuthorityId]bool
	committed   *BlockProposal
	status      EngineStatus

	Logger         *zap.SugaredLogger
	VerboseLogging bool
}

// NewEngine creates an Engine for ownerID, seeded with its own
// proposal at confidence (0, ownProposal, 0) per §4.4's initial state.
func NewEngine(ownerID AuthorityId, n int, ownProposal BlockProposal, classicalAddrs []common.Address, blsPubKeys []*nscrypto.BLSPubKey, classicalSigner *nscrypto.Signer, blsSigner *nscrypto.BLSSigner, logger *zap.SugaredLogger) (*Engine, error) {
	if int(ownerID) < 0 || int(ownerID) >= n {
		return nil, fmt.Errorf("nightshade: owner id %d out of range [0,%d)", ownerID, n)
	}
	if len(classicalAddrs) != n || len(blsPubKeys) != n {
		return nil, fmt.Errorf("nightshade: key tables must have length %d", n)
	}
	seed := BareState{PrimaryConfidence: 0, Endorses: ownProposal, SecondaryConfidence: 0}
	ownState, err := buildOwnState(classicalSigner, blsSigner, seed, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("nightshade: seed own state: %w", err)
	}
	states := make([]State, n)
	states[ownerID] = ownState

	e := &Engine{
		OwnerID:         ownerID,
		N:               n,
		States:          states,
		ClassicalAddrs:  classicalAddrs,
		BLSPubKeys:      blsPubKeys,
		classicalSigner: classicalSigner,
		blsSigner:       blsSigner,
		adversaries:     make(map[AuthorityId]bool),
		status:          Collecting,
		Logger:          logger,
	}
	return e, nil
}

// State returns the engine owner's current own State.
func (e *Engine) State() State { return e.States[e.OwnerID] }

// Committed returns the committed proposal, or nil if not yet final.
func (e *Engine) Committed() *BlockProposal { return e.committed }

// IsFinal reports whether the engine has reached the terminal
// Committed state.
func (e *Engine) IsFinal() bool { return e.status == Committed }

// Status reports the engine's coarse phase.
func (e *Engine) Status() EngineStatus { return e.status }

// SetAdversary marks a as malicious: its State is invalidated and
// future messages from it are dropped (§4.5). It reports whether a was
// newly flagged, so callers can distinguish a fresh flag from a
// no-op repeat and raise it as an event exactly once.
func (e *Engine) SetAdversary(a AuthorityId) bool {
	if int(a) < 0 || int(a) >= e.N {
		return false
	}
	if e.adversaries[a] {
		return false
	}
	e.adversaries[a] = true
	e.States[a] = State{}
	if e.Logger != nil {
		e.Logger.Warnw("adversary_flagged", "owner", e.OwnerID, "flagged", a)
	}
	return true
}

// IsAdversary reports whether a has been flagged.
func (e *Engine) IsAdversary(a AuthorityId) bool { return e.adversaries[a] }

// UpdateState merges an incoming State from sender into the engine,
// then attempts to advance the owner's own State (§4.3).
func (e *Engine) UpdateState(sender AuthorityId, incoming State) error {
	if int(sender) < 0 || int(sender) >= e.N {
		return fmt.Errorf("nightshade: sender %d out of range", sender)
	}
	if e.adversaries[sender] {
		return ErrIgnoredAdversary
	}
	if err := incoming.Validate(e.N, sender, e.BLSPubKeys, e.ClassicalAddrs[sender]); err != nil {
		return err
	}
	if incoming.BareState.Compare(e.States[sender].BareState) <= 0 {
		return ErrStaleState
	}
	e.States[sender] = incoming
	if e.Logger != nil && e.VerboseLogging {
		e.Logger.Debugw("state_merged", "owner", e.OwnerID, "sender", sender,
			"primary_confidence", incoming.BareState.PrimaryConfidence,
			"endorses", incoming.BareState.Endorses.Hash.String())
	}
	e.advanceOwnState()
	return nil
}

// quorumFor counts the authorities currently reporting primary
// confidence at least c for proposal p, and their BLS endorsement
// shares, skipping flagged adversaries and empty (invalidated) slots.
func (e *Engine) quorumFor(c uint64, p BlockProposal) ([]AuthorityId, func(AuthorityId) []byte) {
	var members []AuthorityId
	shares := make(map[AuthorityId][]byte)
	for a := 0; a < e.N; a++ {
		aid := AuthorityId(a)
		if e.adversaries[aid] {
			continue
		}
		st := e.States[a]
		if st.EndorseSig == nil {
			continue
		}
		if !st.BareState.Endorses.Equal(p) {
			continue
		}
		if st.BareState.PrimaryConfidence < c {
			continue
		}
		members = append(members, aid)
		shares[aid] = st.EndorseSig
	}
	return members, func(a AuthorityId) []byte { return shares[a] }
}

// bestSecondary returns the highest primary confidence observed for
// any proposal other than p (the current own endorsement), which
// becomes the own State's secondary_confidence once it has quorum
// support (§4.4's "secondary confidence increases symmetrically").
func (e *Engine) bestSecondary(p BlockProposal) (uint64, BlockProposal, bool) {
	counts := make(map[BlockProposal]uint64)
	for a := 0; a < e.N; a++ {
		if e.adversaries[AuthorityId(a)] {
			continue
		}
		st := e.States[a]
		if st.EndorseSig == nil || st.BareState.Endorses.Equal(p) {
			continue
		}
		if st.BareState.PrimaryConfidence > counts[st.BareState.Endorses] {
			counts[st.BareState.Endorses] = st.BareState.PrimaryConfidence
		}
	}
	q := Quorum(e.N)
	var best BlockProposal
	var bestConf uint64
	found := false
	for prop, conf := range counts {
		members, _ := e.quorumFor(0, prop)
		if len(members) < q {
			continue
		}
		if !found || conf > bestConf {
			best, bestConf, found = prop, conf, true
		}
	}
	return bestConf, best, found
}

// advanceOwnState is the core of §4.4: primary promotion, alternate
// endorsement switch, secondary confidence advancement, and the commit
// rule. It is a no-op if no quorum condition is newly satisfied.
func (e *Engine) advanceOwnState() {
	if e.status == Committed {
		return
	}
	own := e.States[e.OwnerID].BareState
	q := Quorum(e.N)

	// Alternate endorsement switch: some other proposal has a quorum at
	// a strictly higher confidence than our own current level.
	for a := 0; a < e.N; a++ {
		st := e.States[a]
		if st.EndorseSig == nil || st.BareState.Endorses.Equal(own.Endorses) {
			continue
		}
		if st.BareState.PrimaryConfidence <= own.PrimaryConfidence {
			continue
		}
		members, shareOf := e.quorumFor(st.BareState.PrimaryConfidence, st.BareState.Endorses)
		if len(members) < q {
			continue
		}
		proof, err := buildProof(e.N, BareState{PrimaryConfidence: st.BareState.PrimaryConfidence, Endorses: st.BareState.Endorses}, members, shareOf)
		if err != nil {
			continue
		}
		newBare := BareState{PrimaryConfidence: st.BareState.PrimaryConfidence, Endorses: st.BareState.Endorses, SecondaryConfidence: 0}
		e.replaceOwnState(newBare, &proof, nil)
		own = e.States[e.OwnerID].BareState
		if e.status == Collecting && own.PrimaryConfidence > 0 {
			e.status = Advancing
		}
		if e.Logger != nil {
			e.Logger.Infow("endorsement_switch", "owner", e.OwnerID, "to", newBare.Endorses.Hash.String(), "confidence", newBare.PrimaryConfidence)
		}
		break
	}

	// Primary promotion: quorum at our current confidence for our own
	// endorsement advances us to the next level.
	for {
		members, shareOf := e.quorumFor(own.PrimaryConfidence, own.Endorses)
		if len(members) < q {
			break
		}
		proof, err := buildProof(e.N, BareState{PrimaryConfidence: own.PrimaryConfidence, Endorses: own.Endorses}, members, shareOf)
		if err != nil {
			break
		}
		secConf, _, hasSecondary := e.bestSecondary(own.Endorses)
		if !hasSecondary {
			secConf = own.SecondaryConfidence
		}
		newBare := BareState{PrimaryConfidence: own.PrimaryConfidence + 1, Endorses: own.Endorses, SecondaryConfidence: secConf}
		e.replaceOwnState(newBare, &proof, e.States[e.OwnerID].SecondaryProof)
		own = e.States[e.OwnerID].BareState
		if e.status == Collecting {
			e.status = Advancing
		}
	}

	// Secondary confidence advancement, independent of whether primary
	// just moved: track the best quorum-backed alternate endorsement.
	if secConf, secProposal, ok := e.bestSecondary(own.Endorses); ok && secConf > own.SecondaryConfidence {
		members, shareOf := e.quorumFor(secConf, secProposal)
		if len(members) >= q {
			proof, err := buildProof(e.N, BareState{PrimaryConfidence: secConf, Endorses: secProposal}, members, shareOf)
			if err == nil {
				newBare := BareState{PrimaryConfidence: own.PrimaryConfidence, Endorses: own.Endorses, SecondaryConfidence: secConf}
				e.replaceOwnState(newBare, e.States[e.OwnerID].PrimaryProof, &proof)
				own = e.States[e.OwnerID].BareState
			}
		}
	}

	if own.PrimaryConfidence >= 3 && own.PrimaryConfidence-own.SecondaryConfidence >= 3 && e.committed == nil {
		p := own.Endorses
		e.committed = &p
		e.status = Committed
		if e.Logger != nil {
			e.Logger.Infow("committed", "owner", e.OwnerID, "proposal", p.Hash.String(), "primary_confidence", own.PrimaryConfidence, "secondary_confidence", own.SecondaryConfidence)
		}
	}
}

// replaceOwnState signs and installs a new own State, enforcing
// monotonicity (§8 invariant 1): it never replaces with a
// non-greater BareState.
func (e *Engine) replaceOwnState(b BareState, primary, secondary *Proof) {
	if b.Compare(e.States[e.OwnerID].BareState) <= 0 {
		return
	}
	st, err := buildOwnState(e.classicalSigner, e.blsSigner, b, primary, secondary)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Errorw("sign_own_state_failed", "owner", e.OwnerID, "err", err)
		}
		return
	}
	e.States[e.OwnerID] = st
}
