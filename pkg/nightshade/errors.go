package nightshade

import "errors"

// Error kinds an Engine or the gossip layer built on top of it can
// surface. ErrConflictingProposals is fatal: it indicates the engine's
// owning authority has observed two distinct signed proposals from the
// same author for this instance, and the instance can no longer reach
// a safe commit. Every other error here is recoverable per-message: the
// caller drops the offending gossip and continues.
var (
	ErrBadSignature         = errors.New("nightshade: signature verification failed")
	ErrInvalidProof         = errors.New("nightshade: invalid proof")
	ErrIgnoredAdversary     = errors.New("nightshade: message from flagged adversary ignored")
	ErrStaleState           = errors.New("nightshade: state is not greater than known state")
	ErrWrongBlockIndex      = errors.New("nightshade: gossip block index does not match instance")
	ErrConflictingProposals = errors.New("nightshade: conflicting signed proposals from same author")
)
