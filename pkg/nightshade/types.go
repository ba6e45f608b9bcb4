// Package nightshade implements the per-authority Nightshade consensus
// state machine: BareState ordering, Proof aggregation, and the Engine
// that merges incoming State updates and detects commit.
package nightshade

import (
	"encoding/binary"
	"fmt"
)

// AuthorityId is a dense index into the fixed authority set [0, N).
type AuthorityId int

// Hash is a 32-byte content hash, e.g. of a block.
type Hash [32]byte

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// BlockProposal is the single proposal an authority puts forward for a
// consensus instance. Immutable once created.
type BlockProposal struct {
	Author AuthorityId
	Hash   Hash
}

// Less orders BlockProposals by (author, hash), used as the tie-break
// inside BareState ordering.
func (p BlockProposal) Less(o BlockProposal) bool {
	if p.Author != o.Author {
		return p.Author < o.Author
	}
	for i := range p.Hash {
		if p.Hash[i] != o.Hash[i] {
			return p.Hash[i] < o.Hash[i]
		}
	}
	return false
}

func (p BlockProposal) Equal(o BlockProposal) bool {
	return p.Author == o.Author && p.Hash == o.Hash
}

func encodeBlockProposal(p BlockProposal) []byte {
	buf := make([]byte, 0, 8+32)
	var authBuf [8]byte
	binary.BigEndian.PutUint64(authBuf[:], uint64(p.Author))
	buf = append(buf, authBuf[:]...)
	buf = append(buf, p.Hash[:]...)
	return buf
}

// EncodeBlockProposal exposes the canonical encoding of a BlockProposal
// for callers outside this package, e.g. the gossip envelope's PayloadReply
// hashing.
func EncodeBlockProposal(p BlockProposal) []byte { return encodeBlockProposal(p) }

// SignedBlockProposal is a BlockProposal plus its author's classical
// signature over the proposal hash.
type SignedBlockProposal struct {
	Proposal  BlockProposal
	Signature []byte
}

// Bitmask is a fixed-size bit-set over authority indices [0, N).
type Bitmask struct {
	bits []byte
	n    int
}

func NewBitmask(n int) Bitmask {
	return Bitmask{bits: make([]byte, (n+7)/8), n: n}
}

func (m Bitmask) Set(a AuthorityId) {
	i := int(a)
	m.bits[i/8] |= 1 << uint(i%8)
}

func (m Bitmask) Test(a AuthorityId) bool {
	i := int(a)
	if i < 0 || i >= m.n {
		return false
	}
	return m.bits[i/8]&(1<<uint(i%8)) != 0
}

func (m Bitmask) PopCount() int {
	count := 0
	for _, b := range m.bits {
		for b != 0 {
			count += int(b & 1)
			b >>= 1
		}
	}
	return count
}

// Members returns the sorted list of set authority indices.
func (m Bitmask) Members() []AuthorityId {
	var out []AuthorityId
	for a := 0; a < m.n; a++ {
		if m.Test(AuthorityId(a)) {
			out = append(out, AuthorityId(a))
		}
	}
	return out
}

func (m Bitmask) Bytes() []byte {
	return append([]byte(nil), m.bits...)
}

// Quorum returns the BFT quorum size for N authorities: the smallest
// count that exceeds two thirds of N, consistent with a Byzantine
// fault tolerance of f = floor((N-1)/3). See DESIGN.md for the
// reconciliation of this formula against spec.md's prose.
func Quorum(n int) int {
	if n <= 0 {
		return 0
	}
	f := (n - 1) / 3
	return n - f
}
