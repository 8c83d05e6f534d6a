// Package chain defines the read-only interface the block-request
// responder needs against a local chain store (spec.md §1's "chain
// client" collaborator). Everything else about block storage — writing,
// import, fork choice — is out of scope for this module.
package chain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethsync/blocksync/message"
)

// BlockID identifies a block either by hash or by number, mirroring
// sp_runtime::generic::BlockId from the original implementation.
type BlockID struct {
	byHash bool
	hash   common.Hash
	number uint64
}

// ByHash builds a BlockID selecting a block by hash.
func ByHash(h common.Hash) BlockID { return BlockID{byHash: true, hash: h} }

// ByNumber builds a BlockID selecting a block by number.
func ByNumber(n uint64) BlockID { return BlockID{number: n} }

// IsHash reports whether this id selects by hash (false means by number).
func (b BlockID) IsHash() bool { return b.byHash }

// Hash returns the selected hash; valid only when IsHash() is true.
func (b BlockID) Hash() common.Hash { return b.hash }

// Number returns the selected number; valid only when IsHash() is false.
func (b BlockID) Number() uint64 { return b.number }

func (b BlockID) String() string {
	if b.byHash {
		return b.hash.Hex()
	}
	return fmt0(b.number)
}

func fmt0(n uint64) string {
	// Formats n in decimal by hand, so client.go itself needs no fmt
	// import (memchain.go in this package does import fmt).
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Client is the read-only chain-store interface the responder depends on.
// A header lookup miss is reported as (nil, nil) — "not found" is not an
// error (spec.md §4.3 note 2). Body/justification errors propagate and
// abort the response (spec.md §4.3 note 2, §7).
type Client interface {
	// Header returns the header for id, or (nil, nil) if it doesn't exist.
	Header(id BlockID) (*message.Header, error)
	// BlockBody returns the extrinsics of the block at id.
	BlockBody(id BlockID) ([]message.Extrinsic, error)
	// Justification returns (data, present, error). present is false when
	// there is no justification; when present and len(data) == 0 the
	// justification is "present and empty" (spec.md §3).
	Justification(id BlockID) (data []byte, present bool, err error)
}
