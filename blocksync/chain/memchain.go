package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethsync/blocksync/message"
)

// Mem is a simple in-memory Client used by tests and as the cmd/blocksyncd
// demo's chain store. It stores one linear
// chain indexed both by number and by hash.
type Mem struct {
	byNumber map[uint64]message.Header
	byHash   map[common.Hash]message.Header
	bodies   map[common.Hash][]message.Extrinsic
	justif   map[common.Hash]justif
}

type justif struct {
	data    []byte
	present bool
}

// NewMem builds an empty in-memory chain.
func NewMem() *Mem {
	return &Mem{
		byNumber: make(map[uint64]message.Header),
		byHash:   make(map[common.Hash]message.Header),
		bodies:   make(map[common.Hash][]message.Extrinsic),
		justif:   make(map[common.Hash]justif),
	}
}

// AppendBlock adds a new head block, deriving its hash from number+parent
// so callers don't need to fabricate unique hashes by hand.
func (m *Mem) AppendBlock(number uint64, parent common.Hash, body []message.Extrinsic) message.Header {
	hash := deriveHash(number, parent)
	h := message.Header{Number: number, Hash: hash, ParentHash: parent}
	m.byNumber[number] = h
	m.byHash[hash] = h
	if body != nil {
		m.bodies[hash] = body
	}
	return h
}

// SetJustification records a justification for hash. present=true and
// data=nil/empty records "present and empty"; present=false removes it.
func (m *Mem) SetJustification(hash common.Hash, data []byte, present bool) {
	if !present {
		delete(m.justif, hash)
		return
	}
	m.justif[hash] = justif{data: data, present: present}
}

func deriveHash(number uint64, parent common.Hash) common.Hash {
	var b [40]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(number >> (8 * (7 - i)))
	}
	copy(b[8:], parent.Bytes())
	return common.BytesToHash(crypto256(b[:]))
}

// crypto256 is a tiny non-cryptographic mixing function; good enough to
// produce distinct deterministic hashes for test fixtures without pulling
// in a hash package for a one-off helper.
func crypto256(b []byte) []byte {
	var h [32]byte
	var acc uint64 = 0xcbf29ce484222325
	for i, v := range b {
		acc ^= uint64(v)
		acc *= 0x100000001b3
		h[i%32] ^= byte(acc)
	}
	return h[:]
}

func (m *Mem) resolve(id BlockID) (message.Header, bool) {
	if id.IsHash() {
		h, ok := m.byHash[id.Hash()]
		return h, ok
	}
	h, ok := m.byNumber[id.Number()]
	return h, ok
}

func (m *Mem) Header(id BlockID) (*message.Header, error) {
	h, ok := m.resolve(id)
	if !ok {
		return nil, nil
	}
	cp := h
	return &cp, nil
}

func (m *Mem) BlockBody(id BlockID) ([]message.Extrinsic, error) {
	h, ok := m.resolve(id)
	if !ok {
		return nil, fmt.Errorf("chain: unknown block %s", id)
	}
	return m.bodies[h.Hash], nil
}

func (m *Mem) Justification(id BlockID) ([]byte, bool, error) {
	h, ok := m.resolve(id)
	if !ok {
		return nil, false, fmt.Errorf("chain: unknown block %s", id)
	}
	j, ok := m.justif[h.Hash]
	if !ok {
		return nil, false, nil
	}
	return j.data, j.present, nil
}

var _ Client = (*Mem)(nil)
