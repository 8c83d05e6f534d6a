// Package message defines the in-memory request/response representation
// used by the block-request protocol handler, independent of the wire
// protobuf schema. See package blocksyncpb for the wire types and
// ToProto/FromBlockID/ResponseFromWire in codec.go for the mapping between
// the two.
package message

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Attributes is a bitset over the block fields a request/response may carry.
type Attributes uint32

const (
	Header Attributes = 1 << iota
	Body
	Receipt
	MessageQueue
	Justification
)

// Contains reports whether the given flag is set.
func (a Attributes) Contains(flag Attributes) bool {
	return a&flag == flag
}

// allAttributes is the set of flags this protocol version recognizes; any
// other bit set in a wire value is a validation failure.
const allAttributes = Header | Body | Receipt | MessageQueue | Justification

// Direction controls how the responder walks the chain from the starting
// block: towards increasing or decreasing block numbers.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

// FromBlock is the sum type identifying where a request's walk starts: by
// hash or by number. Exactly one of Hash/Number is meaningful, selected by
// IsHash.
type FromBlock struct {
	IsHash bool
	Hash   common.Hash
	Number uint64
}

// FromHash builds a FromBlock selecting the hash branch.
func FromHash(h common.Hash) FromBlock { return FromBlock{IsHash: true, Hash: h} }

// FromNumber builds a FromBlock selecting the number branch.
func FromNumber(n uint64) FromBlock { return FromBlock{IsHash: false, Number: n} }

// Request is an outbound block request, owned by the caller until it is
// handed to Behavior.SendRequest.
type Request struct {
	ID      uint64
	Fields  Attributes
	From    FromBlock
	To      *common.Hash // advisory only, see spec §4.3
	Dir     Direction
	Max     uint32 // 0 == unlimited, subject to the server's configured cap
}

// Equal reports whether two requests carry the same semantic content. Used
// to correlate an inbound Response to the OngoingRequest it answers (I4).
func (r Request) Equal(o Request) bool {
	if r.ID != o.ID || r.Fields != o.Fields || r.Dir != o.Dir || r.Max != o.Max {
		return false
	}
	if r.From != o.From {
		return false
	}
	if (r.To == nil) != (o.To == nil) {
		return false
	}
	if r.To != nil && *r.To != *o.To {
		return false
	}
	return true
}

// Header is the subset of block header fields the responder needs to walk
// the chain and that a response carries when the Header attribute is set.
// A real node's header type would carry much more; the protocol only
// depends on these three fields plus an opaque encoding.
type Header struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash

	// Extra carries the remaining header fields opaquely so the encoded
	// form round-trips losslessly.
	Extra []byte
}

// EncodeRLP-compatible helpers: headers and extrinsics are encoded with the
// canonical RLP codec, standing in for the original implementation's scale
// codec (see spec.md glossary).
func EncodeHeader(h Header) ([]byte, error) { return rlp.EncodeToBytes(&h) }

func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if err := rlp.DecodeBytes(b, &h); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Extrinsic is an opaque, RLP-encodable transaction-like item inside a
// block body.
type Extrinsic []byte

func EncodeExtrinsic(e Extrinsic) ([]byte, error) { return rlp.EncodeToBytes([]byte(e)) }

func DecodeExtrinsic(b []byte) (Extrinsic, error) {
	var out []byte
	if err := rlp.DecodeBytes(b, &out); err != nil {
		return nil, err
	}
	return Extrinsic(out), nil
}

// Justification carries finality-attesting bytes for a block. None, empty,
// and non-empty are all distinct states (I5/§9).
type Justification struct {
	Present bool
	Empty   bool
	Data    []byte
}

// BlockData is one record of a Response.
type BlockData struct {
	Hash          common.Hash
	HeaderData    *Header
	Body          []Extrinsic // nil means "not requested/not present"
	Receipt       []byte
	MessageQueue  []byte
	Justification Justification
}

// Response is an inbound block response, correlated to the Request that
// produced it.
type Response struct {
	ID     uint64
	Blocks []BlockData
}

// OngoingRequest is the state held on a Connection for an outstanding
// outbound request (spec.md §3, "Connection").
type OngoingRequest struct {
	Request Request
	Emitted time.Time
	Deadline time.Time
}

// Elapsed returns the time since the request was emitted.
func (o OngoingRequest) Elapsed() time.Duration {
	return time.Since(o.Emitted)
}
