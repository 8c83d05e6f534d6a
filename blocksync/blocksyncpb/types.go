// Package blocksyncpb implements the wire schema described in
// block_requests.proto by hand against the protobuf wire format, using
// google.golang.org/protobuf/encoding/protowire directly rather than
// protoc-generated descriptors. There is exactly one schema version (v1);
// a future incompatible change would live behind a new protocol suffix
// (see blocksync.ProtocolName), not a field added here.
package blocksyncpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Direction mirrors the wire enum; 0 = Ascending, 1 = Descending.
type Direction int32

const (
	Ascending  Direction = 0
	Descending Direction = 1
)

// BlockRequest is the wire representation of an outbound block request.
type BlockRequest struct {
	Fields uint32

	// oneof from_block: exactly one of HasHash/HasNumber must be true on
	// a well-formed request.
	HasHash     bool
	Hash        []byte
	HasNumber   bool
	Number      []byte

	ToBlock   []byte
	Direction Direction
	MaxBlocks uint32
}

const (
	fieldTagFields    = 1
	fieldTagHash      = 2
	fieldTagNumber    = 3
	fieldTagToBlock   = 4
	fieldTagDirection = 5
	fieldTagMaxBlocks = 6
)

// Marshal encodes the request using the protobuf wire format.
func (m *BlockRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.Fields != 0 {
		b = protowire.AppendTag(b, fieldTagFields, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Fields))
	}
	switch {
	case m.HasHash:
		b = protowire.AppendTag(b, fieldTagHash, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Hash)
	case m.HasNumber:
		b = protowire.AppendTag(b, fieldTagNumber, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Number)
	}
	if len(m.ToBlock) > 0 {
		b = protowire.AppendTag(b, fieldTagToBlock, protowire.BytesType)
		b = protowire.AppendBytes(b, m.ToBlock)
	}
	if m.Direction != Ascending {
		b = protowire.AppendTag(b, fieldTagDirection, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Direction))
	}
	if m.MaxBlocks != 0 {
		b = protowire.AppendTag(b, fieldTagMaxBlocks, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.MaxBlocks))
	}
	return b, nil
}

// Unmarshal decodes a BlockRequest from its wire form.
func (m *BlockRequest) Unmarshal(data []byte) error {
	*m = BlockRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case fieldTagFields:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Fields = uint32(v)
			data = data[n:]
		case fieldTagHash:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.HasHash, m.HasNumber = true, false
			m.Hash = append([]byte(nil), v...)
			data = data[n:]
		case fieldTagNumber:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.HasNumber, m.HasHash = true, false
			m.Number = append([]byte(nil), v...)
			data = data[n:]
		case fieldTagToBlock:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ToBlock = append([]byte(nil), v...)
			data = data[n:]
		case fieldTagDirection:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Direction = Direction(v)
			data = data[n:]
		case fieldTagMaxBlocks:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.MaxBlocks = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

// BlockData is one element of a BlockResponse.
type BlockData struct {
	Hash                 []byte
	HeaderBytes          []byte
	Body                 [][]byte
	Receipt              []byte
	MessageQueue         []byte
	JustificationBytes   []byte
	IsEmptyJustification bool
}

const (
	dataTagHash                 = 1
	dataTagHeader                = 2
	dataTagBody                  = 3
	dataTagReceipt                = 4
	dataTagMessageQueue           = 5
	dataTagJustification          = 6
	dataTagIsEmptyJustification  = 7
)

func (d *BlockData) appendTo(b []byte) []byte {
	if len(d.Hash) > 0 {
		b = protowire.AppendTag(b, dataTagHash, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Hash)
	}
	if len(d.HeaderBytes) > 0 {
		b = protowire.AppendTag(b, dataTagHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, d.HeaderBytes)
	}
	for _, extrinsic := range d.Body {
		b = protowire.AppendTag(b, dataTagBody, protowire.BytesType)
		b = protowire.AppendBytes(b, extrinsic)
	}
	if len(d.Receipt) > 0 {
		b = protowire.AppendTag(b, dataTagReceipt, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Receipt)
	}
	if len(d.MessageQueue) > 0 {
		b = protowire.AppendTag(b, dataTagMessageQueue, protowire.BytesType)
		b = protowire.AppendBytes(b, d.MessageQueue)
	}
	if len(d.JustificationBytes) > 0 {
		b = protowire.AppendTag(b, dataTagJustification, protowire.BytesType)
		b = protowire.AppendBytes(b, d.JustificationBytes)
	}
	if d.IsEmptyJustification {
		b = protowire.AppendTag(b, dataTagIsEmptyJustification, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func parseBlockData(data []byte) (*BlockData, error) {
	d := &BlockData{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case dataTagHash:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.Hash = append([]byte(nil), v...)
			data = data[n:]
		case dataTagHeader:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.HeaderBytes = append([]byte(nil), v...)
			data = data[n:]
		case dataTagBody:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.Body = append(d.Body, append([]byte(nil), v...))
			data = data[n:]
		case dataTagReceipt:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.Receipt = append([]byte(nil), v...)
			data = data[n:]
		case dataTagMessageQueue:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.MessageQueue = append([]byte(nil), v...)
			data = data[n:]
		case dataTagJustification:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.JustificationBytes = append([]byte(nil), v...)
			data = data[n:]
		case dataTagIsEmptyJustification:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			d.IsEmptyJustification = v != 0
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return d, nil
}

// BlockResponse is the wire representation of a response to a BlockRequest.
type BlockResponse struct {
	Blocks []*BlockData
}

const responseTagBlocks = 1

// Marshal encodes the response using the protobuf wire format.
func (m *BlockResponse) Marshal() ([]byte, error) {
	var b []byte
	for _, block := range m.Blocks {
		inner := block.appendTo(nil)
		b = protowire.AppendTag(b, responseTagBlocks, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b, nil
}

// Unmarshal decodes a BlockResponse from its wire form.
func (m *BlockResponse) Unmarshal(data []byte) error {
	*m = BlockResponse{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case responseTagBlocks:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			block, err := parseBlockData(v)
			if err != nil {
				return fmt.Errorf("blocksyncpb: decoding BlockData: %w", err)
			}
			m.Blocks = append(m.Blocks, block)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}
