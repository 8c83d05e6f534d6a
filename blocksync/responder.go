package blocksync

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ethsync/blocksync/blocksyncpb"
	"github.com/ethsync/blocksync/chain"
	"github.com/ethsync/blocksync/message"
)

// answerRequest implements spec.md §4.3: decode and validate the wire
// request, then walk the chain assembling a bounded response. Any
// returned error means "no response" — the caller logs it at debug and
// drops the request, never writing anything back (spec.md §7).
func answerRequest(c chain.Client, cfg Config, p peer.ID, req *blocksyncpb.BlockRequest) (*blocksyncpb.BlockResponse, error) {
	from, err := message.FromBlockID(req)
	if err != nil {
		return nil, fmt.Errorf("resolving from_block: %w", err)
	}

	direction, err := message.DirectionFromWire(req.Direction)
	if err != nil {
		return nil, err
	}

	attrs, err := message.AttributesFromWire(req.Fields)
	if err != nil {
		return nil, err
	}

	max := cfg.MaxBlockDataResponse
	if req.MaxBlocks != 0 && req.MaxBlocks < max {
		max = req.MaxBlocks
	}

	log.Trace("Block request from peer", "peer", p, "from", from, "max-blocks", req.MaxBlocks, "direction", direction)

	wantHeader := attrs.Contains(message.Header)
	wantBody := attrs.Contains(message.Body)
	wantJustification := attrs.Contains(message.Justification)

	var blocks []*blocksyncpb.BlockData
	blockID := fromBlockToChainID(from)

	for uint32(len(blocks)) < max {
		header, err := c.Header(blockID)
		if err != nil {
			// Header-lookup errors are treated as end-of-walk, matching
			// the preserved source behavior (spec.md §4.3 note 2).
			break
		}
		if header == nil {
			break
		}

		var justification message.Justification
		if wantJustification {
			data, present, err := c.Justification(chain.ByHash(header.Hash))
			if err != nil {
				return nil, fmt.Errorf("fetching justification for %s: %w", header.Hash, err)
			}
			if present {
				justification = message.Justification{Present: true, Empty: len(data) == 0, Data: data}
			}
		}

		var headerBytes []byte
		if wantHeader {
			headerBytes, err = message.EncodeHeader(*header)
			if err != nil {
				return nil, fmt.Errorf("encoding header %s: %w", header.Hash, err)
			}
		}

		var bodyBytes [][]byte
		if wantBody {
			extrinsics, err := c.BlockBody(chain.ByHash(header.Hash))
			if err != nil {
				return nil, fmt.Errorf("fetching body for %s: %w", header.Hash, err)
			}
			for _, e := range extrinsics {
				eb, err := message.EncodeExtrinsic(e)
				if err != nil {
					return nil, fmt.Errorf("encoding extrinsic in %s: %w", header.Hash, err)
				}
				bodyBytes = append(bodyBytes, eb)
			}
		}

		blocks = append(blocks, message.BuildWireBlockData(header.Hash, headerBytes, bodyBytes, justification))

		if direction == message.Descending && header.Number == 0 {
			break // genesis reached, nothing left to walk
		}
		switch direction {
		case message.Ascending:
			blockID = chain.ByNumber(header.Number + 1)
		case message.Descending:
			blockID = chain.ByHash(header.ParentHash)
		}
	}

	return &blocksyncpb.BlockResponse{Blocks: blocks}, nil
}

func fromBlockToChainID(f message.FromBlock) chain.BlockID {
	if f.IsHash {
		return chain.ByHash(f.Hash)
	}
	return chain.ByNumber(f.Number)
}
