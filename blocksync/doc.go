// Package blocksync implements a one-shot request/response protocol
// handler for fetching historical block data from peers over libp2p
// substreams. It plays the role of a NetworkBehaviour: it holds no socket
// of its own, decides what to send and how to answer inbound requests, and
// surfaces its outcomes through Poll for a host to act on.
//
// The wire schema lives in package blocksyncpb, the in-memory request and
// response types in package message, framing in package framing, and the
// substream upgrade handshakes in package transport. Package chain defines
// the read-only chain-store interface the responder depends on.
package blocksync
