// Package transport implements the inbound/outbound substream upgrades of
// spec.md §4.5-§4.6: negotiating one request/response exchange per
// substream and handing ownership of the stream to the behavior so the
// response can be written back on the same stream.
package transport

import (
	"io"
	"time"
)

// Substream is the minimal surface this package needs from a negotiated
// connection-multiplexer stream. A github.com/libp2p/go-libp2p
// network.Stream satisfies this directly; tests use an in-memory pipe
// implementation instead (see transporttest.NewPipe).
type Substream interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	// CloseWrite half-closes the write side once the single outbound
	// message has been sent, matching spec.md §4.5's "flush and close
	// the write half" requirement.
	CloseWrite() error
}
