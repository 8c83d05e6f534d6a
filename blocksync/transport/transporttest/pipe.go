// Package transporttest provides an in-memory transport.Substream pair for
// tests, standing in for a real libp2p-negotiated substream the way
// spec.md §1 treats the connection multiplexer as an external collaborator.
package transporttest

import (
	"io"
	"time"
)

// end is one side of a NewPipe() pair.
type end struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (e *end) Read(p []byte) (int, error)  { return e.r.Read(p) }
func (e *end) Write(p []byte) (int, error) { return e.w.Write(p) }
func (e *end) Close() error {
	e.w.Close()
	e.r.Close()
	return nil
}
func (e *end) CloseWrite() error                      { return e.w.Close() }
func (e *end) SetReadDeadline(time.Time) error  { return nil }
func (e *end) SetWriteDeadline(time.Time) error { return nil }

// NewPipe returns two connected Substream halves: bytes written to one are
// read from the other, in both directions, like a negotiated duplex
// substream between two peers.
func NewPipe() (a, b interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	CloseWrite() error
}) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &end{r: ar, w: aw}, &end{r: br, w: bw}
}
