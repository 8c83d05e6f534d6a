// Package framing implements the "read-one/write-one" substream framing of
// spec.md §4.5: each substream carries exactly one varint length-prefixed
// message per direction. It is a thin wrapper over
// github.com/libp2p/go-msgio's varint-delimited reader/writer, which
// already implements this exact framing for libp2p protocols.
package framing

import (
	"fmt"
	"io"

	"github.com/libp2p/go-msgio"
)

// ReadOne reads exactly one length-prefixed message from r, rejecting
// anything whose declared length exceeds maxLen.
func ReadOne(r io.Reader, maxLen int) ([]byte, error) {
	reader := msgio.NewVarintReaderSize(r, maxLen)
	defer reader.Close()

	msg, err := reader.ReadMsg()
	if err != nil {
		return nil, fmt.Errorf("framing: reading message: %w", err)
	}
	// ReadMsg hands back a buffer owned by the reader's pool; copy it out
	// so it outlives reader.Close().
	out := make([]byte, len(msg))
	copy(out, msg)
	reader.ReleaseMsg(msg)
	return out, nil
}

// WriteOne writes exactly one length-prefixed message to w and flushes it.
func WriteOne(w io.Writer, payload []byte) error {
	writer := msgio.NewVarintWriter(w)
	if err := writer.WriteMsg(payload); err != nil {
		return fmt.Errorf("framing: writing message: %w", err)
	}
	return nil
}
