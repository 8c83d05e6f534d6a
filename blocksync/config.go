package blocksync

import (
	"time"

	"github.com/libp2p/go-libp2p/core/protocol"
)

// Config holds the tunables of spec.md §4.2. Zero-value construction is
// not valid; use DefaultConfig and override individual fields, or load a
// TOML file (see loadConfig in cmd/blocksyncd/config.go).
type Config struct {
	// ProtocolID seeds the negotiated protocol name ("/" + ProtocolID +
	// "/sync/2").
	ProtocolID string `toml:"protocol-id"`

	// MaxBlockDataResponse caps the number of block records in any
	// response this node serves.
	MaxBlockDataResponse uint32 `toml:"max-block-data-response"`
	// MaxRequestLen caps the length of an inbound request, in bytes.
	MaxRequestLen int `toml:"max-request-len"`
	// MaxResponseLen caps the length of an outbound response this node
	// will accept, in bytes.
	MaxResponseLen int `toml:"max-response-len"`
	// InactivityTimeout bounds how long a per-connection handler may sit
	// idle before it's closed.
	InactivityTimeout time.Duration `toml:"inactivity-timeout"`
	// RequestTimeout bounds an outstanding outbound request and doubles
	// as the hard substream deadline on both sides.
	RequestTimeout time.Duration `toml:"request-timeout"`
}

// DefaultConfig returns the defaults listed in spec.md §4.2.
func DefaultConfig(protocolID string) Config {
	return Config{
		ProtocolID:            protocolID,
		MaxBlockDataResponse:  128,
		MaxRequestLen:         1024 * 1024,
		MaxResponseLen:        16 * 1024 * 1024,
		InactivityTimeout:     15 * time.Second,
		RequestTimeout:        40 * time.Second,
	}
}

// ProtocolName derives the libp2p protocol identifier from ProtocolID, per
// spec.md §4.1/§6: "/" + protocol_id + "/sync/2".
func (c Config) ProtocolName() protocol.ID {
	return protocol.ID("/" + c.ProtocolID + "/sync/2")
}
