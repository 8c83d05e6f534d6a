package blocksync

import "errors"

// Sentinel errors of package blocksync. Per spec.md §7, only EncodeError is
// user-visible; every other disposition is silent at the API boundary
// (logged, or surfaced as an emitted Event).
var (
	// ErrNotConnected describes a target peer with no live connection in
	// the peer table. Behavior.SendRequest does not return it; it reports
	// that case as a SendOutcome of Kind SendNotConnected.
	ErrNotConnected = errors.New("blocksync: not connected to peer")
)
