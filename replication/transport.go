package replication

// Transport abstracts the reliable, ordered bidirectional message stream
// the spec treats as an external collaborator (spec.md §1): replication
// code never dials a socket directly, it asks a Transport to deliver one
// request and hand back one response. Each peer connection's outbound task
// owns one Transport; the inbound task instead calls a Peer's Handle*
// methods directly as requests arrive off its own read loop.
//
// Grounded on core/network.go's Peer/connection abstraction, narrowed to
// the single send-request/await-response call a Raft-family peer task
// needs.

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// MaxLogSyncBatch bounds how many entries one LogSyncRes batch carries, so
// a far-behind follower's catch-up never tries to buffer the entire log in
// one message.
const MaxLogSyncBatch = 256

// ErrPeerUnreachable is returned by a Transport when the named peer cannot
// currently be reached.
var ErrPeerUnreachable = errors.New("replication: peer unreachable")

// Transport sends one request to peer and returns its matching response.
type Transport interface {
	SendRequest(ctx context.Context, peer uuid.UUID, req Request) (Response, error)
}

// PeerAddr is the dialing information for one cluster member.
type PeerAddr struct {
	ID   uuid.UUID
	Addr string
}
