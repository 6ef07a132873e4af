package exchange

/* loopback.go is the in-process Transport used when neighboring blocks
share an address space: single-rank runs, the driver, and tests. */

import (
	"sync"

	errs "github.com/meshforge/swarm/lib/error"
)

// Route names the peer endpoint one local channel delivers into: the peer
// block's id and the peer's channel index for the mirrored direction.
type Route struct {
	Block   int
	Channel int
}

type loopKey struct {
	block   int
	channel int
}

// Loopback is a mailbox shared by every block in one process. Each block
// talks to it through its own Endpoint; payloads issued on a channel are
// held until the peer block polls for them.
type Loopback struct {
	mu    sync.Mutex
	boxes map[loopKey][]byte
}

// NewLoopback creates an empty mailbox.
func NewLoopback() *Loopback {
	return &Loopback{ boxes: map[loopKey][]byte{ } }
}

// Endpoint returns the Transport for one block. routes[i] is the peer that
// local channel i delivers into; the caller is responsible for routes being
// mirror-consistent between blocks.
func (l *Loopback) Endpoint(block int, routes []Route) *Endpoint {
	return &Endpoint{ l: l, block: block, routes: append([]Route{ }, routes...) }
}

// Endpoint is one block's view of a Loopback. It implements Transport.
type Endpoint struct {
	l      *Loopback
	block  int
	routes []Route
}

// Issue copies the payload into the peer's mailbox. It never blocks. A
// channel whose previous payload has not been consumed yet indicates the
// peer skipped a Receive round, which is a protocol defect.
func (e *Endpoint) Issue(channel int, payload []byte) error {
	if channel < 0 || channel >= len(e.routes) {
		return errs.Preconditionf(
			"Block %d issued on channel %d, but only %d channels are "+
				"routed.", e.block, channel, len(e.routes),
		)
	}

	r := e.routes[channel]
	key := loopKey{ r.Block, r.Channel }

	e.l.mu.Lock()
	defer e.l.mu.Unlock()
	if _, ok := e.l.boxes[key]; ok {
		return errs.Invariantf(
			"Block %d issued on channel %d before block %d consumed the "+
				"previous payload.", e.block, channel, r.Block,
		)
	}
	e.l.boxes[key] = append([]byte{ }, payload...)

	return nil
}

// Poll returns the payload pending on one of this block's channels, if any,
// and removes it from the mailbox.
func (e *Endpoint) Poll(channel int) ([]byte, bool) {
	key := loopKey{ e.block, channel }

	e.l.mu.Lock()
	defer e.l.mu.Unlock()
	payload, ok := e.l.boxes[key]
	if ok { delete(e.l.boxes, key) }

	return payload, ok
}
