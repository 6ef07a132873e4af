package exchange

import (
	"errors"
	"testing"

	errs "github.com/meshforge/swarm/lib/error"
	"github.com/meshforge/swarm/lib/mesh"
	"github.com/meshforge/swarm/lib/neighbor"
	"github.com/meshforge/swarm/lib/particles"
	"github.com/meshforge/swarm/lib/pool"
)

// testBlock is one block of a two-block periodic 1d mesh on [0, 1).
type testBlock struct {
	pool  *pool.Pool
	store *particles.Store
	ex    *Exchange
}

// newTestPair builds two co-resident blocks covering [0, 0.5] and [0.5, 1]
// wired together over a Loopback. Channel 0 is the -x neighbor and channel
// 1 the +x neighbor; on a two-block mesh both are the peer.
func newTestPair(t *testing.T) [2]*testBlock {
	t.Helper()

	d := &mesh.Domain{
		Min:      [3]float64{ 0, 0, 0 },
		Max:      [3]float64{ 1, 1, 1 },
		Periodic: [3]bool{ true, true, true },
		Dim:      1,
	}
	bounds := []mesh.BlockBounds{
		{ Min: [3]float64{ 0, 0, 0 }, Max: [3]float64{ 0.5, 1, 1 } },
		{ Min: [3]float64{ 0.5, 0, 0 }, Max: [3]float64{ 1, 1, 1 } },
	}

	loop := NewLoopback()
	var blocks [2]*testBlock

	for b := 0; b < 2; b++ {
		peer := 1 - b
		topo := &mesh.Topology{
			Bounds: bounds[b],
			Domain: d,
			Neighbors: []mesh.Neighbor{
				{ Offset: [3]int{ -1, 0, 0 } },
				{ Offset: [3]int{ +1, 0, 0 } },
			},
		}

		store := particles.NewStore(8)
		for _, label := range []string{ "x", "y", "z", "e" } {
			if err := store.Add(label, particles.Real); err != nil {
				t.Fatalf("Expected Add('%s') to succeed, got: %v", label, err)
			}
		}
		if err := store.Add("id", particles.Integer); err != nil {
			t.Fatalf("Expected Add('id') to succeed, got: %v", err)
		}

		p := pool.New(8, nil)
		p.Attach(store)

		idx, err := neighbor.Build(topo)
		if err != nil {
			t.Fatalf("Expected Build to succeed, got: %v", err)
		}

		// A payload sent toward offset o lands in the peer's channel for
		// the mirrored offset -o.
		tr := loop.Endpoint(b, []Route{
			{ Block: peer, Channel: 1 },
			{ Block: peer, Channel: 0 },
		})

		ex, err := New(p, store, idx, topo, tr)
		if err != nil {
			t.Fatalf("Expected New to succeed, got: %v", err)
		}

		blocks[b] = &testBlock{ pool: p, store: store, ex: ex }
	}

	return blocks
}

// addParticle activates one slot and sets its attributes.
func addParticle(t *testing.T, b *testBlock, x, e float64, id int64) int {
	t.Helper()

	idx, err := b.pool.Allocate(1)
	if err != nil {
		t.Fatalf("Expected Allocate(1) to succeed, got: %v", err)
	}
	n := idx[0]

	xs, _ := b.store.Real("x")
	es, _ := b.store.Real("e")
	ids, _ := b.store.Int("id")
	xs[n], es[n], ids[n] = x, e, id

	return n
}

// findID returns the active slot holding the given id, or -1.
func findID(b *testBlock, id int64) int {
	ids, _ := b.store.Int("id")
	for n := 0; n <= b.pool.MaxActiveIndex(); n++ {
		if b.pool.IsActive(n) && ids[n] == id {
			return n
		}
	}
	return -1
}

func TestRoundTrip(t *testing.T) {
	blocks := newTestPair(t)
	a, b := blocks[0], blocks[1]

	addParticle(t, a, 0.25, 1.5, 10) // stays on a
	addParticle(t, a, 0.7, 2.5, 11)  // walked into b's extent
	addParticle(t, a, -0.1, 3.5, 12) // left the domain; wraps to 0.9 on b
	addParticle(t, b, 0.6, 4.5, 20)  // stays on b

	if err := a.ex.Send(); err != nil {
		t.Errorf("Expected Send on block 0 to succeed, got: %v", err)
		return
	}
	if err := b.ex.Send(); err != nil {
		t.Errorf("Expected Send on block 1 to succeed, got: %v", err)
		return
	}

	// Send already removed the outbound particles.
	if a.pool.ActiveCount() != 1 {
		t.Errorf("Expected 1 particle left on block 0 after Send, got %d.",
			a.pool.ActiveCount())
	}
	if a.ex.ChannelStatus(0) != Waiting || a.ex.ChannelStatus(1) != Waiting {
		t.Errorf("Expected both channels Waiting after Send, got %v and %v.",
			a.ex.ChannelStatus(0), a.ex.ChannelStatus(1))
	}

	// With a loopback transport everything arrives on the first poll.
	for name, blk := range map[string]*testBlock{ "0": a, "1": b } {
		done, err := blk.ex.Receive()
		if err != nil {
			t.Errorf("Expected Receive on block %s to succeed, got: %v",
				name, err)
			return
		}
		if !done {
			t.Errorf("Expected Receive on block %s to complete in one poll.",
				name)
		}
		for i := 0; i < blk.ex.NumChannels(); i++ {
			if blk.ex.ChannelStatus(i) != Completed {
				t.Errorf("Expected channel %d on block %s to be Completed, "+
					"got %v.", i, name, blk.ex.ChannelStatus(i))
			}
		}
	}

	if a.pool.ActiveCount() != 1 {
		t.Errorf("Expected block 0 to end with 1 particle, got %d.",
			a.pool.ActiveCount())
	}
	if b.pool.ActiveCount() != 3 {
		t.Errorf("Expected block 1 to end with 3 particles, got %d.",
			b.pool.ActiveCount())
	}

	tests := []struct {
		blk *testBlock
		id  int64
		x, e float64
	}{
		{ a, 10, 0.25, 1.5 },
		{ b, 11, 0.7, 2.5 },
		{ b, 12, 0.9, 3.5 },
		{ b, 20, 0.6, 4.5 },
	}

	for i := range tests {
		n := findID(tests[i].blk, tests[i].id)
		if n == -1 {
			t.Errorf("%d) Particle %d never arrived.", i, tests[i].id)
			continue
		}
		xs, _ := tests[i].blk.store.Real("x")
		es, _ := tests[i].blk.store.Real("e")
		if xs[n] != tests[i].x {
			t.Errorf("%d) Expected particle %d at x = %g, got %g.",
				i, tests[i].id, tests[i].x, xs[n])
		}
		if es[n] != tests[i].e {
			t.Errorf("%d) Expected particle %d to carry e = %g, got %g.",
				i, tests[i].id, tests[i].e, es[n])
		}
	}

	if findID(b, 10) != -1 {
		t.Errorf("Particle 10 leaked onto block 1.")
	}
}

func TestRecordSize(t *testing.T) {
	blocks := newTestPair(t)
	// Four reals and one integer, eight bytes each.
	if blocks[0].ex.RecordSize() != 40 {
		t.Errorf("Expected a 40-byte record, got %d bytes.",
			blocks[0].ex.RecordSize())
	}
}

// stubTransport accepts every Issue and delivers nothing until released.
type stubTransport struct {
	issued   map[int][]byte
	released bool
}

func newStubTransport() *stubTransport {
	return &stubTransport{ issued: map[int][]byte{ } }
}

func (tr *stubTransport) Issue(channel int, payload []byte) error {
	tr.issued[channel] = append([]byte{ }, payload...)
	return nil
}

func (tr *stubTransport) Poll(channel int) ([]byte, bool) {
	if !tr.released { return nil, false }
	payload, ok := tr.issued[channel]
	delete(tr.issued, channel)
	return payload, ok
}

// newStubBlock builds a single block over the given transport with only the
// coordinate attributes registered.
func newStubBlock(t *testing.T, tr Transport) *testBlock {
	t.Helper()

	d := &mesh.Domain{
		Min:      [3]float64{ 0, 0, 0 },
		Max:      [3]float64{ 1, 1, 1 },
		Periodic: [3]bool{ true, true, true },
		Dim:      1,
	}
	topo := &mesh.Topology{
		Bounds: mesh.BlockBounds{
			Min: [3]float64{ 0, 0, 0 },
			Max: [3]float64{ 1, 1, 1 },
		},
		Domain: d,
		Neighbors: []mesh.Neighbor{
			{ Offset: [3]int{ -1, 0, 0 } },
			{ Offset: [3]int{ +1, 0, 0 } },
		},
	}

	store := particles.NewStore(4)
	for _, label := range []string{ "x", "y", "z" } {
		if err := store.Add(label, particles.Real); err != nil {
			t.Fatalf("Expected Add('%s') to succeed, got: %v", label, err)
		}
	}

	p := pool.New(4, nil)
	p.Attach(store)

	idx, err := neighbor.Build(topo)
	if err != nil {
		t.Fatalf("Expected Build to succeed, got: %v", err)
	}

	ex, err := New(p, store, idx, topo, tr)
	if err != nil {
		t.Fatalf("Expected New to succeed, got: %v", err)
	}

	return &testBlock{ pool: p, store: store, ex: ex }
}

func TestReceiveWaitsForArrival(t *testing.T) {
	tr := newStubTransport()
	blk := newStubBlock(t, tr)

	if err := blk.ex.Send(); err != nil {
		t.Errorf("Expected Send to succeed, got: %v", err)
		return
	}

	// Nothing has arrived, so Receive must report the round unfinished.
	done, err := blk.ex.Receive()
	if err != nil {
		t.Errorf("Expected Receive to succeed, got: %v", err)
		return
	}
	if done {
		t.Errorf("Expected Receive to report an unfinished round.")
	}
	for i := 0; i < blk.ex.NumChannels(); i++ {
		if blk.ex.ChannelStatus(i) != Waiting {
			t.Errorf("Expected channel %d to stay Waiting, got %v.",
				i, blk.ex.ChannelStatus(i))
		}
	}

	tr.released = true
	done, err = blk.ex.Receive()
	if err != nil {
		t.Errorf("Expected the second Receive to succeed, got: %v", err)
		return
	}
	if !done {
		t.Errorf("Expected the round to finish once payloads arrived.")
	}
}

func TestReceiveRejectsTornPayload(t *testing.T) {
	tr := newStubTransport()
	blk := newStubBlock(t, tr)

	if err := blk.ex.Send(); err != nil {
		t.Errorf("Expected Send to succeed, got: %v", err)
		return
	}

	tr.issued[0] = make([]byte, 7)
	tr.released = true

	if _, err := blk.ex.Receive(); !errors.Is(err, errs.Invariant) {
		t.Errorf("Expected a 7-byte payload to fail Receive, got: %v", err)
	}
}

func TestSendRunsFence(t *testing.T) {
	tr := newStubTransport()
	blk := newStubBlock(t, tr)

	fences := 0
	blk.ex.Fence = func() { fences++ }

	if err := blk.ex.Send(); err != nil {
		t.Errorf("Expected Send to succeed, got: %v", err)
		return
	}
	if _, err := blk.ex.Receive(); err != nil {
		t.Errorf("Expected Receive to succeed, got: %v", err)
		return
	}
	if fences != 2 {
		t.Errorf("Expected the fence to run once per phase, got %d runs.",
			fences)
	}
}

func TestNewNeedsCoordinates(t *testing.T) {
	store := particles.NewStore(4)
	if err := store.Add("x", particles.Real); err != nil {
		t.Fatalf("Expected Add('x') to succeed, got: %v", err)
	}

	d := &mesh.Domain{
		Max:      [3]float64{ 1, 1, 1 },
		Periodic: [3]bool{ true, true, true },
		Dim:      1,
	}
	topo := &mesh.Topology{ Domain: d }

	_, err := New(pool.New(4, nil), store, &neighbor.Indexer{ }, topo, nil)
	if !errors.Is(err, errs.Configuration) {
		t.Errorf("Expected a store without 'y' and 'z' to fail, got: %v", err)
	}
}

func TestLoopbackDoubleIssue(t *testing.T) {
	loop := NewLoopback()
	e := loop.Endpoint(0, []Route{ { Block: 1, Channel: 0 } })

	if err := e.Issue(0, []byte{ 1, 2 }); err != nil {
		t.Errorf("Expected the first Issue to succeed, got: %v", err)
		return
	}
	if err := e.Issue(0, []byte{ 3 }); !errors.Is(err, errs.Invariant) {
		t.Errorf("Expected a second Issue on a full mailbox to fail, got: %v",
			err)
	}

	if err := e.Issue(5, nil); !errors.Is(err, errs.Precondition) {
		t.Errorf("Expected an unrouted channel to fail Issue, got: %v", err)
	}
}
