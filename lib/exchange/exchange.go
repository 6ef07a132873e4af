/*package exchange implements the two-phase boundary protocol that migrates
particles between neighboring mesh blocks. Send classifies every active
particle by position, packs full records into per-channel buffers, removes
the packed particles, and hands the buffers to the transport without
blocking. Receive polls the transport, allocates slots for everything that
arrived, and unpacks; callers re-invoke it until it reports that no channel
is still waiting, interleaving other work between polls.

The wire record is the concatenation of every Real attribute followed by
every Integer attribute, each in registration order. Both ends derive this
layout from identical registration sequences, so no schema is negotiated.*/
package exchange

import (
	"encoding/binary"
	"math"

	errs "github.com/meshforge/swarm/lib/error"
	"github.com/meshforge/swarm/lib/mesh"
	"github.com/meshforge/swarm/lib/neighbor"
	"github.com/meshforge/swarm/lib/particles"
	"github.com/meshforge/swarm/lib/pool"
)

// Status tracks one channel through a communication round.
type Status int

const (
	// Waiting channels have not seen their payload arrive yet.
	Waiting Status = iota
	// Arrived channels hold a payload that has not been unpacked.
	Arrived
	// Completed channels are done for this round.
	Completed
)

// String returns a human-readable name for the Status.
func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Arrived:
		return "arrived"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Transport moves per-channel byte buffers between blocks. The exchange
// owns buffer layout and protocol state; the transport only carries bytes.
type Transport interface {
	// Issue hands a channel's packed send buffer to the transport and
	// begins an asynchronous transfer. It must not block. Zero-length
	// payloads are still issued so the receiver can resolve the channel.
	Issue(channel int, payload []byte) error
	// Poll reports whether a channel's inbound payload has arrived, and
	// returns it once. The returned bytes are only valid until the next
	// call into the transport.
	Poll(channel int) (payload []byte, arrived bool)
}

// channel holds the persistent buffers and protocol state for one neighbor
// direction. Buffers grow as needed between rounds and are never released.
type channel struct {
	send   []byte
	recv   []byte
	status Status
}

// wordSize is the wire size of one attribute value. Integer attributes are
// converted by value onto the same 8-byte word as Real attributes.
const wordSize = 8

func putWord(b []byte, i int, v float64) {
	binary.LittleEndian.PutUint64(b[i*wordSize:], math.Float64bits(v))
}

func getWord(b []byte, i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[i*wordSize:]))
}

// Exchange runs the boundary protocol for one block's swarm. It reads the
// pool and store, consults the indexer for routing, and mutates both when
// particles arrive. It must not be shared between blocks: channel buffers
// are the only legitimate cross-block path.
type Exchange struct {
	pool  *pool.Pool
	store *particles.Store
	idx   *neighbor.Indexer
	topo  *mesh.Topology
	tr    Transport

	// Fence, when set, runs at the top of Send and Receive. Use it to
	// wait out an asynchronous transport kernel that may still be writing
	// particle positions.
	Fence func()

	channels []channel
	owner    []int
}

// New creates an Exchange over a block's pool and store. The store must
// already hold the "x", "y", and "z" coordinate attributes.
func New(
	p *pool.Pool, store *particles.Store, idx *neighbor.Indexer,
	topo *mesh.Topology, tr Transport,
) (*Exchange, error) {
	for _, label := range []string{ "x", "y", "z" } {
		if _, err := store.Real(label); err != nil {
			return nil, errs.Configf(
				"The exchange needs the coordinate attribute '%s', which "+
					"is not registered.", label,
			)
		}
	}

	return &Exchange{
		pool: p, store: store, idx: idx, topo: topo, tr: tr,
		channels: make([]channel, len(topo.Neighbors)),
	}, nil
}

// NumChannels returns the number of neighbor channels.
func (ex *Exchange) NumChannels() int { return len(ex.channels) }

// ChannelStatus returns the protocol state of one channel.
func (ex *Exchange) ChannelStatus(i int) Status { return ex.channels[i].status }

// RecordSize returns the wire size of one particle record in bytes.
func (ex *Exchange) RecordSize() int {
	return wordSize * (ex.store.NumReal() + ex.store.NumInt())
}

// classify recomputes the destination channel of every active slot from
// its position. The ownership array is scratch rebuilt every round; it
// does not survive defragmentation and does not need to.
func (ex *Exchange) classify(mask []bool) ([]int, error) {
	if len(ex.owner) < ex.pool.Capacity() {
		ex.owner = make([]int, ex.pool.Capacity())
	}

	x, err := ex.store.Real("x")
	if err != nil { return nil, err }
	y, err := ex.store.Real("y")
	if err != nil { return nil, err }
	z, err := ex.store.Real("z")
	if err != nil { return nil, err }

	for n := 0; n <= ex.pool.MaxActiveIndex(); n++ {
		if !mask[n] { continue }
		ex.owner[n] = ex.idx.Lookup(
			[3]float64{ x[n], y[n], z[n] }, ex.topo.Bounds,
		)
	}

	return ex.owner, nil
}

// Send runs the issue phase of one communication round: classify, pack,
// remove, and hand the buffers to the transport. Every destined particle
// is fully packed before any is removed from the pool, so a slot can never
// be reused before its record is copied. Send returns without waiting for
// any transfer to progress.
func (ex *Exchange) Send() error {
	if ex.Fence != nil { ex.Fence() }

	mask := ex.pool.Mask()
	owner, err := ex.classify(mask)
	if err != nil { return err }

	for i := range ex.channels {
		ex.channels[i].status = Waiting
	}

	recordSize := ex.RecordSize()
	counts := make([]int, len(ex.channels))
	for n := 0; n <= ex.pool.MaxActiveIndex(); n++ {
		if mask[n] && owner[n] != neighbor.LocalChannel {
			counts[owner[n]]++
		}
	}

	for i := range ex.channels {
		need := counts[i] * recordSize
		ch := &ex.channels[i]
		if cap(ch.send) < need {
			ch.send = make([]byte, need)
		} else {
			ch.send = ch.send[:need]
		}
	}

	vreal := ex.store.PackAllReals()
	vint := ex.store.PackAllInts()
	ix, _ := vreal.Offset("x")
	iy, _ := vreal.Offset("y")
	iz, _ := vreal.Offset("z")
	d := ex.topo.Domain

	cursor := make([]int, len(ex.channels))
	for n := 0; n <= ex.pool.MaxActiveIndex(); n++ {
		if !mask[n] || owner[n] == neighbor.LocalChannel { continue }

		m := owner[n]
		rec := ex.channels[m].send[cursor[m]*recordSize:]
		cursor[m]++

		w := 0
		for i := 0; i < vreal.Vars(); i++ {
			v := vreal.At(i, n)
			// A transfer between co-resident blocks never passes through
			// rank-level boundary handling, so periodic correction is
			// applied to the packed coordinates here.
			if ex.topo.Neighbors[m].Rank == ex.topo.Rank {
				switch i {
				case ix:
					v = d.Wrap(0, v)
				case iy:
					v = d.Wrap(1, v)
				case iz:
					v = d.Wrap(2, v)
				}
			}
			putWord(rec, w, v)
			w++
		}
		for i := 0; i < vint.Vars(); i++ {
			putWord(rec, w, float64(vint.At(i, n)))
			w++
		}

		if err := ex.pool.MarkForRemoval(n); err != nil { return err }
	}

	ex.pool.ReapMarked()

	for i := range ex.channels {
		if err := ex.tr.Issue(i, ex.channels[i].send); err != nil {
			return err
		}
	}

	return nil
}

// Receive runs one poll of the completion phase. Channels whose payloads
// have arrived are unpacked into freshly allocated slots, with periodic
// wraparound reapplied to the restored coordinates, and move to Completed.
// Receive returns true only once no channel is still Waiting; until then
// the caller is expected to call it again later.
func (ex *Exchange) Receive() (bool, error) {
	if ex.Fence != nil { ex.Fence() }

	recordSize := ex.RecordSize()
	counts := make([]int, len(ex.channels))
	total := 0
	for i := range ex.channels {
		ch := &ex.channels[i]
		if ch.status == Waiting {
			if payload, arrived := ex.tr.Poll(i); arrived {
				ch.recv = append(ch.recv[:0], payload...)
				ch.status = Arrived
			}
		}
		if ch.status == Arrived {
			if len(ch.recv)%recordSize != 0 {
				return false, errs.Invariantf(
					"Channel %d received %d bytes, which is not a multiple "+
						"of the %d-byte record size.",
					i, len(ch.recv), recordSize,
				)
			}
			counts[i] = len(ch.recv) / recordSize
			total += counts[i]
		}
	}

	if total > 0 {
		slots, err := ex.pool.Allocate(total)
		if err != nil { return false, err }

		vreal := ex.store.PackAllReals()
		vint := ex.store.PackAllInts()
		ix, _ := vreal.Offset("x")
		iy, _ := vreal.Offset("y")
		iz, _ := vreal.Offset("z")
		d := ex.topo.Domain

		s := 0
		for i := range ex.channels {
			if ex.channels[i].status != Arrived { continue }
			buf := ex.channels[i].recv
			for r := 0; r < counts[i]; r++ {
				n := slots[s]
				s++
				rec := buf[r*recordSize:]

				w := 0
				for v := 0; v < vreal.Vars(); v++ {
					vreal.Set(v, n, getWord(rec, w))
					w++
				}
				for v := 0; v < vint.Vars(); v++ {
					vint.Set(v, n, int64(getWord(rec, w)))
					w++
				}

				vreal.Set(ix, n, d.Wrap(0, vreal.At(ix, n)))
				vreal.Set(iy, n, d.Wrap(1, vreal.At(iy, n)))
				vreal.Set(iz, n, d.Wrap(2, vreal.At(iz, n)))
			}
		}
	}

	done := true
	for i := range ex.channels {
		ch := &ex.channels[i]
		if ch.status == Arrived { ch.status = Completed }
		if ch.status == Waiting { done = false }
	}

	return done, nil
}
