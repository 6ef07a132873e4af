/*package swarm ties the particle pool, attribute store, neighbor indexer,
and boundary exchange together for one mesh block. A Swarm is exclusively
owned: attribute arrays and bookkeeping are never shared between blocks, and
the exchange's channel buffers are the only cross-block path. This is what
makes per-block execution safe without locks.*/
package swarm

import (
	"gonum.org/v1/gonum/floats"

	errs "github.com/meshforge/swarm/lib/error"
	"github.com/meshforge/swarm/lib/exchange"
	"github.com/meshforge/swarm/lib/mesh"
	"github.com/meshforge/swarm/lib/neighbor"
	"github.com/meshforge/swarm/lib/particles"
	"github.com/meshforge/swarm/lib/pool"
)

// Swarm is the particle population of one mesh block.
type Swarm struct {
	Label string

	pool  *pool.Pool
	store *particles.Store
	topo  *mesh.Topology
	ex    *exchange.Exchange
}

// New creates a swarm with the given label and initial pool capacity. The
// coordinate attributes "x", "y", and "z" are always registered. A nil
// growth policy selects pool.DoubleCapacity.
func New(
	label string, capacity int, grow pool.GrowthPolicy,
	topo *mesh.Topology, tr exchange.Transport,
) (*Swarm, error) {
	if capacity <= 0 {
		return nil, errs.Preconditionf(
			"The swarm '%s' needs a positive initial capacity, not %d.",
			label, capacity,
		)
	}

	store := particles.NewStore(capacity)
	p := pool.New(capacity, grow)
	p.Attach(store)

	for _, coord := range []string{ "x", "y", "z" } {
		if err := store.Add(coord, particles.Real); err != nil {
			return nil, err
		}
	}

	idx, err := neighbor.Build(topo)
	if err != nil { return nil, err }

	ex, err := exchange.New(p, store, idx, topo, tr)
	if err != nil { return nil, err }

	return &Swarm{ Label: label, pool: p, store: store, topo: topo, ex: ex }, nil
}

// Pool returns the swarm's slot bookkeeping.
func (sw *Swarm) Pool() *pool.Pool { return sw.pool }

// Store returns the swarm's attribute arrays.
func (sw *Swarm) Store() *particles.Store { return sw.store }

// Exchange returns the swarm's boundary exchange.
func (sw *Swarm) Exchange() *exchange.Exchange { return sw.ex }

// Topology returns the block topology the swarm was built over.
func (sw *Swarm) Topology() *mesh.Topology { return sw.topo }

// Add registers a new attribute array.
func (sw *Swarm) Add(label string, kind particles.Kind) error {
	return sw.store.Add(label, kind)
}

// Remove drops an attribute array.
func (sw *Swarm) Remove(label string) error { return sw.store.Remove(label) }

// AddParticles activates n slots and returns their indices. The new
// particles' attribute memory is not sanitized: the caller is expected to
// fill in every field, including the coordinates.
func (sw *Swarm) AddParticles(n int) ([]int, error) {
	return sw.pool.Allocate(n)
}

// MarkForRemoval flags an active particle for the next ReapMarked.
func (sw *Swarm) MarkForRemoval(n int) error {
	return sw.pool.MarkForRemoval(n)
}

// ReapMarked deactivates every marked particle.
func (sw *Swarm) ReapMarked() { sw.pool.ReapMarked() }

// Defrag compacts the active particles into the lowest slot range. Any
// slot index held outside the swarm is invalidated.
func (sw *Swarm) Defrag() error { return sw.pool.Defrag() }

// Send starts one communication round. See exchange.Exchange.Send.
func (sw *Swarm) Send() error { return sw.ex.Send() }

// Receive polls one communication round to completion. See
// exchange.Exchange.Receive.
func (sw *Swarm) Receive() (bool, error) { return sw.ex.Receive() }

// ActiveCount returns the number of active particles.
func (sw *Swarm) ActiveCount() int { return sw.pool.ActiveCount() }

// Capacity returns the pool capacity.
func (sw *Swarm) Capacity() int { return sw.pool.Capacity() }

// Real returns the array backing a Real attribute.
func (sw *Swarm) Real(label string) ([]float64, error) {
	return sw.store.Real(label)
}

// Int returns the array backing an Integer attribute.
func (sw *Swarm) Int(label string) ([]int64, error) {
	return sw.store.Int(label)
}

// ActiveBounds returns the axis-aligned bounding box of the active
// particles' coordinates. It fails if the swarm is empty.
func (sw *Swarm) ActiveBounds() (min, max [3]float64, err error) {
	if sw.pool.ActiveCount() == 0 {
		return min, max, errs.Preconditionf(
			"The swarm '%s' has no active particles to bound.", sw.Label,
		)
	}

	buf := make([]float64, 0, sw.pool.ActiveCount())
	for axis, label := range []string{ "x", "y", "z" } {
		x, err := sw.store.Real(label)
		if err != nil { return min, max, err }

		buf = buf[:0]
		for n := 0; n <= sw.pool.MaxActiveIndex(); n++ {
			if sw.pool.IsActive(n) { buf = append(buf, x[n]) }
		}

		min[axis] = floats.Min(buf)
		max[axis] = floats.Max(buf)
	}

	return min, max, nil
}
