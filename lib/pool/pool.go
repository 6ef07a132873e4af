/*package pool owns the active/free bookkeeping for the slots of a particle
swarm. A slot is an index into the swarm's capacity-sized attribute arrays;
it is either active or on the free list, never both. Slots are deactivated
lazily through a mark-then-reap cycle so in-flight iteration over the active
range is never disrupted, and the active range is compacted explicitly with
Defrag.

A pool is owned exclusively by one swarm instance per mesh block. None of
its methods are safe for concurrent use: the free-list bookkeeping in
ReapMarked and Defrag is strictly sequential by design.*/
package pool

import (
	"sort"

	"github.com/eapache/queue"

	errs "github.com/meshforge/swarm/lib/error"
)

// Mover is storage that must change in lockstep with the pool's mask:
// Resize is called when the pool grows and Move when Defrag relocates
// active slots. It is implemented by particles.Store.
type Mover interface {
	Resize(newCapacity int) error
	Move(from, to []int) error
}

// GrowthPolicy decides the new capacity when Allocate finds deficit fewer
// free slots than it needs. The returned capacity must be at least
// capacity+deficit so that a single growth step satisfies the request.
type GrowthPolicy func(capacity, deficit int) int

// DoubleCapacity is the default GrowthPolicy. It doubles the pool, or grows
// exactly far enough if doubling would not cover the deficit.
func DoubleCapacity(capacity, deficit int) int {
	n := 2 * capacity
	if n < capacity+deficit { n = capacity + deficit }
	return n
}

// Pool tracks which slots in [0, capacity) are active. The invariants are
// that the active set and the free list partition [0, capacity), and that
// MaxActiveIndex+1 never undershoots the active count.
type Pool struct {
	capacity  int
	active    int
	maxActive int

	mask   []bool
	marked []bool
	free   *queue.Queue

	grow   GrowthPolicy
	movers []Mover
}

// New creates a pool with the given initial capacity and growth policy.
// Passing a nil policy selects DoubleCapacity.
func New(capacity int, grow GrowthPolicy) *Pool {
	if grow == nil { grow = DoubleCapacity }

	p := &Pool{
		capacity:  capacity,
		maxActive: -1,
		mask:      make([]bool, capacity),
		marked:    make([]bool, capacity),
		free:      queue.New(),
		grow:      grow,
	}
	for n := 0; n < capacity; n++ {
		p.free.Add(n)
	}

	return p
}

// Attach registers storage that will be resized and relocated together
// with the pool's bookkeeping.
func (p *Pool) Attach(m Mover) { p.movers = append(p.movers, m) }

// Capacity returns the total number of slots, active or free.
func (p *Pool) Capacity() int { return p.capacity }

// ActiveCount returns the number of active slots.
func (p *Pool) ActiveCount() int { return p.active }

// FreeCount returns the number of slots on the free list.
func (p *Pool) FreeCount() int { return p.free.Length() }

// MaxActiveIndex returns an upper bound on the highest active slot index,
// or -1 if no slot has ever been active. Loops over active particles only
// need to scan [0, MaxActiveIndex].
func (p *Pool) MaxActiveIndex() int { return p.maxActive }

// IsActive returns true if n indexes an active slot.
func (p *Pool) IsActive(n int) bool {
	return n >= 0 && n < p.capacity && p.mask[n]
}

// Mask returns a snapshot copy of the active mask.
func (p *Pool) Mask() []bool {
	mask := make([]bool, p.capacity)
	copy(mask, p.mask)
	return mask
}

// FreeIndices returns a snapshot copy of the free list in pop order.
func (p *Pool) FreeIndices() []int {
	free := make([]int, p.free.Length())
	for i := range free {
		free[i] = p.free.Get(i).(int)
	}
	return free
}

// Allocate activates n slots and returns their indices. If the free list
// holds fewer than n slots the pool grows once, to the capacity chosen by
// its growth policy, before allocating. The new slots' attribute memory is
// not sanitized.
func (p *Pool) Allocate(n int) ([]int, error) {
	if n <= 0 {
		return nil, errs.Preconditionf(
			"Attempted to allocate %d particles, but allocations must "+
				"activate at least 1 slot.", n,
		)
	}

	if p.free.Length() < n {
		deficit := n - p.free.Length()
		target := p.grow(p.capacity, deficit)
		if target < p.capacity+deficit {
			return nil, errs.Preconditionf(
				"The growth policy chose capacity %d, but at least %d slots "+
					"are needed.", target, p.capacity+deficit,
			)
		}
		if err := p.Resize(target); err != nil { return nil, err }
	}

	idx := make([]int, n)
	for i := 0; i < n; i++ {
		j := p.free.Remove().(int)
		p.mask[j] = true
		p.marked[j] = false
		if j > p.maxActive { p.maxActive = j }
		idx[i] = j
	}
	p.active += n

	return idx, nil
}

// Resize grows the pool to newCapacity slots. The added slots join the free
// list and every attached Mover reallocates to match. Pools never shrink,
// and resizing never invalidates indices below the old capacity.
func (p *Pool) Resize(newCapacity int) error {
	if newCapacity <= p.capacity {
		return errs.Preconditionf(
			"Pools only grow: requested capacity %d, but the pool already "+
				"holds %d slots.", newCapacity, p.capacity,
		)
	}

	mask := make([]bool, newCapacity)
	copy(mask, p.mask)
	p.mask = mask

	marked := make([]bool, newCapacity)
	copy(marked, p.marked)
	p.marked = marked

	for n := p.capacity; n < newCapacity; n++ {
		p.free.Add(n)
	}

	for _, m := range p.movers {
		if err := m.Resize(newCapacity); err != nil { return err }
	}

	p.capacity = newCapacity
	return nil
}

// MarkForRemoval flags an active slot for deactivation by the next
// ReapMarked call. The slot stays active until then.
func (p *Pool) MarkForRemoval(n int) error {
	if n < 0 || n >= p.capacity || !p.mask[n] {
		return errs.Preconditionf(
			"Slot %d is not active and cannot be marked for removal.", n,
		)
	}
	p.marked[n] = true
	return nil
}

// ReapMarked deactivates every slot flagged by MarkForRemoval and returns
// its index to the free list. The pass runs from MaxActiveIndex down to 0
// so that MaxActiveIndex shrinks past any removed top slots. Calling it
// with no pending marks is a no-op.
func (p *Pool) ReapMarked() {
	for n := p.maxActive; n >= 0; n-- {
		if p.mask[n] && p.marked[n] {
			p.mask[n] = false
			p.marked[n] = false
			p.free.Add(n)
			p.active--
			if n == p.maxActive { p.maxActive-- }
		}
	}
}

// Defrag compacts the active slots into [0, ActiveCount) without changing
// their count, restoring MaxActiveIndex == ActiveCount-1. Active slots
// above the boundary are walked downwards and relocated into the lowest
// free indices; the relocation is then applied to the mask and, through
// Move, to every attached attribute array. Slot indices held outside the
// pool are invalidated by the relocation.
func (p *Pool) Defrag() error {
	if p.active == 0 || p.maxActive == p.active-1 { return nil }

	frees := make([]int, 0, p.free.Length())
	for p.free.Length() > 0 {
		frees = append(frees, p.free.Remove().(int))
	}
	sort.Ints(frees)

	// Exactly as many free slots sit below the boundary as active slots sit
	// above it, and sorting put them first.
	from, to := []int{ }, []int{ }
	i := 0
	for n := p.maxActive; n >= p.active; n-- {
		if !p.mask[n] { continue }
		from = append(from, n)
		to = append(to, frees[i])
		i++
	}

	for j := range from {
		p.mask[to[j]] = true
		p.mask[from[j]] = false
		p.marked[to[j]] = p.marked[from[j]]
		p.marked[from[j]] = false
	}

	// The active set is now exactly [0, active), so the free list is the
	// upper tail.
	for n := p.active; n < p.capacity; n++ {
		p.free.Add(n)
	}
	p.maxActive = p.active - 1

	for _, m := range p.movers {
		if err := m.Move(from, to); err != nil { return err }
	}

	return nil
}
