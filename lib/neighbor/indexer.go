/*package neighbor maps particle positions to destination channels. The
Indexer is built once per mesh configuration: it buckets each axis of a
block's neighborhood into four ranges (outer-negative, inner-lower,
inner-upper, outer-positive) and precomputes which channel each bucket
combination routes to. Lookups afterwards are three compares per axis and
one table read.*/
package neighbor

import (
	errs "github.com/meshforge/swarm/lib/error"
	"github.com/meshforge/swarm/lib/mesh"
)

// LocalChannel is the destination of a particle that stays on its own
// block.
const LocalChannel = -1

const buckets = 4

// Indexer is the precomputed bucket-to-channel table for one block.
type Indexer struct {
	dim   int
	table [buckets][buckets][buckets]int
}

// bucketRange returns the inclusive bucket range covered by a neighbor
// offset along one axis. Axes beyond the mesh dimensionality collapse to
// the full range so lower-dimensional meshes reuse the same table.
func bucketRange(offset int, used bool) (lo, hi int) {
	if !used { return 0, buckets - 1 }
	switch offset {
	case -1:
		return 0, 0
	case 0:
		return 1, 2
	}
	return 3, 3
}

// axisBucket classifies a coordinate against a block's extent along one
// axis: 0 below the block, 1 and 2 for the lower and upper interior
// halves, 3 above the block.
func axisBucket(x, min, max float64) int {
	mid := min + 0.5*(max-min)
	switch {
	case x < min:
		return 0
	case x < mid:
		return 1
	case x < max:
		return 2
	}
	return 3
}

// Build constructs the Indexer for one block from its topology. Every mesh
// boundary must be periodic; anything else fails with a configuration
// error rather than being silently approximated. Build also requires the
// neighbor list to cover every non-interior bucket, which holds for any
// complete periodic neighborhood.
func Build(topo *mesh.Topology) (*Indexer, error) {
	d := topo.Domain
	if d.Dim < 1 || d.Dim > 3 {
		return nil, errs.Configf(
			"The mesh dimensionality must be 1, 2, or 3, but is %d.", d.Dim,
		)
	}
	for axis := 0; axis < d.Dim; axis++ {
		if !d.Periodic[axis] {
			return nil, errs.Configf(
				"Axis %d is not periodic. Only fully periodic domains are "+
					"supported.", axis,
			)
		}
	}

	idx := &Indexer{ dim: d.Dim }
	assigned := [buckets][buckets][buckets]bool{ }

	assign := func(offset [3]int, channel int) error {
		for axis := 0; axis < 3; axis++ {
			if offset[axis] < -1 || offset[axis] > 1 {
				return errs.Configf(
					"Neighbor offset %d along axis %d is outside {-1,0,1}.",
					offset[axis], axis,
				)
			}
			if axis >= d.Dim && offset[axis] != 0 {
				return errs.Configf(
					"Neighbor offset %d along axis %d exceeds the mesh "+
						"dimensionality %d.", offset[axis], axis, d.Dim,
				)
			}
		}

		ilo, ihi := bucketRange(offset[0], true)
		jlo, jhi := bucketRange(offset[1], d.Dim >= 2)
		klo, khi := bucketRange(offset[2], d.Dim >= 3)
		for k := klo; k <= khi; k++ {
			for j := jlo; j <= jhi; j++ {
				for i := ilo; i <= ihi; i++ {
					idx.table[k][j][i] = channel
					assigned[k][j][i] = true
				}
			}
		}
		return nil
	}

	// The interior buckets route to this block itself.
	if err := assign([3]int{ }, LocalChannel); err != nil { return nil, err }

	for n := range topo.Neighbors {
		offset := topo.Neighbors[n].Offset
		if offset == ([3]int{ }) {
			return nil, errs.Configf(
				"Neighbor %d has a zero offset, which is this block itself.",
				n,
			)
		}
		if err := assign(offset, n); err != nil { return nil, err }
	}

	// With periodic boundaries every outward bucket must route somewhere.
	im, jm, km := buckets, 1, 1
	if d.Dim >= 2 { jm = buckets }
	if d.Dim >= 3 { km = buckets }
	for k := 0; k < km; k++ {
		for j := 0; j < jm; j++ {
			for i := 0; i < im; i++ {
				if !assigned[k][j][i] {
					return nil, errs.Configf(
						"No neighbor covers bucket (%d, %d, %d). The "+
							"neighbor list is incomplete.", i, j, k,
					)
				}
			}
		}
	}

	return idx, nil
}

// Dim returns the dimensionality the Indexer was built for.
func (idx *Indexer) Dim() int { return idx.dim }

// Lookup classifies a position against a block's bounds and returns the
// channel its particle should be sent over, or LocalChannel if the
// position is interior along every used axis.
func (idx *Indexer) Lookup(x [3]float64, b mesh.BlockBounds) int {
	var bucket [3]int
	for axis := 0; axis < idx.dim; axis++ {
		bucket[axis] = axisBucket(x[axis], b.Min[axis], b.Max[axis])
	}
	return idx.table[bucket[2]][bucket[1]][bucket[0]]
}
