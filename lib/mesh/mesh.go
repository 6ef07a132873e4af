/*package mesh holds the small slice of mesh information the particle
subsystem consumes: each block's coordinate bounds, its neighbor list, and
the global periodic domain. The mesh itself (topology discovery, refinement,
load balancing) lives outside this module; a Topology value is treated as
immutable for the duration of one exchange round.*/
package mesh

// Domain is the global simulation box. Only fully periodic domains are
// supported by the particle exchange; the Periodic flags exist so that the
// indexer can reject anything else at build time instead of approximating.
type Domain struct {
	Min, Max [3]float64
	Periodic [3]bool
	// Dim is the mesh dimensionality, 1 to 3. Axes at and above Dim are
	// ignored by bucketing and wraparound.
	Dim int
}

// Wrap applies periodic wraparound along one axis to a coordinate that has
// left the domain. Coordinates inside the domain are returned unchanged.
func (d *Domain) Wrap(axis int, x float64) float64 {
	if x < d.Min[axis] { return d.Max[axis] - (d.Min[axis] - x) }
	if x > d.Max[axis] { return d.Min[axis] + (x - d.Max[axis]) }
	return x
}

// Contains returns true if x lies inside [Min, Max) along every used axis.
func (d *Domain) Contains(x [3]float64) bool {
	for axis := 0; axis < d.Dim; axis++ {
		if x[axis] < d.Min[axis] || x[axis] >= d.Max[axis] {
			return false
		}
	}
	return true
}

// Width returns the domain extent along one axis.
func (d *Domain) Width(axis int) float64 { return d.Max[axis] - d.Min[axis] }

// BlockBounds is the coordinate bounding box of one mesh block.
type BlockBounds struct {
	Min, Max [3]float64
}

// Neighbor describes one neighboring block: its geometric offset in
// {-1,0,1}^dim relative to this block and the rank that owns it. The
// neighbor's position in a Topology's list is its channel id.
type Neighbor struct {
	Offset [3]int
	Rank   int
}

// Topology is everything the particle subsystem knows about one block's
// place in the mesh.
type Topology struct {
	// Rank owning this block.
	Rank int
	// Bounds of this block.
	Bounds BlockBounds
	// Domain shared by the whole mesh.
	Domain *Domain
	// Neighbors in channel order. The zero offset never appears: a
	// particle that stays put is not a neighbor's problem.
	Neighbors []Neighbor
}
