/*package particles owns the named, typed per-particle attribute arrays of a
swarm. Every attribute is a capacity-sized array of a single kind (Integer or
Real) registered under a label that is unique across both kinds. The arrays
grow along with the pool that indexes into them and never shrink.*/
package particles

import (
	errs "github.com/meshforge/swarm/lib/error"
)

// Kind is the type tag of an attribute array. It is resolved once at
// registration; no per-access dispatch happens afterwards.
type Kind int

const (
	Integer Kind = iota
	Real
)

// String returns a human-readable name for the Kind.
func (k Kind) String() string {
	switch k {
	case Integer:
		return "Integer"
	case Real:
		return "Real"
	}
	return "Unknown"
}

// Store holds every attribute array of one swarm. The arrays of each kind
// are kept in registration order: that order is the wire layout of the
// boundary exchange, so both sides of a transfer derive the same record
// layout from identical registration sequences.
type Store struct {
	capacity int

	intLabels []string
	intData   [][]int64
	intIndex  map[string]int

	realLabels []string
	realData   [][]float64
	realIndex  map[string]int
}

// NewStore creates an empty attribute store whose arrays will hold capacity
// particle slots.
func NewStore(capacity int) *Store {
	return &Store{
		capacity:  capacity,
		intIndex:  map[string]int{ },
		realIndex: map[string]int{ },
	}
}

// Capacity returns the number of slots in every attribute array.
func (s *Store) Capacity() int { return s.capacity }

// NumInt returns the number of registered Integer attributes.
func (s *Store) NumInt() int { return len(s.intData) }

// NumReal returns the number of registered Real attributes.
func (s *Store) NumReal() int { return len(s.realData) }

// IntLabels returns the Integer attribute labels in registration order.
func (s *Store) IntLabels() []string {
	return append([]string{ }, s.intLabels...)
}

// RealLabels returns the Real attribute labels in registration order.
func (s *Store) RealLabels() []string {
	return append([]string{ }, s.realLabels...)
}

// Add registers a new attribute array of the given kind. Labels must be
// unique across both kinds, so registering "id" as Real after registering it
// as Integer is an error.
func (s *Store) Add(label string, kind Kind) error {
	if _, ok := s.intIndex[label]; ok {
		return errs.Preconditionf(
			"The attribute '%s' is already registered.", label,
		)
	} else if _, ok := s.realIndex[label]; ok {
		return errs.Preconditionf(
			"The attribute '%s' is already registered.", label,
		)
	}

	switch kind {
	case Integer:
		s.intIndex[label] = len(s.intData)
		s.intLabels = append(s.intLabels, label)
		s.intData = append(s.intData, make([]int64, s.capacity))
	case Real:
		s.realIndex[label] = len(s.realData)
		s.realLabels = append(s.realLabels, label)
		s.realData = append(s.realData, make([]float64, s.capacity))
	default:
		return errs.Preconditionf(
			"'%d' is not a valid attribute kind.", int(kind),
		)
	}

	return nil
}

// Remove drops an attribute array. The last array of the same kind is
// swapped into its place, so registration order is not preserved across
// removals.
func (s *Store) Remove(label string) error {
	if i, ok := s.intIndex[label]; ok {
		last := len(s.intData) - 1
		s.intData[i] = s.intData[last]
		s.intData = s.intData[:last]
		s.intLabels[i] = s.intLabels[last]
		s.intLabels = s.intLabels[:last]
		delete(s.intIndex, label)
		if i != last { s.intIndex[s.intLabels[i]] = i }
		return nil
	}

	if i, ok := s.realIndex[label]; ok {
		last := len(s.realData) - 1
		s.realData[i] = s.realData[last]
		s.realData = s.realData[:last]
		s.realLabels[i] = s.realLabels[last]
		s.realLabels = s.realLabels[:last]
		delete(s.realIndex, label)
		if i != last { s.realIndex[s.realLabels[i]] = i }
		return nil
	}

	return errs.Preconditionf(
		"The attribute '%s' is not registered and cannot be removed.", label,
	)
}

// Int returns the array backing an Integer attribute.
func (s *Store) Int(label string) ([]int64, error) {
	i, ok := s.intIndex[label]
	if !ok {
		return nil, errs.Preconditionf(
			"'%s' is not a registered Integer attribute.", label,
		)
	}
	return s.intData[i], nil
}

// Real returns the array backing a Real attribute.
func (s *Store) Real(label string) ([]float64, error) {
	i, ok := s.realIndex[label]
	if !ok {
		return nil, errs.Preconditionf(
			"'%s' is not a registered Real attribute.", label,
		)
	}
	return s.realData[i], nil
}

// Resize reallocates every attribute array to hold newCapacity slots,
// copying the old contents. Arrays never shrink.
func (s *Store) Resize(newCapacity int) error {
	if newCapacity <= s.capacity {
		return errs.Preconditionf(
			"Attribute arrays only grow: requested capacity %d, but the "+
				"store already holds %d slots.", newCapacity, s.capacity,
		)
	}

	for i := range s.intData {
		x := make([]int64, newCapacity)
		copy(x, s.intData[i])
		s.intData[i] = x
	}
	for i := range s.realData {
		x := make([]float64, newCapacity)
		copy(x, s.realData[i])
		s.realData[i] = x
	}

	s.capacity = newCapacity
	return nil
}

// Move copies the values at the indices 'from' to the indices 'to' in every
// attribute array. These indices are passed as arrays to amortize the cost
// of error handling over whole relocation batches.
func (s *Store) Move(from, to []int) error {
	if len(from) != len(to) {
		return errs.Preconditionf(
			"'from' index array has length %d, but 'to' has length %d.",
			len(from), len(to),
		)
	}

	for i := range s.intData {
		x := s.intData[i]
		for j := range from {
			x[to[j]] = x[from[j]]
		}
	}
	for i := range s.realData {
		x := s.realData[i]
		for j := range from {
			x[to[j]] = x[from[j]]
		}
	}

	return nil
}
