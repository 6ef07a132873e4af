package particles

/* pack.go builds dense views over selected attribute arrays so that loops
touching several attributes per particle don't pay a map lookup per access. */

import (
	errs "github.com/meshforge/swarm/lib/error"
)

// RealPack is a dense, order-stable view over a selected set of Real
// attribute arrays. Offsets within the pack follow the order of the label
// list it was built from.
type RealPack struct {
	data   [][]float64
	offset map[string]int
}

// IntPack is a dense, order-stable view over a selected set of Integer
// attribute arrays.
type IntPack struct {
	data   [][]int64
	offset map[string]int
}

// PackReals builds a RealPack over the given labels. Unknown and repeated
// labels are errors.
func (s *Store) PackReals(labels []string) (*RealPack, error) {
	p := &RealPack{ offset: map[string]int{ } }
	for i, label := range labels {
		x, err := s.Real(label)
		if err != nil { return nil, err }
		if _, ok := p.offset[label]; ok {
			return nil, errs.Preconditionf(
				"The attribute '%s' appears twice in the pack.", label,
			)
		}
		p.data = append(p.data, x)
		p.offset[label] = i
	}
	return p, nil
}

// PackInts builds an IntPack over the given labels. Unknown and repeated
// labels are errors.
func (s *Store) PackInts(labels []string) (*IntPack, error) {
	p := &IntPack{ offset: map[string]int{ } }
	for i, label := range labels {
		x, err := s.Int(label)
		if err != nil { return nil, err }
		if _, ok := p.offset[label]; ok {
			return nil, errs.Preconditionf(
				"The attribute '%s' appears twice in the pack.", label,
			)
		}
		p.data = append(p.data, x)
		p.offset[label] = i
	}
	return p, nil
}

// PackAllReals packs every Real attribute in registration order. This is
// the layout the boundary exchange writes to the wire.
func (s *Store) PackAllReals() *RealPack {
	p, _ := s.PackReals(s.realLabels)
	return p
}

// PackAllInts packs every Integer attribute in registration order.
func (s *Store) PackAllInts() *IntPack {
	p, _ := s.PackInts(s.intLabels)
	return p
}

// Vars returns the number of attributes in the pack.
func (p *RealPack) Vars() int { return len(p.data) }

// Offset returns the position of a label within the pack.
func (p *RealPack) Offset(label string) (int, bool) {
	i, ok := p.offset[label]
	return i, ok
}

// At returns the value of the i-th packed attribute at slot n.
func (p *RealPack) At(i, n int) float64 { return p.data[i][n] }

// Set assigns the value of the i-th packed attribute at slot n.
func (p *RealPack) Set(i, n int, v float64) { p.data[i][n] = v }

// Vars returns the number of attributes in the pack.
func (p *IntPack) Vars() int { return len(p.data) }

// Offset returns the position of a label within the pack.
func (p *IntPack) Offset(label string) (int, bool) {
	i, ok := p.offset[label]
	return i, ok
}

// At returns the value of the i-th packed attribute at slot n.
func (p *IntPack) At(i, n int) int64 { return p.data[i][n] }

// Set assigns the value of the i-th packed attribute at slot n.
func (p *IntPack) Set(i, n int, v int64) { p.data[i][n] = v }
