package mesh

import (
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func testDomain() *Domain {
	return &Domain{
		Min:      [3]float64{ 0, -1, 10 },
		Max:      [3]float64{ 1, 1, 20 },
		Periodic: [3]bool{ true, true, true },
		Dim:      3,
	}
}

func TestWrap(t *testing.T) {
	d := testDomain()

	tests := []struct {
		axis  int
		x, out float64
	}{
		{ 0, 0.5, 0.5 },
		{ 0, 0.0, 0.0 },
		{ 0, -0.1, 0.9 },
		{ 0, 1.1, 0.1 },
		{ 1, -1.25, 0.75 },
		{ 1, 1.5, -0.5 },
		{ 2, 9.0, 19.0 },
		{ 2, 21.0, 11.0 },
	}

	for i := range tests {
		out := d.Wrap(tests[i].axis, tests[i].x)
		if !scalar.EqualWithinAbs(out, tests[i].out, 1e-12) {
			t.Errorf("%d) Expected Wrap(%d, %g) = %g, got %g.",
				i, tests[i].axis, tests[i].x, tests[i].out, out)
		}
	}
}

func TestContains(t *testing.T) {
	d := testDomain()

	tests := []struct {
		x  [3]float64
		in bool
	}{
		{ [3]float64{ 0.5, 0, 15 }, true },
		{ [3]float64{ 0, -1, 10 }, true },
		{ [3]float64{ 1, 0, 15 }, false },
		{ [3]float64{ 0.5, 0, 20 }, false },
		{ [3]float64{ -0.1, 0, 15 }, false },
	}

	for i := range tests {
		if d.Contains(tests[i].x) != tests[i].in {
			t.Errorf("%d) Expected Contains(%v) = %v.",
				i, tests[i].x, tests[i].in)
		}
	}

	// Unused axes are ignored.
	d.Dim = 1
	if !d.Contains([3]float64{ 0.5, 100, -100 }) {
		t.Errorf("Expected a 1d domain to ignore the y and z coordinates.")
	}
}

func TestWidth(t *testing.T) {
	d := testDomain()
	widths := []float64{ 1, 2, 10 }
	for axis := range widths {
		if d.Width(axis) != widths[axis] {
			t.Errorf("Expected Width(%d) = %g, got %g.",
				axis, widths[axis], d.Width(axis))
		}
	}
}
