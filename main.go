package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/meshforge/swarm/lib/config"
	"github.com/meshforge/swarm/lib/error"
	"github.com/meshforge/swarm/lib/exchange"
	"github.com/meshforge/swarm/lib/mesh"
	"github.com/meshforge/swarm/lib/particles"
	"github.com/meshforge/swarm/lib/snapshot"
	"github.com/meshforge/swarm/lib/swarm"
)

func main() {
	if len(os.Args) < 2 {
		error.External(
			"Usage: swarm <mode> [args]. Run 'swarm help' for details.",
		)
	}

	switch mode := os.Args[1]; mode {
	case "help":
		PrintHelp()
	case "drift":
		if len(os.Args) != 3 {
			error.External(
				"The 'drift' mode takes exactly one argument, the config " +
					"file. Run 'swarm help' for details.",
			)
		}
		Drift(os.Args[2])
	default:
		error.External(
			"You attempted to run swarm in the mode '%s', but the only "+
				"valid modes are 'help' and 'drift'.", mode,
		)
	}
}

// PrintHelp prints usage information for the driver.
func PrintHelp() {
	fmt.Println(`swarm - particle exchange demo driver

Modes:
  swarm help             Print this message.
  swarm drift <config>   Partition a periodic box into a grid of blocks,
                         seed particles with random velocities, and drift
                         them across block boundaries for the configured
                         number of steps, checking particle conservation
                         along the way.

See lib/config for the config file format.`)
}

// blockOffsets enumerates the neighbor offsets of a fully periodic block
// in a fixed canonical order. Every block uses the same order, so a
// channel's mirror on the peer is found by looking up the negated offset.
func blockOffsets(dim int) [][3]int {
	zmax, ymax := 0, 0
	if dim >= 2 { ymax = 1 }
	if dim >= 3 { zmax = 1 }

	offsets := [][3]int{ }
	for oz := -zmax; oz <= zmax; oz++ {
		for oy := -ymax; oy <= ymax; oy++ {
			for ox := -1; ox <= 1; ox++ {
				if ox == 0 && oy == 0 && oz == 0 { continue }
				offsets = append(offsets, [3]int{ ox, oy, oz })
			}
		}
	}
	return offsets
}

func wrapBlock(i, n int) int {
	if i < 0 { return i + n }
	if i >= n { return i - n }
	return i
}

// Drift runs the demo simulation described by a config file.
func Drift(configPath string) {
	cfg, err := config.Read(configPath)
	if err != nil { error.External("%v", err) }

	dom := cfg.MeshDomain()
	nb := cfg.Blocks()
	nBlocks := nb[0] * nb[1] * nb[2]
	blockID := func(ix, iy, iz int) int {
		return ix + nb[0]*(iy+nb[1]*iz)
	}

	var width [3]float64
	for axis := 0; axis < 3; axis++ {
		width[axis] = dom.Width(axis) / float64(nb[axis])
	}

	offsets := blockOffsets(dom.Dim)
	mirror := map[[3]int]int{ }
	for i, off := range offsets {
		mirror[off] = i
	}

	lb := exchange.NewLoopback()
	swarms := make([]*swarm.Swarm, nBlocks)
	for iz := 0; iz < nb[2]; iz++ {
		for iy := 0; iy < nb[1]; iy++ {
			for ix := 0; ix < nb[0]; ix++ {
				id := blockID(ix, iy, iz)

				bounds := mesh.BlockBounds{ }
				at := [3]int{ ix, iy, iz }
				for axis := 0; axis < 3; axis++ {
					bounds.Min[axis] = dom.Min[axis] +
						float64(at[axis])*width[axis]
					bounds.Max[axis] = bounds.Min[axis] + width[axis]
				}

				neighbors := make([]mesh.Neighbor, len(offsets))
				routes := make([]exchange.Route, len(offsets))
				for i, off := range offsets {
					peer := blockID(
						wrapBlock(ix+off[0], nb[0]),
						wrapBlock(iy+off[1], nb[1]),
						wrapBlock(iz+off[2], nb[2]),
					)
					neighbors[i] = mesh.Neighbor{ Offset: off, Rank: 0 }
					back := [3]int{ -off[0], -off[1], -off[2] }
					routes[i] = exchange.Route{
						Block: peer, Channel: mirror[back],
					}
				}

				topo := &mesh.Topology{
					Rank: 0, Bounds: bounds, Domain: dom,
					Neighbors: neighbors,
				}
				sw, err := swarm.New(
					fmt.Sprintf("block-%d", id), cfg.Pool.Capacity, nil,
					topo, lb.Endpoint(id, routes),
				)
				if err != nil { error.External("%v", err) }

				for _, label := range []string{ "vx", "vy", "vz" } {
					if err := sw.Add(label, particles.Real); err != nil {
						error.Internal("%v", err)
					}
				}
				if err := sw.Add("id", particles.Integer); err != nil {
					error.Internal("%v", err)
				}

				swarms[id] = sw
			}
		}
	}

	seed(swarms, cfg, dom, width)

	total := cfg.Run.Particles
	for step := 1; step <= cfg.Run.Steps; step++ {
		for _, sw := range swarms {
			drift(sw, dom.Dim, cfg.Run.Dt)
		}
		for _, sw := range swarms {
			if err := sw.Send(); err != nil { error.Internal("%v", err) }
		}
		for {
			allDone := true
			for _, sw := range swarms {
				done, err := sw.Receive()
				if err != nil { error.Internal("%v", err) }
				allDone = allDone && done
			}
			if allDone { break }
		}

		if step%cfg.Run.DefragEvery == 0 {
			for _, sw := range swarms {
				if err := sw.Defrag(); err != nil { error.Internal("%v", err) }
			}
		}

		count := 0
		for _, sw := range swarms {
			count += sw.ActiveCount()
		}
		if count != total {
			error.Internal(
				"Started with %d particles, but step %d ends with %d.",
				total, step, count,
			)
		}

		fmt.Printf("step %4d: %d particles across %d blocks\n",
			step, count, nBlocks)
	}

	for id, sw := range swarms {
		fmt.Printf("block %3d: %5d particles (capacity %d)\n",
			id, sw.ActiveCount(), sw.Capacity())
	}

	if cfg.Run.Checkpoint != "" {
		writeCheckpoints(swarms, cfg.Run.Checkpoint)
	}
}

// seed fills every block with its share of the configured particles,
// uniformly placed inside the block with random velocities.
func seed(
	swarms []*swarm.Swarm, cfg *config.Config,
	dom *mesh.Domain, width [3]float64,
) {
	rng := rand.New(rand.NewSource(cfg.Run.Seed))
	nBlocks := len(swarms)
	nextID := int64(0)

	for b, sw := range swarms {
		count := cfg.Run.Particles / nBlocks
		if b < cfg.Run.Particles%nBlocks { count++ }
		if count == 0 { continue }

		idx, err := sw.AddParticles(count)
		if err != nil { error.Internal("%v", err) }

		bounds := sw.Topology().Bounds
		coords := [3][]float64{ }
		vels := [3][]float64{ }
		for axis, label := range []string{ "x", "y", "z" } {
			coords[axis], err = sw.Real(label)
			if err != nil { error.Internal("%v", err) }
		}
		for axis, label := range []string{ "vx", "vy", "vz" } {
			vels[axis], err = sw.Real(label)
			if err != nil { error.Internal("%v", err) }
		}
		ids, err := sw.Int("id")
		if err != nil { error.Internal("%v", err) }

		for _, n := range idx {
			for axis := 0; axis < 3; axis++ {
				coords[axis][n] = bounds.Min[axis]
				vels[axis][n] = 0
				if axis < dom.Dim {
					coords[axis][n] += rng.Float64() * width[axis]
					// At most 0.3 block widths per step, so particles only
					// ever cross into immediate neighbors.
					vels[axis][n] = (2*rng.Float64() - 1) * 0.3 *
						width[axis] / cfg.Run.Dt
				}
			}
			ids[n] = nextID
			nextID++
		}
	}
}

// drift advances every active particle by its velocity over one step.
func drift(sw *swarm.Swarm, dim int, dt float64) {
	p := sw.Pool()
	x, err := sw.Real("x")
	if err != nil { error.Internal("%v", err) }
	y, err := sw.Real("y")
	if err != nil { error.Internal("%v", err) }
	z, err := sw.Real("z")
	if err != nil { error.Internal("%v", err) }
	vx, err := sw.Real("vx")
	if err != nil { error.Internal("%v", err) }
	vy, err := sw.Real("vy")
	if err != nil { error.Internal("%v", err) }
	vz, err := sw.Real("vz")
	if err != nil { error.Internal("%v", err) }
	coords := [3][]float64{ x, y, z }
	vels := [3][]float64{ vx, vy, vz }

	for n := 0; n <= p.MaxActiveIndex(); n++ {
		if !p.IsActive(n) { continue }
		for axis := 0; axis < dim; axis++ {
			coords[axis][n] += vels[axis][n] * dt
		}
	}
}

func writeCheckpoints(swarms []*swarm.Swarm, base string) {
	for id, sw := range swarms {
		name := fmt.Sprintf("%s.%d", base, id)
		f, err := os.Create(name)
		if err != nil { error.External("%v", err) }
		if err := snapshot.Write(f, sw); err != nil {
			f.Close()
			error.External("%v", err)
		}
		if err := f.Close(); err != nil { error.External("%v", err) }
		fmt.Printf("wrote checkpoint %s\n", name)
	}
}
