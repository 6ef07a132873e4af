/*package config parses the driver's gcfg-format configuration files and
validates them into the mesh and pool parameters the library consumes. A
minimal 2D config looks like this:

    [domain]
    dim = 2
    xmin = 0.0
    xmax = 1.0
    ymin = 0.0
    ymax = 1.0

    [grid]
    nx = 4
    ny = 4

    [pool]
    capacity = 1024

    [run]
    steps = 100
    particles = 4096
    dt = 0.01
*/
package config

import (
	"gopkg.in/gcfg.v1"

	errs "github.com/meshforge/swarm/lib/error"
	"github.com/meshforge/swarm/lib/mesh"
)

// Config holds the raw values of every config variable. Field names match
// the lower-cased variable names in the file.
type Config struct {
	Domain struct {
		Dim                                int
		Xmin, Xmax, Ymin, Ymax, Zmin, Zmax float64
		Periodic                           bool
	}
	Grid struct {
		Nx, Ny, Nz int
	}
	Pool struct {
		Capacity int
	}
	Run struct {
		Steps       int
		Particles   int
		Dt          float64
		DefragEvery int
		Seed        int64
		// Checkpoint, when set, is the base path per-block snapshots are
		// written to after the last step.
		Checkpoint string
	}
}

// Read parses and validates a config file.
func Read(fileName string) (*Config, error) {
	cfg := &Config{ }
	// Defaults for everything the file may leave out.
	cfg.Domain.Periodic = true
	cfg.Grid.Nx, cfg.Grid.Ny, cfg.Grid.Nz = 1, 1, 1
	cfg.Run.Dt = 0.01
	cfg.Run.DefragEvery = 10
	cfg.Run.Seed = 1

	if err := gcfg.ReadFileInto(cfg, fileName); err != nil {
		return nil, errs.Configf(
			"Could not parse the config file '%s': %v", fileName, err,
		)
	}

	if err := cfg.validate(); err != nil { return nil, err }
	return cfg, nil
}

func (cfg *Config) validate() error {
	d := &cfg.Domain
	if d.Dim < 1 || d.Dim > 3 {
		return errs.Configf("dim must be 1, 2, or 3, but is %d.", d.Dim)
	}
	if !d.Periodic {
		return errs.Configf(
			"periodic = false is not supported: the particle exchange " +
				"requires every mesh boundary to be periodic.",
		)
	}

	mins := []float64{ d.Xmin, d.Ymin, d.Zmin }
	maxes := []float64{ d.Xmax, d.Ymax, d.Zmax }
	names := []string{ "x", "y", "z" }
	for axis := 0; axis < d.Dim; axis++ {
		if maxes[axis] <= mins[axis] {
			return errs.Configf(
				"%smax (%g) must be greater than %smin (%g).",
				names[axis], maxes[axis], names[axis], mins[axis],
			)
		}
	}

	blocks := []int{ cfg.Grid.Nx, cfg.Grid.Ny, cfg.Grid.Nz }
	for axis := 0; axis < d.Dim; axis++ {
		if blocks[axis] < 1 {
			return errs.Configf(
				"n%s must be at least 1, but is %d.",
				names[axis], blocks[axis],
			)
		}
	}
	for axis := d.Dim; axis < 3; axis++ {
		if blocks[axis] != 1 {
			return errs.Configf(
				"n%s is %d, but axis %d is beyond dim = %d.",
				names[axis], blocks[axis], axis, d.Dim,
			)
		}
	}

	if cfg.Pool.Capacity <= 0 {
		return errs.Configf(
			"capacity must be positive, but is %d.", cfg.Pool.Capacity,
		)
	}
	if cfg.Run.Steps < 0 || cfg.Run.Particles < 0 {
		return errs.Configf(
			"steps (%d) and particles (%d) cannot be negative.",
			cfg.Run.Steps, cfg.Run.Particles,
		)
	}
	if cfg.Run.DefragEvery < 1 {
		return errs.Configf(
			"defragevery must be at least 1, but is %d.", cfg.Run.DefragEvery,
		)
	}

	return nil
}

// MeshDomain converts the config's domain section into a mesh.Domain.
// Unused axes get nominal unit extents so wraparound along them stays
// harmless.
func (cfg *Config) MeshDomain() *mesh.Domain {
	d := &mesh.Domain{ Dim: cfg.Domain.Dim }

	mins := []float64{ cfg.Domain.Xmin, cfg.Domain.Ymin, cfg.Domain.Zmin }
	maxes := []float64{ cfg.Domain.Xmax, cfg.Domain.Ymax, cfg.Domain.Zmax }
	for axis := 0; axis < 3; axis++ {
		if axis < d.Dim {
			d.Min[axis], d.Max[axis] = mins[axis], maxes[axis]
		} else {
			d.Min[axis], d.Max[axis] = 0, 1
		}
		d.Periodic[axis] = true
	}

	return d
}

// Blocks returns the number of mesh blocks along each axis.
func (cfg *Config) Blocks() [3]int {
	return [3]int{ cfg.Grid.Nx, cfg.Grid.Ny, cfg.Grid.Nz }
}
