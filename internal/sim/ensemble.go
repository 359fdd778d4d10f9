package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/models"
	"github.com/san-kum/satvoronoi/internal/oracle"
)

// SeedResult is the validation outcome for one seed.
type SeedResult struct {
	Seed          int64
	Frames        int
	Mismatch      *oracle.Mismatch
	MismatchFrame int
}

func (r SeedResult) OK() bool { return r.Mismatch == nil }

// Ensemble validates many seeded scenes concurrently, each with its own
// Simulator on the same devices. Every frame of every run is checked.
type Ensemble struct {
	base    Config
	seed    models.SeedConfig
	devices []compute.Device
	frames  int
	deltaMs int
	limit   int
}

func NewEnsemble(base Config, seed models.SeedConfig, devices []compute.Device, frames, deltaMs int) *Ensemble {
	return &Ensemble{
		base:    base,
		seed:    seed,
		devices: devices,
		frames:  frames,
		deltaMs: deltaMs,
		limit:   runtime.GOMAXPROCS(0),
	}
}

// SetLimit bounds the number of simulators alive at once. n <= 0 means
// GOMAXPROCS.
func (e *Ensemble) SetLimit(n int) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	e.limit = n
}

func (e *Ensemble) Run(ctx context.Context, seeds []int64) ([]SeedResult, error) {
	results := make([]SeedResult, len(seeds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, seed := range seeds {
		g.Go(func() error {
			r, err := e.runSeed(ctx, seed)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Ensemble) runSeed(ctx context.Context, seed int64) (SeedResult, error) {
	res := SeedResult{Seed: seed, MismatchFrame: -1}

	cfg := e.base
	cfg.Bodies = models.NewSatellites(e.seed, models.NewRand(seed))
	cfg.ValidationFrames = e.frames
	cfg.Selector = nil

	s, err := New(cfg, e.devices)
	if err != nil {
		return res, err
	}
	defer s.Close()

	for f := 0; f < e.frames; f++ {
		stats, err := s.Step(ctx, e.deltaMs)
		if err != nil {
			return res, err
		}
		res.Frames++
		if stats.Mismatch != nil {
			res.Mismatch = stats.Mismatch
			res.MismatchFrame = stats.Frame
			break
		}
	}
	return res, nil
}
