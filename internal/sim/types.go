package sim

import (
	"fmt"
	"time"

	"github.com/san-kum/satvoronoi/internal/dispatch"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/oracle"
)

type Integrator interface {
	Step(bodies dynamo.Bodies, deltaMs int)
}

type Config struct {
	Width    int
	Height   int
	Radius   float32
	Gravity  float32
	SubSteps int

	// ValidationFrames is the number of leading frames checked against the
	// sequential oracle.
	ValidationFrames int

	// Ratios weight each device's share of the rows. Empty means equal.
	Ratios []int
	Local  dynamo.Shape

	// Selector overrides the fixed per-partition shapes, e.g. for a sweep.
	Selector dispatch.ShapeSelector

	// FixedDeltaMs replaces wall-clock frame deltas in Run when positive.
	FixedDeltaMs int

	Bodies dynamo.Bodies
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", dynamo.ErrEmptyImage, c.Width, c.Height)
	}
	if len(c.Bodies) > dynamo.MaxBodies {
		return fmt.Errorf("%w: %d bodies", dynamo.ErrTooManyBodies, len(c.Bodies))
	}
	if c.SubSteps <= 0 {
		return fmt.Errorf("sub-steps must be positive, got %d", c.SubSteps)
	}
	if c.ValidationFrames < 0 {
		return fmt.Errorf("validation frames must not be negative, got %d", c.ValidationFrames)
	}
	return nil
}

type FrameStats struct {
	Frame     int
	DeltaMs   int
	Physics   time.Duration
	Classify  time.Duration
	Composite time.Duration
	Validate  time.Duration
	Total     time.Duration
	Devices   []dispatch.DeviceTiming
	Validated bool
	Mismatch  *oracle.Mismatch
}

// Shapes lists the local shape each partition ran with.
func (f FrameStats) Shapes() []dynamo.Shape {
	out := make([]dynamo.Shape, len(f.Devices))
	for i, d := range f.Devices {
		out[i] = d.Shape
	}
	return out
}

type Metric interface {
	Name() string
	Observe(f FrameStats)
	Value() float64
	Reset()
}

type Observer interface {
	OnFrame(f FrameStats)
}

// Surface displays finished frames.
type Surface interface {
	Present(img *dynamo.Image) error
}

// MismatchHandler receives validation failures. live and ref are the
// simulator's own images and must not be retained.
type MismatchHandler func(frame int, m *oracle.Mismatch, live, ref *dynamo.Image)

type Result struct {
	Frames     int
	Mismatches int
	Metrics    map[string]float64
	// Shapes holds the local shape each partition ran with on the last frame.
	Shapes []dynamo.Shape
}
