package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/satvoronoi/internal/composite"
	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/dispatch"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/integrators"
	"github.com/san-kum/satvoronoi/internal/models"
	"github.com/san-kum/satvoronoi/internal/oracle"
	"github.com/san-kum/satvoronoi/internal/partition"
)

// Simulator owns all per-run state: the body table, the live and oracle
// images and the device sessions. Frames run strictly one after another.
type Simulator struct {
	cfg        Config
	bodies     dynamo.Bodies
	live       *dynamo.Image
	ref        *dynamo.Image
	integrator Integrator
	dispatcher *dispatch.Dispatcher
	pool       *IDPool
	metrics    []Metric
	observers  []Observer
	onMismatch MismatchHandler
	frame      int
}

func New(cfg Config, devices []compute.Device) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	parts, err := partition.Plan(len(devices), cfg.Height, cfg.Ratios, cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("planning partitions: %w", err)
	}

	pool := NewIDPool()
	d, err := dispatch.New(devices, parts, dispatch.Geometry{
		Width:     cfg.Width,
		Height:    cfg.Height,
		BodyCount: len(cfg.Bodies),
		Radius:    cfg.Radius,
	}, dispatch.Options{Selector: cfg.Selector, Buffers: pool})
	if err != nil {
		return nil, err
	}

	for _, p := range parts {
		dynamo.Logger().Debug("partition planned",
			"device", devices[p.Device].Name(),
			"rows", p.Rows(),
			"start", p.RowStart,
			"local", p.Local)
	}

	return &Simulator{
		cfg:        cfg,
		bodies:     cfg.Bodies.Clone(),
		live:       dynamo.NewImage(cfg.Width, cfg.Height),
		ref:        dynamo.NewImage(cfg.Width, cfg.Height),
		integrator: integrators.NewGravity(models.Center(cfg.Width, cfg.Height), cfg.Gravity, cfg.SubSteps),
		dispatcher: d,
		pool:       pool,
	}, nil
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) OnMismatch(h MismatchHandler) { s.onMismatch = h }

// SetIntegrator replaces the gravity integrator.
func (s *Simulator) SetIntegrator(i Integrator) { s.integrator = i }

func (s *Simulator) Bodies() dynamo.Bodies             { return s.bodies }
func (s *Simulator) Image() *dynamo.Image              { return s.live }
func (s *Simulator) Reference() *dynamo.Image          { return s.ref }
func (s *Simulator) Frame() int                        { return s.frame }
func (s *Simulator) Config() Config                    { return s.cfg }
func (s *Simulator) Partitions() []partition.Partition { return s.dispatcher.Partitions() }

// Step runs one frame: integrate, classify on every device, composite and,
// during the validation window, compare against the oracle. A mismatch is
// reported and the frame still counts as done.
func (s *Simulator) Step(ctx context.Context, deltaMs int) (FrameStats, error) {
	stats := FrameStats{Frame: s.frame, DeltaMs: deltaMs}
	frameStart := time.Now()

	start := time.Now()
	s.integrator.Step(s.bodies, deltaMs)
	stats.Physics = time.Since(start)

	start = time.Now()
	results, err := s.dispatcher.Classify(ctx, s.bodies)
	if err != nil {
		return stats, fmt.Errorf("frame %d: %w", s.frame, err)
	}
	stats.Classify = time.Since(start)

	stats.Devices = make([]dispatch.DeviceTiming, len(results))
	for i, r := range results {
		stats.Devices[i] = r.Timing
	}

	start = time.Now()
	err = composite.Compose(s.live, results, s.bodies)
	s.dispatcher.Release(results)
	if err != nil {
		return stats, fmt.Errorf("frame %d: %w", s.frame, err)
	}
	stats.Composite = time.Since(start)

	if s.frame < s.cfg.ValidationFrames {
		start = time.Now()
		oracle.Render(s.ref, s.bodies, s.cfg.Radius)
		stats.Mismatch = oracle.Compare(s.ref, s.live)
		stats.Validated = true
		stats.Validate = time.Since(start)

		if stats.Mismatch != nil {
			dynamo.Logger().Warn("validation mismatch", "frame", s.frame, "err", stats.Mismatch)
			if s.onMismatch != nil {
				s.onMismatch(s.frame, stats.Mismatch, s.live, s.ref)
			}
		} else {
			dynamo.Logger().Info("frame validated", "frame", s.frame)
		}
	}

	stats.Total = time.Since(frameStart)

	for _, m := range s.metrics {
		m.Observe(stats)
	}
	for _, o := range s.observers {
		o.OnFrame(stats)
	}

	s.frame++
	return stats, nil
}

// Run steps frames until ctx is cancelled or frames have run; frames <= 0
// means no limit. Each frame is presented to surface when it is non-nil.
func (s *Simulator) Run(ctx context.Context, frames int, surface Surface) (*Result, error) {
	for _, m := range s.metrics {
		m.Reset()
	}
	result := &Result{Metrics: make(map[string]float64)}

	last := time.Now()
	for frames <= 0 || result.Frames < frames {
		select {
		case <-ctx.Done():
			s.collect(result)
			return result, ctx.Err()
		default:
		}

		delta := s.cfg.FixedDeltaMs
		if delta <= 0 {
			now := time.Now()
			delta = int(now.Sub(last).Milliseconds())
			last = now
		}

		stats, err := s.Step(ctx, delta)
		if err != nil {
			s.collect(result)
			return result, err
		}
		result.Frames++
		result.Shapes = stats.Shapes()
		if stats.Mismatch != nil {
			result.Mismatches++
		}

		if surface != nil {
			if err := surface.Present(s.live); err != nil {
				s.collect(result)
				return result, fmt.Errorf("presenting frame %d: %w", stats.Frame, err)
			}
		}
	}

	s.collect(result)
	return result, nil
}

func (s *Simulator) collect(r *Result) {
	r.Metrics = s.MetricValues()
}

// MetricValues reads every attached metric.
func (s *Simulator) MetricValues() map[string]float64 {
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s *Simulator) Close() error {
	return s.dispatcher.Close()
}
