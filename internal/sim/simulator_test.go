package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/models"
	"github.com/san-kum/satvoronoi/internal/oracle"
)

const (
	testWidth  = 96
	testHeight = 64
)

func hostDevices(n int) []compute.Device {
	out := make([]compute.Device, n)
	for i := range out {
		out[i] = compute.NewHostDevice(compute.HostDeviceConfig{Workers: 2, MaxWorkGroup: 256})
	}
	return out
}

func testConfig(bodies dynamo.Bodies) Config {
	return Config{
		Width:            testWidth,
		Height:           testHeight,
		Radius:           3.16,
		Gravity:          1,
		SubSteps:         100,
		ValidationFrames: 2,
		Local:            dynamo.Shape{X: 32, Y: 1},
		Bodies:           bodies,
	}
}

func seededBodies(count int, seed int64) dynamo.Bodies {
	cfg := models.DefaultSeedConfig(testWidth, testHeight, count)
	cfg.MinOffset, cfg.MaxOffset = 5, 30
	return models.NewSatellites(cfg, models.NewRand(seed))
}

func TestSimulatorMatchesOracle(t *testing.T) {
	tests := []struct {
		name    string
		devices int
		ratios  []int
	}{
		{"single device", 1, nil},
		{"even pair", 2, []int{1, 1}},
		{"uneven pair", 2, []int{14, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(seededBodies(20, 3))
			cfg.Ratios = tt.ratios

			s, err := New(cfg, hostDevices(tt.devices))
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()

			for frame := 0; frame < 3; frame++ {
				stats, err := s.Step(context.Background(), 16)
				if err != nil {
					t.Fatalf("frame %d: %v", frame, err)
				}
				if stats.Validated != (frame < 2) {
					t.Errorf("frame %d validated = %v", frame, stats.Validated)
				}
				if stats.Mismatch != nil {
					t.Fatalf("frame %d: %v", frame, stats.Mismatch)
				}
				if len(stats.Devices) != tt.devices {
					t.Errorf("frame %d has %d device timings", frame, len(stats.Devices))
				}
			}
		})
	}
}

func TestSimulatorCenteredBody(t *testing.T) {
	col := dynamo.Color{R: 0.8, G: 0.2, B: 0.1}
	bodies := models.CenteredBody(testWidth, testHeight, col)

	s, err := New(testConfig(bodies), hostDevices(2))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// The body sits on the attractor, so only zero-length frames are finite.
	for frame := 0; frame < 2; frame++ {
		stats, err := s.Step(context.Background(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Mismatch != nil {
			t.Fatalf("frame %d: %v", frame, stats.Mismatch)
		}
	}

	if s.Bodies()[0] != bodies[0] {
		t.Errorf("body moved: %+v", s.Bodies()[0])
	}

	center := models.Center(testWidth, testHeight)
	img := s.Image()
	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			dx, dy := float32(x)-center.X, float32(y)-center.Y
			want := col
			if dx*dx+dy*dy < 3.16*3.16 {
				want = dynamo.HighlightColor
			}
			if got := img.At(x, y); got != want {
				t.Fatalf("pixel (%d, %d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestSimulatorZeroDeltaKeepsBodies(t *testing.T) {
	bodies := seededBodies(10, 8)
	s, err := New(testConfig(bodies), hostDevices(1))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Step(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	for i := range bodies {
		if s.Bodies()[i] != bodies[i] {
			t.Fatalf("body %d changed on a zero-length frame", i)
		}
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"zero sub-steps", func(c *Config) { c.SubSteps = 0 }},
		{"negative validation", func(c *Config) { c.ValidationFrames = -1 }},
		{"ratio mismatch", func(c *Config) { c.Ratios = []int{1, 2, 3} }},
		{"zero ratio", func(c *Config) { c.Ratios = []int{0, 1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(seededBodies(4, 1))
			tt.mutate(&cfg)
			if _, err := New(cfg, hostDevices(2)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSimulatorNoDevices(t *testing.T) {
	_, err := New(testConfig(nil), nil)
	if !errors.Is(err, dynamo.ErrNoDevices) {
		t.Errorf("err = %v, want ErrNoDevices", err)
	}
}

// corruptDevice wraps a host device and zeroes every downloaded id.
type corruptDevice struct {
	*compute.HostDevice
}

func (d corruptDevice) Open(spec compute.KernelSpec) (compute.Session, error) {
	s, err := d.HostDevice.Open(spec)
	if err != nil {
		return nil, err
	}
	return corruptSession{s}, nil
}

type corruptSession struct {
	compute.Session
}

func (s corruptSession) Download(dst []dynamo.ID, after compute.Event) (compute.Event, error) {
	ev, err := s.Session.Download(dst, after)
	if err != nil {
		return nil, err
	}
	if err := ev.Wait(); err != nil {
		return nil, err
	}
	for i := range dst {
		dst[i] = 0
	}
	return ev, nil
}

func TestSimulatorReportsMismatchAndContinues(t *testing.T) {
	devices := []compute.Device{corruptDevice{compute.NewHostDevice(compute.HostDeviceConfig{})}}
	s, err := New(testConfig(seededBodies(6, 2)), devices)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var reported []int
	s.OnMismatch(func(frame int, m *oracle.Mismatch, live, ref *dynamo.Image) {
		reported = append(reported, frame)
		if live.At(m.X, m.Y) != m.Got || ref.At(m.X, m.Y) != m.Want {
			t.Errorf("mismatch colors do not match the images")
		}
	})

	result, err := s.Run(context.Background(), 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Frames != 4 {
		t.Errorf("ran %d frames, want 4", result.Frames)
	}
	if result.Mismatches != 2 || len(reported) != 2 {
		t.Errorf("mismatches = %d, reported %v; want one per validation frame", result.Mismatches, reported)
	}
}

type countingSurface struct{ frames int }

func (c *countingSurface) Present(img *dynamo.Image) error {
	if img == nil {
		return errors.New("nil frame")
	}
	c.frames++
	return nil
}

type frameCounter struct{ frames []int }

func (f *frameCounter) OnFrame(s FrameStats) { f.frames = append(f.frames, s.Frame) }

type classifyTotal struct{ n int }

func (c *classifyTotal) Name() string       { return "frames" }
func (c *classifyTotal) Observe(FrameStats) { c.n++ }
func (c *classifyTotal) Value() float64     { return float64(c.n) }
func (c *classifyTotal) Reset()             { c.n = 0 }

func TestSimulatorRunPresentsFrames(t *testing.T) {
	cfg := testConfig(seededBodies(8, 4))
	cfg.FixedDeltaMs = 16
	s, err := New(cfg, hostDevices(2))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	surface := &countingSurface{}
	observer := &frameCounter{}
	s.AddObserver(observer)
	s.AddMetric(&classifyTotal{})

	result, err := s.Run(context.Background(), 5, surface)
	if err != nil {
		t.Fatal(err)
	}
	if surface.frames != 5 || result.Frames != 5 {
		t.Errorf("presented %d, ran %d; want 5", surface.frames, result.Frames)
	}
	if len(observer.frames) != 5 || observer.frames[4] != 4 {
		t.Errorf("observer saw frames %v", observer.frames)
	}
	if result.Metrics["frames"] != 5 {
		t.Errorf("metric = %v, want 5", result.Metrics["frames"])
	}
}

func TestSimulatorRunStopsOnCancel(t *testing.T) {
	s, err := New(testConfig(seededBodies(4, 5)), hostDevices(1))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Run(ctx, 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if result.Frames != 0 {
		t.Errorf("ran %d frames after cancellation", result.Frames)
	}
}

func TestSimulatorResultRecordsFallbackShapes(t *testing.T) {
	cfg := testConfig(seededBodies(8, 6))
	cfg.FixedDeltaMs = 16
	devices := []compute.Device{
		compute.NewHostDevice(compute.HostDeviceConfig{Name: "small", Workers: 2, MaxWorkGroup: 16}),
		compute.NewHostDevice(compute.HostDeviceConfig{Name: "large", Workers: 2, MaxWorkGroup: 256}),
	}
	s, err := New(cfg, devices)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	result, err := s.Run(context.Background(), 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mismatches != 0 {
		t.Fatalf("%d mismatches after shape fallback", result.Mismatches)
	}
	if len(result.Shapes) != 2 {
		t.Fatalf("shapes = %v, want two", result.Shapes)
	}
	if !result.Shapes[0].IsAuto() {
		t.Errorf("rejected partition ran %v, want auto", result.Shapes[0])
	}
	if want := (dynamo.Shape{X: 32, Y: 1}); result.Shapes[1] != want {
		t.Errorf("partition 1 ran %v, want %v", result.Shapes[1], want)
	}
}

func TestEnsembleNonPositiveLimit(t *testing.T) {
	seed := models.DefaultSeedConfig(testWidth, testHeight, 6)
	seed.MinOffset, seed.MaxOffset = 5, 30

	for _, limit := range []int{0, -3} {
		e := NewEnsemble(testConfig(nil), seed, hostDevices(1), 1, 16)
		e.SetLimit(limit)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		results, err := e.Run(ctx, []int64{1, 2})
		cancel()
		if err != nil {
			t.Fatalf("limit %d: %v", limit, err)
		}
		if len(results) != 2 || !results[0].OK() || !results[1].OK() {
			t.Errorf("limit %d: results %+v", limit, results)
		}
	}
}

func TestEnsembleValidatesSeeds(t *testing.T) {
	base := testConfig(nil)
	seed := models.DefaultSeedConfig(testWidth, testHeight, 12)
	seed.MinOffset, seed.MaxOffset = 5, 30

	e := NewEnsemble(base, seed, hostDevices(2), 2, 16)
	e.SetLimit(2)

	results, err := e.Run(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if !r.OK() || r.Frames != 2 {
			t.Errorf("seed %d: frames=%d mismatch=%v", r.Seed, r.Frames, r.Mismatch)
		}
	}
}
