package optim

import (
	"context"
	"testing"
	"time"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/dispatch"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/models"
	"github.com/san-kum/satvoronoi/internal/partition"
	"github.com/san-kum/satvoronoi/internal/sim"
)

var (
	shapeA = dynamo.Shape{X: 8, Y: 1}
	shapeB = dynamo.Shape{X: 16, Y: 1}
	shapeC = dynamo.Shape{X: 4, Y: 4}
)

func frame(kernels ...time.Duration) sim.FrameStats {
	stats := sim.FrameStats{Total: 10 * time.Millisecond, Classify: 5 * time.Millisecond}
	for _, k := range kernels {
		stats.Devices = append(stats.Devices, dispatch.DeviceTiming{Rows: 1, Kernel: k})
	}
	return stats
}

func withShapes(stats sim.FrameStats, s *Sweep) sim.FrameStats {
	for i := range stats.Devices {
		stats.Devices[i].Shape = s.Shape(i)
	}
	return stats
}

func TestSweepWalksCandidates(t *testing.T) {
	s := NewSweep(2, []dynamo.Shape{shapeA, shapeB, shapeC}, 2)

	var records []IntervalRecord
	s.OnRecord(func(r IntervalRecord) { records = append(records, r) })

	if s.Shape(0) != shapeA || s.Shape(1) != shapeA {
		t.Fatalf("first candidate not selected")
	}
	next, ok := s.Reject(1, shapeA)
	if !ok || next != shapeB {
		t.Fatalf("Reject = %v, %v; want %v", next, ok, shapeB)
	}

	kernels := [][2]time.Duration{{4, 9}, {2, 7}, {3, 1}}
	for interval := 0; interval < 3; interval++ {
		for f := 0; f < 2; f++ {
			k := kernels[interval]
			s.OnFrame(withShapes(frame(k[0]*time.Millisecond, k[1]*time.Millisecond), s))
		}
		if len(records) != interval+1 {
			t.Fatalf("after interval %d got %d records", interval, len(records))
		}
	}

	if !s.Done() {
		t.Fatal("sweep should be done once every cursor is exhausted")
	}
	if got := records[0].Shapes(); got != "8x1|16x1" {
		t.Errorf("first interval shapes = %q", got)
	}
	if got := records[2].Shapes(); got != "4x4|auto" {
		t.Errorf("last interval shapes = %q", got)
	}
	if records[1].Index != 1 || records[1].Frames != 2 {
		t.Errorf("unexpected record %+v", records[1])
	}
	if records[0].BestFrame != 10*time.Millisecond || records[0].AvgClassify != 5*time.Millisecond {
		t.Errorf("unexpected interval times %+v", records[0])
	}

	best := s.Best()
	if best[0].Shape != shapeB || best[0].Kernel != 2*time.Millisecond {
		t.Errorf("best for part 0 = %+v", best[0])
	}
	if best[1].Shape != (dynamo.Shape{}) || best[1].Kernel != time.Millisecond {
		t.Errorf("best for part 1 = %+v", best[1])
	}

	// Once done the best shapes are used.
	if s.Shape(0) != shapeB {
		t.Errorf("Shape(0) after sweep = %v, want %v", s.Shape(0), shapeB)
	}
}

func TestSweepAutoShapeIsNeverRejected(t *testing.T) {
	s := NewSweep(1, nil, 1)
	if !s.Done() {
		t.Error("empty sweep should be done immediately")
	}
	if _, ok := s.Reject(0, dynamo.Shape{}); ok {
		t.Error("auto shape reported as replaceable")
	}
}

func TestSweepDrivesSimulator(t *testing.T) {
	const width, height = 96, 64
	devices := []compute.Device{
		compute.NewHostDevice(compute.HostDeviceConfig{Name: "a", Workers: 2, MaxWorkGroup: 64}),
		compute.NewHostDevice(compute.HostDeviceConfig{Name: "b", Workers: 2, MaxWorkGroup: 16}),
	}
	candidates := partition.Candidates(128, 2, true)
	sweep := NewSweep(len(devices), candidates, 1)

	var records []IntervalRecord
	sweep.OnRecord(func(r IntervalRecord) { records = append(records, r) })

	seed := models.DefaultSeedConfig(width, height, 10)
	seed.MinOffset, seed.MaxOffset = 5, 25
	s, err := sim.New(sim.Config{
		Width:            width,
		Height:           height,
		Radius:           3.16,
		Gravity:          1,
		SubSteps:         10,
		ValidationFrames: 1000,
		Ratios:           []int{1, 1},
		Selector:         sweep,
		Bodies:           models.NewSatellites(seed, models.NewRand(1)),
	}, devices)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.AddObserver(sweep)

	for i := 0; i < len(candidates) && !sweep.Done(); i++ {
		stats, err := s.Step(context.Background(), 16)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Mismatch != nil {
			t.Fatalf("frame %d with shapes %v: %v", stats.Frame, stats.Shapes(), stats.Mismatch)
		}
		for j, d := range stats.Devices {
			if d.Shape.Size() > devices[j].MaxWorkGroupSize() {
				t.Fatalf("device %s ran oversized shape %s", d.Device, d.Shape)
			}
		}
	}

	if !sweep.Done() {
		t.Fatalf("sweep not finished: %s", sweep)
	}
	if len(records) == 0 || len(records) > len(candidates) {
		t.Errorf("got %d interval records for %d candidates", len(records), len(candidates))
	}
}
