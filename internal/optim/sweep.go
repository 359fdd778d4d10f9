// Package optim searches for the fastest local work-group shape per device.
package optim

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/metrics"
	"github.com/san-kum/satvoronoi/internal/sim"
)

// DefaultIntervalFrames is how long each candidate shape is held.
const DefaultIntervalFrames = 100

type DeviceBest struct {
	Device   string
	Shape    dynamo.Shape
	Kernel   time.Duration
	Download time.Duration
}

// IntervalRecord summarises one interval of the sweep. All times are the
// best seen during the interval except AvgClassify, a moving average.
type IntervalRecord struct {
	Index        int
	Frames       int
	BestFrame    time.Duration
	BestPhysics  time.Duration
	BestClassify time.Duration
	AvgClassify  time.Duration
	Devices      []DeviceBest
	Comment      string
}

// Shapes renders the per-device shapes, e.g. "32x1|16x2".
func (r IntervalRecord) Shapes() string {
	parts := make([]string, len(r.Devices))
	for i, d := range r.Devices {
		parts[i] = d.Shape.String()
	}
	return strings.Join(parts, "|")
}

// Sweep walks every partition through a list of candidate shapes, holding
// each for a fixed number of frames. A device that rejects a candidate
// moves on to its next one immediately. Sweep is both the dispatcher's
// shape selector and a frame observer.
type Sweep struct {
	mu         sync.Mutex
	candidates []dynamo.Shape
	interval   int
	cursor     []int
	index      int
	cur        IntervalRecord
	avg        metrics.Moving
	best       []DeviceBest
	done       bool
	onRecord   func(IntervalRecord)
}

func NewSweep(parts int, candidates []dynamo.Shape, intervalFrames int) *Sweep {
	if intervalFrames <= 0 {
		intervalFrames = DefaultIntervalFrames
	}
	s := &Sweep{
		candidates: candidates,
		interval:   intervalFrames,
		cursor:     make([]int, parts),
		best:       make([]DeviceBest, parts),
	}
	for i := range s.best {
		s.best[i].Kernel = time.Duration(math.MaxInt64)
	}
	s.done = len(candidates) == 0
	s.resetInterval()
	return s
}

// OnRecord registers the sink for finished intervals.
func (s *Sweep) OnRecord(fn func(IntervalRecord)) {
	s.mu.Lock()
	s.onRecord = fn
	s.mu.Unlock()
}

func (s *Sweep) current(part int) dynamo.Shape {
	if s.cursor[part] >= len(s.candidates) {
		return dynamo.Shape{}
	}
	return s.candidates[s.cursor[part]]
}

func (s *Sweep) Shape(part int) dynamo.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.bestShape(part)
	}
	return s.current(part)
}

func (s *Sweep) Reject(part int, shape dynamo.Shape) (dynamo.Shape, bool) {
	if shape.IsAuto() {
		return shape, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		// A remembered best shape can only be rejected if it was never run.
		s.best[part].Shape = dynamo.Shape{}
		return dynamo.Shape{}, true
	}
	s.cursor[part]++
	next := s.current(part)
	dynamo.Logger().Debug("sweep skipped shape", "part", part, "shape", shape, "next", next)
	return next, true
}

func (s *Sweep) OnFrame(stats sim.FrameStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}

	s.cur.Frames++
	s.cur.BestFrame = min(s.cur.BestFrame, stats.Total)
	s.cur.BestPhysics = min(s.cur.BestPhysics, stats.Physics)
	s.cur.BestClassify = min(s.cur.BestClassify, stats.Classify)
	s.avg.Add(float64(stats.Classify))
	for i, d := range stats.Devices {
		if i >= len(s.cur.Devices) {
			break
		}
		dev := &s.cur.Devices[i]
		dev.Device = d.Device
		dev.Shape = d.Shape
		dev.Kernel = min(dev.Kernel, d.Kernel)
		dev.Download = min(dev.Download, d.Download)
	}

	if s.cur.Frames < s.interval {
		return
	}

	s.cur.AvgClassify = time.Duration(s.avg.Value())
	rec := s.cur
	rec.Devices = append([]DeviceBest(nil), s.cur.Devices...)
	for i, d := range rec.Devices {
		if d.Kernel < s.best[i].Kernel {
			s.best[i] = d
		}
	}
	if s.onRecord != nil {
		s.onRecord(rec)
	}

	s.index++
	exhausted := true
	for i := range s.cursor {
		s.cursor[i]++
		if s.cursor[i] < len(s.candidates) {
			exhausted = false
		}
	}
	s.done = exhausted
	s.resetInterval()

	if s.done {
		dynamo.Logger().Info("sweep finished", "intervals", s.index, "best", s.bestShapes())
	}
}

func (s *Sweep) resetInterval() {
	s.cur = IntervalRecord{
		Index:        s.index,
		BestFrame:    time.Duration(math.MaxInt64),
		BestPhysics:  time.Duration(math.MaxInt64),
		BestClassify: time.Duration(math.MaxInt64),
		Devices:      make([]DeviceBest, len(s.cursor)),
	}
	for i := range s.cur.Devices {
		s.cur.Devices[i].Kernel = time.Duration(math.MaxInt64)
		s.cur.Devices[i].Download = time.Duration(math.MaxInt64)
	}
	s.avg.Reset()
}

func (s *Sweep) bestShape(part int) dynamo.Shape {
	return s.best[part].Shape
}

func (s *Sweep) bestShapes() []dynamo.Shape {
	out := make([]dynamo.Shape, len(s.best))
	for i := range s.best {
		out[i] = s.bestShape(i)
	}
	return out
}

// Best returns the fastest kernel time seen per partition and the shape that
// produced it. Partitions that never completed an interval report the auto
// shape.
func (s *Sweep) Best() []DeviceBest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]DeviceBest(nil), s.best...)
	for i := range out {
		if out[i].Kernel == time.Duration(math.MaxInt64) {
			out[i].Kernel = 0
		}
	}
	return out
}

func (s *Sweep) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Progress reports finished intervals and the longest remaining walk.
func (s *Sweep) Progress() (intervals, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lowest := len(s.candidates)
	for _, c := range s.cursor {
		lowest = min(lowest, c)
	}
	return s.index, len(s.candidates) - lowest
}

func (s *Sweep) String() string {
	intervals, remaining := s.Progress()
	return fmt.Sprintf("sweep: %d intervals done, %d candidates left", intervals, remaining)
}
