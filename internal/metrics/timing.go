package metrics

import (
	"math"
	"time"

	"github.com/san-kum/satvoronoi/internal/sim"
)

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Moving is an exponential average weighting each new sample by a tenth.
// The first sample seeds it.
type Moving struct {
	value   float64
	samples int
}

func (m *Moving) Add(v float64) {
	if m.samples == 0 {
		m.value = v
	} else {
		m.value = (m.value*9 + v) / 10
	}
	m.samples++
}

func (m *Moving) Value() float64 { return m.value }
func (m *Moving) Samples() int   { return m.samples }
func (m *Moving) Reset()         { *m = Moving{} }

// Phase selects one timed section of a frame.
type Phase func(sim.FrameStats) time.Duration

var (
	PhaseTotal     Phase = func(f sim.FrameStats) time.Duration { return f.Total }
	PhasePhysics   Phase = func(f sim.FrameStats) time.Duration { return f.Physics }
	PhaseClassify  Phase = func(f sim.FrameStats) time.Duration { return f.Classify }
	PhaseComposite Phase = func(f sim.FrameStats) time.Duration { return f.Composite }
)

// FrameTime reports the moving average of a frame phase in milliseconds.
type FrameTime struct {
	name  string
	phase Phase
	avg   Moving
}

func NewFrameTime(name string, phase Phase) *FrameTime {
	return &FrameTime{name: name, phase: phase}
}

func (f *FrameTime) Name() string                 { return f.name }
func (f *FrameTime) Observe(stats sim.FrameStats) { f.avg.Add(ms(f.phase(stats))) }
func (f *FrameTime) Value() float64               { return f.avg.Value() }
func (f *FrameTime) Reset()                       { f.avg.Reset() }

// BestTime reports the fastest observed frame phase in milliseconds.
type BestTime struct {
	name  string
	phase Phase
	best  float64
}

func NewBestTime(name string, phase Phase) *BestTime {
	return &BestTime{name: name, phase: phase, best: math.Inf(1)}
}

func (b *BestTime) Name() string { return b.name }

func (b *BestTime) Observe(stats sim.FrameStats) {
	if v := ms(b.phase(stats)); v < b.best {
		b.best = v
	}
}

func (b *BestTime) Value() float64 {
	if math.IsInf(b.best, 1) {
		return 0
	}
	return b.best
}

func (b *BestTime) Reset() { b.best = math.Inf(1) }

// Imbalance is the moving ratio between the slowest and fastest device
// kernel time. 1 means the row split matches the device speeds.
type Imbalance struct {
	avg Moving
}

func NewImbalance() *Imbalance { return &Imbalance{} }

func (i *Imbalance) Name() string { return "imbalance" }

func (i *Imbalance) Observe(stats sim.FrameStats) {
	if len(stats.Devices) < 2 {
		return
	}
	lo, hi := math.Inf(1), 0.0
	for _, d := range stats.Devices {
		if d.Rows == 0 {
			continue
		}
		k := ms(d.Kernel)
		lo = math.Min(lo, k)
		hi = math.Max(hi, k)
	}
	if lo <= 0 || math.IsInf(lo, 1) {
		return
	}
	i.avg.Add(hi / lo)
}

func (i *Imbalance) Value() float64 {
	if i.avg.Samples() == 0 {
		return 1
	}
	return i.avg.Value()
}

func (i *Imbalance) Reset() { i.avg.Reset() }

// Validation is the fraction of validated frames that matched the oracle.
type Validation struct {
	checked    int
	mismatches int
}

func NewValidation() *Validation { return &Validation{} }

func (v *Validation) Name() string { return "validation" }

func (v *Validation) Observe(stats sim.FrameStats) {
	if !stats.Validated {
		return
	}
	v.checked++
	if stats.Mismatch != nil {
		v.mismatches++
	}
}

func (v *Validation) Value() float64 {
	if v.checked == 0 {
		return 1.0
	}
	return 1.0 - float64(v.mismatches)/float64(v.checked)
}

func (v *Validation) Reset() {
	v.checked = 0
	v.mismatches = 0
}

// Default is the metric set attached by the CLI.
func Default() []sim.Metric {
	return []sim.Metric{
		NewFrameTime("frame_ms", PhaseTotal),
		NewFrameTime("physics_ms", PhasePhysics),
		NewFrameTime("classify_ms", PhaseClassify),
		NewFrameTime("composite_ms", PhaseComposite),
		NewBestTime("best_frame_ms", PhaseTotal),
		NewImbalance(),
		NewValidation(),
	}
}
