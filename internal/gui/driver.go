// Package gui presents frames in a desktop window. The window loop drives
// the simulation: one frame is stepped per redraw.
package gui

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/oracle"
	"github.com/san-kum/satvoronoi/internal/sim"
)

// Stepper is the part of the simulator a window needs.
type Stepper interface {
	Step(ctx context.Context, deltaMs int) (sim.FrameStats, error)
	Config() sim.Config
	Image() *dynamo.Image
}

type Options struct {
	Title string
	// FixedDeltaMs replaces wall-clock deltas when positive.
	FixedDeltaMs    int
	PauseOnMismatch bool
	FPS             int
	// Scale multiplies the window size; the image itself is not resampled.
	Scale int
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "satvoronoi"
	}
	if o.FPS <= 0 {
		o.FPS = 60
	}
	if o.Scale <= 0 {
		o.Scale = 1
	}
	return o
}

// driver holds the toolkit-independent part of a window loop.
type driver struct {
	ctx      context.Context
	stepper  Stepper
	opts     Options
	paused   bool
	last     time.Time
	stats    sim.FrameStats
	mismatch *oracle.Mismatch
	badFrame int
	err      error
	rgba     []byte
}

func newDriver(ctx context.Context, s Stepper, opts Options) *driver {
	return &driver{ctx: ctx, stepper: s, opts: opts.withDefaults()}
}

// frame runs one simulation frame unless paused or failed.
func (d *driver) frame(now time.Time) error {
	if d.err != nil || d.paused {
		d.last = time.Time{}
		return d.err
	}
	delta := d.opts.FixedDeltaMs
	if delta <= 0 {
		if !d.last.IsZero() {
			delta = int(now.Sub(d.last).Milliseconds())
		}
		d.last = now
	}

	stats, err := d.stepper.Step(d.ctx, delta)
	if err != nil {
		d.err = err
		return err
	}
	d.stats = stats
	if stats.Mismatch != nil {
		d.mismatch, d.badFrame = stats.Mismatch, stats.Frame
		if d.opts.PauseOnMismatch {
			d.paused = true
		}
	}
	return nil
}

func (d *driver) toggle() { d.paused = !d.paused }

// pixels returns the live image as 8-bit RGBA, reusing one buffer.
func (d *driver) pixels() []byte {
	d.rgba = d.stepper.Image().RGBA(d.rgba[:0])
	return d.rgba
}

func (d *driver) colors(dst []color.RGBA) []color.RGBA {
	px := d.pixels()
	n := len(px) / 4
	if cap(dst) < n {
		dst = make([]color.RGBA, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = color.RGBA{R: px[4*i], G: px[4*i+1], B: px[4*i+2], A: px[4*i+3]}
	}
	return dst
}

func (d *driver) hud() []string {
	lines := []string{
		fmt.Sprintf("frame %d  delta %dms", d.stats.Frame, d.stats.DeltaMs),
		fmt.Sprintf("physics %s  classify %s  total %s", ms(d.stats.Physics), ms(d.stats.Classify), ms(d.stats.Total)),
	}
	for i, dev := range d.stats.Devices {
		lines = append(lines, fmt.Sprintf("dev %d  %s  %d rows  %s", i, dev.Shape, dev.Rows, ms(dev.Kernel)))
	}
	if d.mismatch != nil {
		lines = append(lines, fmt.Sprintf("frame %d mismatch: %v", d.badFrame, d.mismatch))
	}
	if d.paused {
		lines = append(lines, "PAUSED")
	}
	if d.err != nil {
		lines = append(lines, "FAILED: "+d.err.Error())
	}
	return lines
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
