package integrators

import (
	"math"
	"runtime"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// subStepsPerChunk is the least integration work handed to one goroutine.
// A single body with a realistic sub-step count already exceeds it.
const subStepsPerChunk = 4096

// Gravity advances bodies around a single fixed attractor with explicit
// Euler, split into SubSteps sub-steps per frame. Bodies never interact with
// each other.
type Gravity struct {
	Center   dynamo.Vec2
	G        float32
	SubSteps int

	workers int
}

func NewGravity(center dynamo.Vec2, g float32, subSteps int) *Gravity {
	if subSteps < 1 {
		subSteps = 1
	}
	return &Gravity{
		Center:   center,
		G:        g,
		SubSteps: subSteps,
		workers:  runtime.GOMAXPROCS(0),
	}
}

// WithWorkers bounds the number of goroutines used by Step. One worker makes
// the integration fully sequential.
func (g *Gravity) WithWorkers(n int) *Gravity {
	if n < 1 {
		n = 1
	}
	g.workers = n
	return g
}

// Step advances every body by deltaMs milliseconds. Zero and negative
// deltas leave the bodies untouched. A body sitting exactly on the center
// produces NaN.
func (g *Gravity) Step(bodies dynamo.Bodies, deltaMs int) {
	if deltaMs <= 0 {
		return
	}
	dt := float32(deltaMs)
	g.forEach(len(bodies), func(start, end int) {
		for i := start; i < end; i++ {
			g.advance(&bodies[i], dt)
		}
	})
}

// minChunk is the smallest number of bodies worth a goroutine.
func (g *Gravity) minChunk() int {
	return max(1, subStepsPerChunk/max(1, g.SubSteps))
}

func (g *Gravity) forEach(n int, fn func(start, end int)) {
	dynamo.ParallelForWorkers(n, g.minChunk(), g.workers, fn)
}

func (g *Gravity) advance(b *dynamo.Body, dt float32) {
	steps := float32(g.SubSteps)
	for s := 0; s < g.SubSteps; s++ {
		rx := b.Position.X - g.Center.X
		ry := b.Position.Y - g.Center.Y
		r2 := float32(rx*rx) + float32(ry*ry)
		r := float32(math.Sqrt(float64(r2)))
		nx, ny := rx/r, ry/r
		a := g.G / r2

		b.Velocity.X -= float32(float32(a*nx)*dt) / steps
		b.Velocity.Y -= float32(float32(a*ny)*dt) / steps
		b.Position.X += float32(b.Velocity.X*dt) / steps
		b.Position.Y += float32(b.Velocity.Y*dt) / steps
	}
}
