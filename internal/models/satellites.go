package models

import (
	"math"
	"math/rand"
	"time"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// SeedConfig controls the initial placement of satellites around the
// attractor at the image center.
type SeedConfig struct {
	Count       int
	Width       int
	Height      int
	MinOffset   float32
	MaxOffset   float32
	BaseSpeed   float32
	SpeedJitter float32
}

func DefaultSeedConfig(width, height, count int) SeedConfig {
	return SeedConfig{
		Count:       count,
		Width:       width,
		Height:      height,
		MinOffset:   50,
		MaxOffset:   300,
		BaseSpeed:   0.06,
		SpeedJitter: 0.01,
	}
}

// Center is the attractor position for an image of the given size.
func Center(width, height int) dynamo.Vec2 {
	return dynamo.Vec2{X: float32(width / 2), Y: float32(height / 2)}
}

// NewRand returns a generator for seed. Seed 0 selects a time-based stream.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func uniform(rng *rand.Rand, min, max float32) float32 {
	return rng.Float32()*(max-min) + min
}

// NewSatellites places cfg.Count reddish satellites in the four quadrants
// around the center with velocities tangential to the attractor. Every other
// satellite orbits clockwise.
func NewSatellites(cfg SeedConfig, rng *rand.Rand) dynamo.Bodies {
	center := Center(cfg.Width, cfg.Height)
	bodies := make(dynamo.Bodies, cfg.Count)

	for i := range bodies {
		col := dynamo.Color{
			R: uniform(rng, 0, 0.5) + 0.5,
			G: uniform(rng, 0, 0.5),
			B: uniform(rng, 0, 0.5),
		}

		pos := dynamo.Vec2{
			X: center.X - uniform(rng, cfg.MinOffset, cfg.MaxOffset),
			Y: center.Y - uniform(rng, cfg.MinOffset, cfg.MaxOffset),
		}
		if i/2%2 != 0 {
			pos.X = float32(cfg.Width) - pos.X
		}
		if i >= cfg.Count/2 {
			pos.Y = float32(cfg.Height) - pos.Y
		}

		rx := pos.X - center.X
		ry := pos.Y - center.Y
		scale := (cfg.BaseSpeed + uniform(rng, -cfg.SpeedJitter, cfg.SpeedJitter)) /
			float32(math.Sqrt(float64(rx*rx+ry*ry)))
		vel := dynamo.Vec2{X: scale * -ry, Y: scale * rx}
		if i%2 == 0 {
			vel.X, vel.Y = -vel.X, -vel.Y
		}

		bodies[i] = dynamo.Body{Color: col, Position: pos, Velocity: vel}
	}

	return bodies
}

// CenteredBody is a single motionless body sitting on the attractor.
func CenteredBody(width, height int, col dynamo.Color) dynamo.Bodies {
	return dynamo.Bodies{{Color: col, Position: Center(width, height)}}
}
