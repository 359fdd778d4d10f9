// Package dynamo provides the core data types shared by every stage of the
// satellite simulation.
//
// The package defines the values that flow between stages:
//
//   - [Body]: a satellite with color, position and velocity
//   - [Image]: a row-major pixel grid
//   - [ID]: per-pixel body id, with the reserved [Sentinel] and [Highlight] values
//   - [Shape]: a local work-group shape used when launching classification
//
// # Example
//
//	bodies := models.NewSatellites(models.DefaultSeedConfig(1024, 1024, 125), rng)
//	img := dynamo.NewImage(1024, 1024)
//	oracle.Render(img, bodies, 3.16)
//
// # Thread Safety
//
// Bodies are written only by the integrator and read by classification
// afterwards; the phases never overlap, so no type here carries a lock.
package dynamo
