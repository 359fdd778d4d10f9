// Package composite turns per-partition classification ids into colors.
package composite

import (
	"fmt"
	"sync"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// rowsPerWorker keeps narrow bands on a single goroutine.
const rowsPerWorker = 16

// Part is one band of ids covering rows [start, stop), indexed band-relative.
type Part interface {
	Rows() (start, stop int)
	Labels() []dynamo.ID
}

// Compose writes the color of every pixel of every part into dst. Parts are
// composited concurrently; they must not overlap. Sentinel pixels become the
// background color and highlighted pixels the highlight color.
func Compose[P Part](dst *dynamo.Image, parts []P, bodies dynamo.Bodies) error {
	errs := make([]error, len(parts))

	var wg sync.WaitGroup
	for i := range parts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = composePart(dst, parts[i], bodies)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func composePart(dst *dynamo.Image, p Part, bodies dynamo.Bodies) error {
	start, stop := p.Rows()
	ids := p.Labels()
	if start < 0 || stop > dst.Height || len(ids) != (stop-start)*dst.Width {
		return fmt.Errorf("band [%d, %d) with %d ids does not fit a %dx%d image", start, stop, len(ids), dst.Width, dst.Height)
	}

	var once sync.Once
	var bad error
	dynamo.ParallelFor(stop-start, rowsPerWorker, func(r0, r1 int) {
		for r := r0; r < r1; r++ {
			row := dst.Row(start + r)
			labels := ids[r*dst.Width : (r+1)*dst.Width]
			for x, id := range labels {
				c, err := Color(id, bodies)
				if err != nil {
					once.Do(func() { bad = fmt.Errorf("pixel (%d, %d): %w", x, start+r, err) })
					return
				}
				row[x] = c
			}
		}
	})
	return bad
}

// Color maps an id to its display color.
func Color(id dynamo.ID, bodies dynamo.Bodies) (dynamo.Color, error) {
	switch id {
	case dynamo.Sentinel:
		return dynamo.BackgroundColor, nil
	case dynamo.Highlight:
		return dynamo.HighlightColor, nil
	}
	if int(id) >= len(bodies) {
		return dynamo.Color{}, fmt.Errorf("%w: %d with %d bodies", dynamo.ErrUnknownID, id, len(bodies))
	}
	return bodies[id].Color, nil
}
