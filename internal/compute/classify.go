package compute

import (
	"math"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

var infinity = float32(math.Inf(1))

// ClassifyPixel returns the id owning pixel (px, py). Bodies are visited in
// table order: a strictly shorter distance takes ownership, and any body
// closer than radius turns the pixel into a highlight. Products are rounded
// to float32 before the sum so no fused multiply-add changes the result.
func ClassifyPixel(px, py float32, bodies dynamo.Bodies, radius float32) dynamo.ID {
	shortest := infinity
	id := dynamo.Sentinel
	for j := range bodies {
		dx := px - bodies[j].Position.X
		dy := py - bodies[j].Position.Y
		d := float32(math.Sqrt(float64(float32(dx*dx) + float32(dy*dy))))
		if d < shortest {
			shortest = d
			id = dynamo.ID(j)
		}
		if d < radius {
			id = dynamo.Highlight
		}
	}
	return id
}

// ClassifyRect classifies the rectangle [x0, x1) x [y0, y1) of a band whose
// first row is rowStart. dst is indexed band-relative with stride width.
func ClassifyRect(dst []dynamo.ID, width, rowStart, x0, y0, x1, y1 int, bodies dynamo.Bodies, radius float32) {
	for y := y0; y < y1; y++ {
		py := float32(rowStart + y)
		row := dst[y*width : (y+1)*width]
		for x := x0; x < x1; x++ {
			row[x] = ClassifyPixel(float32(x), py, bodies, radius)
		}
	}
}
