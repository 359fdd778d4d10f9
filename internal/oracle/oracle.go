// Package oracle renders the reference classification sequentially and
// compares it with the multi-device output.
package oracle

import (
	"fmt"
	"math"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// Render colors every pixel of dst by its nearest body, sequentially and
// without going through ids. Pixels within radius of a body are painted with
// the highlight color. An empty body table leaves the image black.
func Render(dst *dynamo.Image, bodies dynamo.Bodies, radius float32) {
	inf := float32(math.Inf(1))
	for y := 0; y < dst.Height; y++ {
		py := float32(y)
		for x := 0; x < dst.Width; x++ {
			px := float32(x)
			shortest := inf
			c := dynamo.BackgroundColor
			for _, b := range bodies {
				dx := px - b.Position.X
				dy := py - b.Position.Y
				d := float32(math.Sqrt(float64(float32(dx*dx) + float32(dy*dy))))
				if d < shortest {
					shortest = d
					c = b.Color
				}
				if d < radius {
					c = dynamo.HighlightColor
				}
			}
			dst.Pix[y*dst.Width+x] = c
		}
	}
}

// Mismatch is the first pixel where two images differ.
type Mismatch struct {
	X, Y int
	Want dynamo.Color
	Got  dynamo.Color
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("pixel (%d, %d): oracle %v, devices %v", m.X, m.Y, m.Want, m.Got)
}

// Compare scans both images in row-major order and reports the first pixel
// whose channels are not exactly equal. It returns nil for identical images.
func Compare(want, got *dynamo.Image) *Mismatch {
	if want.Width != got.Width || want.Height != got.Height {
		return &Mismatch{X: -1, Y: -1}
	}
	for i := range want.Pix {
		if want.Pix[i] != got.Pix[i] {
			return &Mismatch{
				X:    i % want.Width,
				Y:    i / want.Width,
				Want: want.Pix[i],
				Got:  got.Pix[i],
			}
		}
	}
	return nil
}
