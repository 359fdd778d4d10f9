package viz

import (
	"strings"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// Braille cells are 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
var dotMask = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, Grid: make([][]rune, h)}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the dot at (x, y) in dot coordinates. The canvas is
// Width*2 by Height*4 dots.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= dotMask[y%4][x%2]
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = brailleBlank
		}
	}
}

// PlotBodies scales body positions from a width x height image onto the
// canvas. Bodies that left the image are not drawn.
func (c *Canvas) PlotBodies(bodies dynamo.Bodies, width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	sx := float32(c.Width*2) / float32(width)
	sy := float32(c.Height*4) / float32(height)
	for _, b := range bodies {
		if b.Position.X < 0 || b.Position.Y < 0 {
			continue
		}
		c.Set(int(b.Position.X*sx), int(b.Position.Y*sy))
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}
