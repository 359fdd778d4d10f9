package dynamo

import "fmt"

type Vec2 struct {
	X, Y float32
}

// Color channels are in [0, 1].
type Color struct {
	R, G, B float32
}

var (
	BackgroundColor = Color{0, 0, 0}
	HighlightColor  = Color{1, 1, 1}
)

type Body struct {
	Color    Color
	Position Vec2
	Velocity Vec2
}

type Bodies []Body

func (b Bodies) Clone() Bodies {
	c := make(Bodies, len(b))
	copy(c, b)
	return c
}

// ID identifies the body owning a pixel.
type ID uint16

const (
	// Sentinel marks a pixel no body owns. It only appears for an empty body table.
	Sentinel ID = 0xFFFF
	// Highlight marks a pixel inside a body's radius.
	Highlight ID = 0xFFFE
	// MaxBodies is the largest body count representable without colliding with
	// the reserved ids.
	MaxBodies = int(Highlight)
)

func (id ID) String() string {
	switch id {
	case Sentinel:
		return "sentinel"
	case Highlight:
		return "highlight"
	}
	return fmt.Sprintf("%d", uint16(id))
}

// Shape is a local work-group shape. The zero Shape lets the device choose.
type Shape struct {
	X, Y int
}

func (s Shape) IsAuto() bool { return s.X <= 0 || s.Y <= 0 }

func (s Shape) Size() int {
	if s.IsAuto() {
		return 0
	}
	return s.X * s.Y
}

func (s Shape) String() string {
	if s.IsAuto() {
		return "auto"
	}
	return fmt.Sprintf("%dx%d", s.X, s.Y)
}

type Image struct {
	Width, Height int
	Pix           []Color
}

func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]Color, width*height),
	}
}

func (im *Image) At(x, y int) Color { return im.Pix[y*im.Width+x] }

func (im *Image) Set(x, y int, c Color) { im.Pix[y*im.Width+x] = c }

func (im *Image) Row(y int) []Color {
	return im.Pix[y*im.Width : (y+1)*im.Width]
}

func (im *Image) Clone() *Image {
	c := &Image{Width: im.Width, Height: im.Height, Pix: make([]Color, len(im.Pix))}
	copy(c.Pix, im.Pix)
	return c
}

func (im *Image) Fill(c Color) {
	for i := range im.Pix {
		im.Pix[i] = c
	}
}

// Equal reports exact channel-wise equality.
func (im *Image) Equal(other *Image) bool {
	if im.Width != other.Width || im.Height != other.Height {
		return false
	}
	for i := range im.Pix {
		if im.Pix[i] != other.Pix[i] {
			return false
		}
	}
	return true
}

// RGBA packs the image into 8-bit RGBA bytes, four per pixel.
func (im *Image) RGBA(dst []byte) []byte {
	n := len(im.Pix) * 4
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	for i, c := range im.Pix {
		dst[i*4] = channel8(c.R)
		dst[i*4+1] = channel8(c.G)
		dst[i*4+2] = channel8(c.B)
		dst[i*4+3] = 0xFF
	}
	return dst
}

func channel8(v float32) byte {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 0xFF
	}
	return byte(v*255 + 0.5)
}
