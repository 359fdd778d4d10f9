// Package export writes frames and body tables to disk.
package export

import (
	"image"
	"image/png"
	"io"
	"os"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// ToRGBA converts a frame to an 8-bit image.
func ToRGBA(img *dynamo.Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	out.Pix = img.RGBA(out.Pix[:0])
	return out
}

func EncodePNG(w io.Writer, img *dynamo.Image) error {
	return png.Encode(w, ToRGBA(img))
}

func WritePNG(path string, img *dynamo.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
