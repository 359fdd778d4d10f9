package export

import (
	"bytes"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

func TestEncodePNG(t *testing.T) {
	img := dynamo.NewImage(3, 2)
	img.Set(1, 0, dynamo.Color{R: 1})
	img.Set(2, 1, dynamo.HighlightColor)

	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		t.Fatal(err)
	}

	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := decoded.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("bounds = %v", b)
	}
	r, g, _, a := decoded.At(1, 0).RGBA()
	if r != 0xffff || g != 0 || a != 0xffff {
		t.Errorf("pixel (1, 0) = %v", decoded.At(1, 0))
	}
	r, g, b, _ := decoded.At(2, 1).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Errorf("pixel (2, 1) = %v", decoded.At(2, 1))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	bodies := dynamo.Bodies{
		{Color: dynamo.Color{R: 0.75}, Position: dynamo.Vec2{X: 10, Y: 20}, Velocity: dynamo.Vec2{X: -0.5}},
		{Color: dynamo.Color{G: 0.25}, Position: dynamo.Vec2{X: 1.5, Y: 2}},
	}
	path := filepath.Join(t.TempDir(), "snap.json")

	if err := WriteSnapshot(path, NewSnapshot(7, 42, 64, 48, 3.16, bodies)); err != nil {
		t.Fatal(err)
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}

	if snap.Frame != 7 || snap.Seed != 42 || snap.Width != 64 {
		t.Errorf("unexpected header %+v", snap)
	}
	got := snap.BodyTable()
	for i := range bodies {
		if got[i] != bodies[i] {
			t.Errorf("body %d = %+v, want %+v", i, got[i], bodies[i])
		}
	}
}
