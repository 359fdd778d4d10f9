// Package partition splits the image rows into one contiguous band per
// device.
package partition

import (
	"fmt"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// Partition is the half-open row band [RowStart, RowStop) owned by device
// index Device, launched with the local shape Local.
type Partition struct {
	Device   int
	RowStart int
	RowStop  int
	Local    dynamo.Shape
}

func (p Partition) Rows() int { return p.RowStop - p.RowStart }

func (p Partition) Pixels(width int) int { return p.Rows() * width }

// Offset is the index of the band's first pixel in a row-major image.
func (p Partition) Offset(width int) int { return p.RowStart * width }

func (p Partition) String() string {
	return fmt.Sprintf("device %d rows [%d, %d) local %s", p.Device, p.RowStart, p.RowStop, p.Local)
}

// Plan assigns each device a band proportional to its ratio entry. Band i
// starts at prefix(i)*height/total and the last band always ends at height.
// A single device owns the whole image regardless of ratios, and multiple
// devices without ratios get equal shares.
func Plan(deviceCount, height int, ratios []int, local dynamo.Shape) ([]Partition, error) {
	if deviceCount <= 0 {
		return nil, dynamo.ErrNoDevices
	}
	if height <= 0 {
		return nil, dynamo.ErrEmptyImage
	}
	if deviceCount == 1 {
		return []Partition{{Device: 0, RowStart: 0, RowStop: height, Local: local}}, nil
	}

	if len(ratios) == 0 {
		ratios = make([]int, deviceCount)
		for i := range ratios {
			ratios[i] = 1
		}
	}
	if len(ratios) != deviceCount {
		return nil, fmt.Errorf("%w: %d ratios for %d devices", dynamo.ErrRatioMismatch, len(ratios), deviceCount)
	}

	total := 0
	for i, r := range ratios {
		if r <= 0 {
			return nil, fmt.Errorf("%w: ratio[%d] = %d", dynamo.ErrInvalidRatio, i, r)
		}
		total += r
	}

	parts := make([]Partition, deviceCount)
	prefix := 0
	for i, r := range ratios {
		parts[i] = Partition{
			Device:   i,
			RowStart: prefix * height / total,
			RowStop:  (prefix + r) * height / total,
			Local:    local,
		}
		prefix += r
	}
	parts[deviceCount-1].RowStop = height

	return parts, nil
}

// Verify checks that parts cover [0, height) in order without gaps or
// overlap.
func Verify(parts []Partition, height int) error {
	next := 0
	for i, p := range parts {
		if p.RowStart != next {
			return fmt.Errorf("partition %d starts at row %d, expected %d", i, p.RowStart, next)
		}
		if p.RowStop < p.RowStart {
			return fmt.Errorf("partition %d has negative extent [%d, %d)", i, p.RowStart, p.RowStop)
		}
		next = p.RowStop
	}
	if next != height {
		return fmt.Errorf("partitions end at row %d, image height is %d", next, height)
	}
	return nil
}

// Candidates lists local shapes for a sweep, x varying fastest. With
// powersOfTwo only power-of-two extents are produced.
func Candidates(maxX, maxY int, powersOfTwo bool) []dynamo.Shape {
	var out []dynamo.Shape
	for y := 1; y <= maxY; y = nextExtent(y, powersOfTwo) {
		for x := 1; x <= maxX; x = nextExtent(x, powersOfTwo) {
			out = append(out, dynamo.Shape{X: x, Y: y})
		}
	}
	return out
}

func nextExtent(v int, powersOfTwo bool) int {
	if powersOfTwo {
		return v * 2
	}
	return v + 1
}
