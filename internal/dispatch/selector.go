package dispatch

import (
	"sync"

	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/partition"
)

// ShapeSelector chooses the local shape each partition launches with.
// Reject is called after a device refused shape s and returns the shape to
// try next; false means there is nothing left to try.
type ShapeSelector interface {
	Shape(part int) dynamo.Shape
	Reject(part int, s dynamo.Shape) (dynamo.Shape, bool)
}

// FixedShapes launches every partition with its planned shape. A rejected
// shape is replaced by the auto shape for the rest of the run.
type FixedShapes struct {
	mu     sync.Mutex
	shapes []dynamo.Shape
}

func NewFixedShapes(parts []partition.Partition) *FixedShapes {
	f := &FixedShapes{shapes: make([]dynamo.Shape, len(parts))}
	for i, p := range parts {
		f.shapes[i] = p.Local
	}
	return f
}

func (f *FixedShapes) Shape(part int) dynamo.Shape {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shapes[part]
}

func (f *FixedShapes) Reject(part int, s dynamo.Shape) (dynamo.Shape, bool) {
	if s.IsAuto() {
		return s, false
	}
	f.mu.Lock()
	f.shapes[part] = dynamo.Shape{}
	f.mu.Unlock()
	return dynamo.Shape{}, true
}
