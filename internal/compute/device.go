package compute

import (
	"fmt"
	"strings"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

type DeviceType int

const (
	TypeCPU DeviceType = iota
	TypeGPU
	TypeAccelerator
)

func (t DeviceType) String() string {
	switch t {
	case TypeCPU:
		return "cpu"
	case TypeGPU:
		return "gpu"
	case TypeAccelerator:
		return "accelerator"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return TypeCPU, nil
	case "gpu":
		return TypeGPU, nil
	case "accelerator", "acc":
		return TypeAccelerator, nil
	}
	return TypeCPU, fmt.Errorf("unknown device type %q", s)
}

// TypeFilter selects which devices enumeration keeps. FilterGPU keeps every
// non-CPU device.
type TypeFilter int

const (
	FilterAll TypeFilter = iota
	FilterCPU
	FilterGPU
)

func (f TypeFilter) String() string {
	switch f {
	case FilterCPU:
		return "cpu"
	case FilterGPU:
		return "gpu"
	}
	return "all"
}

func ParseFilter(s string) (TypeFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "cpu":
		return FilterCPU, nil
	case "gpu":
		return FilterGPU, nil
	}
	return FilterAll, fmt.Errorf("unknown device filter %q (want all, cpu or gpu)", s)
}

func (f TypeFilter) Match(t DeviceType) bool {
	switch f {
	case FilterCPU:
		return t == TypeCPU
	case FilterGPU:
		return t != TypeCPU
	}
	return true
}

// KernelSpec fixes the geometry a session classifies: the full image size,
// the band of rows owned by the device and the body table capacity.
type KernelSpec struct {
	Width     int
	Height    int
	RowStart  int
	RowStop   int
	BodyCount int
	Radius    float32
}

func (k KernelSpec) Rows() int   { return k.RowStop - k.RowStart }
func (k KernelSpec) Pixels() int { return k.Width * k.Rows() }

func (k KernelSpec) Validate() error {
	if k.Width <= 0 || k.Height <= 0 {
		return dynamo.ErrEmptyImage
	}
	if k.RowStart < 0 || k.RowStop > k.Height || k.RowStart > k.RowStop {
		return fmt.Errorf("row band [%d, %d) outside image height %d", k.RowStart, k.RowStop, k.Height)
	}
	if k.BodyCount < 0 || k.BodyCount > dynamo.MaxBodies {
		return fmt.Errorf("%w: %d", dynamo.ErrTooManyBodies, k.BodyCount)
	}
	return nil
}

// Event completes when the operation that produced it has finished.
type Event interface {
	Wait() error
}

// Session is a device's process-lifetime resources for one row band. Every
// operation is asynchronous and ordered after the event it is given; a nil
// event means no dependency.
type Session interface {
	Upload(bodies dynamo.Bodies) (Event, error)
	// Launch returns an error matching dynamo.ErrShapeRejected when the
	// device cannot run the local shape. The auto shape is never rejected.
	Launch(local dynamo.Shape, after Event) (Event, error)
	Download(dst []dynamo.ID, after Event) (Event, error)
	Close() error
}

type Device interface {
	Name() string
	Type() DeviceType
	MaxWorkGroupSize() int
	Open(spec KernelSpec) (Session, error)
}

// Platform groups devices sharing a driver. Devices returns
// dynamo.ErrDeviceNotFound when nothing matches the filter.
type Platform interface {
	Name() string
	Devices(filter TypeFilter) ([]Device, error)
}
