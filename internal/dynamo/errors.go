package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for device and classification operations.
var (
	// ErrNoDevices indicates enumeration left no device matching the filter.
	ErrNoDevices = errors.New("dynamo: no compute devices match the filter")

	// ErrDeviceNotFound is returned by a platform that has no device of the
	// requested type. Registries treat it as "filtered out".
	ErrDeviceNotFound = errors.New("dynamo: device not found")

	// ErrShapeRejected indicates a device cannot run the requested local
	// work-group shape. It is benign: callers try another shape.
	ErrShapeRejected = errors.New("dynamo: work-group shape rejected by device")

	// ErrRatioMismatch indicates the ratio vector length differs from the device count.
	ErrRatioMismatch = errors.New("dynamo: ratio vector does not match device count")

	// ErrInvalidRatio indicates a non-positive entry in the ratio vector.
	ErrInvalidRatio = errors.New("dynamo: ratio entries must be positive")

	// ErrEmptyImage indicates a non-positive image dimension.
	ErrEmptyImage = errors.New("dynamo: image dimensions must be positive")

	// ErrTooManyBodies indicates a body count that collides with reserved ids.
	ErrTooManyBodies = errors.New("dynamo: body count exceeds id range")

	// ErrUnknownID indicates a classification id outside the body table.
	ErrUnknownID = errors.New("dynamo: classification id outside body table")
)

// DeviceError wraps a compute backend failure with the device and the
// operation that failed.
type DeviceError struct {
	Device  string
	Op      string
	Wrapped error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %q: %s: %v", e.Device, e.Op, e.Wrapped)
}

func (e *DeviceError) Unwrap() error {
	return e.Wrapped
}

// IsBenign reports whether err only signals a rejected work-group shape.
func IsBenign(err error) bool {
	return errors.Is(err, ErrShapeRejected)
}
