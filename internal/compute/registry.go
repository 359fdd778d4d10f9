package compute

import (
	"errors"
	"fmt"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

var errSessionClosed = errors.New("compute: session closed")

type RegistryOptions struct {
	// Host lists virtual host devices. Empty means one host device.
	Host   []HostDeviceConfig
	OpenCL bool
}

type Registry struct {
	platforms []Platform
}

func NewRegistry(platforms ...Platform) *Registry {
	return &Registry{platforms: platforms}
}

// DefaultRegistry returns the host platform followed by the installed OpenCL
// platforms when requested.
func DefaultRegistry(opts RegistryOptions) (*Registry, error) {
	r := NewRegistry(NewHostPlatform(opts.Host...))
	if !opts.OpenCL {
		return r, nil
	}
	platforms, err := openCLPlatforms()
	if err != nil {
		return r, fmt.Errorf("opencl: %w", err)
	}
	for _, p := range platforms {
		r.Add(p)
	}
	return r, nil
}

func (r *Registry) Add(p Platform) {
	r.platforms = append(r.platforms, p)
}

func (r *Registry) Platforms() []Platform {
	return r.platforms
}

// Enumerate lists the devices matching filter in platform order. A platform
// without matching devices is skipped; any other platform failure aborts.
func (r *Registry) Enumerate(filter TypeFilter) ([]Device, error) {
	log := dynamo.Logger()
	var devices []Device
	for _, p := range r.platforms {
		found, err := p.Devices(filter)
		if errors.Is(err, dynamo.ErrDeviceNotFound) {
			log.Debug("platform has no matching devices", "platform", p.Name(), "filter", filter)
			continue
		}
		if err != nil {
			return nil, &dynamo.DeviceError{Device: p.Name(), Op: "enumerate", Wrapped: err}
		}
		for _, d := range found {
			log.Debug("device found", "platform", p.Name(), "device", d.Name(), "type", d.Type())
		}
		devices = append(devices, found...)
	}
	if len(devices) == 0 {
		return nil, dynamo.ErrNoDevices
	}
	return devices, nil
}

type DeviceInfo struct {
	Index            int
	Name             string
	Type             DeviceType
	MaxWorkGroupSize int
	Workers          int
}

func Describe(devices []Device) []DeviceInfo {
	infos := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		infos[i] = DeviceInfo{
			Index:            i,
			Name:             d.Name(),
			Type:             d.Type(),
			MaxWorkGroupSize: d.MaxWorkGroupSize(),
		}
		if h, ok := d.(*HostDevice); ok {
			infos[i].Workers = h.Workers()
		}
	}
	return infos
}
