package compute

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

const defaultHostWorkGroup = 1024

// HostDeviceConfig describes one goroutine-backed device. Type only affects
// filtering, so a host device may pose as a GPU to emulate a mixed machine.
type HostDeviceConfig struct {
	Name         string
	Type         DeviceType
	Workers      int
	MaxWorkGroup int
}

type HostDevice struct {
	name    string
	typ     DeviceType
	workers int
	maxWG   int
}

func NewHostDevice(cfg HostDeviceConfig) *HostDevice {
	d := &HostDevice{
		name:    cfg.Name,
		typ:     cfg.Type,
		workers: cfg.Workers,
		maxWG:   cfg.MaxWorkGroup,
	}
	if d.name == "" {
		d.name = "host"
	}
	if d.workers <= 0 {
		d.workers = runtime.NumCPU()
	}
	if d.maxWG <= 0 {
		d.maxWG = defaultHostWorkGroup
	}
	return d
}

func (d *HostDevice) Name() string          { return d.name }
func (d *HostDevice) Type() DeviceType      { return d.typ }
func (d *HostDevice) MaxWorkGroupSize() int { return d.maxWG }
func (d *HostDevice) Workers() int          { return d.workers }

func (d *HostDevice) Open(spec KernelSpec) (Session, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &hostSession{
		dev:    d,
		spec:   spec,
		bodies: make(dynamo.Bodies, 0, spec.BodyCount),
		ids:    make([]dynamo.ID, spec.Pixels()),
	}, nil
}

// checkShape applies the OpenCL 1.x launch rules: the group must fit the
// device and tile the global range exactly.
func (d *HostDevice) checkShape(local dynamo.Shape, width, rows int) error {
	if local.IsAuto() {
		return nil
	}
	if local.Size() > d.maxWG {
		return fmt.Errorf("%w: %s exceeds %d work-items on %s", dynamo.ErrShapeRejected, local, d.maxWG, d.name)
	}
	if width%local.X != 0 || rows%local.Y != 0 {
		return fmt.Errorf("%w: %s does not divide %dx%d on %s", dynamo.ErrShapeRejected, local, width, rows, d.name)
	}
	return nil
}

type hostEvent struct {
	done chan struct{}
	err  error
}

func newHostEvent() *hostEvent {
	return &hostEvent{done: make(chan struct{})}
}

func completedEvent() *hostEvent {
	e := newHostEvent()
	close(e.done)
	return e
}

func (e *hostEvent) finish(err error) {
	e.err = err
	close(e.done)
}

func (e *hostEvent) Wait() error {
	<-e.done
	return e.err
}

type hostSession struct {
	dev  *HostDevice
	spec KernelSpec

	mu     sync.Mutex
	bodies dynamo.Bodies
	ids    []dynamo.ID
	closed bool
}

func (s *hostSession) Upload(bodies dynamo.Bodies) (Event, error) {
	if len(bodies) != s.spec.BodyCount {
		return nil, fmt.Errorf("upload of %d bodies into a table of %d", len(bodies), s.spec.BodyCount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed
	}
	s.bodies = append(s.bodies[:0], bodies...)
	return completedEvent(), nil
}

func (s *hostSession) Launch(local dynamo.Shape, after Event) (Event, error) {
	if err := s.dev.checkShape(local, s.spec.Width, s.spec.Rows()); err != nil {
		return nil, err
	}

	ev := newHostEvent()
	go func() {
		if after != nil {
			if err := after.Wait(); err != nil {
				ev.finish(err)
				return
			}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			ev.finish(errSessionClosed)
			return
		}
		s.run(local)
		ev.finish(nil)
	}()
	return ev, nil
}

// run executes one work-group per tile of the local shape. The auto shape
// uses single-row groups.
func (s *hostSession) run(local dynamo.Shape) {
	width, rows := s.spec.Width, s.spec.Rows()
	tx, ty := width, 1
	if !local.IsAuto() {
		tx, ty = local.X, local.Y
	}
	gx := width / tx
	groups := gx * (rows / ty)

	dynamo.ParallelForWorkers(groups, 1, s.dev.workers, func(start, end int) {
		for g := start; g < end; g++ {
			x0 := (g % gx) * tx
			y0 := (g / gx) * ty
			ClassifyRect(s.ids, width, s.spec.RowStart, x0, y0, x0+tx, y0+ty, s.bodies, s.spec.Radius)
		}
	})
}

func (s *hostSession) Download(dst []dynamo.ID, after Event) (Event, error) {
	if n := s.spec.Pixels(); len(dst) != n {
		return nil, fmt.Errorf("download into %d ids, band holds %d", len(dst), n)
	}

	ev := newHostEvent()
	go func() {
		if after != nil {
			if err := after.Wait(); err != nil {
				ev.finish(err)
				return
			}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		copy(dst, s.ids)
		ev.finish(nil)
	}()
	return ev, nil
}

func (s *hostSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.ids = nil
	s.bodies = nil
	return nil
}

// HostPlatform serves the configured host devices.
type HostPlatform struct {
	devices []*HostDevice
}

func NewHostPlatform(configs ...HostDeviceConfig) *HostPlatform {
	if len(configs) == 0 {
		configs = []HostDeviceConfig{{Name: "host", Type: TypeCPU}}
	}
	p := &HostPlatform{}
	for _, c := range configs {
		p.devices = append(p.devices, NewHostDevice(c))
	}
	return p
}

func (p *HostPlatform) Name() string { return "host" }

func (p *HostPlatform) Devices(filter TypeFilter) ([]Device, error) {
	var out []Device
	for _, d := range p.devices {
		if filter.Match(d.typ) {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, dynamo.ErrDeviceNotFound
	}
	return out, nil
}
