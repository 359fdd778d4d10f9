//go:build opencl

package compute

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

// bodyStride is the number of floats per body in the device table:
// r, g, b, px, py, vx, vy.
const bodyStride = 7

// Contraction is disabled and sqrt is correctly rounded so the device
// reproduces ClassifyPixel bit for bit.
const classifyKernelSource = `#pragma OPENCL FP_CONTRACT OFF

__kernel void classify(
    __global const float* bodies,
    __global ushort* ids,
    const int row_offset,
    const int width,
    const int count,
    const float radius)
{
    int x = get_global_id(0);
    int y = get_global_id(1);
    float px = (float)x;
    float py = (float)(y + row_offset);
    float shortest = INFINITY;
    ushort id = 0xFFFF;
    for (int j = 0; j < count; j++) {
        float dx = px - bodies[j * 7 + 3];
        float dy = py - bodies[j * 7 + 4];
        float d = sqrt(dx * dx + dy * dy);
        if (d < shortest) {
            shortest = d;
            id = (ushort)j;
        }
        if (d < radius) {
            id = 0xFFFE;
        }
    }
    ids[y * width + x] = id;
}`

const classifyBuildOptions = "-cl-fp32-correctly-rounded-divide-sqrt"

// OpenCLEnabled reports whether the binary was built with the opencl tag.
const OpenCLEnabled = true

func openCLPlatforms() ([]Platform, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("querying platforms: %w", err)
	}
	out := make([]Platform, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, &openCLPlatform{p: p})
	}
	return out, nil
}

type openCLPlatform struct {
	p *cl.Platform
}

func (p *openCLPlatform) Name() string { return p.p.Name() }

func (p *openCLPlatform) Devices(filter TypeFilter) ([]Device, error) {
	clType := cl.DeviceTypeAll
	switch filter {
	case FilterCPU:
		clType = cl.DeviceTypeCPU
	case FilterGPU:
		clType = cl.DeviceTypeGPU | cl.DeviceTypeAccelerator
	}

	devices, err := p.p.GetDevices(clType)
	if err == cl.ErrDeviceNotFound || (err == nil && len(devices) == 0) {
		return nil, dynamo.ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}

	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, &openCLDevice{d: d})
	}
	return out, nil
}

type openCLDevice struct {
	d *cl.Device
}

func (d *openCLDevice) Name() string          { return d.d.Name() }
func (d *openCLDevice) MaxWorkGroupSize() int { return d.d.MaxWorkGroupSize() }

func (d *openCLDevice) Type() DeviceType {
	t := d.d.Type()
	switch {
	case t&cl.DeviceTypeGPU != 0:
		return TypeGPU
	case t&cl.DeviceTypeAccelerator != 0:
		return TypeAccelerator
	}
	return TypeCPU
}

func (d *openCLDevice) Open(spec KernelSpec) (Session, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	s := &openCLSession{spec: spec, name: d.Name()}
	fail := func(op string, err error) (Session, error) {
		s.Close()
		return nil, &dynamo.DeviceError{Device: s.name, Op: op, Wrapped: err}
	}

	var err error
	devs := []*cl.Device{d.d}
	if s.context, err = cl.CreateContext(devs); err != nil {
		return fail("create context", err)
	}
	if s.queue, err = s.context.CreateCommandQueue(d.d, 0); err != nil {
		return fail("create queue", err)
	}
	if s.program, err = s.context.CreateProgramWithSource([]string{classifyKernelSource}); err != nil {
		return fail("create program", err)
	}
	if err = s.program.BuildProgram(devs, classifyBuildOptions); err != nil {
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			err = fmt.Errorf("%s", string(buildErr))
		}
		return fail("build program", err)
	}
	if s.kernel, err = s.program.CreateKernel("classify"); err != nil {
		return fail("create kernel", err)
	}

	// Zero-sized buffers are invalid; an empty table still gets one slot.
	tableFloats := max(spec.BodyCount, 1) * bodyStride
	if s.bodiesBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, tableFloats*int(unsafe.Sizeof(float32(0)))); err != nil {
		return fail("allocate bodies", err)
	}
	if s.idsBuf, err = s.context.CreateEmptyBuffer(cl.MemWriteOnly, max(spec.Pixels(), 1)*int(unsafe.Sizeof(dynamo.ID(0)))); err != nil {
		return fail("allocate ids", err)
	}
	s.staging = make([]float32, tableFloats)

	if err = s.kernel.SetArgs(
		s.bodiesBuf,
		s.idsBuf,
		int32(spec.RowStart),
		int32(spec.Width),
		int32(spec.BodyCount),
		spec.Radius,
	); err != nil {
		return fail("set kernel args", err)
	}

	return s, nil
}

type openCLEvent struct {
	once sync.Once
	ev   *cl.Event
	err  error
}

func (e *openCLEvent) Wait() error {
	e.once.Do(func() {
		e.err = cl.WaitForEvents([]*cl.Event{e.ev})
		e.ev.Release()
		e.ev = nil
	})
	return e.err
}

// waitList returns the pending native event behind after, if any. Host
// events are waited for instead.
func waitList(after Event) ([]*cl.Event, error) {
	if after == nil {
		return nil, nil
	}
	if e, ok := after.(*openCLEvent); ok && e.ev != nil {
		return []*cl.Event{e.ev}, nil
	}
	return nil, after.Wait()
}

type openCLSession struct {
	spec KernelSpec
	name string

	context   *cl.Context
	queue     *cl.CommandQueue
	program   *cl.Program
	kernel    *cl.Kernel
	bodiesBuf *cl.MemObject
	idsBuf    *cl.MemObject
	staging   []float32
}

func (s *openCLSession) Upload(bodies dynamo.Bodies) (Event, error) {
	if len(bodies) != s.spec.BodyCount {
		return nil, fmt.Errorf("upload of %d bodies into a table of %d", len(bodies), s.spec.BodyCount)
	}
	for i, b := range bodies {
		o := i * bodyStride
		s.staging[o+0] = b.Color.R
		s.staging[o+1] = b.Color.G
		s.staging[o+2] = b.Color.B
		s.staging[o+3] = b.Position.X
		s.staging[o+4] = b.Position.Y
		s.staging[o+5] = b.Velocity.X
		s.staging[o+6] = b.Velocity.Y
	}
	ev, err := s.queue.EnqueueWriteBufferFloat32(s.bodiesBuf, false, 0, s.staging, nil)
	if err != nil {
		return nil, err
	}
	return &openCLEvent{ev: ev}, nil
}

func (s *openCLSession) Launch(local dynamo.Shape, after Event) (Event, error) {
	wait, err := waitList(after)
	if err != nil {
		return nil, err
	}

	global := []int{s.spec.Width, s.spec.Rows()}
	var localSize []int
	if !local.IsAuto() {
		localSize = []int{local.X, local.Y}
	}

	ev, err := s.queue.EnqueueNDRangeKernel(s.kernel, nil, global, localSize, wait)
	if err == cl.ErrInvalidWorkGroupSize || err == cl.ErrInvalidGlobalWorkSize {
		return nil, fmt.Errorf("%w: %s on %s: %v", dynamo.ErrShapeRejected, local, s.name, err)
	}
	if err != nil {
		return nil, err
	}
	return &openCLEvent{ev: ev}, nil
}

func (s *openCLSession) Download(dst []dynamo.ID, after Event) (Event, error) {
	if len(dst) != s.spec.Pixels() {
		return nil, fmt.Errorf("download into %d ids, band holds %d", len(dst), s.spec.Pixels())
	}
	if len(dst) == 0 {
		return completedEvent(), nil
	}
	wait, err := waitList(after)
	if err != nil {
		return nil, err
	}

	size := len(dst) * int(unsafe.Sizeof(dynamo.ID(0)))
	ev, err := s.queue.EnqueueReadBuffer(s.idsBuf, false, 0, size, unsafe.Pointer(&dst[0]), wait)
	if err != nil {
		return nil, err
	}
	return &openCLEvent{ev: ev}, nil
}

func (s *openCLSession) Close() error {
	if s.idsBuf != nil {
		s.idsBuf.Release()
		s.idsBuf = nil
	}
	if s.bodiesBuf != nil {
		s.bodiesBuf.Release()
		s.bodiesBuf = nil
	}
	if s.kernel != nil {
		s.kernel.Release()
		s.kernel = nil
	}
	if s.program != nil {
		s.program.Release()
		s.program = nil
	}
	if s.queue != nil {
		s.queue.Release()
		s.queue = nil
	}
	if s.context != nil {
		s.context.Release()
		s.context = nil
	}
	return nil
}
