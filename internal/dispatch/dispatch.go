// Package dispatch runs one frame of pixel classification across all
// devices, one goroutine per partition.
package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/partition"
)

// Geometry is the frame-invariant part of every session's kernel spec.
type Geometry struct {
	Width     int
	Height    int
	BodyCount int
	Radius    float32
}

// Buffers supplies id slices for downloads. Slices are handed back through
// Put once the caller is done with a frame's results.
type Buffers interface {
	Get(n int) []dynamo.ID
	Put(ids []dynamo.ID)
}

type heapBuffers struct{}

func (heapBuffers) Get(n int) []dynamo.ID { return make([]dynamo.ID, n) }
func (heapBuffers) Put([]dynamo.ID)       {}

type Options struct {
	// Selector defaults to the shapes stored in the partitions.
	Selector ShapeSelector
	Buffers  Buffers
}

type DeviceTiming struct {
	Device   string
	Rows     int
	Shape    dynamo.Shape
	Retries  int
	Upload   time.Duration
	Kernel   time.Duration
	Download time.Duration
}

func (t DeviceTiming) Total() time.Duration { return t.Upload + t.Kernel + t.Download }

// Result is one partition's ids for a frame, indexed band-relative.
type Result struct {
	Partition partition.Partition
	IDs       []dynamo.ID
	Timing    DeviceTiming
}

func (r Result) Rows() (start, stop int) { return r.Partition.RowStart, r.Partition.RowStop }
func (r Result) Labels() []dynamo.ID     { return r.IDs }

type Dispatcher struct {
	geom     Geometry
	parts    []partition.Partition
	names    []string
	sessions []compute.Session
	selector ShapeSelector
	buffers  Buffers
}

// New opens a session per partition on the partition's device. Sessions
// live until Close.
func New(devices []compute.Device, parts []partition.Partition, geom Geometry, opts Options) (*Dispatcher, error) {
	if len(devices) == 0 {
		return nil, dynamo.ErrNoDevices
	}
	if err := partition.Verify(parts, geom.Height); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		geom:     geom,
		parts:    parts,
		selector: opts.Selector,
		buffers:  opts.Buffers,
	}
	if d.selector == nil {
		d.selector = NewFixedShapes(parts)
	}
	if d.buffers == nil {
		d.buffers = heapBuffers{}
	}

	for _, p := range parts {
		if p.Device < 0 || p.Device >= len(devices) {
			d.Close()
			return nil, dynamo.ErrDeviceNotFound
		}
		dev := devices[p.Device]
		s, err := dev.Open(compute.KernelSpec{
			Width:     geom.Width,
			Height:    geom.Height,
			RowStart:  p.RowStart,
			RowStop:   p.RowStop,
			BodyCount: geom.BodyCount,
			Radius:    geom.Radius,
		})
		if err != nil {
			d.Close()
			var devErr *dynamo.DeviceError
			if errors.As(err, &devErr) {
				return nil, err
			}
			return nil, &dynamo.DeviceError{Device: dev.Name(), Op: "open", Wrapped: err}
		}
		d.sessions = append(d.sessions, s)
		d.names = append(d.names, dev.Name())
	}

	return d, nil
}

func (d *Dispatcher) Partitions() []partition.Partition { return d.parts }

// Classify uploads bodies to every device, runs the kernel and downloads
// each band. It returns once every device has finished. Results are in
// partition order.
func (d *Dispatcher) Classify(ctx context.Context, bodies dynamo.Bodies) ([]Result, error) {
	results := make([]Result, len(d.sessions))

	g, ctx := errgroup.WithContext(ctx)
	for i := range d.sessions {
		g.Go(func() error {
			r, err := d.classifyPart(ctx, i, bodies)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Dispatcher) classifyPart(ctx context.Context, i int, bodies dynamo.Bodies) (Result, error) {
	p := d.parts[i]
	s := d.sessions[i]
	name := d.names[i]
	res := Result{Partition: p, Timing: DeviceTiming{Device: name, Rows: p.Rows()}}
	if p.Rows() == 0 {
		return res, nil
	}

	fail := func(op string, err error) (Result, error) {
		return res, &dynamo.DeviceError{Device: name, Op: op, Wrapped: err}
	}

	start := time.Now()
	up, err := s.Upload(bodies)
	if err != nil {
		return fail("upload", err)
	}
	if err := up.Wait(); err != nil {
		return fail("upload", err)
	}
	res.Timing.Upload = time.Since(start)

	start = time.Now()
	shape := d.selector.Shape(i)
	var run compute.Event
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		run, err = s.Launch(shape, nil)
		if err == nil {
			break
		}
		if !dynamo.IsBenign(err) {
			return fail("launch", err)
		}
		next, ok := d.selector.Reject(i, shape)
		dynamo.Logger().Debug("local shape rejected", "device", name, "shape", shape, "next", next)
		if !ok {
			return fail("launch", err)
		}
		shape = next
		res.Timing.Retries++
	}
	res.Timing.Shape = shape
	if err := run.Wait(); err != nil {
		return fail("kernel", err)
	}
	res.Timing.Kernel = time.Since(start)

	start = time.Now()
	ids := d.buffers.Get(p.Pixels(d.geom.Width))
	done, err := s.Download(ids, nil)
	if err != nil {
		return fail("download", err)
	}
	if err := done.Wait(); err != nil {
		return fail("download", err)
	}
	res.Timing.Download = time.Since(start)
	res.IDs = ids

	return res, nil
}

// Release hands a frame's id buffers back for reuse.
func (d *Dispatcher) Release(results []Result) {
	for i := range results {
		if results[i].IDs != nil {
			d.buffers.Put(results[i].IDs)
			results[i].IDs = nil
		}
	}
}

func (d *Dispatcher) Close() error {
	var errs []error
	for i, s := range d.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, &dynamo.DeviceError{Device: d.names[i], Op: "close", Wrapped: err})
		}
	}
	d.sessions = nil
	return errors.Join(errs...)
}
