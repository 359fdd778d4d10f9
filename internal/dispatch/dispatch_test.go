package dispatch

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/models"
	"github.com/san-kum/satvoronoi/internal/partition"
)

const (
	width  = 64
	height = 48
)

func hostDevices(n int, maxWG int) []compute.Device {
	out := make([]compute.Device, n)
	for i := range out {
		out[i] = compute.NewHostDevice(compute.HostDeviceConfig{Workers: 2, MaxWorkGroup: maxWG})
	}
	return out
}

func concat(results []Result) []dynamo.ID {
	var ids []dynamo.ID
	for _, r := range results {
		ids = append(ids, r.IDs...)
	}
	return ids
}

func classifyOnce(devices []compute.Device, ratios []int, local dynamo.Shape, bodies dynamo.Bodies) []Result {
	parts, err := partition.Plan(len(devices), height, ratios, local)
	Expect(err).NotTo(HaveOccurred())

	d, err := New(devices, parts, Geometry{Width: width, Height: height, BodyCount: len(bodies), Radius: 3.16}, Options{})
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(d.Close)

	results, err := d.Classify(context.Background(), bodies)
	Expect(err).NotTo(HaveOccurred())
	return results
}

// failingDevice opens sessions whose chosen operation fails.
type failingDevice struct {
	failOn string
	closed *int
}

func (f failingDevice) Name() string             { return "flaky" }
func (f failingDevice) Type() compute.DeviceType { return compute.TypeGPU }
func (f failingDevice) MaxWorkGroupSize() int    { return 256 }
func (f failingDevice) Open(compute.KernelSpec) (compute.Session, error) {
	if f.failOn == "open" {
		return nil, errors.New("out of memory")
	}
	return &failingSession{failOn: f.failOn, closed: f.closed}, nil
}

type doneEvent struct{ err error }

func (e doneEvent) Wait() error { return e.err }

type failingSession struct {
	failOn string
	closed *int
}

func (s *failingSession) op(name string) (compute.Event, error) {
	if s.failOn == name {
		return nil, errors.New(name + " failed")
	}
	if s.failOn == name+"-wait" {
		return doneEvent{err: errors.New(name + " wait failed")}, nil
	}
	return doneEvent{}, nil
}

func (s *failingSession) Upload(dynamo.Bodies) (compute.Event, error) { return s.op("upload") }
func (s *failingSession) Launch(dynamo.Shape, compute.Event) (compute.Event, error) {
	return s.op("launch")
}
func (s *failingSession) Download([]dynamo.ID, compute.Event) (compute.Event, error) {
	return s.op("download")
}
func (s *failingSession) Close() error {
	if s.closed != nil {
		*s.closed++
	}
	return nil
}

var _ = Describe("Dispatcher", func() {
	var bodies dynamo.Bodies

	BeforeEach(func() {
		bodies = models.NewSatellites(models.DefaultSeedConfig(width, height, 12), models.NewRand(5))
		for i := range bodies {
			// Pull the seeded orbits into the small test image.
			bodies[i].Position.X = float32(i*5) + 2
			bodies[i].Position.Y = float32(i*37%height) + 0.5
		}
	})

	It("returns one result per partition in order", func() {
		results := classifyOnce(hostDevices(3, 256), []int{1, 2, 1}, dynamo.Shape{}, bodies)
		Expect(results).To(HaveLen(3))
		for i, r := range results {
			Expect(r.Partition.Device).To(Equal(i))
			Expect(r.IDs).To(HaveLen(r.Partition.Pixels(width)))
		}
	})

	DescribeTable("matches a single device when concatenated",
		func(n int, ratios []int, local dynamo.Shape) {
			want := concat(classifyOnce(hostDevices(1, 256), nil, dynamo.Shape{}, bodies))
			got := concat(classifyOnce(hostDevices(n, 256), ratios, local, bodies))
			Expect(got).To(Equal(want))
		},
		Entry("two identical devices", 2, []int{1, 1}, dynamo.Shape{X: 8, Y: 2}),
		Entry("uneven pair", 2, []int{14, 2}, dynamo.Shape{X: 16, Y: 1}),
		Entry("three devices auto shape", 3, nil, dynamo.Shape{}),
	)

	It("gives two identical devices half the image each", func() {
		results := classifyOnce(hostDevices(2, 256), []int{1, 1}, dynamo.Shape{}, bodies)
		Expect(results[0].Timing.Rows).To(Equal(height / 2))
		Expect(results[1].Timing.Rows).To(Equal(height / 2))
	})

	It("falls back to the auto shape when a device rejects the local shape", func() {
		devices := hostDevices(1, 16)
		parts, err := partition.Plan(1, height, nil, dynamo.Shape{X: 32, Y: 1})
		Expect(err).NotTo(HaveOccurred())
		selector := NewFixedShapes(parts)

		d, err := New(devices, parts, Geometry{Width: width, Height: height, BodyCount: len(bodies), Radius: 3.16}, Options{Selector: selector})
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		results, err := d.Classify(context.Background(), bodies)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Timing.Retries).To(Equal(1))
		Expect(results[0].Timing.Shape.IsAuto()).To(BeTrue())
		Expect(selector.Shape(0).IsAuto()).To(BeTrue())

		results, err = d.Classify(context.Background(), bodies)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Timing.Retries).To(BeZero())
	})

	It("skips devices that own no rows", func() {
		parts := []partition.Partition{
			{Device: 0, RowStart: 0, RowStop: 0},
			{Device: 1, RowStart: 0, RowStop: height},
		}
		d, err := New(hostDevices(2, 256), parts, Geometry{Width: width, Height: height, BodyCount: len(bodies), Radius: 3.16}, Options{})
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()

		results, err := d.Classify(context.Background(), bodies)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].IDs).To(BeEmpty())
		Expect(results[1].IDs).To(HaveLen(width * height))
	})

	It("rejects partitions that do not cover the image", func() {
		parts := []partition.Partition{{Device: 0, RowStart: 0, RowStop: height - 1}}
		_, err := New(hostDevices(1, 256), parts, Geometry{Width: width, Height: height}, Options{})
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("wraps device failures with the device and operation",
		func(failOn, wantOp string) {
			closed := 0
			devices := []compute.Device{hostDevices(1, 256)[0], failingDevice{failOn: failOn, closed: &closed}}
			parts, err := partition.Plan(2, height, nil, dynamo.Shape{})
			Expect(err).NotTo(HaveOccurred())

			d, err := New(devices, parts, Geometry{Width: width, Height: height, BodyCount: len(bodies), Radius: 1}, Options{})
			if err == nil {
				defer d.Close()
				_, err = d.Classify(context.Background(), bodies)
			}

			var devErr *dynamo.DeviceError
			Expect(errors.As(err, &devErr)).To(BeTrue())
			Expect(devErr.Device).To(Equal("flaky"))
			Expect(devErr.Op).To(Equal(wantOp))
			Expect(dynamo.IsBenign(err)).To(BeFalse())
		},
		Entry("open", "open", "open"),
		Entry("upload", "upload", "upload"),
		Entry("upload completion", "upload-wait", "upload"),
		Entry("launch", "launch", "launch"),
		Entry("kernel completion", "launch-wait", "kernel"),
		Entry("download", "download", "download"),
	)

	It("closes every session", func() {
		closed := 0
		devices := []compute.Device{failingDevice{closed: &closed}, failingDevice{closed: &closed}}
		parts, err := partition.Plan(2, height, nil, dynamo.Shape{})
		Expect(err).NotTo(HaveOccurred())

		d, err := New(devices, parts, Geometry{Width: width, Height: height, BodyCount: len(bodies), Radius: 1}, Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Close()).To(Succeed())
		Expect(closed).To(Equal(2))
	})
})
