package partition

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

var _ = Describe("Plan", func() {
	local := dynamo.Shape{X: 32, Y: 1}

	DescribeTable("covers every row exactly once",
		func(devices, height int, ratios []int) {
			parts, err := Plan(devices, height, ratios, local)
			Expect(err).NotTo(HaveOccurred())
			Expect(parts).To(HaveLen(devices))
			Expect(Verify(parts, height)).To(Succeed())

			for i, p := range parts {
				Expect(p.Device).To(Equal(i))
				Expect(p.Local).To(Equal(local))
			}
		},
		Entry("one device", 1, 1024, nil),
		Entry("one device ignores ratios", 1, 1024, []int{3, 9}),
		Entry("even split", 2, 1024, []int{1, 1}),
		Entry("uneven split", 2, 1024, []int{14, 2}),
		Entry("equal shares without ratios", 3, 1000, nil),
		Entry("more devices than rows", 4, 3, []int{1, 1, 1, 1}),
		Entry("odd height", 3, 997, []int{5, 3, 2}),
	)

	It("gives two identical devices half the rows each", func() {
		parts, err := Plan(2, 1024, []int{1, 1}, local)
		Expect(err).NotTo(HaveOccurred())
		Expect(parts[0].RowStart).To(Equal(0))
		Expect(parts[0].RowStop).To(Equal(512))
		Expect(parts[1].RowStart).To(Equal(512))
		Expect(parts[1].RowStop).To(Equal(1024))
	})

	It("splits 14:2 by the floor of the prefix share", func() {
		parts, err := Plan(2, 1024, []int{14, 2}, local)
		Expect(err).NotTo(HaveOccurred())
		Expect(parts[0].Rows()).To(Equal(896))
		Expect(parts[1].Rows()).To(Equal(128))
		Expect(parts[1].Offset(1024)).To(Equal(896 * 1024))
		Expect(parts[1].Pixels(1024)).To(Equal(128 * 1024))
	})

	It("forces the last band to the image height", func() {
		parts, err := Plan(3, 10, []int{1, 1, 1}, local)
		Expect(err).NotTo(HaveOccurred())
		Expect(parts[0].RowStop).To(Equal(3))
		Expect(parts[1].RowStop).To(Equal(6))
		Expect(parts[2].RowStop).To(Equal(10))
	})

	DescribeTable("rejects bad input",
		func(devices, height int, ratios []int, want error) {
			_, err := Plan(devices, height, ratios, local)
			Expect(err).To(MatchError(want))
		},
		Entry("no devices", 0, 1024, nil, dynamo.ErrNoDevices),
		Entry("empty image", 2, 0, []int{1, 1}, dynamo.ErrEmptyImage),
		Entry("ratio length mismatch", 2, 1024, []int{1, 1, 1}, dynamo.ErrRatioMismatch),
		Entry("zero ratio", 2, 1024, []int{1, 0}, dynamo.ErrInvalidRatio),
		Entry("negative ratio", 2, 1024, []int{-1, 3}, dynamo.ErrInvalidRatio),
	)
})

var _ = Describe("Verify", func() {
	It("detects gaps", func() {
		parts := []Partition{{RowStart: 0, RowStop: 4}, {RowStart: 5, RowStop: 8}}
		Expect(Verify(parts, 8)).NotTo(Succeed())
	})

	It("detects overlap", func() {
		parts := []Partition{{RowStart: 0, RowStop: 5}, {RowStart: 4, RowStop: 8}}
		Expect(Verify(parts, 8)).NotTo(Succeed())
	})

	It("detects short coverage", func() {
		parts := []Partition{{RowStart: 0, RowStop: 7}}
		Expect(Verify(parts, 8)).NotTo(Succeed())
	})
})

var _ = Describe("Candidates", func() {
	It("walks x fastest", func() {
		shapes := Candidates(3, 2, false)
		Expect(shapes).To(Equal([]dynamo.Shape{
			{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 3, Y: 1},
			{X: 1, Y: 2}, {X: 2, Y: 2}, {X: 3, Y: 2},
		}))
	})

	It("covers the full 256x128 sweep", func() {
		Expect(Candidates(256, 128, false)).To(HaveLen(256 * 128))
	})

	It("restricts to powers of two", func() {
		shapes := Candidates(8, 2, true)
		Expect(shapes).To(HaveLen(8))
		Expect(shapes[3]).To(Equal(dynamo.Shape{X: 8, Y: 1}))
		Expect(shapes[7]).To(Equal(dynamo.Shape{X: 8, Y: 2}))
	})
})
