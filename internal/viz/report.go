package viz

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/oracle"
	"github.com/san-kum/satvoronoi/internal/optim"
	"github.com/san-kum/satvoronoi/internal/partition"
)

func table(header string, rows func(w *tabwriter.Writer)) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)
	rows(w)
	w.Flush()
	return b.String()
}

func DeviceTable(infos []compute.DeviceInfo) string {
	return table("#\tNAME\tTYPE\tMAX WG\tWORKERS", func(w *tabwriter.Writer) {
		for _, d := range infos {
			workers := "-"
			if d.Workers > 0 {
				workers = fmt.Sprint(d.Workers)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", d.Index, d.Name, d.Type, d.MaxWorkGroupSize, workers)
		}
	})
}

// PlanTable lists each band. names may be shorter than parts.
func PlanTable(parts []partition.Partition, names []string, width int) string {
	return table("DEVICE\tNAME\tROWS\tCOUNT\tPIXELS\tLOCAL", func(w *tabwriter.Writer) {
		for _, p := range parts {
			name := "-"
			if p.Device < len(names) {
				name = names[p.Device]
			}
			fmt.Fprintf(w, "%d\t%s\t[%d, %d)\t%d\t%d\t%s\n",
				p.Device, name, p.RowStart, p.RowStop, p.Rows(), p.Pixels(width), p.Local)
		}
	})
}

func IntervalTable(records []optim.IntervalRecord) string {
	return table("#\tSHAPES\tBEST FRAME\tBEST CLASSIFY\tAVG CLASSIFY\tCOMMENT", func(w *tabwriter.Writer) {
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Index, r.Shapes(),
				ms(r.BestFrame), ms(r.BestClassify), ms(r.AvgClassify), r.Comment)
		}
	})
}

func BestTable(best []optim.DeviceBest) string {
	return table("DEVICE\tSHAPE\tKERNEL\tDOWNLOAD", func(w *tabwriter.Writer) {
		for _, d := range best {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Device, d.Shape, ms(d.Kernel), ms(d.Download))
		}
	})
}

// MismatchReport describes a failed validation frame.
func MismatchReport(frame int, m *oracle.Mismatch) string {
	if m == nil {
		return StatusRunning.Render(fmt.Sprintf("frame %d matches the oracle", frame))
	}
	var b strings.Builder
	b.WriteString(StatusFailed.Render(fmt.Sprintf("frame %d differs from the oracle", frame)))
	b.WriteByte('\n')
	if m.X < 0 {
		b.WriteString(Metric("size", "images differ in size"))
		return b.String()
	}
	b.WriteString(Metric("pixel", fmt.Sprintf("(%d, %d)", m.X, m.Y)) + "\n")
	b.WriteString(Metric("oracle", fmt.Sprintf("%v %s", m.Want, Hex(m.Want))) + "\n")
	b.WriteString(Metric("devices", fmt.Sprintf("%v %s", m.Got, Hex(m.Got))))
	return b.String()
}

// Plot charts a millisecond series. It returns "" for fewer than two points.
func Plot(values []float64, caption string, height, width int) string {
	if len(values) < 2 {
		return ""
	}
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
