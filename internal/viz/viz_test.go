package viz

import (
	"bytes"
	"strings"
	"testing"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/oracle"
	"github.com/san-kum/satvoronoi/internal/partition"
)

func TestCanvasSet(t *testing.T) {
	c := NewCanvas(2, 1)
	c.Set(0, 0)
	c.Set(3, 3)
	c.Set(-1, 0)
	c.Set(4, 0)

	if c.Grid[0][0] != brailleBlank|0x1 {
		t.Errorf("cell 0 = %U", c.Grid[0][0])
	}
	if c.Grid[0][1] != brailleBlank|0x80 {
		t.Errorf("cell 1 = %U", c.Grid[0][1])
	}

	c.Clear()
	if c.String() != string([]rune{brailleBlank, brailleBlank})+"\n" {
		t.Errorf("clear left %q", c.String())
	}
}

func TestCanvasPlotBodies(t *testing.T) {
	c := NewCanvas(4, 2)
	bodies := dynamo.Bodies{
		{Position: dynamo.Vec2{X: 0, Y: 0}},
		{Position: dynamo.Vec2{X: -5, Y: 3}},
		{Position: dynamo.Vec2{X: 99, Y: 99}},
	}
	c.PlotBodies(bodies, 100, 100)

	lit := 0
	for _, row := range c.Grid {
		for _, r := range row {
			if r != brailleBlank {
				lit++
			}
		}
	}
	if lit != 2 {
		t.Errorf("expected 2 lit cells, got %d", lit)
	}
}

func TestHex(t *testing.T) {
	tests := []struct {
		c    dynamo.Color
		want string
	}{
		{dynamo.BackgroundColor, "#000000"},
		{dynamo.HighlightColor, "#ffffff"},
		{dynamo.Color{R: 0.5, G: 2, B: -1}, "#80ff00"},
	}
	for _, tt := range tests {
		if got := Hex(tt.c); got != tt.want {
			t.Errorf("Hex(%v) = %s, want %s", tt.c, got, tt.want)
		}
	}
}

func TestHalfBlocksShape(t *testing.T) {
	img := dynamo.NewImage(8, 8)
	out := HalfBlocks(img, 4, 2)
	if n := strings.Count(out, "\n"); n != 2 {
		t.Errorf("expected 2 lines, got %d", n)
	}
	if n := strings.Count(out, "▀"); n != 8 {
		t.Errorf("expected 8 cells, got %d", n)
	}
	if HalfBlocks(dynamo.NewImage(0, 0), 4, 2) != "" {
		t.Error("empty image should render nothing")
	}
}

func TestTerminalPresent(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, 4, 2, "test")
	if err := term.Present(dynamo.NewImage(8, 8)); err != nil {
		t.Fatal(err)
	}
	if term.Frames() != 1 || !strings.Contains(buf.String(), "frame 1") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestReports(t *testing.T) {
	devices := DeviceTable([]compute.DeviceInfo{{Index: 0, Name: "host0", Type: compute.TypeCPU, MaxWorkGroupSize: 1024, Workers: 4}})
	if !strings.Contains(devices, "host0") || !strings.Contains(devices, "1024") {
		t.Errorf("device table missing fields:\n%s", devices)
	}

	parts, err := partition.Plan(2, 16, []int{14, 2}, dynamo.Shape{})
	if err != nil {
		t.Fatal(err)
	}
	plan := PlanTable(parts, []string{"gpu"}, 10)
	if !strings.Contains(plan, "[0, 14)") || !strings.Contains(plan, "[14, 16)") {
		t.Errorf("plan table missing bands:\n%s", plan)
	}

	report := MismatchReport(3, &oracle.Mismatch{X: 1, Y: 2, Want: dynamo.HighlightColor})
	if !strings.Contains(report, "(1, 2)") || !strings.Contains(report, "#ffffff") {
		t.Errorf("mismatch report missing pixel:\n%s", report)
	}
	if Plot([]float64{1}, "x", 3, 10) != "" {
		t.Error("single point should not plot")
	}
}
