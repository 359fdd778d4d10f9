package export

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/satvoronoi/internal/dynamo"
)

type BodyData struct {
	Color    [3]float32 `json:"color"`
	Position [2]float32 `json:"position"`
	Velocity [2]float32 `json:"velocity"`
}

type Snapshot struct {
	Frame  int                `json:"frame"`
	Seed   int64              `json:"seed"`
	Width  int                `json:"width"`
	Height int                `json:"height"`
	Radius float32            `json:"radius"`
	Bodies []BodyData         `json:"bodies"`
	Stats  map[string]float64 `json:"metrics,omitempty"`
}

func NewSnapshot(frame int, seed int64, width, height int, radius float32, bodies dynamo.Bodies) Snapshot {
	s := Snapshot{
		Frame:  frame,
		Seed:   seed,
		Width:  width,
		Height: height,
		Radius: radius,
		Bodies: make([]BodyData, len(bodies)),
	}
	for i, b := range bodies {
		s.Bodies[i] = BodyData{
			Color:    [3]float32{b.Color.R, b.Color.G, b.Color.B},
			Position: [2]float32{b.Position.X, b.Position.Y},
			Velocity: [2]float32{b.Velocity.X, b.Velocity.Y},
		}
	}
	return s
}

// BodyTable rebuilds the body table.
func (s Snapshot) BodyTable() dynamo.Bodies {
	out := make(dynamo.Bodies, len(s.Bodies))
	for i, b := range s.Bodies {
		out[i] = dynamo.Body{
			Color:    dynamo.Color{R: b.Color[0], G: b.Color[1], B: b.Color[2]},
			Position: dynamo.Vec2{X: b.Position[0], Y: b.Position[1]},
			Velocity: dynamo.Vec2{X: b.Velocity[0], Y: b.Velocity[1]},
		}
	}
	return out
}

func EncodeSnapshot(w io.Writer, s Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func WriteSnapshot(path string, s Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return EncodeSnapshot(f, s)
}

func ReadSnapshot(path string) (Snapshot, error) {
	var s Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}
