package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/satvoronoi/internal/optim"
)

const (
	metadataFile  = "metadata.json"
	intervalsFile = "intervals.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       int64              `json:"seed"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Satellites int                `json:"satellites"`
	Radius     float32            `json:"radius"`
	Gravity    float32            `json:"gravity"`
	SubSteps   int                `json:"sub_steps"`
	Devices    []string           `json:"devices"`
	Ratios     []int              `json:"ratios,omitempty"`
	Local      string             `json:"local"`
	Frames     int                `json:"frames"`
	Mismatches int                `json:"mismatches"`
	Best       []string           `json:"best_shapes,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Run is an open run directory receiving interval rows.
type Run struct {
	meta RunMetadata
	dir  string
	file *os.File
	w    *csv.Writer
}

// Begin creates a run directory, writes its metadata and opens the
// intervals file with its header.
func (s *Store) Begin(meta RunMetadata) (*Run, error) {
	if meta.Name == "" {
		meta.Name = "run"
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.ID = fmt.Sprintf("%s_%d", meta.Name, meta.Timestamp.UnixMilli())
	dir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if err := writeMetadata(dir, meta); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, intervalsFile))
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(header(len(meta.Devices))); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &Run{meta: meta, dir: dir, file: f, w: w}, nil
}

func header(devices int) []string {
	h := []string{"TotalFrameTime", "moving", "coloring", "average"}
	for i := 0; i < devices; i++ {
		h = append(h, fmt.Sprintf("color_d%d", i), fmt.Sprintf("mem_d%d", i))
	}
	return append(h, "x_size", "y_size", "comment")
}

func (r *Run) ID() string { return r.meta.ID }

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
}

// Append writes one interval row. Device columns beyond the run's device
// count are dropped; missing ones are left empty.
func (r *Run) Append(rec optim.IntervalRecord) error {
	row := []string{
		millis(rec.BestFrame),
		millis(rec.BestPhysics),
		millis(rec.BestClassify),
		millis(rec.AvgClassify),
	}
	for i := range r.meta.Devices {
		if i < len(rec.Devices) {
			row = append(row, millis(rec.Devices[i].Kernel), millis(rec.Devices[i].Download))
		} else {
			row = append(row, "", "")
		}
	}

	x, y := 0, 0
	if len(rec.Devices) > 0 {
		x, y = rec.Devices[0].Shape.X, rec.Devices[0].Shape.Y
	}
	comment := rec.Comment
	if comment == "" {
		comment = rec.Shapes()
	}
	row = append(row, strconv.Itoa(x), strconv.Itoa(y), comment)

	if err := r.w.Write(row); err != nil {
		return err
	}
	r.w.Flush()
	return r.w.Error()
}

// Finish records the run outcome in the metadata file.
func (r *Run) Finish(frames, mismatches int, best []string, metrics map[string]float64) error {
	r.meta.Frames = frames
	r.meta.Mismatches = mismatches
	r.meta.Best = best
	r.meta.Metrics = metrics
	return writeMetadata(r.dir, r.meta)
}

func (r *Run) Close() error {
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

func writeMetadata(dir string, meta RunMetadata) error {
	f, err := os.Create(filepath.Join(dir, metadataFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// IntervalRow is one parsed row of a run's intervals file, times in
// milliseconds.
type IntervalRow struct {
	BestFrame    float64
	BestPhysics  float64
	BestClassify float64
	AvgClassify  float64
	Kernel       []float64
	Download     []float64
	X, Y         int
	Comment      string
}

func (s *Store) LoadIntervals(runID string) ([]IntervalRow, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, intervalsFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []IntervalRow{}, nil
	}

	devices := 0
	for _, col := range records[0] {
		if strings.HasPrefix(col, "color_") {
			devices++
		}
	}

	rows := make([]IntervalRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != 7+2*devices {
			continue
		}
		row := IntervalRow{
			BestFrame:    parseFloat(rec[0]),
			BestPhysics:  parseFloat(rec[1]),
			BestClassify: parseFloat(rec[2]),
			AvgClassify:  parseFloat(rec[3]),
			Comment:      rec[len(rec)-1],
		}
		for i := 0; i < devices; i++ {
			row.Kernel = append(row.Kernel, parseFloat(rec[4+2*i]))
			row.Download = append(row.Download, parseFloat(rec[5+2*i]))
		}
		row.X, _ = strconv.Atoi(rec[4+2*devices])
		row.Y, _ = strconv.Atoi(rec[5+2*devices])
		rows = append(rows, row)
	}
	return rows, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
