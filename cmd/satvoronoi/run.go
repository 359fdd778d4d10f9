package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/config"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/export"
	"github.com/san-kum/satvoronoi/internal/oracle"
	"github.com/san-kum/satvoronoi/internal/sim"
	"github.com/san-kum/satvoronoi/internal/storage"
	"github.com/san-kum/satvoronoi/internal/viz"
)

var (
	showTerminal bool
	seedCount    int
	parallel     int
	outPrefix    string
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// mismatchHandler reports on stderr unless a view owns the terminal, in
// which case the view shows the mismatch and pauses itself.
func mismatchHandler(cfg *config.Config, viewOwnsTerminal bool) sim.MismatchHandler {
	return func(frame int, m *oracle.Mismatch, live, ref *dynamo.Image) {
		if !viewOwnsTerminal {
			fmt.Fprintln(os.Stderr, viz.MismatchReport(frame, m))
		}
		if dumpMismatch {
			base := filepath.Join(cfg.DataDir, fmt.Sprintf("mismatch_%d", frame))
			err := os.MkdirAll(cfg.DataDir, 0755)
			if err == nil {
				err = export.WritePNG(base+"_live.png", live)
			}
			if err == nil {
				err = export.WritePNG(base+"_oracle.png", ref)
			}
			if err != nil {
				dynamo.Logger().Warn("could not dump mismatch frames", "frame", frame, "err", err)
			}
		}
		if pauseOnMismatch && !viewOwnsTerminal {
			fmt.Fprint(os.Stderr, "press enter to continue")
			bufio.NewReader(os.Stdin).ReadString('\n')
		}
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	frames, deltaMs := intFlag(cmd, "frames"), intFlag(cmd, "delta")
	if len(args) == 1 {
		cfg.Seed, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad seed %q: %w", args[0], err)
		}
	}

	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}
	s, err := newSimulator(cfg, devices, func(sc *sim.Config) { sc.FixedDeltaMs = deltaMs })
	if err != nil {
		return err
	}
	defer s.Close()

	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	rec, err := st.Begin(runMetadata("run", cfg, devices))
	if err != nil {
		return err
	}
	defer rec.Close()

	ctx, stop := signalContext()
	defer stop()

	var surface sim.Surface
	if showTerminal {
		term := viz.NewTerminal(os.Stdout, 96, 40, "satvoronoi")
		term.Start()
		defer term.Stop()
		surface = term
	}

	fmt.Printf("running %s on %d device(s)\n", rec.ID(), len(devices))
	result, runErr := s.Run(ctx, frames, surface)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if err := rec.Finish(result.Frames, result.Mismatches, shapeStrings(s, result), result.Metrics); err != nil {
		return err
	}
	printMetrics(result)
	return nil
}

// shapeStrings reports the shapes the last frame ran with, falling back to
// the planned shapes when no frame completed.
func shapeStrings(s *sim.Simulator, result *sim.Result) []string {
	if len(result.Shapes) > 0 {
		out := make([]string, len(result.Shapes))
		for i, sh := range result.Shapes {
			out[i] = sh.String()
		}
		return out
	}
	parts := s.Partitions()
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Local.String()
	}
	return out
}

func runMetadata(name string, cfg *config.Config, devices []compute.Device) storage.RunMetadata {
	return storage.RunMetadata{
		Name:       name,
		Seed:       cfg.Seed,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Satellites: cfg.Satellites,
		Radius:     cfg.Radius,
		Gravity:    cfg.Gravity,
		SubSteps:   cfg.SubSteps,
		Devices:    deviceNames(devices),
		Ratios:     cfg.Devices.Ratios,
		Local:      cfg.Local().String(),
	}
}

func printMetrics(result *sim.Result) {
	fmt.Printf("\n%d frames, %d mismatches\n", result.Frames, result.Mismatches)
	names := make([]string, 0, len(result.Metrics))
	for k := range result.Metrics {
		names = append(names, k)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, k := range names {
		fmt.Fprintf(w, "%s\t%.4f\n", k, result.Metrics[k])
	}
	w.Flush()
}

func benchFrames(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	frames, deltaMs := intFlag(cmd, "frames"), intFlag(cmd, "delta")
	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}
	s, err := newSimulator(cfg, devices, func(sc *sim.Config) { sc.ValidationFrames = 0 })
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext()
	defer stop()

	total := make([]float64, 0, frames)
	classify := make([]float64, 0, frames)
	start := time.Now()
	for i := 0; i < frames && ctx.Err() == nil; i++ {
		stats, err := s.Step(ctx, deltaMs)
		if err != nil {
			return err
		}
		total = append(total, millis(stats.Total))
		classify = append(classify, millis(stats.Classify))
	}
	elapsed := time.Since(start)

	fmt.Printf("benchmarked %d frames of %dx%d, %d satellites, %d device(s) in %v\n\n",
		len(total), cfg.Width, cfg.Height, cfg.Satellites, len(devices), elapsed)
	if graph := viz.Plot(total, "frame time (ms)", 10, 80); graph != "" {
		fmt.Println(graph)
		fmt.Println()
	}
	if graph := viz.Plot(classify, "classify time (ms)", 6, 80); graph != "" {
		fmt.Println(graph)
		fmt.Println()
	}
	printMetrics(&sim.Result{Frames: len(total), Metrics: s.MetricValues()})
	return nil
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func validateSeeds(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	frames, deltaMs := intFlag(cmd, "frames"), intFlag(cmd, "delta")
	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}

	base := cfg.SimConfig(nil)
	base.ValidationFrames = frames
	ens := sim.NewEnsemble(base, cfg.SeedConfig(), devices, frames, deltaMs)
	if parallel > 0 {
		ens.SetLimit(parallel)
	}

	seeds := make([]int64, seedCount)
	for i := range seeds {
		seeds[i] = cfg.Seed + int64(i)
	}

	ctx, stop := signalContext()
	defer stop()

	results, err := ens.Run(ctx, seeds)
	if err != nil {
		return err
	}

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tFRAMES\tRESULT")
	for _, r := range results {
		status := "ok"
		if !r.OK() {
			failed++
			status = fmt.Sprintf("frame %d: %v", r.MismatchFrame, r.Mismatch)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\n", r.Seed, r.Frames, status)
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d seeds differ from the oracle", failed, len(results))
	}
	return nil
}

func takeSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	frames, deltaMs := intFlag(cmd, "frames"), intFlag(cmd, "delta")
	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}
	s, err := newSimulator(cfg, devices, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < frames; i++ {
		if _, err := s.Step(ctx, deltaMs); err != nil {
			return err
		}
	}

	snap := export.NewSnapshot(s.Frame(), cfg.Seed, cfg.Width, cfg.Height, cfg.Radius, s.Bodies())
	if err := export.WriteSnapshot(outPrefix+".json", snap); err != nil {
		return err
	}
	if err := export.WritePNG(outPrefix+".png", s.Image()); err != nil {
		return err
	}
	fmt.Printf("wrote %s.json and %s.png at frame %d\n", outPrefix, outPrefix, s.Frame())
	return nil
}
