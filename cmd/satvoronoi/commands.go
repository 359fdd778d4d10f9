package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/satvoronoi/internal/automation"
	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/config"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/gui"
	"github.com/san-kum/satvoronoi/internal/optim"
	"github.com/san-kum/satvoronoi/internal/partition"
	"github.com/san-kum/satvoronoi/internal/sim"
	"github.com/san-kum/satvoronoi/internal/storage"
	"github.com/san-kum/satvoronoi/internal/tui"
	"github.com/san-kum/satvoronoi/internal/viz"
)

var (
	sweepMaxX     int
	sweepMaxY     int
	sweepPow2     bool
	sweepInterval int

	backend string
	scale   int
)

func listDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}
	if !compute.OpenCLEnabled {
		fmt.Println(viz.Subtle.Render("opencl support not built (rebuild with -tags opencl)"))
	}
	fmt.Print(viz.DeviceTable(compute.Describe(devices)))
	return nil
}

func showPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}
	parts, err := partition.Plan(len(devices), cfg.Height, cfg.Devices.Ratios, cfg.Local())
	if err != nil {
		return err
	}
	fmt.Println(viz.Header.Render(fmt.Sprintf("%dx%d over %d device(s)", cfg.Width, cfg.Height, len(devices))))
	fmt.Print(viz.PlanTable(parts, deviceNames(devices), cfg.Width))
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("max-x") || cfg.Sweep.MaxX <= 0 {
		cfg.Sweep.MaxX = sweepMaxX
	}
	if flags.Changed("max-y") || cfg.Sweep.MaxY <= 0 {
		cfg.Sweep.MaxY = sweepMaxY
	}
	if flags.Changed("pow2") {
		cfg.Sweep.PowersOfTwo = sweepPow2
	}
	if flags.Changed("interval") || cfg.Sweep.IntervalFrames <= 0 {
		cfg.Sweep.IntervalFrames = sweepInterval
	}

	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}

	candidates := partition.Candidates(cfg.Sweep.MaxX, cfg.Sweep.MaxY, cfg.Sweep.PowersOfTwo)
	sw := optim.NewSweep(len(devices), candidates, cfg.Sweep.IntervalFrames)

	st := storage.New(cfg.DataDir)
	if err := st.Init(); err != nil {
		return err
	}
	rec, err := st.Begin(runMetadata("sweep", cfg, devices))
	if err != nil {
		return err
	}
	defer rec.Close()

	var records []optim.IntervalRecord
	var appendErr error
	sw.OnRecord(func(r optim.IntervalRecord) {
		records = append(records, r)
		if err := rec.Append(r); err != nil && appendErr == nil {
			appendErr = err
		}
		intervals, left := sw.Progress()
		fmt.Printf("\r%s interval %d  %s  best classify %s  ",
			viz.ProgressBar(float64(intervals)/float64(intervals+left), 30), r.Index, r.Shapes(), r.BestClassify)
	})

	s, err := newSimulator(cfg, devices, func(sc *sim.Config) { sc.Selector = sw })
	if err != nil {
		return err
	}
	defer s.Close()
	s.AddObserver(sw)

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("sweeping %d candidate shapes on %d device(s), %d frames each\n",
		len(candidates), len(devices), cfg.Sweep.IntervalFrames)
	frameCount, mismatches := 0, 0
	last := time.Now()
	for !sw.Done() && ctx.Err() == nil && appendErr == nil {
		now := time.Now()
		stats, err := s.Step(ctx, int(now.Sub(last).Milliseconds()))
		last = now
		if err != nil {
			return err
		}
		frameCount++
		if stats.Mismatch != nil {
			mismatches++
		}
	}
	fmt.Println()
	if appendErr != nil {
		return appendErr
	}

	best := sw.Best()
	shapes := make([]string, len(best))
	for i, b := range best {
		shapes[i] = b.Shape.String()
	}
	if err := rec.Finish(frameCount, mismatches, shapes, s.MetricValues()); err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(viz.IntervalTable(tail(records, 20)))
	fmt.Println()
	fmt.Print(viz.BestTable(best))
	series := make([]float64, len(records))
	for i, r := range records {
		series[i] = millis(r.BestClassify)
	}
	if graph := viz.Plot(series, "best classify per interval (ms)", 10, 80); graph != "" {
		fmt.Println()
		fmt.Println(graph)
	}
	fmt.Printf("\nrecorded as %s\n", rec.ID())
	return nil
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	runs, err := storage.New(cfg.DataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSIZE\tSATS\tDEVICES\tFRAMES\tMISMATCH\tBEST")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%s\t%d\t%d\t%s\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Width, run.Height,
			run.Satellites,
			strings.Join(run.Devices, ","),
			run.Frames,
			run.Mismatches,
			strings.Join(run.Best, "|"),
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := storage.New(cfg.DataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	rows, err := st.LoadIntervals(args[0])
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return fmt.Errorf("run %s has %d intervals, need at least 2 to plot", meta.ID, len(rows))
	}

	best := make([]float64, len(rows))
	avg := make([]float64, len(rows))
	for i, r := range rows {
		best[i] = r.BestClassify
		avg[i] = r.AvgClassify
	}
	fmt.Println(viz.Header.Render(fmt.Sprintf("%s  %dx%d  %d satellites", meta.ID, meta.Width, meta.Height, meta.Satellites)))
	fmt.Println(viz.Plot(best, "best classify per interval (ms)", 12, 80))
	fmt.Println()
	fmt.Println(viz.Plot(avg, "moving average classify (ms)", 8, 80))
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tSIZE\tSATS\tDEVICES\tRATIOS\tLOCAL\tSWEEP")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		devices := "host"
		if len(p.Devices.Virtual) > 0 {
			names := make([]string, len(p.Devices.Virtual))
			for i, v := range p.Devices.Virtual {
				names[i] = v.Name
			}
			devices = strings.Join(names, ",")
		}
		fmt.Fprintf(w, "%s\t%dx%d\t%d\t%s\t%v\t%s\t%t\n",
			name, p.Width, p.Height, p.Satellites, devices, p.Devices.Ratios, p.Local(), p.Sweep.Enabled)
	}
	return w.Flush()
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return config.Encode(os.Stdout, cfg)
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	results, runErr := automation.Run(ctx, scenario, openDevices)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSEED\tFRAMES\tMISMATCH\tFRAME MS\tCLASSIFY MS")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.3f\t%.3f\n",
			r.Name, r.Seed, r.Frames, r.Mismatches, r.Metrics["frame_ms"], r.Metrics["classify_ms"])
	}
	w.Flush()
	return runErr
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	deltaMs, fps := intFlag(cmd, "delta"), intFlag(cmd, "fps")
	// The view owns the terminal, so only errors reach the log.
	dynamo.SetLogger(nil)
	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}
	s, err := newSimulator(cfg, devices, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	s.OnMismatch(mismatchHandler(cfg, true))

	ctx, stop := signalContext()
	defer stop()
	return tui.Run(ctx, s, tui.Options{
		FixedDeltaMs:    deltaMs,
		PauseOnMismatch: pauseOnMismatch,
		FPS:             fps,
	})
}

func runWindow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	deltaMs, fps := intFlag(cmd, "delta"), intFlag(cmd, "fps")
	devices, err := openDevices(cfg)
	if err != nil {
		return err
	}
	s, err := newSimulator(cfg, devices, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	s.OnMismatch(mismatchHandler(cfg, true))

	ctx, stop := signalContext()
	defer stop()

	opts := gui.Options{
		Title:           fmt.Sprintf("satvoronoi  seed %d", cfg.Seed),
		FixedDeltaMs:    deltaMs,
		PauseOnMismatch: pauseOnMismatch,
		FPS:             fps,
		Scale:           scale,
	}
	switch backend {
	case "raylib":
		return gui.RunRaylib(ctx, s, opts)
	case "ebiten":
		return gui.RunEbiten(ctx, s, opts)
	}
	return fmt.Errorf("unknown backend %q (raylib, ebiten)", backend)
}
