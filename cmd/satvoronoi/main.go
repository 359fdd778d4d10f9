package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/config"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/export"
	"github.com/san-kum/satvoronoi/internal/metrics"
	"github.com/san-kum/satvoronoi/internal/models"
	"github.com/san-kum/satvoronoi/internal/sim"
)

var (
	configFile string
	preset     string
	dataDir    string
	logLevel   string
	bodiesFile string

	width      int
	height     int
	satellites int
	seed       int64
	subSteps   int
	validation int
	filter     string
	ratios     string
	localX     int
	localY     int
	useOpenCL  bool

	pauseOnMismatch bool
	dumpMismatch    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "satvoronoi",
		Short:         "multi-device satellite voronoi renderer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "use preset configuration")
	pf.StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&bodiesFile, "bodies", "", "load the body table from a snapshot instead of seeding")
	pf.IntVar(&width, "width", config.DefaultWidth, "image width")
	pf.IntVar(&height, "height", config.DefaultHeight, "image height")
	pf.IntVar(&satellites, "satellites", config.DefaultSatellites, "number of satellites")
	pf.Int64Var(&seed, "seed", 0, "seed (0 picks one from the clock)")
	pf.IntVar(&subSteps, "sub-steps", config.DefaultSubSteps, "integration sub-steps per frame")
	pf.IntVar(&validation, "validate-frames", config.DefaultValidationFrames, "leading frames checked against the oracle")
	pf.StringVar(&filter, "devices", "all", "device filter (all, cpu, gpu)")
	pf.StringVar(&ratios, "ratios", "", "comma separated row ratios, e.g. 14,2")
	pf.IntVar(&localX, "local-x", config.DefaultLocalX, "work-group width (0 lets the device choose)")
	pf.IntVar(&localY, "local-y", config.DefaultLocalY, "work-group height")
	pf.BoolVar(&useOpenCL, "opencl", false, "enumerate OpenCL platforms")
	pf.BoolVar(&pauseOnMismatch, "pause-on-mismatch", false, "stop and wait after an oracle mismatch")
	pf.BoolVar(&dumpMismatch, "dump-mismatch", false, "write live and oracle PNGs on mismatch")

	runCmd := &cobra.Command{
		Use:   "run [seed]",
		Short: "run the simulation and record diagnostics",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().Int("frames", 600, "frames to run (0 runs until interrupted)")
	runCmd.Flags().Int("delta", 0, "fixed frame delta in ms (0 uses the wall clock)")
	runCmd.Flags().BoolVar(&showTerminal, "terminal", false, "draw frames in the terminal")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "list compute devices",
		RunE:  listDevices,
	}

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "show the row partition across devices",
		RunE:  showPlan,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "search work-group shapes per device",
		RunE:  runSweep,
	}
	sweepCmd.Flags().IntVar(&sweepMaxX, "max-x", config.DefaultSweepMaxX, "largest work-group width")
	sweepCmd.Flags().IntVar(&sweepMaxY, "max-y", config.DefaultSweepMaxY, "largest work-group height")
	sweepCmd.Flags().BoolVar(&sweepPow2, "pow2", false, "only power of two extents")
	sweepCmd.Flags().IntVar(&sweepInterval, "interval", 100, "frames per candidate")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "time frames with a fixed delta",
		RunE:  benchFrames,
	}
	benchCmd.Flags().Int("frames", 200, "frames to time")
	benchCmd.Flags().Int("delta", 16, "fixed frame delta in ms")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "check many seeds against the oracle",
		RunE:  validateSeeds,
	}
	validateCmd.Flags().Int("frames", 4, "frames per seed")
	validateCmd.Flags().Int("delta", 16, "fixed frame delta in ms")
	validateCmd.Flags().IntVar(&seedCount, "seeds", 8, "number of seeds, counting up from --seed")
	validateCmd.Flags().IntVar(&parallel, "parallel", 0, "simulators alive at once (0 uses GOMAXPROCS)")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run with a live terminal view",
		RunE:  runLive,
	}
	liveCmd.Flags().Int("delta", 0, "fixed frame delta in ms (0 uses the wall clock)")
	liveCmd.Flags().Int("fps", 30, "target frames per second")

	windowCmd := &cobra.Command{
		Use:   "window",
		Short: "run in a desktop window",
		RunE:  runWindow,
	}
	windowCmd.Flags().StringVar(&backend, "backend", "raylib", "window backend (raylib, ebiten)")
	windowCmd.Flags().Int("delta", 0, "fixed frame delta in ms (0 uses the wall clock)")
	windowCmd.Flags().Int("fps", 60, "target frames per second")
	windowCmd.Flags().IntVar(&scale, "scale", 1, "window scale factor")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a run's interval timings",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "run some frames then write the bodies and the frame",
		RunE:  takeSnapshot,
	}
	snapshotCmd.Flags().Int("frames", 1, "frames to run first")
	snapshotCmd.Flags().Int("delta", 16, "fixed frame delta in ms")
	snapshotCmd.Flags().StringVar(&outPrefix, "out", "snapshot", "output path prefix")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE:  listPresets,
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a yaml scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write the effective configuration as yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE:  writeConfig,
	}

	rootCmd.AddCommand(runCmd, devicesCmd, planCmd, sweepCmd, benchCmd, validateCmd,
		liveCmd, windowCmd, runsCmd, plotCmd, snapshotCmd, presetsCmd, scenarioCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		dynamo.Logger().Error("command failed", "err", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the preset, the config file and the flags
// the user actually set, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("data") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("width") {
		cfg.Width = width
	}
	if flags.Changed("height") {
		cfg.Height = height
	}
	if flags.Changed("satellites") {
		cfg.Satellites = satellites
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("sub-steps") {
		cfg.SubSteps = subSteps
	}
	if flags.Changed("validate-frames") {
		cfg.ValidationFrames = validation
	}
	if flags.Changed("devices") {
		cfg.Devices.Filter = filter
	}
	if flags.Changed("ratios") {
		r, err := parseRatios(ratios)
		if err != nil {
			return nil, err
		}
		cfg.Devices.Ratios = r
	}
	if flags.Changed("local-x") {
		cfg.Devices.LocalX = localX
	}
	if flags.Changed("local-y") {
		cfg.Devices.LocalY = localY
	}
	if flags.Changed("opencl") {
		cfg.Devices.OpenCL = useOpenCL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := setupLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// intFlag reads a command-local flag. Commands register their own
// defaults for frames, delta and fps, so these are not bound to shared
// variables.
func intFlag(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}

func parseRatios(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("bad ratio %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

func setupLogging(cfg *config.Config) error {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	dynamo.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func openDevices(cfg *config.Config) ([]compute.Device, error) {
	opts, err := cfg.RegistryOptions()
	if err != nil {
		return nil, err
	}
	if opts.OpenCL && !compute.OpenCLEnabled {
		dynamo.Logger().Warn("opencl support not built, using host devices only (rebuild with -tags opencl)")
		opts.OpenCL = false
	}
	reg, err := compute.DefaultRegistry(opts)
	if err != nil {
		return nil, err
	}
	f, err := cfg.Filter()
	if err != nil {
		return nil, err
	}
	return reg.Enumerate(f)
}

// initialBodies seeds the body table, or loads it from --bodies. A zero
// seed is replaced by a clock seed so the run can be repeated.
func initialBodies(cfg *config.Config) (dynamo.Bodies, error) {
	if bodiesFile != "" {
		snap, err := export.ReadSnapshot(bodiesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load bodies: %w", err)
		}
		if snap.Width != cfg.Width || snap.Height != cfg.Height {
			dynamo.Logger().Warn("snapshot size differs from config",
				"snapshot", fmt.Sprintf("%dx%d", snap.Width, snap.Height),
				"config", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
		}
		cfg.Seed = snap.Seed
		return snap.BodyTable(), nil
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	dynamo.Logger().Info("seeding satellites", "seed", cfg.Seed, "count", cfg.Satellites)
	return models.NewSatellites(cfg.SeedConfig(), models.NewRand(cfg.Seed)), nil
}

// newSimulator builds a simulator with the default metrics and the
// mismatch handling requested on the command line.
func newSimulator(cfg *config.Config, devices []compute.Device, adjust func(*sim.Config)) (*sim.Simulator, error) {
	bodies, err := initialBodies(cfg)
	if err != nil {
		return nil, err
	}
	sc := cfg.SimConfig(bodies)
	if adjust != nil {
		adjust(&sc)
	}
	s, err := sim.New(sc, devices)
	if err != nil {
		return nil, err
	}
	for _, m := range metrics.Default() {
		s.AddMetric(m)
	}
	s.OnMismatch(mismatchHandler(cfg, false))
	return s, nil
}

func deviceNames(devices []compute.Device) []string {
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name()
	}
	return names
}
