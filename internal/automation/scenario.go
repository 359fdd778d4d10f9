// Package automation runs scripted sequences of simulations described in
// yaml, one simulator per step.
package automation

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/config"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/metrics"
	"github.com/san-kum/satvoronoi/internal/models"
	"github.com/san-kum/satvoronoi/internal/sim"
)

type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step overrides a preset. Zero values keep the preset's setting.
type Step struct {
	Name       string `yaml:"name"`
	Preset     string `yaml:"preset"`
	Seed       int64  `yaml:"seed"`
	Satellites int    `yaml:"satellites"`
	Frames     int    `yaml:"frames"`
	DeltaMs    int    `yaml:"delta_ms"`
	Ratios     []int  `yaml:"ratios"`
	LocalX     int    `yaml:"local_x"`
	LocalY     int    `yaml:"local_y"`
	Validate   *int   `yaml:"validation_frames"`
}

type StepResult struct {
	Name       string
	Seed       int64
	Frames     int
	Mismatches int
	Metrics    map[string]float64
}

// DeviceSource opens the devices for a step's configuration.
type DeviceSource func(cfg *config.Config) ([]compute.Device, error)

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Config resolves a step against its preset.
func (s Step) Config() (*config.Config, error) {
	name := s.Preset
	if name == "" {
		name = "baseline"
	}
	cfg := config.GetPreset(name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	if s.Seed != 0 {
		cfg.Seed = s.Seed
	}
	if s.Satellites > 0 {
		cfg.Satellites = s.Satellites
	}
	if len(s.Ratios) > 0 {
		cfg.Devices.Ratios = s.Ratios
	}
	if s.LocalX > 0 || s.LocalY > 0 {
		cfg.Devices.LocalX, cfg.Devices.LocalY = s.LocalX, s.LocalY
	}
	if s.Validate != nil {
		cfg.ValidationFrames = *s.Validate
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	return cfg, cfg.Validate()
}

// Run executes the steps in order and stops at the first failing step.
// Oracle mismatches do not fail a step; they are counted.
func Run(ctx context.Context, scenario *Scenario, open DeviceSource) ([]StepResult, error) {
	log := dynamo.Logger()
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step%d", i+1)
		}
		log.Info("scenario step", "scenario", scenario.Name, "step", name, "n", i+1, "of", len(scenario.Steps))

		res, err := runStep(ctx, step, open)
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		res.Name = name
		results = append(results, res)
	}
	return results, nil
}

func runStep(ctx context.Context, step Step, open DeviceSource) (StepResult, error) {
	cfg, err := step.Config()
	if err != nil {
		return StepResult{}, err
	}
	devices, err := open(cfg)
	if err != nil {
		return StepResult{}, err
	}

	bodies := models.NewSatellites(cfg.SeedConfig(), models.NewRand(cfg.Seed))
	sc := cfg.SimConfig(bodies)
	sc.FixedDeltaMs = step.DeltaMs
	if sc.FixedDeltaMs <= 0 {
		sc.FixedDeltaMs = 16
	}
	s, err := sim.New(sc, devices)
	if err != nil {
		return StepResult{}, err
	}
	defer s.Close()
	for _, m := range metrics.Default() {
		s.AddMetric(m)
	}

	frames := step.Frames
	if frames <= 0 {
		frames = cfg.ValidationFrames + 1
	}
	result, err := s.Run(ctx, frames, nil)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Seed:       cfg.Seed,
		Frames:     result.Frames,
		Mismatches: result.Mismatches,
		Metrics:    result.Metrics,
	}, nil
}
