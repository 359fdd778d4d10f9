package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/satvoronoi/internal/compute"
	"github.com/san-kum/satvoronoi/internal/dynamo"
	"github.com/san-kum/satvoronoi/internal/models"
	"github.com/san-kum/satvoronoi/internal/optim"
	"github.com/san-kum/satvoronoi/internal/sim"
)

const (
	DefaultWidth            = 1024
	DefaultHeight           = 1024
	DefaultSatellites       = 125
	DefaultRadius           = 3.16
	DefaultGravity          = 1.0
	DefaultSubSteps         = 10000
	DefaultValidationFrames = 2
	DefaultLocalX           = 32
	DefaultLocalY           = 1
	DefaultSweepMaxX        = 256
	DefaultSweepMaxY        = 128
	DefaultDataDir          = "./data"
)

type Config struct {
	Width            int          `yaml:"width"`
	Height           int          `yaml:"height"`
	Satellites       int          `yaml:"satellites"`
	Radius           float32      `yaml:"radius"`
	Gravity          float32      `yaml:"gravity"`
	SubSteps         int          `yaml:"sub_steps"`
	Seed             int64        `yaml:"seed"`
	ValidationFrames int          `yaml:"validation_frames"`
	Orbit            OrbitConfig  `yaml:"orbit"`
	Devices          DeviceConfig `yaml:"devices"`
	Sweep            SweepConfig  `yaml:"sweep"`
	DataDir          string       `yaml:"data_dir"`
	LogLevel         string       `yaml:"log_level"`
}

// OrbitConfig is the seeding band around the attractor, in pixels.
type OrbitConfig struct {
	MinOffset   float32 `yaml:"min_offset"`
	MaxOffset   float32 `yaml:"max_offset"`
	BaseSpeed   float32 `yaml:"base_speed"`
	SpeedJitter float32 `yaml:"speed_jitter"`
}

type DeviceConfig struct {
	Filter  string          `yaml:"filter"`
	Ratios  []int           `yaml:"ratios"`
	LocalX  int             `yaml:"local_x"`
	LocalY  int             `yaml:"local_y"`
	OpenCL  bool            `yaml:"opencl"`
	Virtual []VirtualDevice `yaml:"virtual"`
}

type VirtualDevice struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Workers      int    `yaml:"workers"`
	MaxWorkGroup int    `yaml:"max_work_group"`
}

type SweepConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxX           int  `yaml:"max_x"`
	MaxY           int  `yaml:"max_y"`
	PowersOfTwo    bool `yaml:"powers_of_two"`
	IntervalFrames int  `yaml:"interval_frames"`
}

func DefaultConfig() *Config {
	return &Config{
		Width:            DefaultWidth,
		Height:           DefaultHeight,
		Satellites:       DefaultSatellites,
		Radius:           DefaultRadius,
		Gravity:          DefaultGravity,
		SubSteps:         DefaultSubSteps,
		ValidationFrames: DefaultValidationFrames,
		Orbit: OrbitConfig{
			MinOffset:   50,
			MaxOffset:   300,
			BaseSpeed:   0.06,
			SpeedJitter: 0.01,
		},
		Devices: DeviceConfig{
			Filter: "all",
			LocalX: DefaultLocalX,
			LocalY: DefaultLocalY,
		},
		Sweep: SweepConfig{
			MaxX:           DefaultSweepMaxX,
			MaxY:           DefaultSweepMaxY,
			IntervalFrames: optim.DefaultIntervalFrames,
		},
		DataDir:  DefaultDataDir,
		LogLevel: "info",
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Encode writes cfg as yaml.
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func (c *Config) Clone() *Config {
	out := *c
	out.Devices.Ratios = append([]int(nil), c.Devices.Ratios...)
	out.Devices.Virtual = append([]VirtualDevice(nil), c.Devices.Virtual...)
	return &out
}

func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Satellites < 0 || c.Satellites > dynamo.MaxBodies {
		return fmt.Errorf("satellites must be in [0, %d], got %d", dynamo.MaxBodies, c.Satellites)
	}
	if c.Radius < 0 {
		return fmt.Errorf("radius must not be negative, got %v", c.Radius)
	}
	if c.SubSteps <= 0 {
		return fmt.Errorf("sub_steps must be positive, got %d", c.SubSteps)
	}
	if c.ValidationFrames < 0 {
		return fmt.Errorf("validation_frames must not be negative, got %d", c.ValidationFrames)
	}
	if c.Orbit.MinOffset > c.Orbit.MaxOffset {
		return fmt.Errorf("orbit min_offset %v exceeds max_offset %v", c.Orbit.MinOffset, c.Orbit.MaxOffset)
	}
	for i, r := range c.Devices.Ratios {
		if r <= 0 {
			return fmt.Errorf("devices.ratios[%d] must be positive, got %d", i, r)
		}
	}
	if _, err := c.Filter(); err != nil {
		return err
	}
	if _, err := c.HostDevices(); err != nil {
		return err
	}
	if c.Sweep.Enabled && (c.Sweep.MaxX <= 0 || c.Sweep.MaxY <= 0) {
		return fmt.Errorf("sweep bounds must be positive, got %dx%d", c.Sweep.MaxX, c.Sweep.MaxY)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c *Config) Filter() (compute.TypeFilter, error) {
	return compute.ParseFilter(c.Devices.Filter)
}

func (c *Config) Local() dynamo.Shape {
	return dynamo.Shape{X: c.Devices.LocalX, Y: c.Devices.LocalY}
}

// HostDevices converts the virtual device list. Empty means a single host
// device.
func (c *Config) HostDevices() ([]compute.HostDeviceConfig, error) {
	out := make([]compute.HostDeviceConfig, 0, len(c.Devices.Virtual))
	for i, v := range c.Devices.Virtual {
		typ, err := compute.ParseDeviceType(v.Type)
		if err != nil {
			return nil, fmt.Errorf("devices.virtual[%d]: %w", i, err)
		}
		name := v.Name
		if name == "" {
			name = fmt.Sprintf("host%d", i)
		}
		out = append(out, compute.HostDeviceConfig{
			Name:         name,
			Type:         typ,
			Workers:      v.Workers,
			MaxWorkGroup: v.MaxWorkGroup,
		})
	}
	return out, nil
}

func (c *Config) RegistryOptions() (compute.RegistryOptions, error) {
	host, err := c.HostDevices()
	if err != nil {
		return compute.RegistryOptions{}, err
	}
	return compute.RegistryOptions{Host: host, OpenCL: c.Devices.OpenCL}, nil
}

func (c *Config) SeedConfig() models.SeedConfig {
	return models.SeedConfig{
		Count:       c.Satellites,
		Width:       c.Width,
		Height:      c.Height,
		MinOffset:   c.Orbit.MinOffset,
		MaxOffset:   c.Orbit.MaxOffset,
		BaseSpeed:   c.Orbit.BaseSpeed,
		SpeedJitter: c.Orbit.SpeedJitter,
	}
}

// SimConfig builds the simulator configuration around a body table.
func (c *Config) SimConfig(bodies dynamo.Bodies) sim.Config {
	return sim.Config{
		Width:            c.Width,
		Height:           c.Height,
		Radius:           c.Radius,
		Gravity:          c.Gravity,
		SubSteps:         c.SubSteps,
		ValidationFrames: c.ValidationFrames,
		Ratios:           c.Devices.Ratios,
		Local:            c.Local(),
		Bodies:           bodies,
	}
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
