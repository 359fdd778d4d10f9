package config

import "sort"

func preset(mutate func(c *Config)) *Config {
	c := DefaultConfig()
	mutate(c)
	return c
}

var Presets = map[string]*Config{
	"baseline": DefaultConfig(),
	"split": preset(func(c *Config) {
		c.Devices.Ratios = []int{1, 1}
		c.Devices.Virtual = []VirtualDevice{
			{Name: "host-a", Type: "cpu"},
			{Name: "host-b", Type: "cpu"},
		}
	}),
	"uneven": preset(func(c *Config) {
		c.Devices.Ratios = []int{14, 2}
		c.Devices.Virtual = []VirtualDevice{
			{Name: "gpu-like", Type: "gpu", MaxWorkGroup: 256},
			{Name: "cpu-like", Type: "cpu", Workers: 2, MaxWorkGroup: 8192},
		}
	}),
	"sweep": preset(func(c *Config) {
		c.ValidationFrames = 0
		c.Devices.Ratios = []int{1, 1}
		c.Devices.Virtual = []VirtualDevice{
			{Name: "host-a", Type: "cpu", MaxWorkGroup: 1024},
			{Name: "host-b", Type: "gpu", MaxWorkGroup: 256},
		}
		c.Sweep.Enabled = true
		c.Sweep.PowersOfTwo = true
	}),
	"small": preset(func(c *Config) {
		c.Width, c.Height = 256, 256
		c.Satellites = 32
		c.SubSteps = 1000
		c.Orbit.MinOffset, c.Orbit.MaxOffset = 12, 75
		c.Devices.LocalX, c.Devices.LocalY = 16, 1
	}),
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
