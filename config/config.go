// Package config loads the configuration of a simulation run.
package config

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// The environment variables that override the configuration file.
const (
	EnvSpeedup     = "METERSIM_SPEEDUP"
	EnvStartTime   = "METERSIM_START_TIME"
	EnvMonitorPort = "METERSIM_MONITOR_PORT"
	EnvRecord      = "METERSIM_RECORD"
)

// A Phasor is a complex quantity given in polar form.
type Phasor struct {
	Magnitude float64 `yaml:"magnitude"`

	// Angle is in degrees.
	Angle float64 `yaml:"angle"`
}

// Complex returns the phasor as a complex number.
func (p Phasor) Complex() complex128 {
	return cmplx.Rect(p.Magnitude, p.Angle*math.Pi/180)
}

// Phasors converts up to three phasors into phase values. Missing phases
// are zero.
func Phasors(ps []Phasor) [3]complex128 {
	var v [3]complex128
	for i := 0; i < len(ps) && i < 3; i++ {
		v[i] = ps[i].Complex()
	}

	return v
}

// A VoltageTarget selects the current of a phase when the phase voltage is
// close to a value.
type VoltageTarget struct {
	Phase     int     `yaml:"phase"`
	Voltage   Phasor  `yaml:"voltage"`
	Tolerance float64 `yaml:"tolerance"`
	Current   Phasor  `yaml:"current"`
}

// Device describes one simulated device.
type Device struct {
	Name string `yaml:"name"`

	// Kind is one of constant, noop, switch, ramp and voltage.
	Kind string `yaml:"kind"`

	// Current is the current of a constant device, or of a switch when it is
	// on.
	Current []Phasor `yaml:"current"`

	// OffCurrent is the current of a switch when it is off.
	OffCurrent []Phasor `yaml:"off_current"`

	// On is the initial state of a switch.
	On bool `yaml:"on"`

	// Slope is the current of a ramp per second of uptime.
	Slope []Phasor `yaml:"slope"`

	// Until is the uptime at which a ramp stops.
	Until int32 `yaml:"until"`

	// Step is the number of seconds between two ramp updates.
	Step int32 `yaml:"step"`

	// Targets are the per-phase rules of a voltage device.
	Targets []VoltageTarget `yaml:"targets"`
}

// Config is the configuration of a simulation run.
type Config struct {
	Speedup     int           `yaml:"speedup"`
	StartTime   time.Time     `yaml:"start_time"`
	Stopped     bool          `yaml:"stopped"`
	Duration    time.Duration `yaml:"duration"`
	Voltage     []Phasor      `yaml:"voltage"`
	MonitorPort int           `yaml:"monitor_port"`
	Record      string        `yaml:"record"`
	Devices     []Device      `yaml:"devices"`
}

// Default returns the configuration of a real-time run on a 230 V grid.
func Default() Config {
	return Config{
		Speedup: 1,
		Voltage: []Phasor{
			{Magnitude: 230, Angle: 0},
			{Magnitude: 230, Angle: 120},
			{Magnitude: 230, Angle: 240},
		},
	}
}

// Load reads a YAML configuration file on top of the default configuration.
func Load(path string) (Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}

	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return c, fmt.Errorf("parsing %s: %w", path, err)
	}

	return c, nil
}

// LoadEnv loads the given .env files into the process environment. Missing
// files are ignored. Variables that are already set are not overridden.
func LoadEnv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}

	return nil
}

// ApplyEnv overrides the configuration with the environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvSpeedup); ok {
		speedup, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSpeedup, err)
		}

		c.Speedup = speedup
	}

	if v, ok := os.LookupEnv(EnvStartTime); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStartTime, err)
		}

		c.StartTime = t
	}

	if v, ok := os.LookupEnv(EnvMonitorPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMonitorPort, err)
		}

		c.MonitorPort = port
	}

	if v, ok := os.LookupEnv(EnvRecord); ok {
		c.Record = v
	}

	return nil
}

// Validate checks that the configuration can be run.
func (c *Config) Validate() error {
	if c.Speedup < 1 {
		return fmt.Errorf("speedup must be positive, got %d", c.Speedup)
	}

	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %s", c.Duration)
	}

	if len(c.Voltage) > 3 {
		return errors.New("at most 3 voltage phases can be given")
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("invalid monitor port %d", c.MonitorPort)
	}

	names := make(map[string]bool)
	for i, d := range c.Devices {
		if d.Name == "" {
			return fmt.Errorf("device %d has no name", i)
		}

		if names[d.Name] {
			return fmt.Errorf("device %s defined twice", d.Name)
		}
		names[d.Name] = true

		if err := d.validate(); err != nil {
			return fmt.Errorf("device %s: %w", d.Name, err)
		}
	}

	return nil
}

func (d *Device) validate() error {
	if len(d.Current) > 3 || len(d.OffCurrent) > 3 || len(d.Slope) > 3 {
		return errors.New("at most 3 phases can be given")
	}

	switch d.Kind {
	case "constant", "noop", "switch":
		return nil
	case "voltage":
		for _, t := range d.Targets {
			if t.Phase < 0 || t.Phase > 2 {
				return fmt.Errorf("invalid phase %d", t.Phase)
			}
		}

		return nil
	case "ramp":
		if d.Step < 1 {
			return errors.New("ramp step must be at least 1 second")
		}

		return nil
	default:
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
}

// VoltageComplex returns the grid voltage phasors.
func (c *Config) VoltageComplex() [3]complex128 {
	return Phasors(c.Voltage)
}
