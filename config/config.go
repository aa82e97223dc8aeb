// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Sim       SimConfig       `yaml:"sim"`
	Vision    VisionConfig    `yaml:"vision"`
	Patrol    PatrolConfig    `yaml:"patrol"`
	Chase     ChaseConfig     `yaml:"chase"`
	Attack    AttackConfig    `yaml:"attack"`
	Debug     DebugConfig     `yaml:"debug"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Scenario  ScenarioConfig  `yaml:"scenario"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimConfig holds tick stepping parameters.
type SimConfig struct {
	DT       float64 `yaml:"dt"`        // Seconds per tick
	MaxTicks int     `yaml:"max_ticks"` // Stop after N ticks (0 = unlimited)
}

// VisionConfig holds view cone and visibility mesh parameters.
// Angles are in degrees.
type VisionConfig struct {
	ViewRadius            float64 `yaml:"view_radius"`
	ViewAngle             float64 `yaml:"view_angle"`              // Full cone width, 0-360
	MeshDensity           float64 `yaml:"mesh_density"`            // Degrees per polygon sample
	EdgeResolveIterations int     `yaml:"edge_resolve_iterations"` // Bisection steps per edge
	EdgeDistThreshold     float64 `yaml:"edge_dist_threshold"`     // Hit distance jump that counts as an edge
	TrackedTag            string  `yaml:"tracked_tag"`             // Only candidates with this tag are detected
}

// PatrolConfig holds waypoint traversal and look-around parameters.
type PatrolConfig struct {
	MoveSpeed      float64 `yaml:"move_speed"`
	ArriveDist     float64 `yaml:"arrive_dist"`
	TurnSpeed      float64 `yaml:"turn_speed"` // Degrees per second while moving or chasing
	Loop           bool    `yaml:"loop"`       // false = ping-pong
	WaitAtWaypoint float64 `yaml:"wait_at_waypoint"`
	LookAround     bool    `yaml:"look_around"`
	LookAngle      float64 `yaml:"look_angle"` // Degrees either side of the arrival heading
	Sweeps         int     `yaml:"sweeps"`
	LookTurnSpeed  float64 `yaml:"look_turn_speed"` // Degrees per second
	SweepPause     float64 `yaml:"sweep_pause"`     // Seconds held at each sweep extreme
}

// ChaseConfig holds pursuit parameters.
type ChaseConfig struct {
	ChaseSpeed      float64 `yaml:"chase_speed"`
	ChaseArriveDist float64 `yaml:"chase_arrive_dist"` // Stop distance from the last known position
	LosePlayerTime  float64 `yaml:"lose_player_time"`  // Seconds to keep pursuing after losing sight
}

// AttackConfig holds attack parameters.
type AttackConfig struct {
	AttackRange    float64 `yaml:"attack_range"`
	AttackCooldown float64 `yaml:"attack_cooldown"`
}

// DebugConfig holds development diagnostics switches.
type DebugConfig struct {
	TraceVision bool `yaml:"trace_vision"` // Log every view cast at debug level
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Seconds per stats window
	PerfWindow  int     `yaml:"perf_window"`  // Ticks averaged by the perf collector
	TraceTicks  bool    `yaml:"trace_ticks"`  // Write one CSV row per tick
}

// ScenarioConfig describes the world the agent is placed in.
type ScenarioConfig struct {
	Agent     AgentConfig      `yaml:"agent"`
	Route     []Point          `yaml:"route"`
	Obstacles []ObstacleConfig `yaml:"obstacles"`
	Targets   []TargetConfig   `yaml:"targets"`
}

// Point is a world-space position. Y is up.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// AgentConfig holds the agent's starting pose.
type AgentConfig struct {
	Name     string  `yaml:"name"`
	Position Point   `yaml:"position"`
	Yaw      float64 `yaml:"yaw"` // Degrees, 0 faces +Z, 90 faces +X
}

// ObstacleConfig describes a static occluder on the ground plane.
// Shape is "box" (uses Width/Depth) or "circle" (uses Radius).
type ObstacleConfig struct {
	Name     string  `yaml:"name"`
	Shape    string  `yaml:"shape"`
	Position Point   `yaml:"position"`
	Width    float64 `yaml:"width"` // Extent along X
	Depth    float64 `yaml:"depth"` // Extent along Z
	Radius   float64 `yaml:"radius"`
}

// TargetConfig describes an observable entity.
type TargetConfig struct {
	Name      string  `yaml:"name"`
	Tag       string  `yaml:"tag"`
	Position  Point   `yaml:"position"`
	Radius    float64 `yaml:"radius"`
	Path      []Point `yaml:"path"`       // Optional scripted movement
	Speed     float64 `yaml:"speed"`      // Path speed in units per second
	Loop      bool    `yaml:"loop"`       // Restart the path at the end instead of stopping
	DespawnAt float64 `yaml:"despawn_at"` // Remove from the world at this sim time (0 = never)
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	StatsWindowTicks int // Telemetry.StatsWindow / Sim.DT
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	return cfg, nil
}

// Parse builds a configuration from YAML bytes layered over the embedded defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// WindowTicks converts a window length in seconds to whole ticks, at least one.
func WindowTicks(seconds, dt float64) int {
	if dt <= 0 {
		return 1
	}
	ticks := int(math.Round(seconds / dt))
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	if c.Sim.DT <= 0 {
		c.Sim.DT = 1.0 / 60.0
	}
	c.Derived.StatsWindowTicks = WindowTicks(c.Telemetry.StatsWindow, c.Sim.DT)

	if c.Scenario.Agent.Name == "" {
		c.Scenario.Agent.Name = "sentry"
	}
	for i := range c.Scenario.Targets {
		tgt := &c.Scenario.Targets[i]
		if tgt.Tag == "" {
			tgt.Tag = c.Vision.TrackedTag
		}
		if tgt.Radius <= 0 {
			tgt.Radius = 0.5
		}
	}
}

// Validate reports settings that degrade behaviour. None of them are fatal:
// a non-positive view radius or angle means the agent never detects anything,
// an empty route means it never moves.
func (c *Config) Validate() []string {
	var warnings []string
	if c.Vision.ViewRadius <= 0 {
		warnings = append(warnings, "vision.view_radius is not positive; the agent will never detect targets")
	}
	if c.Vision.ViewAngle <= 0 {
		warnings = append(warnings, "vision.view_angle is not positive; the agent will never detect targets")
	}
	if c.Vision.ViewAngle > 360 {
		warnings = append(warnings, "vision.view_angle exceeds 360 degrees")
	}
	if c.Vision.EdgeResolveIterations < 0 {
		warnings = append(warnings, "vision.edge_resolve_iterations is negative; edges will not be refined")
	}
	if len(c.Scenario.Route) == 0 {
		warnings = append(warnings, "scenario.route is empty; the agent will not patrol")
	}
	for i, obs := range c.Scenario.Obstacles {
		switch obs.Shape {
		case "box":
			if obs.Width <= 0 || obs.Depth <= 0 {
				warnings = append(warnings, fmt.Sprintf("scenario.obstacles[%d] box has no area and is ignored", i))
			}
		case "circle":
			if obs.Radius <= 0 {
				warnings = append(warnings, fmt.Sprintf("scenario.obstacles[%d] circle has no radius and is ignored", i))
			}
		default:
			warnings = append(warnings, fmt.Sprintf("scenario.obstacles[%d] has unknown shape %q and is ignored", i, obs.Shape))
		}
	}
	return warnings
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
