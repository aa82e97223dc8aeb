// Package game runs the headless sentry simulation: an ECS world holding the
// agent, its targets and static occluders, stepped at a fixed rate.
package game

import (
	"log/slog"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sentry/components"
	"github.com/pthm-cable/sentry/config"
	"github.com/pthm-cable/sentry/systems"
	"github.com/pthm-cable/sentry/telemetry"
)

// Options configures a new Game.
type Options struct {
	Config         *config.Config // nil uses config.Cfg()
	Logger         *slog.Logger   // nil uses slog.Default()
	LogStats       bool           // Log window and perf stats when a window closes
	StatsWindowSec float64        // Overrides telemetry.stats_window when positive
	StepsPerUpdate int            // Ticks per UpdateHeadless call (default 1)
	OutputDir      string         // Directory for CSV output (empty = disabled)
	SnapshotDir    string         // Directory for the final snapshot (empty = disabled)
	StatsCallback  func(telemetry.WindowStats)
}

// Game holds the complete simulation state.
type Game struct {
	cfg    *config.Config
	logger *slog.Logger
	world  *ecs.World

	// Entity mappers, one per archetype
	agentMapper *ecs.Map3[
		components.Position,
		components.Rotation,
		components.Identity,
	]
	targetMapper *ecs.Map5[
		components.Position,
		components.Collider,
		components.Identity,
		components.Mover,
		components.Lifetime,
	]
	obstacleMapper *ecs.Map3[
		components.Position,
		components.Collider,
		components.Identity,
	]
	targetFilter *ecs.Filter3[
		components.Position,
		components.Identity,
		components.Lifetime,
	]

	// Individual component mappers for lookups
	posMap   *ecs.Map[components.Position]
	rotMap   *ecs.Map[components.Rotation]
	identMap *ecs.Map[components.Identity]

	// Systems
	index    *systems.SpatialIndex
	movers   *systems.MoverSystem
	vision   *systems.VisibilityEngine
	behavior *systems.BehaviorController

	agent      ecs.Entity
	lastReport systems.Report
	lastPose   systems.Pose // pose lastReport was evaluated from
	intent     systems.Intent
	detection  systems.Subscription
	edge       detectionEdge

	// State
	tick    int32
	simTime float64
	nextID  uint32

	// Telemetry
	collector       *telemetry.Collector
	perfCollector   *telemetry.PerfCollector
	lifetimeTracker *telemetry.LifetimeTracker
	outputManager   *telemetry.OutputManager
	pendingEvents   []telemetry.Event
	logStats        bool
	stepsPerUpdate  int
	snapshotDir     string
	statsCallback   func(telemetry.WindowStats)
}

// NewGame creates a game from the global configuration with output disabled.
func NewGame() *Game {
	return NewGameWithOptions(Options{})
}

// NewGameWithOptions creates a game and spawns the configured scenario.
func NewGameWithOptions(opts Options) *Game {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	windowTicks := cfg.Derived.StatsWindowTicks
	if opts.StatsWindowSec > 0 {
		windowTicks = config.WindowTicks(opts.StatsWindowSec, cfg.Sim.DT)
	}
	steps := opts.StepsPerUpdate
	if steps < 1 {
		steps = 1
	}

	world := ecs.NewWorld()

	g := &Game{
		cfg:    cfg,
		logger: logger,
		world:  world,

		agentMapper: ecs.NewMap3[
			components.Position,
			components.Rotation,
			components.Identity,
		](world),
		targetMapper: ecs.NewMap5[
			components.Position,
			components.Collider,
			components.Identity,
			components.Mover,
			components.Lifetime,
		](world),
		obstacleMapper: ecs.NewMap3[
			components.Position,
			components.Collider,
			components.Identity,
		](world),
		targetFilter: ecs.NewFilter3[
			components.Position,
			components.Identity,
			components.Lifetime,
		](world),

		posMap:   ecs.NewMap[components.Position](world),
		rotMap:   ecs.NewMap[components.Rotation](world),
		identMap: ecs.NewMap[components.Identity](world),

		index:  systems.NewSpatialIndex(),
		movers: systems.NewMoverSystem(world),
		nextID: 1,

		collector:       telemetry.NewCollector(windowTicks, cfg.Sim.DT),
		perfCollector:   telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		lifetimeTracker: telemetry.NewLifetimeTracker(),
		logStats:        opts.LogStats,
		stepsPerUpdate:  steps,
		snapshotDir:     opts.SnapshotDir,
		statsCallback:   opts.StatsCallback,
	}

	if opts.OutputDir != "" {
		om, err := telemetry.NewOutputManager(opts.OutputDir, cfg.Telemetry.TraceTicks)
		if err != nil {
			logger.Error("failed to create output manager", "error", err)
		} else {
			g.outputManager = om
			if err := om.WriteConfig(cfg); err != nil {
				logger.Error("failed to write config", "error", err)
			}
		}
	}

	g.spawnScenario()

	g.vision = systems.NewVisibilityEngine(systems.VisionConfigFrom(cfg), g.index, logger)
	g.behavior = systems.NewBehaviorController(
		systems.BehaviorConfigFrom(cfg),
		systems.NewRoute(routePoints(cfg.Scenario.Route), cfg.Patrol.Loop),
		g.agentPose(),
		g,
		logger,
	)
	g.behavior.SetAnimationSink(g)
	g.behavior.Attach(g.vision.Signal())
	g.detection = g.vision.Signal().Subscribe(g.onDetection)

	logger.Info("scenario_loaded",
		"agent", cfg.Scenario.Agent.Name,
		"route_points", len(cfg.Scenario.Route),
		"obstacles", len(cfg.Scenario.Obstacles),
		"targets", g.lifetimeTracker.Count(),
		"indexed", g.index.Len(),
	)

	return g
}

// Alive reports whether an entity is still in the world.
func (g *Game) Alive(e ecs.Entity) bool {
	return g.world.Alive(e)
}

// SetIntent records the controller's animation intent for the tick trace.
func (g *Game) SetIntent(i systems.Intent) {
	g.intent = i
}

type detectionEdge uint8

const (
	edgeNone detectionEdge = iota
	edgeRising
	edgeFalling
)

// onDetection notes the edge the vision signal fired. The event is emitted once
// the report that caused it is available.
func (g *Game) onDetection(detected bool) {
	if detected {
		g.edge = edgeRising
	} else {
		g.edge = edgeFalling
	}
}

// agentPose reads the agent's pose from its components.
func (g *Game) agentPose() systems.Pose {
	pos := g.posMap.Get(g.agent)
	rot := g.rotMap.Get(g.agent)
	return systems.Pose{Position: pos.Vec(), Yaw: rot.Yaw}
}

// identityID returns the scenario ID of an entity, or 0 when it has none.
func (g *Game) identityID(e ecs.Entity) uint32 {
	if !g.world.Alive(e) || !g.identMap.Has(e) {
		return 0
	}
	return g.identMap.Get(e).ID
}

// Tick returns the number of completed ticks.
func (g *Game) Tick() int32 {
	return g.tick
}

// SimTime returns elapsed simulation seconds.
func (g *Game) SimTime() float64 {
	return g.simTime
}

// State returns the agent's behavior state.
func (g *Game) State() systems.State {
	return g.behavior.State()
}

// AgentPose returns the agent's current pose.
func (g *Game) AgentPose() systems.Pose {
	return g.agentPose()
}

// Behavior returns the agent's behavior controller.
func (g *Game) Behavior() *systems.BehaviorController {
	return g.behavior
}

// SpatialIndex returns the index the agent's vision queries.
func (g *Game) SpatialIndex() *systems.SpatialIndex {
	return g.index
}

// LastReport returns the visibility report of the most recent tick.
func (g *Game) LastReport() systems.Report {
	return g.lastReport
}

// Lifetimes returns per-target exposure stats in spawn order.
func (g *Game) Lifetimes() []telemetry.LifetimeStats {
	return g.lifetimeTracker.All()
}

// UpdateHeadless runs StepsPerUpdate simulation ticks.
func (g *Game) UpdateHeadless() {
	for i := 0; i < g.stepsPerUpdate; i++ {
		g.simulationStep()
	}
}

// Unload releases subscriptions and writes end-of-run output.
func (g *Game) Unload() {
	g.vision.Signal().Unsubscribe(g.detection)
	g.behavior.Close()

	if g.snapshotDir != "" {
		g.saveSnapshot()
	}
	if g.outputManager != nil {
		if err := g.outputManager.WriteTargets(g.lifetimeTracker.All()); err != nil {
			g.logger.Error("failed to write targets", "error", err)
		}
		if err := g.outputManager.Close(); err != nil {
			g.logger.Error("failed to close output", "error", err)
		}
	}
}

func routePoints(points []config.Point) []r3.Vec {
	out := make([]r3.Vec, len(points))
	for i, p := range points {
		out[i] = pointVec(p)
	}
	return out
}

func pointVec(p config.Point) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}
