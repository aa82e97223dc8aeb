package main

import (
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sentry/config"
	"github.com/pthm-cable/sentry/game"
	"github.com/pthm-cable/sentry/systems"
)

// Reference mesh settings. Fine enough that the polygon area has converged.
const (
	refMeshDensity       = 0.05
	refEdgeIterations    = 12
	refEdgeDistThreshold = 0.05

	probeYawStep = 45.0
)

// probeResult is the mesh measured from one probe pose.
type probeResult struct {
	casts int
	area  float64
}

// FitnessEvaluator scores mesh settings by ray cost and polygon accuracy.
type FitnessEvaluator struct {
	params     *ParamVector
	baseConfig *config.Config
	lambda     float64
	workers    int
	logger     *slog.Logger

	probes    []systems.Pose
	reference []probeResult
	refRays   float64

	mu        sync.Mutex
	lastRays  float64
	lastError float64
}

// NewFitnessEvaluator builds the probe poses and measures the reference mesh.
// lambda weighs relative area error against normalized ray count.
func NewFitnessEvaluator(params *ParamVector, baseCfg *config.Config, lambda float64) *FitnessEvaluator {
	fe := &FitnessEvaluator{
		params:     params,
		baseConfig: baseCfg,
		lambda:     lambda,
		workers:    runtime.NumCPU(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		probes:     probePoses(baseCfg),
	}

	ref := fe.copyConfig()
	ref.Vision.MeshDensity = refMeshDensity
	ref.Vision.EdgeResolveIterations = refEdgeIterations
	ref.Vision.EdgeDistThreshold = refEdgeDistThreshold
	fe.reference = fe.measure(ref)

	var total int
	for _, r := range fe.reference {
		total += r.casts
	}
	if len(fe.reference) > 0 {
		fe.refRays = float64(total) / float64(len(fe.reference))
	}
	return fe
}

// Probes returns the number of probe poses.
func (fe *FitnessEvaluator) Probes() int {
	return len(fe.probes)
}

// ReferenceRays returns the mean rays per evaluation at reference resolution.
func (fe *FitnessEvaluator) ReferenceRays() float64 {
	return fe.refRays
}

// Last returns mean rays and mean relative area error from the most recent evaluation.
func (fe *FitnessEvaluator) Last() (rays, areaErr float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastRays, fe.lastError
}

// Evaluate computes the cost of a raw parameter vector (lower = better).
// Cost = rays / reference rays + lambda * mean relative area error.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	results := fe.measure(cfg)

	var rays, areaErr float64
	for i, r := range results {
		rays += float64(r.casts)
		areaErr += relativeError(r.area, fe.reference[i].area)
	}
	n := float64(len(results))
	if n == 0 {
		return 0
	}
	rays /= n
	areaErr /= n

	fe.mu.Lock()
	fe.lastRays = rays
	fe.lastError = areaErr
	fe.mu.Unlock()

	cost := fe.lambda * areaErr
	if fe.refRays > 0 {
		cost += rays / fe.refRays
	}
	return cost
}

// measure evaluates the mesh at every probe pose, splitting probes across workers.
// Each worker builds its own scene so no index is shared between goroutines.
func (fe *FitnessEvaluator) measure(cfg *config.Config) []probeResult {
	results := make([]probeResult, len(fe.probes))
	workers := fe.workers
	if workers > len(fe.probes) {
		workers = len(fe.probes)
	}
	if workers < 1 {
		return results
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			g := game.NewGameWithOptions(game.Options{Config: cfg, Logger: fe.logger})
			defer g.Unload()
			engine := systems.NewVisibilityEngine(systems.VisionConfigFrom(cfg), g.SpatialIndex(), fe.logger)

			for i := worker; i < len(fe.probes); i += workers {
				report := engine.Evaluate(fe.probes[i], nil)
				results[i] = probeResult{casts: report.Casts, area: report.Polygon.Area()}
			}
		}(w)
	}
	wg.Wait()
	return results
}

// copyConfig creates a copy of the base config. The scenario is shared; only
// vision fields are modified.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Debug.TraceVision = false
	cfg.Telemetry.TraceTicks = false
	return &cfg
}

// probePoses places the observer at the agent start and every route point,
// facing each of a fixed set of headings.
func probePoses(cfg *config.Config) []systems.Pose {
	sc := cfg.Scenario
	points := []r3.Vec{{X: sc.Agent.Position.X, Y: sc.Agent.Position.Y, Z: sc.Agent.Position.Z}}
	for _, p := range sc.Route {
		points = append(points, r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
	}

	var poses []systems.Pose
	for _, p := range points {
		for yaw := 0.0; yaw < 360; yaw += probeYawStep {
			poses = append(poses, systems.Pose{Position: p, Yaw: yaw})
		}
	}
	return poses
}

func relativeError(got, want float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs(got-want) / want
}
