package game

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sentry/systems"
	"github.com/pthm-cable/sentry/telemetry"
)

// simulationStep runs one fixed-rate tick: scripted movement, despawns, index
// sync, perception, behavior, then telemetry.
func (g *Game) simulationStep() {
	dt := g.cfg.Sim.DT
	g.perfCollector.StartTick()
	g.simTime += dt

	g.perfCollector.StartPhase(telemetry.PhaseMovers)
	moved := g.movers.Update(dt)

	g.perfCollector.StartPhase(telemetry.PhaseLifecycle)
	g.despawnExpired()

	g.perfCollector.StartPhase(telemetry.PhaseSpatialIndex)
	g.syncSpatialIndex(moved)

	g.perfCollector.StartPhase(telemetry.PhaseVision)
	pose := g.agentPose()
	report := g.updateVision(pose)

	g.perfCollector.StartPhase(telemetry.PhaseBehavior)
	out := g.updateBehavior(dt, report)

	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	g.recordTick(pose, out, report)
	g.tick++
	g.flushTelemetry()

	g.perfCollector.EndTick()
}

// syncSpatialIndex pushes moved target positions into the index.
func (g *Game) syncSpatialIndex(moved []ecs.Entity) {
	for _, e := range moved {
		if !g.world.Alive(e) {
			continue
		}
		g.index.Move(e, g.posMap.Get(e).Vec())
	}
}

// updateVision evaluates the view cone from the agent's pose at the start of the tick.
func (g *Game) updateVision(pose systems.Pose) systems.Report {
	g.edge = edgeNone
	report := g.vision.Evaluate(pose, g.vision.Nearby(pose))
	g.lastReport = report
	g.lastPose = pose

	routeIndex := g.behavior.Route().Index()
	switch g.edge {
	case edgeRising:
		var first uint32
		if len(report.Visible) > 0 {
			first = g.identityID(report.Visible[0].Entity)
		}
		g.queueEvent(telemetry.NewDetectedEvent(g.tick, g.simTime, first, routeIndex))
		g.logger.Info("target_detected", "tick", g.tick, "target", first, "visible", len(report.Visible))
	case edgeFalling:
		g.queueEvent(telemetry.NewLostEvent(g.tick, g.simTime, routeIndex))
		g.logger.Info("detection_lost", "tick", g.tick)
	}

	for _, c := range report.Visible {
		g.lifetimeTracker.RecordVisible(g.identityID(c.Entity), g.tick, g.cfg.Sim.DT)
	}
	return report
}

// updateBehavior steps the controller, writes its pose back to the agent and
// records the transitions it made.
func (g *Game) updateBehavior(dt float64, report systems.Report) systems.Output {
	prevIndex := g.behavior.Route().Index()
	out := g.behavior.Step(dt, report)

	pos := g.posMap.Get(g.agent)
	pos.X, pos.Y, pos.Z = out.Pose.Position.X, out.Pose.Position.Y, out.Pose.Position.Z
	g.rotMap.Get(g.agent).Yaw = out.Pose.Yaw

	routeIndex := g.behavior.Route().Index()
	var target uint32
	if e, ok := g.behavior.CurrentTarget(); ok {
		target = g.identityID(e)
	}

	if out.Changed() {
		g.queueEvent(telemetry.NewStateChangeEvent(g.tick, g.simTime, out.Previous.String(), out.State.String(), target, routeIndex))
		if !chasing(out.Previous) && chasing(out.State) {
			g.lifetimeTracker.RecordChased(target)
		}
	}
	if out.AttackTriggered {
		g.queueEvent(telemetry.NewAttackEvent(g.tick, g.simTime, target, routeIndex))
		g.lifetimeTracker.RecordAttacked(target)
	}
	if routeIndex != prevIndex {
		g.queueEvent(telemetry.NewWaypointEvent(g.tick, g.simTime, routeIndex))
	}
	return out
}

func chasing(s systems.State) bool {
	return s == systems.StateChase || s == systems.StateAttack
}

// planarDistance is the ground-plane distance between two poses.
func planarDistance(a, b systems.Pose) float64 {
	return math.Hypot(b.Position.X-a.Position.X, b.Position.Z-a.Position.Z)
}
