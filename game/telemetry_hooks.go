package game

import (
	"github.com/pthm-cable/sentry/systems"
	"github.com/pthm-cable/sentry/telemetry"
)

// queueEvent counts an event toward the current window and holds it for the CSV writer.
func (g *Game) queueEvent(e telemetry.Event) {
	g.collector.RecordEvent(e)
	g.pendingEvents = append(g.pendingEvents, e)
}

// recordTick feeds the collector and writes the per-tick trace.
// start is the agent pose before the controller stepped.
func (g *Game) recordTick(start systems.Pose, out systems.Output, report systems.Report) {
	g.collector.RecordTick(telemetry.TickSample{
		State:         out.State.String(),
		Distance:      planarDistance(start, out.Pose),
		Rays:          report.Casts,
		PolygonPoints: len(report.Polygon.Points),
		Area:          report.Polygon.Area(),
		Detected:      report.Detected,
	})

	if g.outputManager == nil {
		g.pendingEvents = g.pendingEvents[:0]
		return
	}

	var target uint32
	if e, ok := g.behavior.CurrentTarget(); ok {
		target = g.identityID(e)
	}
	rec := telemetry.TickRecord{
		Tick:          g.tick,
		SimTime:       g.simTime,
		State:         out.State.String(),
		X:             out.Pose.Position.X,
		Z:             out.Pose.Position.Z,
		Yaw:           out.Pose.Yaw,
		RouteIndex:    g.behavior.Route().Index(),
		Moving:        g.intent.Moving,
		LookingAround: g.intent.LookingAround,
		Attacking:     g.intent.Attacking,
		Visible:       len(report.Visible),
		Detected:      report.Detected,
		Target:        target,
		Rays:          report.Casts,
		PolygonPoints: len(report.Polygon.Points),
	}
	if err := g.outputManager.WriteTick(rec); err != nil {
		g.logger.Error("failed to write tick", "error", err)
	}
	if len(g.pendingEvents) > 0 {
		if err := g.outputManager.WriteEvents(g.pendingEvents); err != nil {
			g.logger.Error("failed to write events", "error", err)
		}
		g.pendingEvents = g.pendingEvents[:0]
	}
}

// flushTelemetry closes the stats window when it has run its length.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	stats := g.collector.Flush(g.tick, g.lifetimeTracker.AliveCount())
	perfStats := g.perfCollector.Stats()

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}

	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
		g.logWorldState()
	}

	if g.outputManager != nil {
		if err := g.outputManager.WriteTelemetry(stats); err != nil {
			g.logger.Error("failed to write telemetry", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
			g.logger.Error("failed to write perf", "error", err)
		}
	}
}

// saveSnapshot creates and saves a snapshot to disk.
func (g *Game) saveSnapshot() {
	snapshot := g.createSnapshot()

	path, err := telemetry.SaveSnapshot(snapshot, g.snapshotDir)
	if err != nil {
		g.logger.Error("failed to save snapshot", "error", err)
		return
	}

	g.logger.Info("snapshot saved", "path", path, "tick", g.tick)
}

// createSnapshot builds a snapshot from the current state.
func (g *Game) createSnapshot() *telemetry.Snapshot {
	pose := g.agentPose()
	snapshot := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		Tick:    g.tick,
		SimTime: g.simTime,
		Agent: telemetry.AgentState{
			Name:       g.identMap.Get(g.agent).Name,
			X:          pose.Position.X,
			Y:          pose.Position.Y,
			Z:          pose.Position.Z,
			Yaw:        pose.Yaw,
			State:      g.behavior.State().String(),
			RouteIndex: g.behavior.Route().Index(),
			Detected:   g.vision.Detected(),
		},
	}
	if e, ok := g.behavior.CurrentTarget(); ok {
		snapshot.Agent.Target = g.identityID(e)
	}

	query := g.targetFilter.Query()
	for query.Next() {
		entity := query.Entity()
		pos, ident, _ := query.Get()

		state := telemetry.TargetState{
			ID:   ident.ID,
			Name: ident.Name,
			Tag:  ident.Tag,
			X:    pos.X,
			Y:    pos.Y,
			Z:    pos.Z,
		}
		_, state.Visible = g.lastReport.Sees(entity)
		if ls := g.lifetimeTracker.Get(ident.ID); ls != nil {
			cp := *ls
			state.Lifetime = &cp
		}
		snapshot.Targets = append(snapshot.Targets, state)
	}

	if len(g.lastReport.Polygon.Points) > 0 {
		for _, v := range g.lastReport.Polygon.Vertices() {
			snapshot.Polygon = append(snapshot.Polygon, [3]float64{v.X, v.Y, v.Z})
		}
		for _, v := range g.lastReport.Polygon.Local(g.lastPose) {
			snapshot.PolygonLocal = append(snapshot.PolygonLocal, [3]float64{v.X, v.Y, v.Z})
		}
	}

	return snapshot
}
