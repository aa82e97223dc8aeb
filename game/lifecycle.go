package game

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sentry/components"
	"github.com/pthm-cable/sentry/config"
	"github.com/pthm-cable/sentry/telemetry"
)

// spawnScenario creates the agent, the obstacles and the targets.
func (g *Game) spawnScenario() {
	sc := g.cfg.Scenario

	pos := components.Position{X: sc.Agent.Position.X, Y: sc.Agent.Position.Y, Z: sc.Agent.Position.Z}
	rot := components.Rotation{Yaw: sc.Agent.Yaw}
	ident := components.Identity{ID: g.allocID(), Name: sc.Agent.Name, Kind: components.KindAgent}
	g.agent = g.agentMapper.NewEntity(&pos, &rot, &ident)

	for i, obs := range sc.Obstacles {
		g.spawnObstacle(i, obs)
	}
	for i, tgt := range sc.Targets {
		g.spawnTarget(i, tgt)
	}
}

// spawnObstacle adds a static occluder. Obstacles with no footprint are skipped.
func (g *Game) spawnObstacle(i int, obs config.ObstacleConfig) {
	var col components.Collider
	switch obs.Shape {
	case "box":
		if obs.Width <= 0 || obs.Depth <= 0 {
			return
		}
		col = components.Collider{Shape: components.ShapeBox, HalfWidth: obs.Width / 2, HalfDepth: obs.Depth / 2}
	case "circle":
		if obs.Radius <= 0 {
			return
		}
		col = components.Collider{Shape: components.ShapeCircle, Radius: obs.Radius}
	default:
		return
	}

	name := obs.Name
	if name == "" {
		name = fmt.Sprintf("obstacle_%d", i)
	}
	pos := components.Position{X: obs.Position.X, Y: obs.Position.Y, Z: obs.Position.Z}
	ident := components.Identity{ID: g.allocID(), Name: name, Kind: components.KindObstacle}
	e := g.obstacleMapper.NewEntity(&pos, &col, &ident)

	if col.Shape == components.ShapeBox {
		g.index.AddBox(e, pos.Vec(), col.HalfWidth, col.HalfDepth, ident.Kind.String())
	} else {
		g.index.AddCircle(e, pos.Vec(), col.Radius, ident.Kind.String())
	}
}

// spawnTarget adds an observable entity and registers it for exposure tracking.
func (g *Game) spawnTarget(i int, tgt config.TargetConfig) ecs.Entity {
	name := tgt.Name
	if name == "" {
		name = fmt.Sprintf("target_%d", i)
	}
	pos := components.Position{X: tgt.Position.X, Y: tgt.Position.Y, Z: tgt.Position.Z}
	col := components.Collider{Shape: components.ShapeCircle, Radius: tgt.Radius}
	ident := components.Identity{ID: g.allocID(), Name: name, Kind: components.KindTarget, Tag: tgt.Tag}

	mover := components.Mover{Speed: tgt.Speed, Loop: tgt.Loop}
	for _, p := range tgt.Path {
		mover.Path = append(mover.Path, components.Position{X: p.X, Y: pos.Y, Z: p.Z})
	}
	life := components.Lifetime{DespawnAt: tgt.DespawnAt}

	e := g.targetMapper.NewEntity(&pos, &col, &ident, &mover, &life)
	g.index.AddTarget(e, pos.Vec(), col.Radius, ident.Tag)
	g.lifetimeTracker.Register(ident.ID, ident.Name, ident.Tag, g.tick)
	return e
}

func (g *Game) allocID() uint32 {
	id := g.nextID
	g.nextID++
	return id
}

// despawnExpired removes targets whose lifetime has run out.
func (g *Game) despawnExpired() {
	// First pass: collect expired targets (must complete before modifying)
	type expired struct {
		entity ecs.Entity
		id     uint32
		name   string
	}
	var toRemove []expired

	query := g.targetFilter.Query()
	for query.Next() {
		_, ident, life := query.Get()
		if life.DespawnAt > 0 && g.simTime >= life.DespawnAt {
			toRemove = append(toRemove, expired{entity: query.Entity(), id: ident.ID, name: ident.Name})
		}
	}

	// Second pass: remove entities (query iteration complete)
	for _, dead := range toRemove {
		g.index.Remove(dead.entity)
		g.world.RemoveEntity(dead.entity)
		g.lifetimeTracker.MarkRemoved(dead.id, g.tick)
		g.queueEvent(telemetry.NewTargetRemovedEvent(g.tick, g.simTime, dead.id, g.behavior.Route().Index()))
		g.logger.Info("target_removed", "id", dead.id, "name", dead.name, "tick", g.tick)
	}
}
