package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/sentry/components"
)

// MoverSystem advances scripted entities along their paths.
type MoverSystem struct {
	filter *ecs.Filter2[components.Position, components.Mover]
}

// NewMoverSystem creates a mover system for the world.
func NewMoverSystem(w *ecs.World) *MoverSystem {
	return &MoverSystem{
		filter: ecs.NewFilter2[components.Position, components.Mover](w),
	}
}

// Update moves every mover by speed*dt along its path and returns the entities that moved.
func (s *MoverSystem) Update(dt float64) []ecs.Entity {
	var moved []ecs.Entity
	query := s.filter.Query()
	for query.Next() {
		pos, m := query.Get()
		if AdvanceMover(pos, m, dt) {
			moved = append(moved, query.Entity())
		}
	}
	return moved
}

// AdvanceMover walks pos along the mover's path, carrying leftover distance past
// each reached point. Looping paths restart at the first point; others stop at
// the last one. Returns whether the position changed.
func AdvanceMover(pos *components.Position, m *components.Mover, dt float64) bool {
	if m.Done || len(m.Path) == 0 || m.Speed <= 0 || dt <= 0 {
		return false
	}
	budget := m.Speed * dt
	moved := false

	// Bounded so a looping path of coincident points cannot spin forever.
	for guard := 0; budget > 0 && guard < 2*len(m.Path)+1; guard++ {
		if m.Index >= len(m.Path) {
			if !m.Loop {
				m.Done = true
				break
			}
			m.Index = 0
		}
		next := m.Path[m.Index]
		dx, dz := next.X-pos.X, next.Z-pos.Z
		dist := math.Hypot(dx, dz)
		if dist <= budget {
			if dist > 0 {
				moved = true
			}
			pos.X, pos.Z = next.X, next.Z
			budget -= dist
			m.Index++
			continue
		}
		pos.X += dx / dist * budget
		pos.Z += dz / dist * budget
		moved = true
		budget = 0
	}
	if !m.Loop && m.Index >= len(m.Path) {
		m.Done = true
	}
	return moved
}
