// Package systems provides the visibility engine, the behavior controller and
// the spatial queries they run against.
package systems

import (
	"sort"

	"github.com/jakecoffman/cp"
	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"
)

// Collision categories used as query masks.
const (
	CategoryObstacle uint = 1 << iota
	CategoryTarget
)

// Candidate is an entity reported by a nearby query together with where it was seen.
type Candidate struct {
	Entity   ecs.Entity
	Position r3.Vec
	Tag      string
}

// RayHit is the nearest intersection found by a raycast.
type RayHit struct {
	Point    r3.Vec
	Distance float64
	Entity   ecs.Entity
}

// SpatialQuery answers the geometric questions the visibility engine asks.
// Implementations must be synchronous and free of side effects.
type SpatialQuery interface {
	// QueryNearby returns entities in the given categories whose footprint lies within radius of pos.
	QueryNearby(pos r3.Vec, radius float64, mask uint) []Candidate
	// Raycast returns the nearest hit along dir within maxDist, considering only the masked categories.
	Raycast(origin, dir r3.Vec, maxDist float64, mask uint) (RayHit, bool)
}

type spatialEntry struct {
	entity   ecs.Entity
	tag      string
	category uint
	center   r3.Vec
	radius   float64   // target footprint
	shape    *cp.Shape // nil for targets
}

// SpatialIndex is a SpatialQuery backed by a chipmunk space laid over the ground plane.
// World X maps to space X and world Z maps to space Y. Obstacles are treated as
// columns of unbounded height, so a ray is blocked wherever its ground projection is.
// The space is never stepped, so only static obstacles live in it. Targets move
// every tick and are kept beside it as circular footprints; they never occlude.
type SpatialIndex struct {
	space   *cp.Space
	entries map[ecs.Entity]*spatialEntry
}

// NewSpatialIndex creates an empty index.
func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{
		space:   cp.NewSpace(),
		entries: make(map[ecs.Entity]*spatialEntry),
	}
}

func toPlane(v r3.Vec) cp.Vector {
	return cp.Vector{X: v.X, Y: v.Z}
}

// AddBox registers a static box obstacle centred on center with the given half extents.
func (s *SpatialIndex) AddBox(e ecs.Entity, center r3.Vec, halfWidth, halfDepth float64, tag string) {
	bb := cp.BB{
		L: center.X - halfWidth,
		B: center.Z - halfDepth,
		R: center.X + halfWidth,
		T: center.Z + halfDepth,
	}
	shape := cp.NewBox2(s.space.StaticBody, bb, 0)
	s.addStatic(e, shape, center, tag)
}

// AddCircle registers a static circular obstacle.
func (s *SpatialIndex) AddCircle(e ecs.Entity, center r3.Vec, radius float64, tag string) {
	shape := cp.NewCircle(s.space.StaticBody, radius, toPlane(center))
	s.addStatic(e, shape, center, tag)
}

func (s *SpatialIndex) addStatic(e ecs.Entity, shape *cp.Shape, center r3.Vec, tag string) {
	s.Remove(e)
	entry := &spatialEntry{
		entity:   e,
		tag:      tag,
		category: CategoryObstacle,
		center:   center,
		shape:    shape,
	}
	shape.UserData = entry
	shape.SetFilter(cp.NewShapeFilter(cp.NO_GROUP, CategoryObstacle, cp.ALL_CATEGORIES))
	s.space.AddShape(shape)
	s.entries[e] = entry
}

// AddTarget registers a movable circular target.
func (s *SpatialIndex) AddTarget(e ecs.Entity, pos r3.Vec, radius float64, tag string) {
	s.Remove(e)
	s.entries[e] = &spatialEntry{
		entity:   e,
		tag:      tag,
		category: CategoryTarget,
		center:   pos,
		radius:   radius,
	}
}

// Move updates the position of a target. Static obstacles and unknown entities are ignored.
func (s *SpatialIndex) Move(e ecs.Entity, pos r3.Vec) {
	entry, ok := s.entries[e]
	if !ok || entry.shape != nil {
		return
	}
	entry.center = pos
}

// Remove drops an entity from the index.
func (s *SpatialIndex) Remove(e ecs.Entity) {
	entry, ok := s.entries[e]
	if !ok {
		return
	}
	if entry.shape != nil {
		s.space.RemoveShape(entry.shape)
	}
	delete(s.entries, e)
}

// Len returns the number of indexed entities.
func (s *SpatialIndex) Len() int {
	return len(s.entries)
}

// QueryNearby implements SpatialQuery.
// Results are ordered by distance from pos, ties broken by entity ID.
func (s *SpatialIndex) QueryNearby(pos r3.Vec, radius float64, mask uint) []Candidate {
	if radius <= 0 {
		return nil
	}
	p := toPlane(pos)

	var found []*spatialEntry
	for _, entry := range s.entries {
		if entry.category&mask == 0 {
			continue
		}
		if entry.footprintDistance(p) <= radius {
			found = append(found, entry)
		}
	}

	sort.Slice(found, func(i, j int) bool {
		di := r3.Norm2(r3.Sub(found[i].center, pos))
		dj := r3.Norm2(r3.Sub(found[j].center, pos))
		if di != dj {
			return di < dj
		}
		return found[i].entity.ID() < found[j].entity.ID()
	})

	out := make([]Candidate, 0, len(found))
	for _, entry := range found {
		out = append(out, Candidate{Entity: entry.entity, Position: entry.center, Tag: entry.tag})
	}
	return out
}

// Raycast implements SpatialQuery.
func (s *SpatialIndex) Raycast(origin, dir r3.Vec, maxDist float64, mask uint) (RayHit, bool) {
	if maxDist <= 0 {
		return RayHit{}, false
	}
	dir = unitOrZero(dir)
	end := r3.Add(origin, r3.Scale(maxDist, dir))
	start2, end2 := toPlane(origin), toPlane(end)
	if start2 == end2 {
		return RayHit{}, false
	}

	filter := cp.NewShapeFilter(cp.NO_GROUP, cp.ALL_CATEGORIES, mask)
	info := s.space.SegmentQueryFirst(start2, end2, 0, filter)
	if info.Shape == nil {
		return RayHit{}, false
	}

	dist := info.Alpha * maxDist
	hit := RayHit{
		Point:    r3.Add(origin, r3.Scale(dist, dir)),
		Distance: dist,
	}
	if entry, ok := info.Shape.UserData.(*spatialEntry); ok {
		hit.Entity = entry.entity
	}
	return hit, true
}

// footprintDistance is the planar distance from p to the entry's footprint,
// negative when p lies inside it.
func (e *spatialEntry) footprintDistance(p cp.Vector) float64 {
	if e.shape != nil {
		return e.shape.PointQuery(p).Distance
	}
	return toPlane(e.center).Distance(p) - e.radius
}
