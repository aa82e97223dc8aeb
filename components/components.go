// Package components defines ECS components for the simulation.
package components

// Kind distinguishes the role an entity plays in the world.
type Kind uint8

const (
	KindAgent Kind = iota
	KindTarget
	KindObstacle
)

// String returns the display name for a Kind.
func (k Kind) String() string {
	switch k {
	case KindAgent:
		return "agent"
	case KindTarget:
		return "target"
	case KindObstacle:
		return "obstacle"
	}
	return "unknown"
}

// Identity names an entity and classifies it.
// Tag is the free-form classification the view cone filters on (e.g. "player").
type Identity struct {
	ID   uint32
	Name string
	Kind Kind
	Tag  string
}

// Mover drives an entity along a scripted path at constant speed.
type Mover struct {
	Path  []Position
	Speed float64
	Loop  bool
	Index int  // next path point
	Done  bool // reached the end of a non-looping path
}

// Lifetime removes an entity from the world once sim time reaches DespawnAt.
type Lifetime struct {
	DespawnAt float64
}
