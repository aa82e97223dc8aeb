package components

import "gonum.org/v1/gonum/spatial/r3"

// Position represents an entity's world position. Y is up; the ground plane is X/Z.
type Position struct {
	X, Y, Z float64
}

// Vec returns the position as a gonum vector.
func (p Position) Vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// PositionFromVec converts a gonum vector to a Position.
func PositionFromVec(v r3.Vec) Position {
	return Position{X: v.X, Y: v.Y, Z: v.Z}
}

// Rotation represents an entity's heading about the up axis.
type Rotation struct {
	Yaw float64 // degrees, 0 faces +Z, 90 faces +X
}
