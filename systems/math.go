package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Angles in this package are degrees. Yaw 0 faces +Z and 90 faces +X, so a yaw
// sweeps clockwise when the ground plane is viewed from above.

const (
	deg2Rad = math.Pi / 180
	rad2Deg = 180 / math.Pi

	// minFacingSq is the squared planar distance below which a heading is not updated.
	minFacingSq = 0.0001
)

// clampFloat clamps a value between min and max.
func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// Angle normalization functions

// normalizeYaw wraps a yaw to [0, 360).
func normalizeYaw(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// deltaAngle returns the shortest signed rotation from one yaw to another, in [-180, 180].
func deltaAngle(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}

// rotateTowards turns current toward target by at most maxDelta degrees.
func rotateTowards(current, target, maxDelta float64) float64 {
	d := deltaAngle(current, target)
	if math.Abs(d) <= maxDelta {
		return normalizeYaw(target)
	}
	if d > 0 {
		return normalizeYaw(current + maxDelta)
	}
	return normalizeYaw(current - maxDelta)
}

// Direction functions

// DirFromYaw returns the unit ground-plane direction for a yaw.
func DirFromYaw(yaw float64) r3.Vec {
	rad := yaw * deg2Rad
	return r3.Vec{X: math.Sin(rad), Y: 0, Z: math.Cos(rad)}
}

// YawFromDir returns the yaw of a direction projected onto the ground plane.
func YawFromDir(v r3.Vec) float64 {
	return normalizeYaw(math.Atan2(v.X, v.Z) * rad2Deg)
}

// angleBetween returns the unsigned angle between two vectors in [0, 180].
// Zero-length input yields 0.
func angleBetween(a, b r3.Vec) float64 {
	na, nb := r3.Norm(a), r3.Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := clampFloat(r3.Dot(a, b)/(na*nb), -1, 1)
	return math.Acos(c) * rad2Deg
}

// flatten drops the vertical component.
func flatten(v r3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Z: v.Z}
}

// planarDistanceSq returns the squared ground-plane distance between two points.
func planarDistanceSq(a, b r3.Vec) float64 {
	return r3.Norm2(flatten(r3.Sub(b, a)))
}

// unitOrZero normalizes v, returning the zero vector for zero-length input.
func unitOrZero(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}
