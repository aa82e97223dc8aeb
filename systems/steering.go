package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// sweepTolerance is how close a look-around turn must get before it snaps to its goal.
const sweepTolerance = 0.5

// stepTowards moves pos toward target on the ground plane by at most speed*dt.
// When the step would reach or pass the target it lands exactly on it.
// The vertical coordinate of pos is preserved.
func stepTowards(pos, target r3.Vec, speed, dt float64) r3.Vec {
	to := flatten(r3.Sub(target, pos))
	step := r3.Scale(speed*dt, unitOrZero(to))
	if r3.Norm2(step) >= r3.Norm2(to) {
		return r3.Vec{X: target.X, Y: pos.Y, Z: target.Z}
	}
	return r3.Add(pos, step)
}

// faceTowards turns yaw toward a planar direction at a bounded rate.
// Directions shorter than minFacingSq leave yaw unchanged.
func faceTowards(yaw float64, to r3.Vec, turnSpeed, dt float64) float64 {
	to = flatten(to)
	if r3.Norm2(to) <= minFacingSq {
		return yaw
	}
	return rotateTowards(yaw, YawFromDir(to), turnSpeed*dt)
}

// turnStep advances a look-around turn. It returns the new yaw and whether the
// turn has completed. A turn completes on the first tick that starts within
// sweepTolerance of the goal, which snaps exactly onto it.
func turnStep(yaw, goal, turnSpeed, dt float64) (float64, bool) {
	if turnSpeed <= 0 || math.Abs(deltaAngle(yaw, goal)) <= sweepTolerance {
		return normalizeYaw(goal), true
	}
	return rotateTowards(yaw, goal, turnSpeed*dt), false
}
