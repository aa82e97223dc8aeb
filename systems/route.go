package systems

import "gonum.org/v1/gonum/spatial/r3"

// Route is an ordered waypoint list with a cursor.
// Looping routes wrap; non-looping routes ping-pong between the ends.
type Route struct {
	points []r3.Vec
	index  int
	dir    int
	loop   bool
}

// NewRoute creates a route starting at index 0. An empty route is valid and never advances.
func NewRoute(points []r3.Vec, loop bool) *Route {
	pts := make([]r3.Vec, len(points))
	copy(pts, points)
	return &Route{points: pts, dir: 1, loop: loop}
}

// Len returns the number of waypoints.
func (r *Route) Len() int {
	return len(r.points)
}

// Empty reports whether the route has no waypoints.
func (r *Route) Empty() bool {
	return len(r.points) == 0
}

// Index returns the cursor.
func (r *Route) Index() int {
	return r.index
}

// Direction returns +1 or -1.
func (r *Route) Direction() int {
	return r.dir
}

// Loop reports whether the route wraps.
func (r *Route) Loop() bool {
	return r.loop
}

// Current returns the waypoint under the cursor.
func (r *Route) Current() (r3.Vec, bool) {
	if r.Empty() {
		return r3.Vec{}, false
	}
	return r.points[r.index], true
}

// Point returns waypoint i.
func (r *Route) Point(i int) r3.Vec {
	return r.points[i]
}

// Advance moves the cursor to the next waypoint.
func (r *Route) Advance() {
	n := len(r.points)
	if n <= 1 {
		return
	}
	if r.loop {
		r.index = (r.index + 1) % n
		return
	}
	if r.index == 0 {
		r.dir = 1
	} else if r.index == n-1 {
		r.dir = -1
	}
	r.index += r.dir
}
