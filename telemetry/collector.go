package telemetry

// TickSample is what the simulation reports to the collector once per tick.
type TickSample struct {
	State         string
	Distance      float64 // distance moved this tick
	Rays          int
	PolygonPoints int
	Area          float64
	Detected      bool
}

// Collector accumulates events within time windows and produces WindowStats.
type Collector struct {
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Per-state tick counters for current window
	stateTicks map[string]int

	// Event counters for current window
	detections   int
	losses       int
	attacks      int
	stateChanges int
	waypoints    int

	// Per-tick samples for current window
	distance      float64
	detectedTicks int
	rays          []float64
	polygonPoints []float64
	areas         []float64
}

// NewCollector creates a new stats collector.
// windowTicks: how many ticks each stats window lasts (at least one)
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowTicks int, dt float64) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}

	return &Collector{
		windowDurationTicks: int32(windowTicks),
		dt:                  dt,
		stateTicks:          make(map[string]int),
	}
}

// RecordTick adds one tick's sample to the window.
func (c *Collector) RecordTick(s TickSample) {
	c.stateTicks[s.State]++
	c.distance += s.Distance
	if s.Detected {
		c.detectedTicks++
	}
	c.rays = append(c.rays, float64(s.Rays))
	c.polygonPoints = append(c.polygonPoints, float64(s.PolygonPoints))
	c.areas = append(c.areas, s.Area)
}

// RecordEvent counts an event toward the window totals.
func (c *Collector) RecordEvent(e Event) {
	switch e.Type {
	case EventDetected:
		c.detections++
	case EventLost:
		c.losses++
	case EventAttack:
		c.attacks++
	case EventStateChange:
		c.stateChanges++
	case EventWaypoint:
		c.waypoints++
	}
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick int32, targetsAlive int) WindowStats {
	raysMean, _, _, raysP50, raysP90 := ComputeDistribution(c.rays)
	pointsMean, _, _, _, _ := ComputeDistribution(c.polygonPoints)
	areaMean, areaStd, _, _, _ := ComputeDistribution(c.areas)

	var detectedFraction float64
	if n := len(c.rays); n > 0 {
		detectedFraction = float64(c.detectedTicks) / float64(n)
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		TicksPatrol: c.stateTicks["patrol"],
		TicksDwell:  c.stateTicks["dwell"],
		TicksChase:  c.stateTicks["chase"],
		TicksAttack: c.stateTicks["attack"],

		Detections:   c.detections,
		Losses:       c.losses,
		Attacks:      c.attacks,
		StateChanges: c.stateChanges,
		Waypoints:    c.waypoints,

		Distance: c.distance,

		RaysMean: raysMean,
		RaysP50:  raysP50,
		RaysP90:  raysP90,

		PolygonPointsMean: pointsMean,
		AreaMean:          areaMean,
		AreaStd:           areaStd,

		DetectedFraction: detectedFraction,
		TargetsAlive:     targetsAlive,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.stateTicks = make(map[string]int)
	c.detections = 0
	c.losses = 0
	c.attacks = 0
	c.stateChanges = 0
	c.waypoints = 0
	c.distance = 0
	c.detectedTicks = 0
	c.rays = c.rays[:0]
	c.polygonPoints = c.polygonPoints[:0]
	c.areas = c.areas[:0]

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
