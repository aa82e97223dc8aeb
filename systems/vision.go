package systems

import (
	"log/slog"
	"math"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sentry/config"
)

const (
	// minMeshDensity bounds the polygon sample count for tiny densities.
	minMeshDensity = 0.01
	// angleEpsilon absorbs acos rounding so targets exactly on the cone boundary count as inside.
	angleEpsilon = 1e-9
)

// VisionConfig holds view cone parameters. Angles are in degrees.
type VisionConfig struct {
	ViewRadius            float64
	ViewAngle             float64
	MeshDensity           float64
	EdgeResolveIterations int
	EdgeDistThreshold     float64
	TrackedTag            string
	Trace                 bool
}

// VisionConfigFrom extracts the vision settings from the loaded configuration.
func VisionConfigFrom(cfg *config.Config) VisionConfig {
	return VisionConfig{
		ViewRadius:            cfg.Vision.ViewRadius,
		ViewAngle:             cfg.Vision.ViewAngle,
		MeshDensity:           cfg.Vision.MeshDensity,
		EdgeResolveIterations: cfg.Vision.EdgeResolveIterations,
		EdgeDistThreshold:     cfg.Vision.EdgeDistThreshold,
		TrackedTag:            cfg.Vision.TrackedTag,
		Trace:                 cfg.Debug.TraceVision,
	}
}

// enabled reports whether the cone has any extent.
func (c VisionConfig) enabled() bool {
	return c.ViewRadius > 0 && c.ViewAngle > 0
}

// Pose is an observer position plus facing.
type Pose struct {
	Position r3.Vec
	Yaw      float64 // degrees, 0 faces +Z
}

// Forward returns the unit facing direction on the ground plane.
func (p Pose) Forward() r3.Vec {
	return DirFromYaw(p.Yaw)
}

// ViewCast is the result of one angular sample.
type ViewCast struct {
	Hit      bool
	Point    r3.Vec
	Distance float64
	Angle    float64 // world yaw of the sample, degrees
}

// Polygon is the visible region as a fan around Origin.
// Triangle i is {Origin, Points[i], Points[i+1]}.
type Polygon struct {
	Origin r3.Vec
	Points []r3.Vec
}

// Vertices returns the origin followed by the boundary points.
func (p Polygon) Vertices() []r3.Vec {
	out := make([]r3.Vec, 0, len(p.Points)+1)
	out = append(out, p.Origin)
	return append(out, p.Points...)
}

// Triangles returns fan triangle indices into Vertices.
func (p Polygon) Triangles() [][3]int {
	if len(p.Points) < 2 {
		return nil
	}
	tris := make([][3]int, 0, len(p.Points)-1)
	for i := 0; i < len(p.Points)-1; i++ {
		tris = append(tris, [3]int{0, i + 1, i + 2})
	}
	return tris
}

// Local returns the vertices relative to the observer, rotated so the
// observer faces +Z. This is the layout a mesh attached to the agent expects.
func (p Polygon) Local(pose Pose) []r3.Vec {
	rot := r3.NewRotation(-pose.Yaw*deg2Rad, r3.Vec{Y: 1})
	verts := p.Vertices()
	for i, v := range verts {
		verts[i] = rot.Rotate(r3.Sub(v, pose.Position))
	}
	return verts
}

// Area returns the ground-plane area covered by the fan.
func (p Polygon) Area() float64 {
	var sum float64
	for i := 0; i < len(p.Points)-1; i++ {
		a := r3.Sub(p.Points[i], p.Origin)
		b := r3.Sub(p.Points[i+1], p.Origin)
		sum += a.X*b.Z - a.Z*b.X
	}
	return math.Abs(sum) / 2
}

// Report is everything one evaluation produced.
type Report struct {
	Visible          []Candidate
	Detected         bool // len(Visible) > 0
	DetectionChanged bool // Detected differs from the previous evaluation
	Polygon          Polygon
	Casts            int // rays cast during this evaluation
}

// Sees returns the visible candidate for an entity.
func (r Report) Sees(e ecs.Entity) (Candidate, bool) {
	for _, c := range r.Visible {
		if c.Entity == e {
			return c, true
		}
	}
	return Candidate{}, false
}

// VisibilityEngine computes what an observer can see through its view cone.
// It owns the detection state and never mutates the observer's pose.
type VisibilityEngine struct {
	cfg    VisionConfig
	query  SpatialQuery
	signal DetectionSignal
	logger *slog.Logger

	detected bool
	casts    int

	warnedNoQuery  bool
	warnedDisabled bool
}

// NewVisibilityEngine creates an engine. A nil query is allowed: the engine
// then warns once and reports nothing visible.
func NewVisibilityEngine(cfg VisionConfig, query SpatialQuery, logger *slog.Logger) *VisibilityEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ViewAngle > 360 {
		cfg.ViewAngle = 360
	}
	return &VisibilityEngine{
		cfg:    cfg,
		query:  query,
		logger: logger.With("component", "vision"),
	}
}

// Config returns the engine configuration.
func (e *VisibilityEngine) Config() VisionConfig {
	return e.cfg
}

// Signal returns the detection-changed signal.
func (e *VisibilityEngine) Signal() *DetectionSignal {
	return &e.signal
}

// Detected returns the detection state from the last evaluation.
func (e *VisibilityEngine) Detected() bool {
	return e.detected
}

// Nearby asks the spatial query for target-category entities inside the view radius.
func (e *VisibilityEngine) Nearby(pose Pose) []Candidate {
	if !e.ready() {
		return nil
	}
	return e.query.QueryNearby(pose.Position, e.cfg.ViewRadius, CategoryTarget)
}

// ready reports whether evaluation can do any work, warning once otherwise.
func (e *VisibilityEngine) ready() bool {
	if e.query == nil {
		if !e.warnedNoQuery {
			e.logger.Warn("no spatial query provider wired; visibility will always be empty")
			e.warnedNoQuery = true
		}
		return false
	}
	if !e.cfg.enabled() {
		if !e.warnedDisabled {
			e.logger.Warn("view cone has no extent; targets will never be detected",
				"view_radius", e.cfg.ViewRadius,
				"view_angle", e.cfg.ViewAngle,
			)
			e.warnedDisabled = true
		}
		return false
	}
	return true
}

// Evaluate runs one visibility pass for the observer pose.
// Subscribers of Signal are notified before Evaluate returns when the
// detection state changes.
func (e *VisibilityEngine) Evaluate(pose Pose, candidates []Candidate) Report {
	e.casts = 0
	report := Report{Polygon: Polygon{Origin: pose.Position}}

	if e.ready() {
		report.Visible = e.findVisibleTargets(pose, candidates)
		report.Polygon = e.buildPolygon(pose)
	}
	report.Casts = e.casts

	detected := len(report.Visible) > 0
	report.Detected = detected
	if detected != e.detected {
		e.detected = detected
		report.DetectionChanged = true
		e.logger.Debug("detection changed", "detected", detected, "visible", len(report.Visible))
		e.signal.Publish(detected)
	}
	return report
}

// findVisibleTargets applies the tag, radius, angle and occlusion tests in that order.
func (e *VisibilityEngine) findVisibleTargets(pose Pose, candidates []Candidate) []Candidate {
	var visible []Candidate
	forward := pose.Forward()
	halfAngle := e.cfg.ViewAngle / 2

	for _, c := range candidates {
		if c.Tag != e.cfg.TrackedTag {
			if e.cfg.Trace {
				e.logger.Debug("candidate skipped: tag", "entity", c.Entity.ID(), "tag", c.Tag)
			}
			continue
		}

		toTarget := r3.Sub(c.Position, pose.Position)
		dist := r3.Norm(toTarget)
		if dist > e.cfg.ViewRadius {
			continue
		}

		angle := angleBetween(forward, toTarget)
		if angle > halfAngle+angleEpsilon {
			if e.cfg.Trace {
				e.logger.Debug("candidate outside view angle", "entity", c.Entity.ID(), "angle", angle, "max", halfAngle)
			}
			continue
		}

		if dist > 0 {
			e.casts++
			if hit, ok := e.query.Raycast(pose.Position, toTarget, dist, CategoryObstacle); ok {
				if e.cfg.Trace {
					e.logger.Debug("candidate occluded", "entity", c.Entity.ID(), "blocker", hit.Entity.ID(), "hit_distance", hit.Distance)
				}
				continue
			}
		}

		if e.cfg.Trace {
			e.logger.Debug("candidate visible", "entity", c.Entity.ID(), "distance", dist, "angle", angle)
		}
		visible = append(visible, c)
	}
	return visible
}

type edgeInfo struct {
	pointA, pointB r3.Vec
	hasA, hasB     bool
}

// buildPolygon samples the cone and refines discontinuities.
func (e *VisibilityEngine) buildPolygon(pose Pose) Polygon {
	density := math.Max(minMeshDensity, e.cfg.MeshDensity)
	stepCount := int(math.Ceil(e.cfg.ViewAngle / density))
	if stepCount < 1 {
		stepCount = 1
	}
	stepAngle := e.cfg.ViewAngle / float64(stepCount)
	start := pose.Yaw - e.cfg.ViewAngle/2

	points := make([]r3.Vec, 0, stepCount+1)
	var prev ViewCast
	for i := 0; i <= stepCount; i++ {
		cast := e.viewCast(pose, start+stepAngle*float64(i))

		if i > 0 && e.isEdge(prev, cast) {
			edge := e.findEdge(pose, prev, cast)
			if edge.hasA {
				points = append(points, edge.pointA)
			}
			if edge.hasB {
				points = append(points, edge.pointB)
			}
		}

		points = append(points, cast.Point)
		prev = cast
	}

	return Polygon{Origin: pose.Position, Points: points}
}

// isEdge reports whether two neighbouring casts straddle a silhouette edge.
func (e *VisibilityEngine) isEdge(a, b ViewCast) bool {
	if a.Hit != b.Hit {
		return true
	}
	return a.Hit && math.Abs(a.Distance-b.Distance) > e.cfg.EdgeDistThreshold
}

// findEdge bisects the angle interval between two casts. pointA is the last
// sample that matched minCast, pointB the last that did not.
func (e *VisibilityEngine) findEdge(pose Pose, minCast, maxCast ViewCast) edgeInfo {
	minAngle, maxAngle := minCast.Angle, maxCast.Angle
	var edge edgeInfo

	for i := 0; i < e.cfg.EdgeResolveIterations; i++ {
		angle := (minAngle + maxAngle) / 2
		cast := e.viewCast(pose, angle)

		exceeded := math.Abs(minCast.Distance-cast.Distance) > e.cfg.EdgeDistThreshold
		if cast.Hit == minCast.Hit && !exceeded {
			minAngle = angle
			edge.pointA, edge.hasA = cast.Point, true
		} else {
			maxAngle = angle
			edge.pointB, edge.hasB = cast.Point, true
		}
	}
	return edge
}

// viewCast casts one ray against obstacles at a world yaw.
func (e *VisibilityEngine) viewCast(pose Pose, yaw float64) ViewCast {
	e.casts++
	dir := DirFromYaw(yaw)
	if hit, ok := e.query.Raycast(pose.Position, dir, e.cfg.ViewRadius, CategoryObstacle); ok {
		if e.cfg.Trace {
			e.logger.Debug("view cast", "angle", yaw, "hit", true, "distance", hit.Distance)
		}
		return ViewCast{Hit: true, Point: hit.Point, Distance: hit.Distance, Angle: yaw}
	}
	if e.cfg.Trace {
		e.logger.Debug("view cast", "angle", yaw, "hit", false)
	}
	return ViewCast{
		Hit:      false,
		Point:    r3.Add(pose.Position, r3.Scale(e.cfg.ViewRadius, dir)),
		Distance: e.cfg.ViewRadius,
		Angle:    yaw,
	}
}
