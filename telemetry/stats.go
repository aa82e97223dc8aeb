package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Time spent per state, in ticks
	TicksPatrol int `csv:"ticks_patrol"`
	TicksDwell  int `csv:"ticks_dwell"`
	TicksChase  int `csv:"ticks_chase"`
	TicksAttack int `csv:"ticks_attack"`

	// Events during window
	Detections   int `csv:"detections"`
	Losses       int `csv:"losses"`
	Attacks      int `csv:"attacks"`
	StateChanges int `csv:"state_changes"`
	Waypoints    int `csv:"waypoints"`

	// Movement
	Distance float64 `csv:"distance"`

	// Visibility cost per tick
	RaysMean float64 `csv:"rays_mean"`
	RaysP50  float64 `csv:"rays_p50"`
	RaysP90  float64 `csv:"rays_p90"`

	// Visible region
	PolygonPointsMean float64 `csv:"polygon_points_mean"`
	AreaMean          float64 `csv:"area_mean"`
	AreaStd           float64 `csv:"area_std"`

	// Fraction of ticks with at least one target visible
	DetectedFraction float64 `csv:"detected_fraction"`

	// Targets alive at window end
	TargetsAlive int `csv:"targets_alive"`
}

// Percentile returns the p-th empirical quantile of a sorted slice.
// p is clamped to [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	p = math.Max(0, math.Min(1, p))
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// ComputeDistribution calculates mean, population standard deviation and percentiles.
func ComputeDistribution(values []float64) (mean, std, p10, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	std = math.Sqrt(variance)

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("ticks_patrol", s.TicksPatrol),
		slog.Int("ticks_dwell", s.TicksDwell),
		slog.Int("ticks_chase", s.TicksChase),
		slog.Int("ticks_attack", s.TicksAttack),
		slog.Int("detections", s.Detections),
		slog.Int("losses", s.Losses),
		slog.Int("attacks", s.Attacks),
		slog.Int("state_changes", s.StateChanges),
		slog.Int("waypoints", s.Waypoints),
		slog.Float64("distance", s.Distance),
		slog.Float64("rays_mean", s.RaysMean),
		slog.Float64("rays_p50", s.RaysP50),
		slog.Float64("rays_p90", s.RaysP90),
		slog.Float64("polygon_points_mean", s.PolygonPointsMean),
		slog.Float64("area_mean", s.AreaMean),
		slog.Float64("area_std", s.AreaStd),
		slog.Float64("detected_fraction", s.DetectedFraction),
		slog.Int("targets_alive", s.TargetsAlive),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
