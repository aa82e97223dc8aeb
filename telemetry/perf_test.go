package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	// Simulate a few ticks
	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseSpatialIndex)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseVision)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}

	if _, ok := stats.PhaseAvg[PhaseSpatialIndex]; !ok {
		t.Error("expected spatial_index phase to be tracked")
	}

	if _, ok := stats.PhaseAvg[PhaseVision]; !ok {
		t.Error("expected vision phase to be tracked")
	}

	if stats.MinTickDuration > stats.MaxTickDuration {
		t.Errorf("min %v > max %v", stats.MinTickDuration, stats.MaxTickDuration)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5) // Small window

	for i := 0; i < 10; i++ {
		pc.StartTick()
		pc.StartPhase(PhaseBehavior)
		pc.EndTick()
	}

	stats := pc.Stats()

	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration after window filled")
	}

	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase("fast")
		time.Sleep(time.Millisecond)
		pc.StartPhase("slow")
		time.Sleep(20 * time.Millisecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	fastPct := stats.PhasePct["fast"]
	slowPct := stats.PhasePct["slow"]

	if slowPct <= fastPct {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", slowPct, fastPct)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(0)

	if pc.WindowSize() != 60 {
		t.Errorf("default window size = %d, want 60", pc.WindowSize())
	}

	stats := pc.Stats()

	if stats.AvgTickDuration != 0 {
		t.Error("expected zero avg tick duration for empty collector")
	}

	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfStatsToCSV(t *testing.T) {
	s := PerfStats{
		AvgTickDuration: 250 * time.Microsecond,
		PhasePct:        map[string]float64{PhaseVision: 60, PhaseBehavior: 5},
	}
	row := s.ToCSV(120)
	if row.WindowEnd != 120 || row.AvgTickUS != 250 {
		t.Errorf("row = %+v", row)
	}
	if row.VisionPct != 60 || row.BehaviorPct != 5 || row.MoversPct != 0 {
		t.Errorf("phase columns = %v/%v/%v, want 60/5/0", row.VisionPct, row.BehaviorPct, row.MoversPct)
	}
}
