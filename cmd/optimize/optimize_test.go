package main

import (
	"testing"

	"github.com/pthm-cable/sentry/config"
)

func TestParamVectorClamp(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	pv := NewParamVector(cfg)

	got := pv.Clamp([]float64{0, 4.6, 99})
	want := []float64{0.1, 5, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Clamp[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	norm := pv.Normalize(pv.DefaultVector())
	back := pv.Denormalize(norm)
	for i, v := range pv.DefaultVector() {
		if d := back[i] - v; d > 1e-9 || d < -1e-9 {
			t.Errorf("normalize round trip [%d] = %v, want %v", i, back[i], v)
		}
	}

	pv.ApplyToConfig(cfg, []float64{2, 3.2, 0.7})
	if cfg.Vision.MeshDensity != 2 || cfg.Vision.EdgeResolveIterations != 3 || cfg.Vision.EdgeDistThreshold != 0.7 {
		t.Errorf("applied vision = %+v", cfg.Vision)
	}
}

func TestFitnessTradesRaysForAccuracy(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	pv := NewParamVector(cfg)
	fe := NewFitnessEvaluator(pv, cfg, 1)

	if fe.Probes() != 8*(1+len(cfg.Scenario.Route)) {
		t.Fatalf("Probes = %d", fe.Probes())
	}
	if fe.ReferenceRays() <= 0 {
		t.Fatal("reference mesh cast no rays")
	}

	fe.Evaluate([]float64{5, 0, 1})
	coarseRays, _ := fe.Last()

	fe.Evaluate([]float64{0.1, 12, 0.05})
	fineRays, fineErr := fe.Last()

	if fineRays <= coarseRays {
		t.Errorf("fine mesh rays %v <= coarse mesh rays %v", fineRays, coarseRays)
	}
	if fineErr > 0.05 {
		t.Errorf("fine mesh area error = %v, want below 5%%", fineErr)
	}
}
