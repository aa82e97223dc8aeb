package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/sentry/config"
)

func TestNilOutputManagerIsNoop(t *testing.T) {
	om, err := NewOutputManager("", true)
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v; want nil, nil", om, err)
	}
	if err := om.WriteTick(TickRecord{}); err != nil {
		t.Errorf("WriteTick on nil manager: %v", err)
	}
	if err := om.WriteEvents([]Event{{}}); err != nil {
		t.Errorf("WriteEvents on nil manager: %v", err)
	}
	if om.Dir() != "" {
		t.Errorf("Dir = %q, want empty", om.Dir())
	}
	if err := om.Close(); err != nil {
		t.Errorf("Close on nil manager: %v", err)
	}
}

func TestOutputManagerWritesHeadersOnce(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir, true)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	events := []Event{
		NewDetectedEvent(3, 0.05, 7, 1),
		NewStateChangeEvent(3, 0.05, "patrol", "chase", 7, 1),
	}
	if err := om.WriteEvents(events); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if err := om.WriteEvents([]Event{NewAttackEvent(9, 0.15, 7, 1)}); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	for i := int32(0); i < 3; i++ {
		if err := om.WriteTick(TickRecord{Tick: i, State: "patrol"}); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "events.csv"))
	if err != nil {
		t.Fatalf("reading events.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("events.csv has %d lines, want header + 3:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "tick,sim_time,type,entity") {
		t.Errorf("events header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "state_change") || !strings.Contains(lines[3], "attack") {
		t.Errorf("event types not written by name:\n%s", data)
	}

	f, err := os.Open(filepath.Join(dir, "ticks.csv"))
	if err != nil {
		t.Fatalf("opening ticks.csv: %v", err)
	}
	defer f.Close()
	var ticks []TickRecord
	if err := gocsv.UnmarshalFile(f, &ticks); err != nil {
		t.Fatalf("parsing ticks.csv: %v", err)
	}
	if len(ticks) != 3 || ticks[2].Tick != 2 || ticks[2].State != "patrol" {
		t.Errorf("ticks = %+v", ticks)
	}
}

func TestOutputManagerWithoutTickTrace(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir, false)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	if err := om.WriteTick(TickRecord{}); err != nil {
		t.Errorf("WriteTick with tracing off: %v", err)
	}
	om.Close()

	if _, err := os.Stat(filepath.Join(dir, "ticks.csv")); !os.IsNotExist(err) {
		t.Errorf("ticks.csv should not exist, stat err = %v", err)
	}
	for _, name := range []string{"events.csv", "windows.csv", "perf.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
}

func TestOutputManagerConfigAndTargets(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir, false)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	defer om.Close()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	reloaded, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("reloading written config: %v", err)
	}
	if reloaded.Vision.ViewAngle != cfg.Vision.ViewAngle {
		t.Errorf("view angle round trip: got %v, want %v", reloaded.Vision.ViewAngle, cfg.Vision.ViewAngle)
	}

	lt := NewLifetimeTracker()
	lt.Register(1, "intruder", "player", 0)
	if err := om.WriteTargets(lt.All()); err != nil {
		t.Fatalf("WriteTargets: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "targets.csv"))
	if err != nil {
		t.Fatalf("reading targets.csv: %v", err)
	}
	if !strings.Contains(string(data), "intruder") {
		t.Errorf("targets.csv missing target row:\n%s", data)
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	dir := t.TempDir()

	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Tick:    600,
		SimTime: 10,
		Agent: AgentState{
			Name:       "sentry",
			X:          1.5,
			Z:          -2,
			Yaw:        270,
			State:      "chase",
			RouteIndex: 2,
			Target:     7,
			Detected:   true,
		},
		Targets: []TargetState{
			{ID: 7, Name: "intruder", Tag: "player", X: 3, Z: 1, Visible: true,
				Lifetime: &LifetimeStats{ID: 7, TicksVisible: 40, FirstSeen: 560, RemovedTick: -1}},
		},
		Polygon: [][3]float64{{1.5, 0, -2}, {2, 0, 3}},
	}

	path, err := SaveSnapshot(snapshot, dir)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if filepath.Base(path) != "snapshot_600.json" {
		t.Errorf("snapshot path = %q", path)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded.Agent != snapshot.Agent {
		t.Errorf("agent = %+v, want %+v", loaded.Agent, snapshot.Agent)
	}
	if len(loaded.Targets) != 1 || loaded.Targets[0].Lifetime == nil || loaded.Targets[0].Lifetime.TicksVisible != 40 {
		t.Errorf("targets = %+v", loaded.Targets)
	}
	if len(loaded.Polygon) != 2 || loaded.Polygon[1] != [3]float64{2, 0, 3} {
		t.Errorf("polygon = %v", loaded.Polygon)
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.json")
	if err := os.WriteFile(path, []byte(`{"version": 99}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected version mismatch error")
	}
}
