package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the observable state of a run at one tick.
type Snapshot struct {
	Version int     `json:"version"`
	Tick    int32   `json:"tick"`
	SimTime float64 `json:"sim_time"`

	Agent   AgentState    `json:"agent"`
	Targets []TargetState `json:"targets"`

	// Boundary of the last visibility polygon, origin first
	Polygon [][3]float64 `json:"polygon,omitempty"`
	// Same vertices relative to the observer, rotated so it faces +Z
	PolygonLocal [][3]float64 `json:"polygon_local,omitempty"`
}

// AgentState holds the agent's pose and behavior state.
type AgentState struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Yaw        float64 `json:"yaw"`
	State      string  `json:"state"`
	RouteIndex int     `json:"route_index"`
	Target     uint32  `json:"target,omitempty"`
	Detected   bool    `json:"detected"`
}

// TargetState holds one target's position and exposure.
type TargetState struct {
	ID      uint32  `json:"id"`
	Name    string  `json:"name"`
	Tag     string  `json:"tag"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Visible bool    `json:"visible"`

	Lifetime *LifetimeStats `json:"lifetime,omitempty"`
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("snapshot_%d.json", snapshot.Tick))

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
