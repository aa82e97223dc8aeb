package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/sentry/config"
)

// TickRecord is one row of ticks.csv.
type TickRecord struct {
	Tick          int32   `csv:"tick"`
	SimTime       float64 `csv:"sim_time"`
	State         string  `csv:"state"`
	X             float64 `csv:"x"`
	Z             float64 `csv:"z"`
	Yaw           float64 `csv:"yaw"`
	RouteIndex    int     `csv:"route_index"`
	Moving        bool    `csv:"moving"`
	LookingAround bool    `csv:"looking_around"`
	Attacking     bool    `csv:"attacking"`
	Visible       int     `csv:"visible"`
	Detected      bool    `csv:"detected"`
	Target        uint32  `csv:"target"`
	Rays          int     `csv:"rays"`
	PolygonPoints int     `csv:"polygon_points"`
}

// csvStream is a CSV file that writes its header with the first batch of records.
type csvStream struct {
	name          string
	file          *os.File
	headerWritten bool
}

func openStream(dir, name string) (*csvStream, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvStream{name: name, file: f}, nil
}

// write marshals a slice of records.
func (s *csvStream) write(records interface{}) error {
	if s == nil {
		return nil
	}
	if !s.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, s.file); err != nil {
			return fmt.Errorf("writing %s: %w", s.name, err)
		}
		s.headerWritten = true
		return nil
	}
	// Subsequent writes skip headers
	if err := gocsv.MarshalWithoutHeaders(records, s.file); err != nil {
		return fmt.Errorf("writing %s: %w", s.name, err)
	}
	return nil
}

func (s *csvStream) close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir     string
	ticks   *csvStream // nil when per-tick tracing is off
	events  *csvStream
	windows *csvStream
	perf    *csvStream
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string, traceTicks bool) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	names := []struct {
		dst  **csvStream
		name string
		skip bool
	}{
		{&om.ticks, "ticks.csv", !traceTicks},
		{&om.events, "events.csv", false},
		{&om.windows, "windows.csv", false},
		{&om.perf, "perf.csv", false},
	}
	for _, n := range names {
		if n.skip {
			continue
		}
		s, err := openStream(dir, n.name)
		if err != nil {
			om.Close()
			return nil, err
		}
		*n.dst = s
	}

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	configPath := filepath.Join(om.dir, "config.yaml")
	return cfg.WriteYAML(configPath)
}

// WriteTick writes one row to ticks.csv.
func (om *OutputManager) WriteTick(r TickRecord) error {
	if om == nil {
		return nil
	}
	return om.ticks.write([]TickRecord{r})
}

// WriteEvents appends events to events.csv.
func (om *OutputManager) WriteEvents(events []Event) error {
	if om == nil || len(events) == 0 {
		return nil
	}
	return om.events.write(events)
}

// WriteTelemetry writes a window stats record to windows.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.windows.write([]WindowStats{stats})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfStatsCSV{stats.ToCSV(windowEnd)})
}

// WriteTargets saves per-target lifetime stats to targets.csv.
func (om *OutputManager) WriteTargets(stats []LifetimeStats) error {
	if om == nil || len(stats) == 0 {
		return nil
	}
	s, err := openStream(om.dir, "targets.csv")
	if err != nil {
		return err
	}
	if err := s.write(stats); err != nil {
		s.close()
		return err
	}
	return s.close()
}

// WriteSnapshot saves a snapshot into the output directory.
func (om *OutputManager) WriteSnapshot(snapshot *Snapshot) (string, error) {
	if om == nil || snapshot == nil {
		return "", nil
	}
	return SaveSnapshot(snapshot, om.dir)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, s := range []*csvStream{om.ticks, om.events, om.windows, om.perf} {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
