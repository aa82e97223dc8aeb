package telemetry

// LifetimeStats tracks per-target statistics from spawn to removal.
type LifetimeStats struct {
	ID           uint32  `csv:"id" json:"id"`
	Name         string  `csv:"name" json:"name"`
	Tag          string  `csv:"tag" json:"tag"`
	SpawnTick    int32   `csv:"spawn_tick" json:"spawn_tick"`
	RemovedTick  int32   `csv:"removed_tick" json:"removed_tick"` // -1 while alive
	FirstSeen    int32   `csv:"first_seen" json:"first_seen"`       // -1 if never visible
	TicksVisible int     `csv:"ticks_visible" json:"ticks_visible"`
	VisibleSec   float64 `csv:"visible_sec" json:"visible_sec"`
	Chased       int     `csv:"chased" json:"chased"` // times it became the chase target
	Attacked     int     `csv:"attacked" json:"attacked"`
}

// LifetimeTracker manages per-target lifetime statistics.
type LifetimeTracker struct {
	stats map[uint32]*LifetimeStats
	order []uint32
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{
		stats: make(map[uint32]*LifetimeStats),
	}
}

// Register creates lifetime stats for a newly spawned target.
func (lt *LifetimeTracker) Register(id uint32, name, tag string, spawnTick int32) {
	if _, ok := lt.stats[id]; !ok {
		lt.order = append(lt.order, id)
	}
	lt.stats[id] = &LifetimeStats{
		ID:          id,
		Name:        name,
		Tag:         tag,
		SpawnTick:   spawnTick,
		RemovedTick: -1,
		FirstSeen:   -1,
	}
}

// Get returns the lifetime stats for a target, or nil if not found.
func (lt *LifetimeTracker) Get(id uint32) *LifetimeStats {
	return lt.stats[id]
}

// RecordVisible counts one tick of visibility.
func (lt *LifetimeTracker) RecordVisible(id uint32, tick int32, dt float64) {
	if s := lt.stats[id]; s != nil {
		if s.FirstSeen < 0 {
			s.FirstSeen = tick
		}
		s.TicksVisible++
		s.VisibleSec += dt
	}
}

// RecordChased increments the chase count.
func (lt *LifetimeTracker) RecordChased(id uint32) {
	if s := lt.stats[id]; s != nil {
		s.Chased++
	}
}

// RecordAttacked increments the attack count.
func (lt *LifetimeTracker) RecordAttacked(id uint32) {
	if s := lt.stats[id]; s != nil {
		s.Attacked++
	}
}

// MarkRemoved stamps the removal tick. Stats are kept for the final report.
func (lt *LifetimeTracker) MarkRemoved(id uint32, tick int32) {
	if s := lt.stats[id]; s != nil {
		s.RemovedTick = tick
	}
}

// All returns the tracked stats in registration order.
func (lt *LifetimeTracker) All() []LifetimeStats {
	out := make([]LifetimeStats, 0, len(lt.order))
	for _, id := range lt.order {
		out = append(out, *lt.stats[id])
	}
	return out
}

// Count returns the number of tracked targets.
func (lt *LifetimeTracker) Count() int {
	return len(lt.stats)
}

// AliveCount returns the number of targets not yet removed.
func (lt *LifetimeTracker) AliveCount() int {
	n := 0
	for _, s := range lt.stats {
		if s.RemovedTick < 0 {
			n++
		}
	}
	return n
}
