package game

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the JSON logger used by headless runs.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// logWorldState logs the agent and target summary.
func (g *Game) logWorldState() {
	var alive, visible int
	query := g.targetFilter.Query()
	for query.Next() {
		alive++
		if _, ok := g.lastReport.Sees(query.Entity()); ok {
			visible++
		}
	}

	pose := g.agentPose()
	g.logger.Info("world_state",
		"tick", g.tick,
		"sim_time", g.simTime,
		"state", g.behavior.State().String(),
		"x", pose.Position.X,
		"z", pose.Position.Z,
		"yaw", pose.Yaw,
		"route_index", g.behavior.Route().Index(),
		"targets_alive", alive,
		"targets_visible", visible,
		"time_since_seen", g.behavior.TimeSinceLastSeen(),
	)
}
