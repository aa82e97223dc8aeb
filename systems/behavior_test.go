package systems

import (
	"math"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"
)

func testBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		MoveSpeed:       2,
		ArriveDist:      0.1,
		TurnSpeed:       720,
		WaitAtWaypoint:  0,
		LookAround:      false,
		LookAngle:       60,
		Sweeps:          1,
		LookTurnSpeed:   180,
		SweepPause:      0.1,
		ChaseSpeed:      4,
		ChaseArriveDist: 1.5,
		LosePlayerTime:  1,
		AttackRange:     2,
		AttackCooldown:  2,
	}
}

// twoPointRoute runs between the origin and (0, 0, 2).
func twoPointRoute() *Route {
	return NewRoute([]r3.Vec{{}, {Z: 2}}, true)
}

func seeing(cands ...Candidate) Report {
	return Report{Visible: cands, Detected: len(cands) > 0}
}

type aliveSet map[ecs.Entity]bool

func (a aliveSet) Alive(e ecs.Entity) bool { return a[e] }

type intentRecorder struct {
	intents []Intent
}

func (r *intentRecorder) SetIntent(i Intent) { r.intents = append(r.intents, i) }

// stepUntil steps with empty reports until cond holds, failing after max ticks.
func stepUntil(t *testing.T, c *BehaviorController, dt float64, limit int, cond func(Output) bool) Output {
	t.Helper()
	for i := 0; i < limit; i++ {
		out := c.Step(dt, Report{})
		if cond(out) {
			return out
		}
	}
	t.Fatalf("condition not reached within %d ticks (state %v, pose %v)", limit, c.State(), c.Pose())
	return Output{}
}

func TestBehaviorTwoArrivals(t *testing.T) {
	route := twoPointRoute()
	c := NewBehaviorController(testBehaviorConfig(), route, Pose{}, nil, nil)
	// Steps of 0.25 land exactly on the waypoints.
	const dt = 0.125

	// Starting on P0 counts as the first arrival.
	out := c.Step(dt, Report{})
	if out.State != StateDwell {
		t.Fatalf("first step: state %v, want dwell", out.State)
	}
	c.Step(dt, Report{})
	if route.Index() != 1 {
		t.Fatalf("after first arrival: index %d, want 1", route.Index())
	}

	// Second arrival at P1.
	stepUntil(t, c, dt, 100, func(o Output) bool { return o.State == StateDwell })
	if c.Pose().Position != (r3.Vec{Z: 2}) {
		t.Errorf("second arrival position: got %v, want (0, 0, 2)", c.Pose().Position)
	}
	c.Step(dt, Report{})
	if route.Index() != 0 {
		t.Fatalf("after second arrival: index %d, want 0", route.Index())
	}

	// Back to P0.
	stepUntil(t, c, dt, 100, func(o Output) bool { return o.State == StateDwell })
	if c.Pose().Position != (r3.Vec{}) {
		t.Errorf("third arrival position: got %v, want origin", c.Pose().Position)
	}
	if route.Index() != 0 {
		t.Errorf("cursor while dwelling at P0: got %d, want 0", route.Index())
	}
}

func TestBehaviorPatrolSpeedAndFacing(t *testing.T) {
	route := NewRoute([]r3.Vec{{X: 10}}, true)
	cfg := testBehaviorConfig()
	cfg.TurnSpeed = 90
	c := NewBehaviorController(cfg, route, Pose{Position: r3.Vec{Y: 1}}, nil, nil)

	out := c.Step(0.5, Report{})
	if math.Abs(out.Pose.Position.X-1) > 1e-9 || out.Pose.Position.Y != 1 {
		t.Errorf("patrol step: got %v, want (1, 1, 0)", out.Pose.Position)
	}
	if math.Abs(out.Pose.Yaw-45) > 1e-9 {
		t.Errorf("turn-rate limited yaw: got %v, want 45", out.Pose.Yaw)
	}
	if !out.Intent.Moving {
		t.Error("patrolling agent should report moving")
	}
}

func TestBehaviorEmptyRouteStaysPut(t *testing.T) {
	start := Pose{Position: r3.Vec{X: 3, Z: 4}, Yaw: 30}
	c := NewBehaviorController(testBehaviorConfig(), NewRoute(nil, true), start, nil, nil)
	for i := 0; i < 20; i++ {
		out := c.Step(0.1, Report{})
		if out.Pose != start || out.State != StatePatrol || out.Intent.Moving {
			t.Fatalf("tick %d: got %+v, want unchanged patrol", i, out)
		}
	}
}

func TestBehaviorLookAroundSweep(t *testing.T) {
	cfg := testBehaviorConfig()
	cfg.LookAround = true
	route := twoPointRoute()
	c := NewBehaviorController(cfg, route, Pose{}, nil, nil)

	minDelta, maxDelta := 0.0, 0.0
	looking := false
	for i := 0; i < 1000; i++ {
		out := c.Step(0.05, Report{})
		d := deltaAngle(0, out.Pose.Yaw)
		minDelta = math.Min(minDelta, d)
		maxDelta = math.Max(maxDelta, d)
		if out.Intent.LookingAround {
			looking = true
		}
		if route.Index() == 1 {
			if out.State != StatePatrol {
				t.Errorf("after sweep: state %v, want patrol", out.State)
			}
			if out.Pose.Yaw != 0 {
				t.Errorf("after sweep: yaw %v, want base heading 0", out.Pose.Yaw)
			}
			break
		}
	}
	if route.Index() != 1 {
		t.Fatal("sweep never completed")
	}
	if !looking {
		t.Error("intent never reported looking around")
	}
	if math.Abs(minDelta+60) > 1e-9 || math.Abs(maxDelta-60) > 1e-9 {
		t.Errorf("sweep extremes: got [%v, %v], want [-60, 60]", minDelta, maxDelta)
	}
}

func TestBehaviorSweepSkippedForSmallAngle(t *testing.T) {
	cfg := testBehaviorConfig()
	cfg.LookAround = true
	cfg.LookAngle = 1
	route := twoPointRoute()
	c := NewBehaviorController(cfg, route, Pose{}, nil, nil)

	c.Step(0.1, Report{})
	out := c.Step(0.1, Report{})
	if route.Index() != 1 || out.Intent.LookingAround {
		t.Errorf("look angle of 1 should skip the sweep: index %d, intent %+v", route.Index(), out.Intent)
	}
}

func TestBehaviorChaseAndAttackSameTick(t *testing.T) {
	_, es := newTestEntities(1)
	c := NewBehaviorController(testBehaviorConfig(), twoPointRoute(), Pose{}, nil, nil)

	out := c.Step(0.1, seeing(player(es[0], r3.Vec{X: 1})))
	if out.State != StateAttack {
		t.Fatalf("state: got %v, want attack", out.State)
	}
	if out.Previous != StatePatrol || !out.Changed() {
		t.Errorf("transition: got %v -> %v", out.Previous, out.State)
	}
	if !out.AttackTriggered || !out.Intent.Attacking {
		t.Error("attack should trigger on the acquisition tick")
	}
	if target, ok := c.CurrentTarget(); !ok || target != es[0] {
		t.Errorf("current target: got %v, want %v", target, es[0])
	}
}

func TestBehaviorAttackCooldown(t *testing.T) {
	_, es := newTestEntities(1)
	c := NewBehaviorController(testBehaviorConfig(), twoPointRoute(), Pose{}, nil, nil)
	report := seeing(player(es[0], r3.Vec{X: 1}))

	var triggeredAt []int
	for i := 0; i < 10; i++ {
		if out := c.Step(0.5, report); out.AttackTriggered {
			triggeredAt = append(triggeredAt, i)
		}
		if c.State() != StateAttack {
			t.Fatalf("tick %d: state %v, want attack", i, c.State())
		}
	}
	want := []int{0, 4, 8}
	if len(triggeredAt) != len(want) {
		t.Fatalf("attacks at ticks %v, want %v", triggeredAt, want)
	}
	for i := range want {
		if triggeredAt[i] != want[i] {
			t.Errorf("attacks at ticks %v, want %v", triggeredAt, want)
			break
		}
	}
}

func TestBehaviorChaseClosesDistance(t *testing.T) {
	_, es := newTestEntities(1)
	c := NewBehaviorController(testBehaviorConfig(), twoPointRoute(), Pose{}, nil, nil)
	report := seeing(player(es[0], r3.Vec{X: 5}))

	out := c.Step(0.25, report)
	if out.State != StateChase {
		t.Fatalf("state: got %v, want chase", out.State)
	}
	if math.Abs(out.Pose.Position.X-1) > 1e-9 {
		t.Errorf("chase step: got %v, want x = 1", out.Pose.Position)
	}
	if !out.Intent.Moving || out.Intent.Attacking {
		t.Errorf("chase intent: got %+v", out.Intent)
	}

	out = stepUntilReport(t, c, 0.25, report, 20, func(o Output) bool { return o.State == StateAttack })
	if d := math.Sqrt(planarDistanceSq(out.Pose.Position, r3.Vec{X: 5})); d > 2+1e-9 {
		t.Errorf("attacked from %v, beyond attack range", d)
	}
}

func stepUntilReport(t *testing.T, c *BehaviorController, dt float64, report Report, limit int, cond func(Output) bool) Output {
	t.Helper()
	for i := 0; i < limit; i++ {
		out := c.Step(dt, report)
		if cond(out) {
			return out
		}
	}
	t.Fatalf("condition not reached within %d ticks (state %v)", limit, c.State())
	return Output{}
}

func TestBehaviorLosePlayerTimeout(t *testing.T) {
	_, es := newTestEntities(1)
	route := twoPointRoute()
	c := NewBehaviorController(testBehaviorConfig(), route, Pose{}, nil, nil)

	c.Step(0.25, seeing(player(es[0], r3.Vec{X: 6})))
	if c.State() != StateChase {
		t.Fatalf("state: got %v, want chase", c.State())
	}
	cursor := route.Index()

	// LosePlayerTime is 1s: four more ticks keep chasing, the fifth gives up.
	for i := 0; i < 4; i++ {
		if out := c.Step(0.25, Report{}); out.State != StateChase {
			t.Fatalf("tick %d after losing sight: state %v, want chase", i, out.State)
		}
	}
	out := c.Step(0.25, Report{})
	if out.State != StatePatrol {
		t.Fatalf("after timeout: state %v, want patrol", out.State)
	}
	if route.Index() != cursor {
		t.Errorf("route cursor changed: got %d, want %d", route.Index(), cursor)
	}
	if _, ok := c.CurrentTarget(); ok {
		t.Error("target should be cleared after timeout")
	}
}

func TestBehaviorChaseStopsNearLastKnownPosition(t *testing.T) {
	_, es := newTestEntities(1)
	cfg := testBehaviorConfig()
	cfg.LosePlayerTime = 100
	c := NewBehaviorController(cfg, twoPointRoute(), Pose{}, nil, nil)

	c.Step(0.1, seeing(player(es[0], r3.Vec{Z: 6})))
	for i := 0; i < 100; i++ {
		c.Step(0.1, Report{})
	}
	d := math.Sqrt(planarDistanceSq(c.Pose().Position, r3.Vec{Z: 6}))
	if d > cfg.ChaseArriveDist+1e-9 || d < cfg.ChaseArriveDist-cfg.ChaseSpeed*0.1 {
		t.Errorf("distance to last known position: got %v, want about %v", d, cfg.ChaseArriveDist)
	}
	if c.Intent().Moving {
		t.Error("agent should have stopped at the last known position")
	}
}

func TestBehaviorStaleTargetReturnsToPatrol(t *testing.T) {
	_, es := newTestEntities(1)
	alive := aliveSet{es[0]: true}
	c := NewBehaviorController(testBehaviorConfig(), twoPointRoute(), Pose{}, alive, nil)

	c.Step(0.1, seeing(player(es[0], r3.Vec{X: 5})))
	if c.State() != StateChase {
		t.Fatalf("state: got %v, want chase", c.State())
	}

	alive[es[0]] = false
	out := c.Step(0.1, Report{})
	if out.State != StatePatrol {
		t.Errorf("state after target removal: got %v, want patrol", out.State)
	}
	if _, ok := c.CurrentTarget(); ok {
		t.Error("removed target should be cleared")
	}
}

func TestBehaviorDetectionInterruptsDwell(t *testing.T) {
	_, es := newTestEntities(1)
	cfg := testBehaviorConfig()
	cfg.WaitAtWaypoint = 5
	route := twoPointRoute()
	c := NewBehaviorController(cfg, route, Pose{}, nil, nil)

	var sig DetectionSignal
	c.Attach(&sig)
	if sig.Subscribers() != 1 {
		t.Fatalf("Subscribers after Attach: got %d, want 1", sig.Subscribers())
	}

	c.Step(0.1, Report{})
	c.Step(0.1, Report{})
	if c.State() != StateDwell {
		t.Fatalf("state: got %v, want dwell", c.State())
	}

	sig.Publish(true)
	if !c.Alerted() {
		t.Error("controller should record the alert")
	}

	out := c.Step(0.1, seeing(player(es[0], r3.Vec{X: 5})))
	if out.State != StateChase {
		t.Errorf("state after interruption: got %v, want chase", out.State)
	}
	if out.Previous != StateDwell {
		t.Errorf("transition reported from %v, want dwell", out.Previous)
	}
	if route.Index() != 0 {
		t.Errorf("interrupted dwell must not advance the route: index %d", route.Index())
	}

	c.Close()
	if sig.Subscribers() != 0 {
		t.Errorf("Subscribers after Close: got %d, want 0", sig.Subscribers())
	}
	c.Close()
}

func TestBehaviorDetectionEdgeLeavesStateToStep(t *testing.T) {
	cfg := testBehaviorConfig()
	cfg.WaitAtWaypoint = 5
	route := twoPointRoute()
	c := NewBehaviorController(cfg, route, Pose{}, nil, nil)

	var sig DetectionSignal
	c.Attach(&sig)
	defer c.Close()

	c.Step(0.1, Report{})
	c.Step(0.1, Report{})
	if c.State() != StateDwell {
		t.Fatalf("state: got %v, want dwell", c.State())
	}

	sig.Publish(true)
	if c.State() != StateDwell {
		t.Errorf("state changed inside the signal handler: got %v", c.State())
	}

	// Nothing visible: the dwell restarts at the same waypoint.
	out := c.Step(0.1, Report{})
	if out.Previous != StateDwell || out.State != StateDwell {
		t.Errorf("transition: got %v -> %v, want dwell -> dwell", out.Previous, out.State)
	}
	if route.Index() != 0 {
		t.Errorf("route index: got %d, want 0", route.Index())
	}

	// The edge is consumed; a falling edge does not interrupt.
	sig.Publish(false)
	if out := c.Step(0.1, Report{}); out.State != StateDwell {
		t.Errorf("state after falling edge: got %v, want dwell", out.State)
	}
}

func TestBehaviorWithVisibilityEngine(t *testing.T) {
	_, es := newTestEntities(2)
	idx := NewSpatialIndex()
	idx.AddBox(es[0], r3.Vec{Z: 3}, 1, 0.25, "wall")
	idx.AddTarget(es[1], r3.Vec{Z: 6}, 0.4, "player")

	engine := NewVisibilityEngine(testVisionConfig(), idx, nil)
	c := NewBehaviorController(testBehaviorConfig(), NewRoute([]r3.Vec{{}}, true), Pose{}, nil, nil)
	c.Attach(engine.Signal())
	defer c.Close()

	pose := c.Pose()
	out := c.Step(0.1, engine.Evaluate(pose, engine.Nearby(pose)))
	if out.State == StateChase {
		t.Fatal("occluded target should not be chased")
	}

	idx.Move(es[1], r3.Vec{X: 3, Z: 5})
	pose = c.Pose()
	out = c.Step(0.1, engine.Evaluate(pose, engine.Nearby(pose)))
	if out.State != StateChase {
		t.Errorf("visible target: state %v, want chase", out.State)
	}
	if !c.Alerted() {
		t.Error("controller should have received the detection edge")
	}
}

func TestBehaviorAnimationSink(t *testing.T) {
	rec := &intentRecorder{}
	c := NewBehaviorController(testBehaviorConfig(), NewRoute([]r3.Vec{{X: 5}}, true), Pose{}, nil, nil)
	c.SetAnimationSink(rec)

	c.Step(0.1, Report{})
	c.Step(0.1, Report{})
	if len(rec.intents) != 2 {
		t.Fatalf("sink calls: got %d, want 2", len(rec.intents))
	}
	if !rec.intents[0].Moving {
		t.Error("sink should see the moving intent")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StatePatrol, "patrol"},
		{StateDwell, "dwell"},
		{StateChase, "chase"},
		{StateAttack, "attack"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
