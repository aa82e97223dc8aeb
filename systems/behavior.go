package systems

import (
	"log/slog"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/sentry/config"
)

// cooldownEpsilon absorbs accumulated dt rounding when comparing against the attack cooldown.
const cooldownEpsilon = 1e-9

// State is the behavior controller's top-level mode.
type State uint8

const (
	StatePatrol State = iota
	StateDwell
	StateChase
	StateAttack
)

func (s State) String() string {
	switch s {
	case StatePatrol:
		return "patrol"
	case StateDwell:
		return "dwell"
	case StateChase:
		return "chase"
	case StateAttack:
		return "attack"
	default:
		return "unknown"
	}
}

// BehaviorConfig holds movement, look-around, chase and attack tuning.
// Speeds are world units per second, turn rates degrees per second.
type BehaviorConfig struct {
	MoveSpeed  float64
	ArriveDist float64
	TurnSpeed  float64

	WaitAtWaypoint float64
	LookAround     bool
	LookAngle      float64
	Sweeps         int
	LookTurnSpeed  float64
	SweepPause     float64

	ChaseSpeed      float64
	ChaseArriveDist float64
	LosePlayerTime  float64

	AttackRange    float64
	AttackCooldown float64
}

// BehaviorConfigFrom extracts the behavior settings from the loaded configuration.
func BehaviorConfigFrom(cfg *config.Config) BehaviorConfig {
	return BehaviorConfig{
		MoveSpeed:       cfg.Patrol.MoveSpeed,
		ArriveDist:      cfg.Patrol.ArriveDist,
		TurnSpeed:       cfg.Patrol.TurnSpeed,
		WaitAtWaypoint:  cfg.Patrol.WaitAtWaypoint,
		LookAround:      cfg.Patrol.LookAround,
		LookAngle:       cfg.Patrol.LookAngle,
		Sweeps:          cfg.Patrol.Sweeps,
		LookTurnSpeed:   cfg.Patrol.LookTurnSpeed,
		SweepPause:      cfg.Patrol.SweepPause,
		ChaseSpeed:      cfg.Chase.ChaseSpeed,
		ChaseArriveDist: cfg.Chase.ChaseArriveDist,
		LosePlayerTime:  cfg.Chase.LosePlayerTime,
		AttackRange:     cfg.Attack.AttackRange,
		AttackCooldown:  cfg.Attack.AttackCooldown,
	}
}

// sweepEnabled reports whether dwelling includes a look-around sweep.
func (c BehaviorConfig) sweepEnabled() bool {
	return c.LookAround && c.LookAngle > 1 && c.Sweeps > 0
}

// Intent is the animation-facing summary of what the agent is doing.
type Intent struct {
	Moving        bool
	LookingAround bool
	Attacking     bool
}

// AnimationSink receives the intent after every step.
type AnimationSink interface {
	SetIntent(Intent)
}

// TargetTracker answers whether a chased entity still exists.
type TargetTracker interface {
	Alive(e ecs.Entity) bool
}

// Output is the result of one controller step.
type Output struct {
	Pose            Pose
	State           State
	Previous        State
	Intent          Intent
	AttackTriggered bool
}

// Changed reports whether the step switched states.
func (o Output) Changed() bool {
	return o.State != o.Previous
}

type dwellPhase uint8

const (
	dwellWait dwellPhase = iota
	dwellTurn
	dwellPause
)

// BehaviorController drives one agent through patrol, dwell, chase and attack.
// All timers advance only through Step, so a controller is fully deterministic
// for a given sequence of dt values and reports.
type BehaviorController struct {
	cfg     BehaviorConfig
	route   *Route
	pose    Pose
	targets TargetTracker
	sink    AnimationSink
	logger  *slog.Logger

	state  State
	clock  float64
	intent Intent

	// Dwell progress. Cleared together whenever dwelling ends.
	phase        dwellPhase
	phaseElapsed float64
	sweepLeg     int
	sweepBaseYaw float64

	// Chase progress.
	target            ecs.Entity
	hasTarget         bool
	lastKnown         r3.Vec
	timeSinceLastSeen float64

	lastAttack  float64
	hasAttacked bool
	triggered   bool

	signal      *DetectionSignal
	sub         Subscription
	alert       bool
	interrupted bool // rising edge seen while dwelling, applied by the next Step

	warnedEmptyRoute bool
}

// NewBehaviorController creates a controller in Patrol at the given pose.
// targets may be nil, in which case chased entities are assumed to stay alive.
func NewBehaviorController(cfg BehaviorConfig, route *Route, start Pose, targets TargetTracker, logger *slog.Logger) *BehaviorController {
	if logger == nil {
		logger = slog.Default()
	}
	if route == nil {
		route = NewRoute(nil, true)
	}
	start.Yaw = normalizeYaw(start.Yaw)
	return &BehaviorController{
		cfg:     cfg,
		route:   route,
		pose:    start,
		targets: targets,
		logger:  logger.With("component", "behavior"),
		state:   StatePatrol,
	}
}

// SetAnimationSink registers the receiver of intent updates.
func (c *BehaviorController) SetAnimationSink(sink AnimationSink) {
	c.sink = sink
}

// Attach subscribes to a detection signal, replacing any previous subscription.
func (c *BehaviorController) Attach(signal *DetectionSignal) {
	c.Detach()
	if signal == nil {
		return
	}
	c.signal = signal
	c.sub = signal.Subscribe(c.onDetection)
}

// Detach drops the detection subscription. Safe to call more than once.
func (c *BehaviorController) Detach() {
	if c.signal == nil {
		return
	}
	c.signal.Unsubscribe(c.sub)
	c.signal = nil
	c.sub = 0
}

// Close releases the controller's subscriptions.
func (c *BehaviorController) Close() {
	c.Detach()
}

// Pose returns the current pose.
func (c *BehaviorController) Pose() Pose {
	return c.pose
}

// State returns the current state.
func (c *BehaviorController) State() State {
	return c.state
}

// Intent returns the intent from the last step.
func (c *BehaviorController) Intent() Intent {
	return c.intent
}

// Route returns the patrol route.
func (c *BehaviorController) Route() *Route {
	return c.route
}

// CurrentTarget returns the entity being chased.
func (c *BehaviorController) CurrentTarget() (ecs.Entity, bool) {
	return c.target, c.hasTarget
}

// TimeSinceLastSeen returns how long the chased target has been out of sight.
func (c *BehaviorController) TimeSinceLastSeen() float64 {
	return c.timeSinceLastSeen
}

// Alerted reports the last detection state delivered by the signal.
func (c *BehaviorController) Alerted() bool {
	return c.alert
}

// onDetection is the signal handler. A rising edge while dwelling marks the
// dwell as interrupted; Step ends it so the transition is reported from Dwell.
func (c *BehaviorController) onDetection(detected bool) {
	c.alert = detected
	if detected && c.state == StateDwell {
		c.interrupted = true
	}
}

func (c *BehaviorController) chasing() bool {
	return c.state == StateChase || c.state == StateAttack
}

// Step advances the controller by dt using the visibility report of the same tick.
func (c *BehaviorController) Step(dt float64, report Report) Output {
	if dt < 0 {
		dt = 0
	}
	c.clock += dt
	c.triggered = false
	prev := c.state

	if c.interrupted {
		c.interrupted = false
		if c.state == StateDwell {
			c.logger.Debug("dwell_interrupted", "route_index", c.route.Index(), "phase", c.phase)
			c.clearDwell()
			c.state = StatePatrol
		}
	}

	if !c.chasing() && report.Detected && len(report.Visible) > 0 {
		c.enterChase(report.Visible[0])
	}

	switch c.state {
	case StatePatrol:
		c.patrol(dt)
	case StateDwell:
		c.dwell(dt)
	case StateChase, StateAttack:
		c.chase(dt, report)
	}

	if c.state != prev {
		c.logger.Debug("state_change", "from", prev.String(), "to", c.state.String(), "route_index", c.route.Index())
	}
	if c.sink != nil {
		c.sink.SetIntent(c.intent)
	}
	return Output{
		Pose:            c.pose,
		State:           c.state,
		Previous:        prev,
		Intent:          c.intent,
		AttackTriggered: c.triggered,
	}
}

func (c *BehaviorController) patrol(dt float64) {
	target, ok := c.route.Current()
	if !ok {
		if !c.warnedEmptyRoute {
			c.logger.Warn("patrol route is empty; agent will stay put")
			c.warnedEmptyRoute = true
		}
		c.intent = Intent{}
		return
	}

	to := flatten(r3.Sub(target, c.pose.Position))
	c.pose.Position = stepTowards(c.pose.Position, target, c.cfg.MoveSpeed, dt)
	c.pose.Yaw = faceTowards(c.pose.Yaw, to, c.cfg.TurnSpeed, dt)
	c.intent = Intent{Moving: r3.Norm2(to) > minFacingSq}

	if planarDistanceSq(c.pose.Position, target) <= c.cfg.ArriveDist*c.cfg.ArriveDist {
		c.enterDwell()
	}
}

func (c *BehaviorController) enterDwell() {
	c.clearDwell()
	c.state = StateDwell
	c.intent = Intent{}
}

func (c *BehaviorController) clearDwell() {
	c.phase = dwellWait
	c.phaseElapsed = 0
	c.sweepLeg = 0
	c.sweepBaseYaw = 0
}

// dwell runs the wait, then the optional sweep, then advances the route.
// A sweep is left, pause, right, pause per repetition followed by a return to the base heading.
func (c *BehaviorController) dwell(dt float64) {
	switch c.phase {
	case dwellWait:
		c.phaseElapsed += dt
		if c.phaseElapsed < c.cfg.WaitAtWaypoint {
			c.intent = Intent{}
			return
		}
		if !c.cfg.sweepEnabled() {
			c.finishDwell()
			return
		}
		c.phase = dwellTurn
		c.phaseElapsed = 0
		c.sweepLeg = 0
		c.sweepBaseYaw = c.pose.Yaw
		c.intent = Intent{LookingAround: true}

	case dwellTurn:
		c.intent = Intent{LookingAround: true}
		yaw, done := turnStep(c.pose.Yaw, c.sweepGoal(c.sweepLeg), c.cfg.LookTurnSpeed, dt)
		c.pose.Yaw = yaw
		if !done {
			return
		}
		if c.sweepLeg >= c.finalSweepLeg() {
			c.finishDwell()
			return
		}
		c.phase = dwellPause
		c.phaseElapsed = 0

	case dwellPause:
		c.intent = Intent{LookingAround: true}
		c.phaseElapsed += dt
		if c.phaseElapsed < c.cfg.SweepPause {
			return
		}
		c.sweepLeg++
		c.phase = dwellTurn
		c.phaseElapsed = 0
	}
}

func (c *BehaviorController) finalSweepLeg() int {
	return 2 * c.cfg.Sweeps
}

// sweepGoal returns the heading for a sweep leg: even legs look left, odd legs
// look right, the final leg returns to the heading held when the sweep began.
func (c *BehaviorController) sweepGoal(leg int) float64 {
	switch {
	case leg >= c.finalSweepLeg():
		return c.sweepBaseYaw
	case leg%2 == 0:
		return c.sweepBaseYaw - c.cfg.LookAngle
	default:
		return c.sweepBaseYaw + c.cfg.LookAngle
	}
}

func (c *BehaviorController) finishDwell() {
	c.route.Advance()
	c.clearDwell()
	c.state = StatePatrol
	c.intent = Intent{}
}

func (c *BehaviorController) enterChase(seen Candidate) {
	c.clearDwell()
	c.state = StateChase
	c.target = seen.Entity
	c.hasTarget = true
	c.lastKnown = seen.Position
	c.timeSinceLastSeen = 0
	c.logger.Info("target_acquired", "entity", seen.Entity.ID(), "route_index", c.route.Index())
}

func (c *BehaviorController) loseTarget(reason string) {
	c.logger.Info("target_lost",
		"entity", c.target.ID(),
		"reason", reason,
		"route_index", c.route.Index(),
	)
	c.state = StatePatrol
	c.target = ecs.Entity{}
	c.hasTarget = false
	c.timeSinceLastSeen = 0
	c.intent = Intent{}
}

func (c *BehaviorController) cooldownElapsed() bool {
	return !c.hasAttacked || c.clock-c.lastAttack >= c.cfg.AttackCooldown-cooldownEpsilon
}

func (c *BehaviorController) chase(dt float64, report Report) {
	if c.targets != nil && !c.targets.Alive(c.target) {
		c.loseTarget("removed")
		return
	}

	if seen, ok := report.Sees(c.target); ok {
		c.timeSinceLastSeen = 0
		c.lastKnown = seen.Position

		to := flatten(r3.Sub(seen.Position, c.pose.Position))
		dist := r3.Norm(to)
		switch {
		case dist <= c.cfg.AttackRange && c.cooldownElapsed():
			c.state = StateAttack
			c.lastAttack = c.clock
			c.hasAttacked = true
			c.triggered = true
			c.logger.Debug("attack", "entity", c.target.ID(), "distance", dist)
		case dist > c.cfg.AttackRange:
			c.state = StateChase
			c.pose.Position = stepTowards(c.pose.Position, seen.Position, c.cfg.ChaseSpeed, dt)
		}
		// In range while cooling down holds position and state.
		c.pose.Yaw = faceTowards(c.pose.Yaw, to, c.cfg.TurnSpeed, dt)
		c.intent = Intent{
			Moving:    c.state == StateChase && dist > c.cfg.AttackRange,
			Attacking: c.state == StateAttack,
		}
		return
	}

	c.timeSinceLastSeen += dt
	if c.timeSinceLastSeen > c.cfg.LosePlayerTime {
		c.loseTarget("out_of_sight")
		return
	}

	c.state = StateChase
	to := flatten(r3.Sub(c.lastKnown, c.pose.Position))
	moving := r3.Norm2(to) > c.cfg.ChaseArriveDist*c.cfg.ChaseArriveDist
	if moving {
		c.pose.Position = stepTowards(c.pose.Position, c.lastKnown, c.cfg.ChaseSpeed, dt)
	}
	c.pose.Yaw = faceTowards(c.pose.Yaw, to, c.cfg.TurnSpeed, dt)
	c.intent = Intent{Moving: moving}
}
