// Package tunnel is the light loop. It runs a two-state hysteresis machine
// over ambient light readings (higher is darker), lights the tunnel indicator
// while inside, and is the only writer of the shared environment state.
package tunnel

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/citysense/internal/actuator"
	"github.com/banshee-data/citysense/internal/envstate"
	"github.com/banshee-data/citysense/internal/events"
	"github.com/banshee-data/citysense/internal/monitoring"
	"github.com/banshee-data/citysense/internal/sensors"
	"github.com/banshee-data/citysense/internal/timeutil"
)

var logf = monitoring.Tagged("tunnel")

// Config holds the light loop tunables.
type Config struct {
	// EnterThreshold: a reading strictly above it enters the tunnel.
	EnterThreshold uint32
	// ExitThreshold: a reading strictly below it leaves the tunnel.
	ExitThreshold uint32
	CheckPeriod   time.Duration
}

// DefaultConfig returns the factory tuning for a 12-bit LDR divider.
func DefaultConfig() Config {
	return Config{EnterThreshold: 3000, ExitThreshold: 2000, CheckPeriod: 500 * time.Millisecond}
}

func (c Config) Validate() error {
	if c.ExitThreshold >= c.EnterThreshold {
		return fmt.Errorf("exit threshold %d must be below enter threshold %d", c.ExitThreshold, c.EnterThreshold)
	}
	if c.EnterThreshold >= sensors.MaxLightLevel {
		return fmt.Errorf("enter threshold %d is unreachable (max reading %d)", c.EnterThreshold, sensors.MaxLightLevel)
	}
	if c.CheckPeriod <= 0 {
		return fmt.Errorf("check period must be positive, got %s", c.CheckPeriod)
	}
	return nil
}

// Next applies the hysteresis rule to one reading.
func (c Config) Next(state events.Environment, level uint32) events.Environment {
	switch {
	case state == events.Outdoors && level > c.EnterThreshold:
		return events.Tunnel
	case state == events.Tunnel && level < c.ExitThreshold:
		return events.Outdoors
	}
	return state
}

// Transition is the edge observed on a tick.
type Transition int

const (
	NoTransition Transition = iota
	Entered
	Exited
)

func (t Transition) String() string {
	switch t {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	}
	return "none"
}

// Deps are the collaborators a Monitor drives.
type Deps struct {
	Light   sensors.LightSensor
	Env     *envstate.Writer
	Sink    events.Sink
	Outputs actuator.Outputs
	Clock   timeutil.Clock
	// Boot is the uptime origin. Zero means the clock's time at NewMonitor.
	Boot time.Time
}

// Monitor owns the environment state machine.
type Monitor struct {
	cfg         Config
	deps        Deps
	state       events.Environment
	initialized bool
}

func NewMonitor(cfg Config, deps Deps) *Monitor {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Outputs == nil {
		deps.Outputs = actuator.Discard
	}
	if deps.Boot.IsZero() {
		deps.Boot = deps.Clock.Now()
	}
	return &Monitor{cfg: cfg, deps: deps}
}

// Init takes the startup reading and settles the initial state without
// recording an event. A failed read starts Outdoors.
func (m *Monitor) Init() events.Environment {
	m.initialized = true
	level, err := m.deps.Light.ReadLight()
	if err != nil {
		logf("initial light read failed, assuming outdoors: %v", err)
		m.apply(events.Outdoors)
		return m.state
	}
	m.deps.Env.PublishLight(level)
	if level > m.cfg.EnterThreshold {
		m.apply(events.Tunnel)
	} else {
		m.apply(events.Outdoors)
	}
	logf("monitor started, initial level %d (dark=%d), %s", level, sensors.MaxLightLevel, m.state)
	return m.state
}

func (m *Monitor) apply(env events.Environment) {
	m.state = env
	m.deps.Env.Set(env)
	m.deps.Outputs.Set(actuator.TunnelIndicator, env == events.Tunnel)
}

// State returns the monitor's current state. Only the monitor goroutine may
// call it; other tasks read the envstate cell.
func (m *Monitor) State() events.Environment { return m.state }

// Outcome describes one tick.
type Outcome struct {
	Light      uint32
	Transition Transition
	// Record is the event appended on entry, nil otherwise.
	Record events.Record
	Err    error
}

// Step takes one reading and applies at most one transition. Entry appends an
// EnvironmentEvent; exit does not.
func (m *Monitor) Step(ctx context.Context) Outcome {
	level, err := m.deps.Light.ReadLight()
	if err != nil {
		return Outcome{Err: err}
	}
	out := Outcome{Light: level}
	m.deps.Env.PublishLight(level)

	next := m.cfg.Next(m.state, level)
	if next == m.state {
		return out
	}
	m.apply(next)

	if next == events.Outdoors {
		out.Transition = Exited
		logf("<<< TUNNEL EXIT (Level: %d)", level)
		return out
	}
	out.Transition = Entered
	logf(">>> TUNNEL ENTRY (Level: %d)", level)
	rec := events.EnvironmentEvent{Light: level, At: m.deps.Clock.Since(m.deps.Boot)}
	out.Record = rec
	if err := m.deps.Sink.Append(ctx, rec); err != nil {
		logf("append environment event: %v", err)
	}
	return out
}

// Run initialises the state if Init has not been called, then ticks every
// CheckPeriod until ctx is done. It returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	if !m.initialized {
		m.Init()
	}
	var failures int
	for {
		out := m.Step(ctx)
		if out.Err != nil {
			failures++
			if failures == 1 {
				logf("light read failed: %v", out.Err)
			}
		} else if failures > 0 {
			logf("light sensor recovered after %d failed reads", failures)
			failures = 0
		}
		if err := timeutil.SleepContext(ctx, m.deps.Clock, m.cfg.CheckPeriod); err != nil {
			return err
		}
	}
}
