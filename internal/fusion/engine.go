// Package fusion is the motion loop: it separates road shock from gravity on
// the vertical axis, classifies each shock, tags it with the environment the
// light loop last published and paces itself with a severity-dependent
// debounce.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/citysense/internal/actuator"
	"github.com/banshee-data/citysense/internal/envstate"
	"github.com/banshee-data/citysense/internal/events"
	"github.com/banshee-data/citysense/internal/monitoring"
	"github.com/banshee-data/citysense/internal/sensors"
	"github.com/banshee-data/citysense/internal/timeutil"
)

var logf = monitoring.Tagged("fusion")

// Config holds the motion loop tunables.
type Config struct {
	Alpha         float64
	Thresholds    Thresholds
	SamplePeriod  time.Duration
	MajorDebounce time.Duration
	MinorDebounce time.Duration
	BeepDuration  time.Duration
}

// DefaultConfig returns the factory tuning.
func DefaultConfig() Config {
	return Config{
		Alpha:         DefaultAlpha,
		Thresholds:    DefaultThresholds,
		SamplePeriod:  20 * time.Millisecond,
		MajorDebounce: 1000 * time.Millisecond,
		MinorDebounce: 500 * time.Millisecond,
		BeepDuration:  500 * time.Millisecond,
	}
}

// Validate checks that the config describes a usable filter and schedule.
func (c Config) Validate() error {
	if !(c.Alpha > 0 && c.Alpha < 1) {
		return fmt.Errorf("alpha must be in (0,1), got %v", c.Alpha)
	}
	t := c.Thresholds
	if t.Noise < 0 || t.Noise > t.Minor || t.Minor > t.Major {
		return fmt.Errorf("shock thresholds must satisfy 0 <= noise <= minor <= major, got %d/%d/%d", t.Noise, t.Minor, t.Major)
	}
	if c.SamplePeriod <= 0 {
		return fmt.Errorf("sample period must be positive, got %s", c.SamplePeriod)
	}
	if c.MajorDebounce < 0 || c.MinorDebounce < 0 || c.BeepDuration < 0 {
		return errors.New("debounce and beep durations must not be negative")
	}
	return nil
}

// CriticalDelay is the pause after a critical shock. The beep hold already
// consumed part of the major debounce window.
func (c Config) CriticalDelay() time.Duration {
	return max(c.MajorDebounce-c.BeepDuration, 0)
}

// Deps are the collaborators an Engine drives.
type Deps struct {
	Accel   sensors.Accelerometer
	Env     envstate.Reader
	Sink    events.Sink
	Outputs actuator.Outputs
	Clock   timeutil.Clock
	// Boot is the uptime origin. Zero means the clock's time at NewEngine.
	Boot time.Time
}

// Engine owns the gravity filter and is the only writer of motion events.
type Engine struct {
	cfg    Config
	deps   Deps
	filter GravityFilter
}

// NewEngine returns an engine with an unseeded filter.
func NewEngine(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Outputs == nil {
		deps.Outputs = actuator.Discard
	}
	if deps.Boot.IsZero() {
		deps.Boot = deps.Clock.Now()
	}
	return &Engine{cfg: cfg, deps: deps, filter: NewGravityFilter(cfg.Alpha)}
}

// Outcome describes one tick.
type Outcome struct {
	Sample    sensors.AccelSample
	Magnitude int
	Severity  events.Severity
	// Record is the event appended this tick, nil when there was none.
	Record events.Record
	// Delay is how long the loop waits before the next tick.
	Delay time.Duration
	// Err is the read error when the tick was skipped.
	Err error
}

// Step runs a single tick. A critical shock holds the buzzer for the beep
// duration before Step returns.
func (e *Engine) Step(ctx context.Context) Outcome {
	out := Outcome{Delay: e.cfg.SamplePeriod}

	sample, err := e.deps.Accel.ReadAccel()
	if err != nil {
		out.Err = err
		return out
	}
	out.Sample = sample
	out.Magnitude = e.filter.Update(sample.Z)
	out.Severity = Classify(out.Magnitude, e.cfg.Thresholds)
	if out.Severity == events.SeverityNone {
		return out
	}

	rec := events.MotionEvent{
		Magnitude:   out.Magnitude,
		Severity:    out.Severity,
		Light:       e.deps.Env.Light(),
		Environment: e.deps.Env.Environment(),
		At:          e.deps.Clock.Since(e.deps.Boot),
	}
	out.Record = rec

	if rec.Severity == events.SeverityCritical {
		logf("CRITICAL POTHOLE (%s)! Shock: %d", rec.Environment.Label(), rec.Magnitude)
	} else {
		logf("ALERT BUMP (%s) | Shock: %d", rec.Environment.Label(), rec.Magnitude)
	}
	if err := e.deps.Sink.Append(ctx, rec); err != nil {
		logf("append motion event: %v", err)
	}

	if rec.Severity == events.SeverityCritical {
		e.deps.Outputs.Set(actuator.Buzzer, true)
		e.deps.Clock.Sleep(e.cfg.BeepDuration)
		e.deps.Outputs.Set(actuator.Buzzer, false)
		out.Delay = e.cfg.CriticalDelay()
	} else {
		out.Delay = e.cfg.MinorDebounce
	}
	return out
}

// Run ticks until ctx is done and returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	logf("motion loop started (alpha=%.2f, thresholds %d/%d/%d)",
		e.cfg.Alpha, e.cfg.Thresholds.Noise, e.cfg.Thresholds.Minor, e.cfg.Thresholds.Major)
	var failures int
	for {
		out := e.Step(ctx)
		if out.Err != nil {
			failures++
			// one line per burst of failures
			if failures == 1 {
				logf("accelerometer read failed: %v", out.Err)
			}
		} else if failures > 0 {
			logf("accelerometer recovered after %d failed reads", failures)
			failures = 0
		}
		if err := timeutil.SleepContext(ctx, e.deps.Clock, out.Delay); err != nil {
			return err
		}
	}
}
