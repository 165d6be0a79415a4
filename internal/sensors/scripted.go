package sensors

import (
	"errors"
	"sync"
)

// ErrScriptExhausted is returned (wrapped in ErrSensorUnavailable) once a
// scripted source has replayed every step.
var ErrScriptExhausted = errors.New("script exhausted")

// AccelStep is one scripted accelerometer read.
type AccelStep struct {
	Sample AccelSample
	Err    error
}

// Vertical builds a script of successful reads with only Z set.
func Vertical(z ...int16) []AccelStep {
	steps := make([]AccelStep, len(z))
	for i, v := range z {
		steps[i] = AccelStep{Sample: AccelSample{Z: v}}
	}
	return steps
}

// ScriptedAccelerometer replays a fixed sequence of reads. It is used by the
// loop tests and by dry runs without hardware.
type ScriptedAccelerometer struct {
	mu    sync.Mutex
	steps []AccelStep
	reads int
}

// NewScriptedAccelerometer returns a source that replays steps in order.
func NewScriptedAccelerometer(steps ...AccelStep) *ScriptedAccelerometer {
	return &ScriptedAccelerometer{steps: steps}
}

// ReadAccel returns the next scripted step.
func (s *ScriptedAccelerometer) ReadAccel() (AccelSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reads >= len(s.steps) {
		s.reads++
		return AccelSample{}, unavailable("scripted accel", ErrScriptExhausted)
	}
	step := s.steps[s.reads]
	s.reads++
	if step.Err != nil {
		return AccelSample{}, unavailable("scripted accel", step.Err)
	}
	return step.Sample, nil
}

// Reads reports how many reads have been attempted.
func (s *ScriptedAccelerometer) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// LightStep is one scripted light read.
type LightStep struct {
	Level uint32
	Err   error
}

// Levels builds a script of successful light reads.
func Levels(levels ...uint32) []LightStep {
	steps := make([]LightStep, len(levels))
	for i, v := range levels {
		steps[i] = LightStep{Level: v}
	}
	return steps
}

// ScriptedLight replays a fixed sequence of light reads.
type ScriptedLight struct {
	mu    sync.Mutex
	steps []LightStep
	reads int
}

// NewScriptedLight returns a source that replays steps in order.
func NewScriptedLight(steps ...LightStep) *ScriptedLight {
	return &ScriptedLight{steps: steps}
}

// ReadLight returns the next scripted step.
func (s *ScriptedLight) ReadLight() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reads >= len(s.steps) {
		s.reads++
		return 0, unavailable("scripted light", ErrScriptExhausted)
	}
	step := s.steps[s.reads]
	s.reads++
	if step.Err != nil {
		return 0, unavailable("scripted light", step.Err)
	}
	return step.Level, nil
}

// Reads reports how many reads have been attempted.
func (s *ScriptedLight) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
