// Package actuator drives the node's two indicator outputs: the buzzer that
// sounds on a critical shock and the LED that is lit while inside a tunnel.
//
// Outputs are best-effort. Set never blocks on an acknowledgement and never
// returns an error; implementations log failures and move on.
package actuator

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/citysense/internal/monitoring"
	"github.com/banshee-data/citysense/internal/timeutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Pin identifies a logical output.
type Pin int

const (
	Buzzer Pin = iota
	TunnelIndicator
)

func (p Pin) String() string {
	switch p {
	case Buzzer:
		return "buzzer"
	case TunnelIndicator:
		return "tunnel_led"
	}
	return fmt.Sprintf("pin(%d)", int(p))
}

// Outputs sets output levels.
type Outputs interface {
	Set(pin Pin, on bool)
}

var logf = monitoring.Tagged("actuator")

// Discard ignores every Set. It is used when the node runs without outputs.
var Discard Outputs = discard{}

type discard struct{}

func (discard) Set(Pin, bool) {}

// outPin is the subset of gpio.PinOut the driver uses.
type outPin interface {
	Out(l gpio.Level) error
}

// GPIO drives outputs on host GPIO lines through periph.
type GPIO struct {
	pins map[Pin]outPin
}

// OpenGPIO looks up the named lines (e.g. "GPIO13"), drives them low and
// returns the driver. An empty name leaves that output unconnected.
func OpenGPIO(buzzer, indicator string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	pins := make(map[Pin]outPin)
	for pin, name := range map[Pin]string{Buzzer: buzzer, TunnelIndicator: indicator} {
		if name == "" {
			continue
		}
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("gpio %q for %s not found", name, pin)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("gpio %q for %s: %w", name, pin, err)
		}
		pins[pin] = p
	}
	return &GPIO{pins: pins}, nil
}

// Set drives the line high for on and low otherwise.
func (g *GPIO) Set(pin Pin, on bool) {
	p, ok := g.pins[pin]
	if !ok {
		return
	}
	if err := p.Out(gpio.Level(on)); err != nil {
		logf("set %s=%t failed: %v", pin, on, err)
	}
}

// CommandSender writes a single command line to a serial device.
type CommandSender interface {
	SendCommand(command string) error
}

// Bridge forwards output changes to the sensor bridge microcontroller as
// "OUT <pin> <0|1>" commands.
type Bridge struct {
	Sender CommandSender
}

// BridgeCommand formats the command Bridge sends for a change.
func BridgeCommand(pin Pin, on bool) string {
	level := 0
	if on {
		level = 1
	}
	return fmt.Sprintf("OUT %s %d", pin, level)
}

// Set sends the command and logs a failed write.
func (b Bridge) Set(pin Pin, on bool) {
	if err := b.Sender.SendCommand(BridgeCommand(pin, on)); err != nil {
		logf("bridge set %s=%t failed: %v", pin, on, err)
	}
}

// Change is one level change seen by a Recorder.
type Change struct {
	Pin Pin
	On  bool
	At  time.Time
}

// Recorder keeps every level change and the current level of each pin. It
// stamps changes with its clock so tests can measure hold durations.
type Recorder struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	changes []Change
	levels  map[Pin]bool
}

// NewRecorder returns a Recorder using clock for timestamps.
func NewRecorder(clock timeutil.Clock) *Recorder {
	return &Recorder{clock: clock, levels: make(map[Pin]bool)}
}

// Set records the change.
func (r *Recorder) Set(pin Pin, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, Change{Pin: pin, On: on, At: r.clock.Now()})
	r.levels[pin] = on
}

// Level reports the last level set on pin.
func (r *Recorder) Level(pin Pin) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[pin]
}

// Changes returns the recorded changes for pin in order.
func (r *Recorder) Changes(pin Pin) []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Change
	for _, c := range r.changes {
		if c.Pin == pin {
			out = append(out, c)
		}
	}
	return out
}
