// Package events defines the records a node appends to its event log and the
// Sink contract the log must honour.
//
// A record is either a MotionEvent (a classified shock) or an
// EnvironmentEvent (a tunnel entry). The legacy flat layout used by the CSV
// export, (time, shock, light), marks environment rows with shock 0. Row
// produces that layout, and a motion event never carries magnitude 0.
package events

import (
	"context"
	"fmt"
	"time"
)

// Severity is the class assigned to a shock magnitude.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityAlert
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityAlert:
		return "alert"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "alert":
		return SeverityAlert, nil
	case "critical":
		return SeverityCritical, nil
	case "none", "":
		return SeverityNone, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", s)
}

// Environment is the ambient state shared between the light and motion loops.
type Environment bool

const (
	Outdoors Environment = false
	Tunnel   Environment = true
)

func (e Environment) String() string {
	if e == Tunnel {
		return "tunnel"
	}
	return "outdoors"
}

// Label is the human-readable tag used in diagnostic log lines.
func (e Environment) Label() string {
	if e == Tunnel {
		return "IN TUNNEL"
	}
	return "OUTDOORS"
}

// ParseEnvironment is the inverse of Environment.String.
func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "tunnel":
		return Tunnel, nil
	case "outdoors":
		return Outdoors, nil
	}
	return Outdoors, fmt.Errorf("unknown environment %q", s)
}

// Kind names the record variant in storage and JSON.
type Kind string

const (
	KindMotion      Kind = "motion"
	KindEnvironment Kind = "environment"
)

// Record is implemented only by MotionEvent and EnvironmentEvent.
type Record interface {
	Kind() Kind
	// Uptime is the time since node start at which the event was observed.
	Uptime() time.Duration
	// LightLevel is the ambient light reading attached to the event.
	LightLevel() uint32

	isRecord()
}

// MotionEvent is a shock that passed classification.
type MotionEvent struct {
	Magnitude   int
	Severity    Severity
	Light       uint32
	Environment Environment
	At          time.Duration
}

func (MotionEvent) Kind() Kind              { return KindMotion }
func (e MotionEvent) Uptime() time.Duration { return e.At }
func (e MotionEvent) LightLevel() uint32    { return e.Light }
func (MotionEvent) isRecord()               {}

// EnvironmentEvent marks an Outdoors to Tunnel transition. Exits are not
// recorded.
type EnvironmentEvent struct {
	Light uint32
	At    time.Duration
}

func (EnvironmentEvent) Kind() Kind              { return KindEnvironment }
func (e EnvironmentEvent) Uptime() time.Duration { return e.At }
func (e EnvironmentEvent) LightLevel() uint32    { return e.Light }
func (EnvironmentEvent) isRecord()               {}

// Validate rejects records that would collide with the legacy environment
// marker.
func Validate(r Record) error {
	switch v := r.(type) {
	case MotionEvent:
		if v.Magnitude <= 0 {
			return fmt.Errorf("motion event magnitude must be positive, got %d", v.Magnitude)
		}
		if v.Severity == SeverityNone {
			return fmt.Errorf("motion event must carry a severity")
		}
	case EnvironmentEvent:
	case nil:
		return fmt.Errorf("nil record")
	default:
		return fmt.Errorf("unsupported record type %T", r)
	}
	return nil
}

// LegacyRow is the flat (time, shock, light) layout of log.csv.
type LegacyRow struct {
	TimeMs int64
	Shock  int
	Light  uint32
}

// Row flattens r into the legacy layout. Environment events get shock 0.
func Row(r Record) LegacyRow {
	row := LegacyRow{TimeMs: r.Uptime().Milliseconds(), Light: r.LightLevel()}
	if m, ok := r.(MotionEvent); ok {
		row.Shock = m.Magnitude
	}
	return row
}

// CSVHeader is the header line of the legacy export.
const CSVHeader = "Time(ms),Shock,Light"

func (r LegacyRow) String() string {
	return fmt.Sprintf("%d,%d,%d", r.TimeMs, r.Shock, r.Light)
}

// Sink is the append-only event log. Append must be safe to call from the
// light and motion loops concurrently; each call is atomic.
type Sink interface {
	Append(ctx context.Context, r Record) error
}
