package serialmux

import (
	"strings"
	"sync/atomic"
)

// LineKind is the coarse type of a line streamed by the sensor bridge.
type LineKind int

const (
	LineUnknown LineKind = iota
	// LineAccel is an "A,x,y,z" accelerometer reading.
	LineAccel
	// LineLight is an "L,level" light reading.
	LineLight
	// LineAck is the bridge's "OK ..." or "ERR ..." reply to a command.
	LineAck
)

func (k LineKind) String() string {
	switch k {
	case LineAccel:
		return "accel"
	case LineLight:
		return "light"
	case LineAck:
		return "ack"
	}
	return "unknown"
}

// ClassifyLine looks only at the line's prefix. Field validation belongs to
// the sensor readers.
func ClassifyLine(line string) LineKind {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "A,"):
		return LineAccel
	case strings.HasPrefix(line, "L,"):
		return LineLight
	case line == "OK", strings.HasPrefix(line, "OK "), strings.HasPrefix(line, "ERR"):
		return LineAck
	}
	return LineUnknown
}

// LineStats counts the lines Monitor has broadcast, by kind.
type LineStats struct {
	Accel   uint64 `json:"accel"`
	Light   uint64 `json:"light"`
	Ack     uint64 `json:"ack"`
	Unknown uint64 `json:"unknown"`
}

// Total is the number of lines seen.
func (s LineStats) Total() uint64 { return s.Accel + s.Light + s.Ack + s.Unknown }

type lineCounts struct {
	accel, light, ack, unknown atomic.Uint64
}

func (c *lineCounts) add(k LineKind) {
	switch k {
	case LineAccel:
		c.accel.Add(1)
	case LineLight:
		c.light.Add(1)
	case LineAck:
		c.ack.Add(1)
	default:
		c.unknown.Add(1)
	}
}

func (c *lineCounts) snapshot() LineStats {
	return LineStats{
		Accel:   c.accel.Load(),
		Light:   c.light.Load(),
		Ack:     c.ack.Load(),
		Unknown: c.unknown.Load(),
	}
}
