package sensors

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// A sensor bridge is a microcontroller that samples the accelerometer and the
// light ADC and streams them over a serial line, one reading per line:
//
//	A,<x>,<y>,<z>
//	L,<level>
//
// Lines of any other shape are ignored.

// LineSubscriber is the part of a serial multiplexer a bridge source needs.
type LineSubscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(id string)
}

// DefaultBridgeTimeout bounds how long a bridge read waits for a fresh line.
const DefaultBridgeTimeout = 250 * time.Millisecond

var errBridgeClosed = errors.New("bridge subscription closed")

// ParseAccelLine parses an "A,x,y,z" line.
func ParseAccelLine(line string) (AccelSample, bool) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 4 || fields[0] != "A" {
		return AccelSample{}, false
	}
	var axes [3]int16
	for i, f := range fields[1:] {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 16)
		if err != nil {
			return AccelSample{}, false
		}
		axes[i] = int16(v)
	}
	return AccelSample{X: axes[0], Y: axes[1], Z: axes[2]}, true
}

// ParseLightLine parses an "L,level" line.
func ParseLightLine(line string) (uint32, bool) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 2 || fields[0] != "L" {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

type bridgeSub struct {
	sub     LineSubscriber
	id      string
	lines   chan string
	timeout time.Duration
}

func newBridgeSub(sub LineSubscriber, timeout time.Duration) bridgeSub {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	id, lines := sub.Subscribe()
	return bridgeSub{sub: sub, id: id, lines: lines, timeout: timeout}
}

// next waits for the first line accepted by match.
func (b bridgeSub) next(match func(string) bool) error {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-b.lines:
			if !ok {
				return errBridgeClosed
			}
			if match(line) {
				return nil
			}
		case <-timer.C:
			return errors.New("no reading within " + b.timeout.String())
		}
	}
}

func (b bridgeSub) close() {
	b.sub.Unsubscribe(b.id)
}

// BridgeAccelerometer reads "A" lines from a sensor bridge.
type BridgeAccelerometer struct {
	b bridgeSub
}

// NewBridgeAccelerometer subscribes to sub. Call Close to unsubscribe.
func NewBridgeAccelerometer(sub LineSubscriber, timeout time.Duration) *BridgeAccelerometer {
	return &BridgeAccelerometer{b: newBridgeSub(sub, timeout)}
}

// ReadAccel blocks until the next accelerometer line or the timeout.
func (a *BridgeAccelerometer) ReadAccel() (AccelSample, error) {
	var s AccelSample
	err := a.b.next(func(line string) bool {
		var ok bool
		s, ok = ParseAccelLine(line)
		return ok
	})
	if err != nil {
		return AccelSample{}, unavailable("bridge accel", err)
	}
	return s, nil
}

// Close unsubscribes from the bridge.
func (a *BridgeAccelerometer) Close() { a.b.close() }

// BridgeLight reads "L" lines from a sensor bridge. The bridge firmware
// averages its ADC conversions before sending.
type BridgeLight struct {
	b bridgeSub
}

// NewBridgeLight subscribes to sub. Call Close to unsubscribe.
func NewBridgeLight(sub LineSubscriber, timeout time.Duration) *BridgeLight {
	return &BridgeLight{b: newBridgeSub(sub, timeout)}
}

// ReadLight blocks until the next light line or the timeout.
func (l *BridgeLight) ReadLight() (uint32, error) {
	var level uint32
	err := l.b.next(func(line string) bool {
		var ok bool
		level, ok = ParseLightLine(line)
		return ok
	})
	if err != nil {
		return 0, unavailable("bridge light", err)
	}
	return level, nil
}

// Close unsubscribes from the bridge.
func (l *BridgeLight) Close() { l.b.close() }
