// Package sensors contains the accelerometer and ambient-light sources the
// sensing loops poll. Every source reports a failed transaction as an error
// wrapping ErrSensorUnavailable; callers skip the tick and try again on the
// next one.
package sensors

import (
	"errors"
	"fmt"
)

// ErrSensorUnavailable is wrapped by every failed read.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// unavailable wraps cause so that errors.Is(err, ErrSensorUnavailable) holds.
func unavailable(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, ErrSensorUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrSensorUnavailable, cause)
}

// AccelSample is one raw 3-axis accelerometer reading in device units.
// Z is the vertical axis.
type AccelSample struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// Accelerometer is a blocking accelerometer read.
type Accelerometer interface {
	ReadAccel() (AccelSample, error)
}

// LightSensor is a blocking ambient-light read. Higher values are darker;
// 0 is full daylight and 4095 is dark on a 12-bit ADC.
type LightSensor interface {
	ReadLight() (uint32, error)
}

// MaxLightLevel is the full-scale reading of the 12-bit light ADC.
const MaxLightLevel = 4095
