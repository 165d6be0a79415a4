package sensors

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// IIOLight reads a raw ADC channel exposed by the Linux industrial I/O
// subsystem, e.g. /sys/bus/iio/devices/iio:device0/in_voltage4_raw.
type IIOLight struct {
	Path string
}

// ReadLight parses one raw conversion from the sysfs attribute.
func (l IIOLight) ReadLight() (uint32, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, unavailable("iio light read", err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, unavailable("iio light parse", err)
	}
	return uint32(v), nil
}

// DefaultLightSamples is how many conversions Averaging takes per reading.
const DefaultLightSamples = 5

// Averaging smooths a noisy light source by taking the mean of several
// back-to-back conversions. The result is truncated toward zero.
type Averaging struct {
	Source  LightSensor
	Samples int
}

// ReadLight returns the mean of Samples readings; any failed conversion fails
// the whole reading.
func (a Averaging) ReadLight() (uint32, error) {
	n := a.Samples
	if n <= 0 {
		n = DefaultLightSamples
	}
	vals := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, err := a.Source.ReadLight()
		if err != nil {
			return 0, fmt.Errorf("averaging sample %d/%d: %w", i+1, n, err)
		}
		vals = append(vals, float64(v))
	}
	return uint32(stat.Mean(vals, nil)), nil
}
