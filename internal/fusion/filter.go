package fusion

import (
	"math"

	"github.com/banshee-data/citysense/internal/events"
)

// DefaultAlpha is the smoothing weight kept on the previous gravity estimate.
const DefaultAlpha = 0.9

// GravityFilter tracks the slow (gravity) component of the vertical axis with
// an exponential moving average and reports the remainder as shock.
//
// The zero value is unseeded; the first Update seeds the estimate with that
// sample and reports no shock.
type GravityFilter struct {
	Alpha float64

	estimate float64
	seeded   bool
}

// NewGravityFilter returns an unseeded filter with the given alpha.
func NewGravityFilter(alpha float64) GravityFilter {
	return GravityFilter{Alpha: alpha}
}

// Update folds a raw vertical reading into the estimate and returns the
// shock magnitude |z - estimate| computed after the update.
func (f *GravityFilter) Update(z int16) int {
	raw := float64(z)
	if !f.seeded {
		f.estimate = raw
		f.seeded = true
		return 0
	}
	f.estimate = f.Alpha*f.estimate + (1-f.Alpha)*raw
	return int(math.Abs(raw - f.estimate))
}

// Estimate returns the current gravity estimate.
func (f *GravityFilter) Estimate() float64 { return f.estimate }

// Seeded reports whether the filter has seen a sample.
func (f *GravityFilter) Seeded() bool { return f.seeded }

// Thresholds are the shock magnitude boundaries. All comparisons are strict.
type Thresholds struct {
	Noise int
	Minor int
	Major int
}

// DefaultThresholds match a ±2g MPU6050 mounted on a bicycle frame.
var DefaultThresholds = Thresholds{Noise: 4000, Minor: 9000, Major: 15000}

// Classify maps a shock magnitude to a severity. Magnitudes at or below the
// noise gate, and those in the dead band up to and including Minor, are None.
func Classify(magnitude int, t Thresholds) events.Severity {
	if magnitude <= t.Noise {
		return events.SeverityNone
	}
	switch {
	case magnitude > t.Major:
		return events.SeverityCritical
	case magnitude > t.Minor:
		return events.SeverityAlert
	}
	return events.SeverityNone
}
