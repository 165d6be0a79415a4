package api

import (
	"slices"

	"github.com/banshee-data/citysense/internal/db"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ShockStats summarises the recorded motion events.
type ShockStats struct {
	Counts  map[string]int `json:"counts"`
	Samples int            `json:"samples"`
	Mean    float64        `json:"mean"`
	P50     float64        `json:"p50"`
	P95     float64        `json:"p95"`
	Max     float64        `json:"max"`
}

// Summarise computes the magnitude distribution. Quantiles are empirical, so
// each one is a recorded magnitude.
func Summarise(st db.Stats) ShockStats {
	out := ShockStats{Counts: st.Counts, Samples: len(st.Magnitudes)}
	if out.Counts == nil {
		out.Counts = map[string]int{}
	}
	if len(st.Magnitudes) == 0 {
		return out
	}

	sorted := slices.Clone(st.Magnitudes)
	slices.Sort(sorted)
	out.Mean = stat.Mean(sorted, nil)
	out.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	out.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	out.Max = floats.Max(sorted)
	return out
}
