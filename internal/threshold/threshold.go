// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package threshold

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/relabs-tech/reach_rig/internal/sample"
	"github.com/relabs-tech/reach_rig/internal/trial"
)

// ErrNotSet is returned when a round needs the adaptive threshold for a
// kind whose practice evaluation never ran. The session treats this as a
// fatal configuration error.
var ErrNotSet = errors.New("adaptive threshold not set for trial kind")

// Registry maps trial kind to its fitted target radius. It is owned by the
// session and injected where needed; there is no package-level state. The
// value for a kind is written by that kind's practice evaluation and only
// read afterwards.
type Registry struct {
	byKind map[trial.Kind]float64
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[trial.Kind]float64)}
}

func (r *Registry) Set(kind trial.Kind, radius float64) {
	r.byKind[kind] = radius
}

func (r *Registry) Get(kind trial.Kind) (float64, error) {
	v, ok := r.byKind[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotSet, kind)
	}
	return v, nil
}

// All returns a copy of the fitted thresholds keyed by kind name, for the
// output dataset.
func (r *Registry) All() map[string]float64 {
	out := make(map[string]float64, len(r.byKind))
	for k, v := range r.byKind {
		out[k.String()] = v
	}
	return out
}

// Accumulator collects per-round endpoint errors from practice rounds,
// grouped by trial kind.
type Accumulator struct {
	errs map[trial.Kind][]float64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{errs: make(map[trial.Kind][]float64)}
}

// AddRound records the Euclidean error between the final calibrated limb
// sample and the target location. Zero-outcome (timed out) rounds carry no
// endpoint and are excluded, matching the fit's assumptions.
func (a *Accumulator) AddRound(kind trial.Kind, outcome trial.Outcome, final sample.Point, target sample.Point) {
	if outcome == trial.Timeout {
		return
	}
	if math.IsNaN(final.X) || math.IsNaN(final.Y) {
		return
	}
	a.errs[kind] = append(a.errs[kind], final.Dist(target))
}

// Samples reports how many errors were collected for a kind.
func (a *Accumulator) Samples(kind trial.Kind) int { return len(a.errs[kind]) }

// Evaluate fits the errors accumulated for one kind and stores the
// resulting radius in reg. p is the requested accuracy quantile;
// stimRadius is the evaluated block's own stimulus radius and clamps the
// floor, maxDistance the ceiling. Clamping per kind keeps a later practice
// block of a different kind from re-clamping an earlier fit. A block whose
// rounds all timed out leaves the kind unset.
func (a *Accumulator) Evaluate(reg *Registry, kind trial.Kind, p, stimRadius, maxDistance float64) error {
	errs := a.errs[kind]
	if len(errs) == 0 {
		log.Printf("threshold: no usable %s practice endpoints, threshold left unset", kind)
		return nil
	}
	radius, sigma, err := Compute(errs, p, stimRadius, maxDistance)
	if err != nil {
		return fmt.Errorf("practice evaluation for %s: %w", kind, err)
	}
	reg.Set(kind, radius)
	log.Printf("threshold: %s sigma=%.2f p=%.2f -> radius %.2f (n=%d)", kind, sigma, p, radius, len(errs))
	return nil
}

// FitRayleigh estimates the Rayleigh scale from endpoint errors, assuming
// independent zero-mean equal-variance XY error. The maximum-likelihood
// estimate is sigma^2 = sum(r^2) / 2n.
func FitRayleigh(errs []float64) (float64, error) {
	if len(errs) == 0 {
		return 0, errors.New("no endpoint errors to fit")
	}
	var sum float64
	for _, r := range errs {
		sum += r * r
	}
	sigma := math.Sqrt(sum / (2 * float64(len(errs))))
	if sigma <= 0 || math.IsNaN(sigma) {
		return 0, fmt.Errorf("degenerate Rayleigh fit (sigma=%v)", sigma)
	}
	return sigma, nil
}

// Quantile inverts the Rayleigh CDF: the radius capturing fraction p of
// endpoints is sigma * sqrt(-2 ln(1-p)).
func Quantile(sigma, p float64) float64 {
	return sigma * math.Sqrt(-2*math.Log(1-p))
}

// Compute fits the scale, inverts at p, and clamps to
// [stimRadius, maxDistance].
func Compute(errs []float64, p, stimRadius, maxDistance float64) (radius, sigma float64, err error) {
	if p <= 0 || p >= 1 {
		return 0, 0, fmt.Errorf("accuracy quantile must be in (0,1), got %v", p)
	}
	sigma, err = FitRayleigh(errs)
	if err != nil {
		return 0, 0, err
	}
	radius = Quantile(sigma, p)
	if radius < stimRadius {
		radius = stimRadius
	}
	if maxDistance > 0 && radius > maxDistance {
		radius = maxDistance
	}
	return radius, sigma, nil
}
