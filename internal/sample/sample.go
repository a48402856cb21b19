package sample

import (
	"math"
	"time"
)

// Point is a screen-relative coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between two screen points.
func (p Point) Dist(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// State is one calibrated sensor observation. Z is NaN for planar sensors,
// Click is false for sensors without a discrete channel.
type State struct {
	Pos   Point     `json:"pos"`
	Z     float64   `json:"z"`
	Click bool      `json:"click"`
	At    time.Time `json:"at"`
	Home  bool      `json:"home"`
	Raw   []float64 `json:"-"` // device units, kept for calibration capture
}

// Valid reports whether the observation carries usable coordinates.
// A NaN channel marks a null observation (dropped frame, tracker blink),
// which is skipped rather than treated as a fault.
func (s State) Valid() bool {
	return !math.IsNaN(s.Pos.X) && !math.IsNaN(s.Pos.Y)
}

// Null returns a null observation stamped at t.
func Null(t time.Time) State {
	return State{
		Pos: Point{X: math.NaN(), Y: math.NaN()},
		Z:   math.NaN(),
		At:  t,
	}
}

// RigState aggregates the latest observation from every sensor for one
// sampling-loop iteration. Limbs preserves the configured sensor order;
// index 0 is the primary manipulator.
type RigState struct {
	Eye   State
	Limbs []State
}

// Valid reports whether every channel in the aggregated state is usable.
func (r RigState) Valid() bool {
	if !r.Eye.Valid() {
		return false
	}
	for _, l := range r.Limbs {
		if !l.Valid() {
			return false
		}
	}
	return true
}

// Primary returns the primary manipulator observation.
func (r RigState) Primary() State {
	if len(r.Limbs) == 0 {
		return Null(r.Eye.At)
	}
	return r.Limbs[0]
}
