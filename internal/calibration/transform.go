// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/reach_rig/internal/sample"
)

// Transform maps a raw sensor sample to a screen-relative coordinate.
// The first two elements of the result are screen XY; Z is passed through
// when the fit is volumetric and NaN otherwise.
type Transform interface {
	Apply(raw []float64) (sample.Point, float64)
	Kind() string
}

// Identity passes raw XY through unchanged. Used for sensors that already
// report screen units (touch panels, the mock rig).
type Identity struct{}

func (Identity) Kind() string { return "identity" }

func (Identity) Apply(raw []float64) (sample.Point, float64) {
	if len(raw) < 2 {
		return sample.Point{X: math.NaN(), Y: math.NaN()}, math.NaN()
	}
	z := math.NaN()
	if len(raw) >= 3 {
		z = raw[2]
	}
	return sample.Point{X: raw[0], Y: raw[1]}, z
}

// Planar is an affine least-squares fit from raw XY to screen XY:
//
//	sx = CX[0] + CX[1]*rx + CX[2]*ry
//	sy = CY[0] + CY[1]*rx + CY[2]*ry
type Planar struct {
	CX [3]float64 `json:"cx"`
	CY [3]float64 `json:"cy"`
}

func (Planar) Kind() string { return "planar" }

func (t Planar) Apply(raw []float64) (sample.Point, float64) {
	if len(raw) < 2 {
		return sample.Point{X: math.NaN(), Y: math.NaN()}, math.NaN()
	}
	return sample.Point{
		X: t.CX[0] + t.CX[1]*raw[0] + t.CX[2]*raw[1],
		Y: t.CY[0] + t.CY[1]*raw[0] + t.CY[2]*raw[1],
	}, math.NaN()
}

// Volumetric extends the planar fit with a depth term and passes raw Z
// through in screen scale:
//
//	sx = CX[0] + CX[1]*rx + CX[2]*ry + CX[3]*rz
type Volumetric struct {
	CX [4]float64 `json:"cx"`
	CY [4]float64 `json:"cy"`
	// ZScale converts raw depth to screen units; depth keeps its own axis.
	ZScale  float64 `json:"z_scale"`
	ZOffset float64 `json:"z_offset"`
}

func (Volumetric) Kind() string { return "volumetric" }

func (t Volumetric) Apply(raw []float64) (sample.Point, float64) {
	if len(raw) < 3 {
		return sample.Point{X: math.NaN(), Y: math.NaN()}, math.NaN()
	}
	return sample.Point{
		X: t.CX[0] + t.CX[1]*raw[0] + t.CX[2]*raw[1] + t.CX[3]*raw[2],
		Y: t.CY[0] + t.CY[1]*raw[0] + t.CY[2]*raw[1] + t.CY[3]*raw[2],
	}, t.ZOffset + t.ZScale*raw[2]
}

// Offset shifts a base transform's screen output. Drift correction layers
// one of these over the fitted transform instead of refitting.
type Offset struct {
	Base   Transform
	DX, DY float64
}

func (o Offset) Kind() string { return o.Base.Kind() + "+offset" }

func (o Offset) Apply(raw []float64) (sample.Point, float64) {
	p, z := o.Base.Apply(raw)
	p.X += o.DX
	p.Y += o.DY
	return p, z
}

// PointPair is one calibration observation: the raw sample captured while
// the subject held a known screen location.
type PointPair struct {
	Raw    []float64    `json:"raw"`
	Screen sample.Point `json:"screen"`
}

// Result is the persisted output of a calibration fit, including quality
// statistics for later review.
type Result struct {
	SchemaVersion int       `json:"schema_version"`
	FittedAt      string    `json:"fitted_at"` // RFC3339
	Sensor        string    `json:"sensor"`
	TransformKind string    `json:"transform_kind"`
	Planar        *Planar   `json:"planar,omitempty"`
	ResidualRMS   float64   `json:"residual_rms"`
	Confidence    float64   `json:"confidence"`
	Pairs         int       `json:"pairs"`
	Timestamp     time.Time `json:"-"`
}

// FitPlanar computes the affine raw→screen fit from captured pairs by
// solving the normal equations per output axis. At least three
// non-collinear pairs are required.
func FitPlanar(pairs []PointPair) (Planar, float64, error) {
	if len(pairs) < 3 {
		return Planar{}, 0, fmt.Errorf("planar fit needs >= 3 point pairs, got %d", len(pairs))
	}

	// Build A^T A and A^T b for basis [1, rx, ry].
	var ata [3][3]float64
	var atbX, atbY [3]float64
	for _, p := range pairs {
		if len(p.Raw) < 2 {
			return Planar{}, 0, fmt.Errorf("point pair with %d raw channels, need >= 2", len(p.Raw))
		}
		row := [3]float64{1, p.Raw[0], p.Raw[1]}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				ata[i][j] += row[i] * row[j]
			}
			atbX[i] += row[i] * p.Screen.X
			atbY[i] += row[i] * p.Screen.Y
		}
	}

	cx, err := solve3(ata, atbX)
	if err != nil {
		return Planar{}, 0, fmt.Errorf("x axis: %w", err)
	}
	cy, err := solve3(ata, atbY)
	if err != nil {
		return Planar{}, 0, fmt.Errorf("y axis: %w", err)
	}

	t := Planar{CX: cx, CY: cy}

	// Residual RMS over the fitted pairs.
	var sum float64
	for _, p := range pairs {
		got, _ := t.Apply(p.Raw)
		sum += got.Dist(p.Screen) * got.Dist(p.Screen)
	}
	rms := math.Sqrt(sum / float64(len(pairs)))
	return t, rms, nil
}

// solve3 solves a 3x3 linear system with partial-pivot Gaussian elimination.
func solve3(a [3][3]float64, b [3]float64) ([3]float64, error) {
	m := [3][4]float64{}
	for i := 0; i < 3; i++ {
		copy(m[i][:3], a[i][:])
		m[i][3] = b[i]
	}
	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return [3]float64{}, fmt.Errorf("degenerate calibration geometry (collinear points?)")
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := 0; r < 3; r++ {
			if r == col {
				continue
			}
			f := m[r][col] / m[col][col]
			for c := col; c < 4; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}
	var x [3]float64
	for i := 0; i < 3; i++ {
		x[i] = m[i][3] / m[i][i]
	}
	return x, nil
}

// ResidualConfidence maps a residual RMS (screen pixels) into [confFloor, 1].
// Tuned so a sub-pixel fit scores ~1.0 and a 20 px residual is near the floor.
func ResidualConfidence(rms float64) float64 {
	const (
		rmsGood   = 2.0
		rmsBad    = 20.0
		confFloor = 0.05
	)
	switch {
	case rms <= rmsGood:
		return 1.0
	case rms >= rmsBad:
		return confFloor
	default:
		t := (rms - rmsGood) / (rmsBad - rmsGood)
		return clamp01(1.0 - 0.95*t)
	}
}

// WriteResult stores a fit under dir with a timestamped name, matching the
// rig's other JSON artifacts.
func WriteResult(dir string, res Result) (string, error) {
	res.SchemaVersion = 1
	if res.FittedAt == "" {
		res.FittedAt = time.Now().Format(time.RFC3339)
	}
	ts := time.Now().Format("2006-01-02T15-04-05Z07-00")
	name := fmt.Sprintf("%s_%s_screen_calibration.json", res.Sensor, ts)
	path := filepath.Join(dir, name)

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadPlanar reads a previously written planar fit.
func LoadPlanar(path string) (Planar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Planar{}, fmt.Errorf("failed to read calibration file: %w", err)
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		return Planar{}, fmt.Errorf("failed to parse calibration file: %w", err)
	}
	if res.TransformKind != "planar" || res.Planar == nil {
		return Planar{}, fmt.Errorf("calibration file %s holds %q, want planar", path, res.TransformKind)
	}
	return *res.Planar, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
