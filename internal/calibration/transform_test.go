package calibration

import (
	"math"
	"testing"

	"github.com/relabs-tech/reach_rig/internal/sample"
)

func TestFitPlanarRecoversAffine(t *testing.T) {
	truth := Planar{
		CX: [3]float64{12, 1.8, -0.1},
		CY: [3]float64{-40, 0.05, 2.2},
	}

	raws := [][2]float64{{0, 0}, {100, 0}, {0, 100}, {80, 60}, {33, 71}, {-20, 45}}
	pairs := make([]PointPair, 0, len(raws))
	for _, r := range raws {
		p, _ := truth.Apply([]float64{r[0], r[1]})
		pairs = append(pairs, PointPair{Raw: []float64{r[0], r[1]}, Screen: p})
	}

	got, rms, err := FitPlanar(pairs)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if rms > 1e-6 {
		t.Errorf("residual RMS %v on exact data", rms)
	}
	for i := 0; i < 3; i++ {
		if math.Abs(got.CX[i]-truth.CX[i]) > 1e-6 {
			t.Errorf("CX[%d] = %v, want %v", i, got.CX[i], truth.CX[i])
		}
		if math.Abs(got.CY[i]-truth.CY[i]) > 1e-6 {
			t.Errorf("CY[%d] = %v, want %v", i, got.CY[i], truth.CY[i])
		}
	}
}

func TestFitPlanarRejectsCollinear(t *testing.T) {
	pairs := []PointPair{
		{Raw: []float64{0, 0}, Screen: sample.Point{X: 0, Y: 0}},
		{Raw: []float64{1, 1}, Screen: sample.Point{X: 10, Y: 10}},
		{Raw: []float64{2, 2}, Screen: sample.Point{X: 20, Y: 20}},
	}
	if _, _, err := FitPlanar(pairs); err == nil {
		t.Fatal("expected error for collinear points")
	}
}

func TestFitPlanarNeedsThreePairs(t *testing.T) {
	pairs := []PointPair{
		{Raw: []float64{0, 0}, Screen: sample.Point{}},
		{Raw: []float64{1, 0}, Screen: sample.Point{X: 10}},
	}
	if _, _, err := FitPlanar(pairs); err == nil {
		t.Fatal("expected error for two pairs")
	}
}

func TestResidualConfidence(t *testing.T) {
	if got := ResidualConfidence(0.5); got != 1.0 {
		t.Errorf("sub-pixel fit: %v, want 1.0", got)
	}
	if got := ResidualConfidence(50); got != 0.05 {
		t.Errorf("bad fit: %v, want floor 0.05", got)
	}
	mid1, mid2 := ResidualConfidence(5), ResidualConfidence(15)
	if !(mid1 > mid2) {
		t.Errorf("confidence not monotonic: %v then %v", mid1, mid2)
	}
	if mid1 >= 1 || mid2 <= 0.05 {
		t.Errorf("mid confidences out of band: %v, %v", mid1, mid2)
	}
}

func TestOffsetLayersOverBase(t *testing.T) {
	base := Planar{CX: [3]float64{0, 1, 0}, CY: [3]float64{0, 0, 1}}
	o := Offset{Base: base, DX: 5, DY: -3}
	p, _ := o.Apply([]float64{100, 200})
	if p.X != 105 || p.Y != 197 {
		t.Errorf("offset apply gave %v", p)
	}
	if o.Kind() != "planar+offset" {
		t.Errorf("kind %q", o.Kind())
	}
}

func TestWriteAndLoadPlanar(t *testing.T) {
	dir := t.TempDir()
	fit := Planar{CX: [3]float64{1, 2, 3}, CY: [3]float64{4, 5, 6}}

	path, err := WriteResult(dir, Result{
		Sensor:        "gaze",
		TransformKind: fit.Kind(),
		Planar:        &fit,
		ResidualRMS:   1.2,
		Confidence:    1.0,
		Pairs:         9,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadPlanar(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != fit {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
}

func TestIdentityPassthrough(t *testing.T) {
	p, z := Identity{}.Apply([]float64{3, 4, 5})
	if p.X != 3 || p.Y != 4 || z != 5 {
		t.Errorf("identity gave %v z=%v", p, z)
	}
	p, _ = Identity{}.Apply([]float64{1})
	if !math.IsNaN(p.X) {
		t.Error("short raw vector should map to a null observation")
	}
}
