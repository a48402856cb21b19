// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"testing"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/reach_rig/internal/calibration"
	"github.com/relabs-tech/reach_rig/internal/sample"
)

func newGAZBase(fields []string) nmea.BaseSentence {
	return nmea.BaseSentence{Talker: "GZ", Type: "GAZ", Fields: fields}
}

var home = HomeZone{Center: sample.Point{X: 960, Y: 900}, Radius: 60}

func TestLatchComputesHomeOnPoll(t *testing.T) {
	m := NewMock("m", home, HoldAt(home.Center))
	m.Establish(context.Background())

	st := m.Poll()
	if !st.Valid() || !st.Home {
		t.Fatalf("at-home sample: %+v", st)
	}
	if !m.IsHome() {
		t.Error("IsHome disagrees with the polled sample")
	}

	m = NewMock("m", home, HoldAt(sample.Point{X: 10, Y: 10}))
	m.Establish(context.Background())
	if st := m.Poll(); st.Home {
		t.Errorf("off-home sample flagged home: %+v", st)
	}
}

func TestLatchNullObservation(t *testing.T) {
	m := NewMock("m", home, func(time.Duration) ([]float64, bool) {
		return []float64{math.NaN(), math.NaN()}, false
	})
	m.Establish(context.Background())

	st := m.Poll()
	if st.Valid() {
		t.Fatalf("NaN sample reported valid: %+v", st)
	}
	if st.Home {
		t.Error("null observation flagged home")
	}
	// no valid sample ever arrived, so the sensor is not at home
	if m.IsHome() {
		t.Error("IsHome true without any valid sample")
	}
}

func TestLatchAppliesTransform(t *testing.T) {
	m := NewMock("m", home, HoldAt(sample.Point{X: 100, Y: 200}))
	m.Establish(context.Background())
	m.setTransform(calibration.Offset{Base: calibration.Identity{}, DX: 860, DY: 700})

	st := m.Poll()
	if st.Pos.X != 960 || st.Pos.Y != 900 {
		t.Fatalf("calibrated position %v", st.Pos)
	}
	if !st.Home {
		t.Error("calibrated position should be home")
	}
	if len(st.Raw) < 2 || st.Raw[0] != 100 {
		t.Errorf("raw channels not preserved: %v", st.Raw)
	}
}

func TestRigSnapshotAggregates(t *testing.T) {
	eye := NewMock("eye", home, HoldAt(home.Center))
	handPos := sample.Point{X: 400, Y: 300}
	hand := NewMock("hand", home, HoldAt(handPos))
	off := NewMock("foot", home, HoldAt(sample.Point{X: 1, Y: 1}))

	rig := &Rig{Eye: eye, Limbs: []Sensor{hand, off}}
	if err := rig.EstablishAll(context.Background()); err != nil {
		t.Fatalf("establish: %v", err)
	}

	st := rig.Snapshot()
	if !st.Eye.Home {
		t.Error("eye should be home")
	}
	if len(st.Limbs) != 2 {
		t.Fatalf("limbs %d", len(st.Limbs))
	}
	if st.Primary().Pos != handPos {
		t.Errorf("primary is %v, want the first configured limb", st.Primary().Pos)
	}
	if !st.Valid() {
		t.Error("all-valid snapshot reported invalid")
	}
}

func TestRigSnapshotInvalidWhenAnyChannelNull(t *testing.T) {
	eye := NewMock("eye", home, HoldAt(home.Center))
	hand := NewMock("hand", home, func(time.Duration) ([]float64, bool) {
		return []float64{math.NaN(), math.NaN()}, false
	})

	rig := &Rig{Eye: eye, Limbs: []Sensor{hand}}
	if err := rig.EstablishAll(context.Background()); err != nil {
		t.Fatalf("establish: %v", err)
	}
	if st := rig.Snapshot(); st.Valid() {
		t.Error("snapshot with a null limb reported valid")
	}
}

func TestGAZSentenceParsing(t *testing.T) {
	base := newGAZBase([]string{"512.5", "384.0", "3.2", "A"})
	s, err := parseGAZ(base)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	g := s.(GAZ)
	if g.X != 512.5 || g.Y != 384.0 || g.Pupil != 3.2 || g.Validity != "A" {
		t.Errorf("parsed %+v", g)
	}

	if _, err := parseGAZ(newGAZBase([]string{"1", "2"})); err == nil {
		t.Error("expected error for short sentence")
	}
	if _, err := parseGAZ(newGAZBase([]string{"x", "2", "3", "A"})); err == nil {
		t.Error("expected error for non-numeric field")
	}
}
