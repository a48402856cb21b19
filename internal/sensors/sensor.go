// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/reach_rig/internal/calibration"
	"github.com/relabs-tech/reach_rig/internal/sample"
)

// Sensor is the capability contract every rig device implements.
// Poll never blocks: it returns the most recent cached observation,
// calibrated to screen units, or a null observation when nothing has
// arrived yet.
type Sensor interface {
	Name() string
	Establish(ctx context.Context) error
	Calibrate() error
	Available() bool
	Poll() sample.State
	IsHome() bool
	Reset()
	Close() error
}

// EyeSensor adds gaze-specific drift correction: re-zeroing the coordinate
// mapping against a known fixation point.
type EyeSensor interface {
	Sensor
	DriftCorrect(fixation sample.Point) error
}

// HomeZone is the rest location and tolerance shared by all rig sensors.
type HomeZone struct {
	Center sample.Point
	Radius float64
}

// Contains reports whether p is within the home tolerance.
func (h HomeZone) Contains(p sample.Point) bool {
	return h.Center.Dist(p) <= h.Radius
}

// latch is the shared non-blocking sample cache. Device readers (serial
// goroutine, MQTT callback) write the newest raw sample; the sampling loop
// reads it through Poll without ever waiting on the device.
type latch struct {
	mu        sync.RWMutex
	raw       []float64
	at        time.Time
	click     bool
	have      bool
	fresh     bool
	transform calibration.Transform
	home      HomeZone
	lastPos   sample.Point
	lastValid bool
}

func newLatch(home HomeZone) latch {
	return latch{transform: calibration.Identity{}, home: home}
}

func (l *latch) store(raw []float64, click bool, at time.Time) {
	l.mu.Lock()
	l.raw = raw
	l.click = click
	l.at = at
	l.have = true
	l.fresh = true
	l.mu.Unlock()
}

func (l *latch) available() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fresh
}

func (l *latch) setTransform(t calibration.Transform) {
	l.mu.Lock()
	l.transform = t
	l.mu.Unlock()
}

// poll builds the calibrated observation from the cached raw sample and
// recomputes the home flag from it.
func (l *latch) poll() sample.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.have {
		return sample.Null(time.Now())
	}
	l.fresh = false
	pos, z := l.transform.Apply(l.raw)
	st := sample.State{
		Pos:   pos,
		Z:     z,
		Click: l.click,
		At:    l.at,
		Raw:   append([]float64(nil), l.raw...),
	}
	if st.Valid() {
		st.Home = l.home.Contains(pos)
		l.lastPos = pos
		l.lastValid = true
	}
	return st
}

func (l *latch) isHome() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.lastValid {
		return false
	}
	return l.home.Contains(l.lastPos)
}

func (l *latch) reset() {
	l.mu.Lock()
	l.fresh = false
	l.click = false
	l.mu.Unlock()
}

// Rig is the coordinator over the heterogeneous sensor set. Limbs keeps the
// configured order; index 0 is the primary manipulator that gates the
// pre-round phase.
type Rig struct {
	Eye    EyeSensor
	Limbs  []Sensor
	Button *Button // optional discrete channel merged into the primary limb
}

// EstablishAll brings every device up. Any establish failure is fatal for
// the whole session: already-established sensors are closed before the
// error is returned.
func (r *Rig) EstablishAll(ctx context.Context) error {
	established := make([]Sensor, 0, len(r.Limbs)+1)
	fail := func(name string, err error) error {
		for _, s := range established {
			if cerr := s.Close(); cerr != nil {
				log.Printf("rig: close %s after failed establish: %v", s.Name(), cerr)
			}
		}
		return fmt.Errorf("establish %s: %w", name, err)
	}

	if err := r.Eye.Establish(ctx); err != nil {
		return fail(r.Eye.Name(), err)
	}
	established = append(established, r.Eye)

	for _, s := range r.Limbs {
		if err := s.Establish(ctx); err != nil {
			return fail(s.Name(), err)
		}
		established = append(established, s)
	}

	if r.Button != nil {
		if err := r.Button.Establish(ctx); err != nil {
			return fail(r.Button.Name(), err)
		}
	}
	return nil
}

// CalibrateAll runs every sensor's calibration routine, reducing results
// with logical AND: the first failure aborts.
func (r *Rig) CalibrateAll() error {
	if err := r.Eye.Calibrate(); err != nil {
		return fmt.Errorf("calibrate %s: %w", r.Eye.Name(), err)
	}
	for _, s := range r.Limbs {
		if err := s.Calibrate(); err != nil {
			return fmt.Errorf("calibrate %s: %w", s.Name(), err)
		}
	}
	return nil
}

// ResetAll returns every limb sensor to its home baseline and clears
// stale latches. Called after operator drift-correct / recalibrate.
func (r *Rig) ResetAll() {
	r.Eye.Reset()
	for _, s := range r.Limbs {
		s.Reset()
	}
}

// CloseAll tears down every device, logging but not stopping on errors so
// that one stuck handle cannot leak the rest.
func (r *Rig) CloseAll() {
	if err := r.Eye.Close(); err != nil {
		log.Printf("rig: close %s: %v", r.Eye.Name(), err)
	}
	for _, s := range r.Limbs {
		if err := s.Close(); err != nil {
			log.Printf("rig: close %s: %v", s.Name(), err)
		}
	}
	if r.Button != nil {
		if err := r.Button.Close(); err != nil {
			log.Printf("rig: close %s: %v", r.Button.Name(), err)
		}
	}
}

// Snapshot polls every sensor once and aggregates the observations for a
// single sampling-loop iteration. Home flags come from these polls, so they
// are always computed from the latest data before any check runs. The
// button's click channel is merged into the primary manipulator state.
func (r *Rig) Snapshot() sample.RigState {
	st := sample.RigState{Eye: r.Eye.Poll()}
	st.Limbs = make([]sample.State, len(r.Limbs))
	for i, s := range r.Limbs {
		st.Limbs[i] = s.Poll()
	}
	if r.Button != nil && len(st.Limbs) > 0 && r.Button.Pressed() {
		st.Limbs[0].Click = true
	}
	return st
}
