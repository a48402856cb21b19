// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"time"

	"github.com/relabs-tech/reach_rig/internal/sample"
)

// Script produces the mock's raw sample and click state for a given elapsed
// time since Establish. Return NaN coordinates to simulate a dropped frame.
type Script func(elapsed time.Duration) (raw []float64, click bool)

// Mock is a scripted sensor for tests and dry runs. Poll synthesizes the
// next observation from the script; there is no device behind it.
type Mock struct {
	latch

	name   string
	script Script
	start  time.Time
	drifts int
}

// NewMock creates a scripted sensor reporting screen units directly.
func NewMock(name string, home HomeZone, script Script) *Mock {
	return &Mock{latch: newLatch(home), name: name, script: script}
}

// HoldAt returns a script that keeps the sensor glued to one point.
func HoldAt(p sample.Point) Script {
	return func(time.Duration) ([]float64, bool) {
		return []float64{p.X, p.Y}, false
	}
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) Establish(_ context.Context) error {
	m.start = time.Now()
	return nil
}

func (m *Mock) Calibrate() error { return nil }

func (m *Mock) Available() bool { return true }

func (m *Mock) Poll() sample.State {
	raw, click := m.script(time.Since(m.start))
	m.store(raw, click, time.Now())
	return m.poll()
}

func (m *Mock) IsHome() bool { return m.isHome() }
func (m *Mock) Reset()       { m.reset() }
func (m *Mock) Close() error { return nil }

// DriftCorrect satisfies EyeSensor; the mock just counts invocations so
// tests can assert the operator path ran.
func (m *Mock) DriftCorrect(_ sample.Point) error {
	m.drifts++
	return nil
}

// DriftCorrections reports how many drift corrections were requested.
func (m *Mock) DriftCorrections() int { return m.drifts }
