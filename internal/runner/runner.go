// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package runner

import (
	"log"
	"time"

	"github.com/relabs-tech/reach_rig/internal/gate"
	"github.com/relabs-tech/reach_rig/internal/operator"
	"github.com/relabs-tech/reach_rig/internal/recorder"
	"github.com/relabs-tech/reach_rig/internal/render"
	"github.com/relabs-tech/reach_rig/internal/sample"
	"github.com/relabs-tech/reach_rig/internal/sensors"
	"github.com/relabs-tech/reach_rig/internal/stimulus"
	"github.com/relabs-tech/reach_rig/internal/trial"
)

// Params tunes the per-round execution loop.
type Params struct {
	// Fixation is the gate fixation point, also the reference for gaze
	// drift correction.
	Fixation sample.Point
	// SampleRateHz is the loop's target rate and sizes the trace buffers.
	SampleRateHz int
	// RenderInterval paces frame presents inside the sampling loop.
	RenderInterval time.Duration
	// FeedbackDuration is how long the post-round outcome marker stays up
	// on non-practice rounds.
	FeedbackDuration time.Duration
}

// Attempt is the result of executing one round once.
type Attempt struct {
	Outcome  trial.Outcome
	Started  time.Time
	Duration time.Duration

	// Traces holds the calibrated per-sensor movement traces captured from
	// stimulus onset, keyed by sensor name.
	Traces map[string][]recorder.TracePoint

	// FinalPrimary is the last valid calibrated primary-limb position,
	// the endpoint used by the adaptive threshold fit.
	FinalPrimary sample.Point

	// Interrupted means an operator drift-correct or recalibrate landed
	// mid-round. The attempt is void; the caller replays the same layout.
	Interrupted bool
	// Terminated means the operator ended the session.
	Terminated bool
}

// Runner executes rounds against the live rig. One instance serves the
// whole session.
type Runner struct {
	rig      *sensors.Rig
	renderer render.Renderer
	gate     *gate.Gate
	ops      operator.Source
	params   Params

	// Injected time source so tests can run a 5 s round in microseconds.
	now   func() time.Time
	sleep func(time.Duration)
}

func New(rig *sensors.Rig, r render.Renderer, g *gate.Gate, ops operator.Source, params Params) *Runner {
	if params.SampleRateHz <= 0 {
		params.SampleRateHz = 500
	}
	if params.RenderInterval <= 0 {
		params.RenderInterval = 16 * time.Millisecond
	}
	return &Runner{
		rig:      rig,
		renderer: r,
		gate:     g,
		ops:      ops,
		params:   params,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// SetClock replaces the wall clock. Sleep must advance whatever Now reads.
func (r *Runner) SetClock(now func() time.Time, sleep func(time.Duration)) {
	r.now = now
	r.sleep = sleep
}

func (r *Runner) sampleInterval() time.Duration {
	return time.Second / time.Duration(r.params.SampleRateHz)
}

// handleSignal services a drift-correct or recalibrate request. Terminate
// is handled by the callers, which need to unwind.
func (r *Runner) handleSignal(sig operator.Signal) {
	switch sig {
	case operator.DriftCorrect:
		if err := r.rig.Eye.DriftCorrect(r.params.Fixation); err != nil {
			log.Printf("runner: drift correction failed: %v", err)
		}
		r.rig.ResetAll()
		r.gate.Reset(r.now())
	case operator.Recalibrate:
		if err := r.rig.CalibrateAll(); err != nil {
			log.Printf("runner: recalibration failed: %v", err)
		}
		r.rig.ResetAll()
		r.gate.Reset(r.now())
	}
}

// RunGate holds in the pre-round phase until the randomized dwell plus
// fixation requirement is met. Returns the terminating signal, or None once
// the gate opens.
func (r *Runner) RunGate() operator.Signal {
	r.gate.Begin(r.now())

	fix := []stimulus.Element{{
		Shape:    stimulus.ShapeFixCue,
		Location: r.params.Fixation,
		Size:     6,
		Color:    "#f0f040",
	}}
	r.renderer.DrawElements(fix)
	r.renderer.ScheduleAsync()

	lastRender := r.now()
	for {
		if sig := r.ops.Pending(); sig != operator.None {
			if sig == operator.Terminate {
				return sig
			}
			r.handleSignal(sig)
		}

		st := r.rig.Snapshot()
		if r.gate.Step(st.Eye, st.Primary(), r.now()) == gate.Ready {
			return operator.None
		}

		if now := r.now(); now.Sub(lastRender) >= r.params.RenderInterval && r.renderer.CheckAsyncReady() {
			r.renderer.DrawElements(fix)
			r.renderer.ScheduleAsync()
			lastRender = now
		}
		r.sleep(r.sampleInterval())
	}
}

// RunRound presents the stimulus and samples until an outcome. The timeout
// clock is lazy: it starts at the first valid primary-limb sample off home,
// so a subject holding at home can take as long as they need to initiate.
func (r *Runner) RunRound(round *trial.Round) Attempt {
	interval := r.sampleInterval()
	traceCap := int(round.Timeout/interval) + 8

	names := make([]string, 0, len(r.rig.Limbs)+1)
	names = append(names, r.rig.Eye.Name())
	for _, s := range r.rig.Limbs {
		names = append(names, s.Name())
	}
	traces := make(map[string][]recorder.TracePoint, len(names))
	for _, n := range names {
		traces[n] = make([]recorder.TracePoint, 0, traceCap)
	}

	r.presentRound(round)
	start := r.now()
	att := Attempt{Started: start, Traces: traces}

	var moveStart time.Time
	lastRender := start

	for {
		now := r.now()

		if sig := r.ops.Pending(); sig != operator.None {
			if sig == operator.Terminate {
				att.Terminated = true
				att.Duration = now.Sub(start)
				return att
			}
			r.handleSignal(sig)
			att.Interrupted = true
			att.Duration = now.Sub(start)
			r.renderer.EmptyScreen()
			r.renderer.ScheduleAsync()
			return att
		}

		st := r.rig.Snapshot()
		r.capture(traces, names, st, now.Sub(start))

		primary := st.Primary()
		if primary.Valid() {
			att.FinalPrimary = primary.Pos
			if moveStart.IsZero() && !primary.Home {
				moveStart = now
			}
		}

		// A null observation on any channel yields 0 here and the loop
		// simply keeps sampling.
		if out := round.Check(st); out != trial.Timeout {
			att.Outcome = out
			att.Duration = now.Sub(start)
			break
		}

		if !moveStart.IsZero() && now.Sub(moveStart) >= round.Timeout {
			att.Outcome = trial.Timeout
			att.Duration = now.Sub(start)
			break
		}

		if now.Sub(lastRender) >= r.params.RenderInterval && r.renderer.CheckAsyncReady() {
			r.presentRound(round)
			lastRender = now
		}
		r.sleep(interval)
	}

	r.feedback(round, att.Outcome)
	return att
}

// presentRound draws the round's elements, with the segmented center cue
// only while its phase still wants it.
func (r *Runner) presentRound(round *trial.Round) {
	elems := round.Elements
	if round.CueVisible() {
		elems = append(append([]stimulus.Element(nil), elems...), *round.Cue)
	}
	r.renderer.DrawElements(elems)
	r.renderer.ScheduleAsync()
}

// capture appends one iteration's observations to the per-sensor traces.
// Null observations are recorded as-is; analysis tooling filters NaN.
func (r *Runner) capture(traces map[string][]recorder.TracePoint, names []string, st sample.RigState, elapsed time.Duration) {
	states := make([]sample.State, 0, len(names))
	states = append(states, st.Eye)
	states = append(states, st.Limbs...)
	t := elapsed.Seconds()
	for i, n := range names {
		s := states[i]
		traces[n] = append(traces[n], recorder.TracePoint{
			T: t, X: s.Pos.X, Y: s.Pos.Y, Z: s.Z, Click: s.Click,
		})
	}
}

// feedback flashes the outcome marker on non-practice rounds, then blanks.
func (r *Runner) feedback(round *trial.Round, out trial.Outcome) {
	if !round.Practice && r.params.FeedbackDuration > 0 {
		color := "#30c030"
		if out != trial.Success {
			color = "#c03030"
		}
		r.renderer.DrawElements([]stimulus.Element{{
			Shape:    stimulus.ShapeMarker,
			Location: round.Target.Center,
			Size:     round.Target.Radius,
			Color:    color,
		}})
		r.renderer.ScheduleAsync()
		r.sleep(r.params.FeedbackDuration)
	}
	r.renderer.EmptyScreen()
	r.renderer.ScheduleAsync()
}
