// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package runner

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/relabs-tech/reach_rig/internal/config"
	"github.com/relabs-tech/reach_rig/internal/operator"
	"github.com/relabs-tech/reach_rig/internal/recorder"
	"github.com/relabs-tech/reach_rig/internal/sample"
	"github.com/relabs-tech/reach_rig/internal/sensors"
	"github.com/relabs-tech/reach_rig/internal/threshold"
	"github.com/relabs-tech/reach_rig/internal/trial"
)

// Session walks the configured trial schedule: practice blocks feed the
// adaptive threshold fit, scored blocks queue their failures for one retry
// each, and everything executed lands in the recorder.
type Session struct {
	cfg *config.Config
	rig *sensors.Rig
	run *Runner
	rec *recorder.Recorder
	reg *threshold.Registry
	acc *threshold.Accumulator
	rng *rand.Rand

	layout trial.Layout

	// OnOutcome, when set, is called with every recorded round attempt.
	// The app layer uses it to publish live outcomes over MQTT.
	OnOutcome func(recorder.RoundRecord)
}

func NewSession(cfg *config.Config, rig *sensors.Rig, run *Runner, rec *recorder.Recorder, rng *rand.Rand) *Session {
	return &Session{
		cfg: cfg,
		rig: rig,
		run: run,
		rec: rec,
		reg: threshold.NewRegistry(),
		acc: threshold.NewAccumulator(),
		rng: rng,
		layout: trial.Layout{
			ScreenWidth:  cfg.ScreenWidth,
			ScreenHeight: cfg.ScreenHeight,
			Home:         sample.Point{X: cfg.HomeX, Y: cfg.HomeY},
			HomeRadius:   cfg.HomeRadius,
			MaxDistance:  cfg.MaxReachDistance,
		},
	}
}

// Run executes the whole schedule and writes the dataset. An operator
// terminate ends the schedule early but still produces the dataset; sensor
// teardown stays with the caller that built the rig.
func (s *Session) Run() error {
	terminated := false

	for ti, spec := range s.cfg.TrialSchedule {
		if terminated {
			break
		}
		def, err := s.buildDefinition(spec)
		if err != nil {
			return err
		}
		radius, err := s.resolveRadius(spec, def.Kind)
		if err != nil {
			return err
		}
		if def.Kind == trial.KindReach {
			def.FailZoneRadius = radius
		}

		log.Printf("session: trial %d: %s x%d radius=%.1f timeout=%s practice=%v",
			ti, def.Kind, def.Rounds, radius, def.Timeout, def.Practice)

		retries := &RetryBuffer{}
		for ri := 0; ri < def.Rounds; ri++ {
			round, err := def.Generate(s.rng, s.layout, radius)
			if err != nil {
				return err
			}
			out, term := s.executeRound(round, ti, ri, false)
			if term {
				terminated = true
				break
			}
			if def.Practice {
				// Practice rounds are never retried.
				continue
			}
			retries.Push(round, ti, ri, out)
		}

		// Each queued layout gets exactly one replay; a failed replay is
		// recorded and dropped.
		for !terminated {
			entry, ok := retries.Pop()
			if !ok {
				break
			}
			entry.Round.ResetCheck()
			if _, term := s.executeRound(entry.Round, entry.TrialIndex, entry.RoundIndex, true); term {
				terminated = true
			}
		}

		if def.Practice && !terminated {
			if err := s.acc.Evaluate(s.reg, def.Kind, s.cfg.AccuracyQuantile, radius, s.cfg.MaxReachDistance); err != nil {
				return err
			}
		}
	}

	s.rec.SetThresholds(s.reg.All())
	if _, err := s.rec.Write(); err != nil {
		return err
	}
	if terminated {
		log.Printf("session: terminated by operator after %d recorded rounds", s.rec.Rounds())
	}
	return nil
}

// executeRound runs the gate then the round, replaying the identical layout
// after an operator interruption. Returns the recorded outcome and whether
// the operator terminated the session.
func (s *Session) executeRound(round *trial.Round, trialIdx, roundIdx int, retry bool) (trial.Outcome, bool) {
	for {
		if sig := s.run.RunGate(); sig == operator.Terminate {
			return trial.Timeout, true
		}
		att := s.run.RunRound(round)
		if att.Terminated {
			return trial.Timeout, true
		}
		if att.Interrupted {
			round.ResetCheck()
			continue
		}

		rec := recorder.RoundRecord{
			Trial:     trialIdx,
			Round:     roundIdx,
			Kind:      round.Kind.String(),
			Practice:  round.Practice,
			Retry:     retry,
			Elements:  round.Elements,
			Target:    round.Target,
			FailZone:  round.FailZone,
			Outcome:   int(att.Outcome),
			StartedAt: att.Started,
			Duration:  att.Duration.Seconds(),
			Traces:    att.Traces,
		}
		s.rec.Add(rec)
		if s.OnOutcome != nil {
			s.OnOutcome(rec)
		}
		if round.Practice {
			s.acc.AddRound(round.Kind, att.Outcome, att.FinalPrimary, round.Target.Center)
		}
		log.Printf("session: trial %d round %d (%s%s): %s in %.2fs",
			trialIdx, roundIdx, round.Kind, retryTag(retry), att.Outcome, att.Duration.Seconds())
		return att.Outcome, false
	}
}

func retryTag(retry bool) string {
	if retry {
		return ", retry"
	}
	return ""
}

func (s *Session) buildDefinition(spec config.TrialSpec) (*trial.Definition, error) {
	kind, err := trial.KindFromString(spec.Kind)
	if err != nil {
		return nil, fmt.Errorf("trial schedule: %w", err)
	}
	return &trial.Definition{
		Kind:         kind,
		Rounds:       spec.Rounds,
		Timeout:      time.Duration(spec.TimeoutMS) * time.Millisecond,
		Radius:       spec.Radius,
		LookScale:    s.cfg.LookRadiusScale,
		RequireClick: spec.RequireClick,
		Practice:     spec.Practice,
	}, nil
}

// resolveRadius picks the explicit radius or the fitted adaptive one.
// An adaptive request before any practice evaluation for that kind is a
// configuration error and ends the session.
func (s *Session) resolveRadius(spec config.TrialSpec, kind trial.Kind) (float64, error) {
	if spec.Radius > 0 {
		return spec.Radius, nil
	}
	if spec.Practice {
		return 0, fmt.Errorf("trial schedule: practice %s block needs an explicit radius", kind)
	}
	r, err := s.reg.Get(kind)
	if err != nil {
		return 0, fmt.Errorf("trial schedule: %w (schedule a practice %s block first)", err, kind)
	}
	return r, nil
}
