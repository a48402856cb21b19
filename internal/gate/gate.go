package gate

import (
	"math/rand"
	"time"

	"github.com/relabs-tech/reach_rig/internal/sample"
)

// State of the pre-round gate.
type State int

const (
	Accumulating State = iota
	Ready
)

// Config is the gate's tuning, shared by all rounds of a session.
type Config struct {
	// Fixation is where the eye must settle before a round may start.
	Fixation sample.Point
	// FixationRadius is the small stage-1 acquisition radius.
	FixationRadius float64
	// MaintainRadius is the larger stage-2 radius; leaving it fails the
	// fixation check outright.
	MaintainRadius float64
	// FixationMin is how long the eye must sit inside FixationRadius
	// before fixation counts as acquired.
	FixationMin time.Duration
	// MaxMisses caps stage-2 excursions beyond FixationRadius (but inside
	// MaintainRadius) before the check fails.
	MaxMisses int
	// DwellMin/DwellMax bound the randomized hold-at-home requirement.
	// Drawing the threshold per round defeats onset prediction.
	DwellMin time.Duration
	DwellMax time.Duration
}

type fixStage int

const (
	fixAcquiring fixStage = iota
	fixHeld
)

// Gate enforces the randomized dwell-on-home window with the two-stage
// fixation check. One instance serves the whole session; Begin rearms it
// for each round.
type Gate struct {
	cfg Config
	rng *rand.Rand

	threshold time.Duration

	state      State
	dwellSince time.Time
	dwelling   bool

	stage      fixStage
	stageSince time.Time
	misses     int
}

func New(cfg Config, rng *rand.Rand) *Gate {
	return &Gate{cfg: cfg, rng: rng}
}

// Begin draws a fresh dwell threshold from [DwellMin, DwellMax] and resets
// all timing.
func (g *Gate) Begin(now time.Time) {
	span := g.cfg.DwellMax - g.cfg.DwellMin
	g.threshold = g.cfg.DwellMin
	if span > 0 {
		g.threshold += time.Duration(g.rng.Int63n(int64(span) + 1))
	}
	g.Reset(now)
}

// Reset restarts all gate timing from zero. Used per-round by Begin and by
// the runner after an operator drift-correct or recalibrate.
func (g *Gate) Reset(now time.Time) {
	g.state = Accumulating
	g.dwelling = false
	g.dwellSince = now
	g.stage = fixAcquiring
	g.stageSince = now
	g.misses = 0
}

// resetDwell zeroes only the accumulated dwell, leaving the drawn threshold.
func (g *Gate) resetDwell(now time.Time) {
	g.dwelling = false
	g.dwellSince = now
	g.stage = fixAcquiring
	g.stageSince = now
	g.misses = 0
}

// Step consumes one iteration's eye and primary-limb observations. Null
// observations freeze the machine for the iteration rather than failing it.
func (g *Gate) Step(eye, limb sample.State, now time.Time) State {
	if g.state == Ready {
		return Ready
	}
	if !eye.Valid() || !limb.Valid() {
		return g.state
	}

	// Dwell accumulates only while the manipulator holds home.
	if !limb.Home {
		g.resetDwell(now)
		return g.state
	}
	if !g.dwelling {
		g.dwelling = true
		g.dwellSince = now
	}

	if !g.stepFixation(eye, now) {
		g.resetDwell(now)
		return g.state
	}

	if g.stage == fixHeld && now.Sub(g.dwellSince) >= g.threshold {
		g.state = Ready
	}
	return g.state
}

// stepFixation advances the two-stage fixation check. Returns false when
// the check fails, which costs the accumulated dwell.
func (g *Gate) stepFixation(eye sample.State, now time.Time) bool {
	dist := g.cfg.Fixation.Dist(eye.Pos)

	switch g.stage {
	case fixAcquiring:
		if dist > g.cfg.MaintainRadius {
			// Nowhere near the fixation point: fail.
			return false
		}
		if dist > g.cfg.FixationRadius {
			// Close but not acquired; restart the stage-1 hold.
			g.stageSince = now
			return true
		}
		if now.Sub(g.stageSince) >= g.cfg.FixationMin {
			g.stage = fixHeld
			g.misses = 0
		}
		return true

	default: // fixHeld
		if dist <= g.cfg.FixationRadius {
			return true
		}
		if dist > g.cfg.MaintainRadius {
			return false
		}
		g.misses++
		if g.misses > g.cfg.MaxMisses {
			return false
		}
		return true
	}
}

// Threshold reports the dwell threshold drawn for the current round.
func (g *Gate) Threshold() time.Duration { return g.threshold }

// Accumulated reports how much dwell has built up, for operator displays.
func (g *Gate) Accumulated(now time.Time) time.Duration {
	if !g.dwelling {
		return 0
	}
	return now.Sub(g.dwellSince)
}

// State returns the current gate state without stepping it.
func (g *Gate) State() State { return g.state }
