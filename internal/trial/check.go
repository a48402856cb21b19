package trial

import (
	"github.com/relabs-tech/reach_rig/internal/sample"
)

// Checker is the per-kind pass/fail state machine. Check returns Failure,
// Success, or Timeout(0) meaning "no decision, keep sampling". Every
// implementation treats a state with any NaN channel as a null observation
// and returns 0 without evaluating.
type Checker interface {
	Check(st sample.RigState) Outcome
}

func newChecker(r *Round) Checker {
	switch r.Kind {
	case KindLook:
		return &lookChecker{round: r}
	case KindReach:
		return &reachChecker{round: r}
	case KindFree:
		return &freeChecker{round: r}
	case KindSegmented:
		return &segmentedChecker{round: r, phase: phaseLooking}
	default:
		return &freeChecker{round: r}
	}
}

// lookChecker: the subject holds the manipulator at home and acquires the
// target with gaze. Leaving home with the limb is a failure; gaze within
// the (scaled) target radius is success.
type lookChecker struct {
	round *Round
}

func (c *lookChecker) Check(st sample.RigState) Outcome {
	if !st.Valid() {
		return Timeout
	}
	if !st.Primary().Home {
		return Failure
	}
	if c.round.Target.Center.Dist(st.Eye.Pos) <= c.round.lookRadius {
		return Success
	}
	return Timeout
}

// reachChecker: the subject holds fixation at home and reaches for the
// target. Gaze leaving home is a failure, as is entering the fail zone;
// the limb inside the target radius is success.
type reachChecker struct {
	round *Round
}

func (c *reachChecker) Check(st sample.RigState) Outcome {
	if !st.Valid() {
		return Timeout
	}
	if !st.Eye.Home {
		return Failure
	}
	limb := st.Primary()
	if c.round.FailZone != nil && c.round.FailZone.Contains(limb.Pos) {
		return Failure
	}
	if c.round.Target.Contains(limb.Pos) {
		return Success
	}
	return Timeout
}

// freeChecker: no fail condition. Success is proximity to the target,
// optionally requiring the discrete response after the limb has left home.
type freeChecker struct {
	round    *Round
	leftHome bool
}

func (c *freeChecker) Check(st sample.RigState) Outcome {
	if !st.Valid() {
		return Timeout
	}
	limb := st.Primary()
	if !limb.Home {
		c.leftHome = true
	}
	if !c.round.Target.Contains(limb.Pos) {
		return Timeout
	}
	if c.round.requireClick && !(limb.Click && c.leftHome) {
		return Timeout
	}
	return Success
}

type segPhase int

const (
	phaseLooking segPhase = iota
	phaseReaching
)

// segmentedChecker chains look logic into free logic. A failure while
// LOOKING aborts the round outright; once LOOKING succeeds, the center cue
// is hidden, the phase flips to REACHING, and look-fail is never evaluated
// again for this attempt.
type segmentedChecker struct {
	round *Round
	phase segPhase
	free  freeChecker
}

func (c *segmentedChecker) Check(st sample.RigState) Outcome {
	if !st.Valid() {
		return Timeout
	}

	if c.phase == phaseLooking {
		if !st.Primary().Home {
			return Failure
		}
		if c.round.Target.Center.Dist(st.Eye.Pos) > c.round.lookRadius {
			return Timeout
		}
		c.phase = phaseReaching
		c.free = freeChecker{round: c.round}
		return Timeout
	}

	return c.free.Check(st)
}
