package trial

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/relabs-tech/reach_rig/internal/sample"
	"github.com/relabs-tech/reach_rig/internal/stimulus"
)

// Kind selects the pass/fail logic applied during a round.
type Kind int

const (
	KindLook Kind = iota
	KindReach
	KindFree
	KindSegmented
)

func (k Kind) String() string {
	switch k {
	case KindLook:
		return "look"
	case KindReach:
		return "reach"
	case KindFree:
		return "free"
	case KindSegmented:
		return "segmented"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindFromString parses the config-file spelling of a trial kind.
func KindFromString(s string) (Kind, error) {
	switch s {
	case "look":
		return KindLook, nil
	case "reach":
		return KindReach, nil
	case "free":
		return KindFree, nil
	case "segmented":
		return KindSegmented, nil
	default:
		return 0, fmt.Errorf("unknown trial kind %q", s)
	}
}

// Outcome is the per-round-attempt result. The zero value doubles as the
// in-flight "no decision yet" state and as the recorded code for a round
// that ran out its clock.
type Outcome int

const (
	Failure Outcome = -1
	Timeout Outcome = 0
	Success Outcome = 1
)

func (o Outcome) String() string {
	switch o {
	case Failure:
		return "failure"
	case Success:
		return "success"
	default:
		return "timeout"
	}
}

// Definition describes one block of rounds sharing kind and parameters.
type Definition struct {
	Kind    Kind
	Rounds  int
	Timeout time.Duration

	// Radius 0 means the adaptive threshold for this kind must be used;
	// the session resolves it before Generate is called.
	Radius float64

	// LookScale multiplies the target radius into the gaze success radius
	// (explicitly configurable; protocols disagree on the 2x convention).
	LookScale float64

	// RequireClick demands the discrete response channel in free rounds.
	RequireClick bool

	// Practice rounds feed the adaptive threshold fit, suppress feedback
	// markers, and are never retried.
	Practice bool

	// FailZoneRadius, when > 0, places a fail region opposite the target.
	FailZoneRadius float64
}

// Layout holds the geometry shared by all rounds of a session.
type Layout struct {
	ScreenWidth  float64
	ScreenHeight float64
	Home         sample.Point
	HomeRadius   float64
	MaxDistance  float64
}

// Round is one generated stimulus layout plus its live check state machine.
// The descriptor fields stay unmutated for the whole session so a retried
// round replays the identical layout; only the embedded checker carries
// per-attempt state, and ResetCheck rebuilds it.
type Round struct {
	Kind     Kind
	Elements []stimulus.Element
	Target   stimulus.Zone
	FailZone *stimulus.Zone
	Cue      *stimulus.Element
	Timeout  time.Duration
	Practice bool

	lookRadius   float64
	requireClick bool
	home         stimulus.Zone

	checker Checker
}

// Generate produces a fresh round layout. radius must be resolved by the
// caller (explicit or adaptive) and positive.
func (d *Definition) Generate(rng *rand.Rand, layout Layout, radius float64) (*Round, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("generate %s round: non-positive target radius %v", d.Kind, radius)
	}
	if layout.HomeRadius <= 0 {
		return nil, fmt.Errorf("generate %s round: non-positive home radius %v", d.Kind, layout.HomeRadius)
	}

	lookScale := d.LookScale
	if lookScale <= 0 {
		lookScale = 1
	}

	target := placeTarget(rng, layout, radius)

	r := &Round{
		Kind:         d.Kind,
		Target:       stimulus.Zone{Center: target, Radius: radius},
		Timeout:      d.Timeout,
		Practice:     d.Practice,
		lookRadius:   radius * lookScale,
		requireClick: d.RequireClick,
		home:         stimulus.Zone{Center: layout.Home, Radius: layout.HomeRadius},
	}

	r.Elements = []stimulus.Element{
		{Shape: stimulus.ShapeCircle, Location: target, Size: radius, Color: "#ffffff"},
	}

	if d.FailZoneRadius > 0 {
		// Mirror the target through home so the fail region sits opposite.
		fz := sample.Point{
			X: 2*layout.Home.X - target.X,
			Y: 2*layout.Home.Y - target.Y,
		}
		r.FailZone = &stimulus.Zone{Center: fz, Radius: d.FailZoneRadius}
		r.Elements = append(r.Elements, stimulus.Element{
			Shape: stimulus.ShapeCircle, Location: fz, Size: d.FailZoneRadius, Color: "#802020",
		})
	}

	if d.Kind == KindSegmented {
		cue := stimulus.Element{
			Shape: stimulus.ShapeFixCue, Location: layout.Home, Size: layout.HomeRadius / 2, Color: "#f0f040",
		}
		r.Cue = &cue
	}

	r.ResetCheck()
	return r, nil
}

// placeTarget draws a target center at a uniform random angle and a distance
// in [homeRadius+radius, maxDistance] from home, clamped to screen margins.
func placeTarget(rng *rand.Rand, layout Layout, radius float64) sample.Point {
	minDist := layout.HomeRadius + radius
	maxDist := layout.MaxDistance
	if maxDist < minDist {
		maxDist = minDist
	}

	for attempt := 0; attempt < 32; attempt++ {
		ang := rng.Float64() * 2 * math.Pi
		dist := minDist + rng.Float64()*(maxDist-minDist)
		p := sample.Point{
			X: layout.Home.X + dist*math.Cos(ang),
			Y: layout.Home.Y + dist*math.Sin(ang),
		}
		if p.X >= radius && p.X <= layout.ScreenWidth-radius &&
			p.Y >= radius && p.Y <= layout.ScreenHeight-radius {
			return p
		}
	}
	// Degenerate geometry; fall back to a point straight right of home.
	return sample.Point{X: layout.Home.X + minDist, Y: layout.Home.Y}
}

// ResetCheck rebuilds the check state machine for a fresh attempt at this
// layout. Also restores the center cue for segmented rounds.
func (r *Round) ResetCheck() {
	if r.Cue != nil {
		r.Cue.Color = "#f0f040"
	}
	r.checker = newChecker(r)
}

// Check feeds one aggregated rig observation to the round's state machine.
func (r *Round) Check(st sample.RigState) Outcome {
	return r.checker.Check(st)
}

// CueVisible reports whether the segmented center cue should be drawn.
func (r *Round) CueVisible() bool {
	if r.Cue == nil {
		return false
	}
	seg, ok := r.checker.(*segmentedChecker)
	return !ok || seg.phase == phaseLooking
}
