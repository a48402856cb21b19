package gate

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/relabs-tech/reach_rig/internal/sample"
)

func testConfig() Config {
	return Config{
		Fixation:       sample.Point{X: 960, Y: 900},
		FixationRadius: 40,
		MaintainRadius: 120,
		FixationMin:    30 * time.Millisecond,
		MaxMisses:      2,
		DwellMin:       100 * time.Millisecond,
		DwellMax:       100 * time.Millisecond, // deterministic threshold
	}
}

func eyeAt(p sample.Point) sample.State { return sample.State{Pos: p} }

func limbHome(home bool) sample.State {
	return sample.State{Pos: sample.Point{X: 960, Y: 900}, Home: home}
}

func nullObs() sample.State { return sample.Null(time.Now()) }

// step drives the gate with a fixed tick until Ready or maxSteps.
func step(g *Gate, eye, limb sample.State, start time.Time, tick time.Duration, maxSteps int) (State, time.Time) {
	now := start
	for i := 0; i < maxSteps; i++ {
		now = now.Add(tick)
		if g.Step(eye, limb, now) == Ready {
			return Ready, now
		}
	}
	return Accumulating, now
}

func TestGateReadyAfterDwell(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))
	start := time.Now()
	g.Begin(start)

	if g.Threshold() != 100*time.Millisecond {
		t.Fatalf("threshold %v, want 100ms", g.Threshold())
	}

	st, at := step(g, eyeAt(cfg.Fixation), limbHome(true), start, 10*time.Millisecond, 50)
	if st != Ready {
		t.Fatal("gate never became ready")
	}
	if held := at.Sub(start); held < g.Threshold() {
		t.Errorf("ready after %v, threshold %v", held, g.Threshold())
	}
}

func TestGateReadyIsSticky(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))
	start := time.Now()
	g.Begin(start)

	if st, _ := step(g, eyeAt(cfg.Fixation), limbHome(true), start, 10*time.Millisecond, 50); st != Ready {
		t.Fatal("gate never became ready")
	}
	// even a limb departure no longer matters
	if got := g.Step(eyeAt(cfg.Fixation), limbHome(false), start.Add(time.Second)); got != Ready {
		t.Errorf("ready state not sticky: %v", got)
	}
}

func TestGateLimbDepartureCostsDwell(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))
	now := time.Now()
	g.Begin(now)

	// accumulate 90ms, just short of the threshold
	for i := 0; i < 9; i++ {
		now = now.Add(10 * time.Millisecond)
		g.Step(eyeAt(cfg.Fixation), limbHome(true), now)
	}
	// a single departure zeroes everything
	now = now.Add(10 * time.Millisecond)
	if got := g.Step(eyeAt(cfg.Fixation), limbHome(false), now); got != Accumulating {
		t.Fatalf("gate ready despite departure: %v", got)
	}
	if g.Accumulated(now) != 0 {
		t.Errorf("dwell survived departure: %v", g.Accumulated(now))
	}

	// the full threshold has to build up again
	st, at := step(g, eyeAt(cfg.Fixation), limbHome(true), now, 10*time.Millisecond, 50)
	if st != Ready {
		t.Fatal("gate never became ready after re-dwell")
	}
	if held := at.Sub(now); held < g.Threshold() {
		t.Errorf("ready after only %v of re-dwell", held)
	}
}

func TestGateNeverReadyWhileLimbStaysAway(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))
	now := time.Now()
	g.Begin(now)

	// a limb that never settles on home resets the dwell every iteration;
	// hours of that must neither open the gate nor disturb the timer
	for i := 0; i < 100000; i++ {
		now = now.Add(10 * time.Millisecond)
		if got := g.Step(eyeAt(cfg.Fixation), limbHome(false), now); got == Ready {
			t.Fatalf("gate opened on iteration %d without any dwell", i)
		}
	}
	if g.State() != Accumulating {
		t.Errorf("state %v after sustained resets", g.State())
	}
	if g.Accumulated(now) != 0 {
		t.Errorf("dwell %v accumulated while the limb was away", g.Accumulated(now))
	}

	// once the limb settles the gate still works normally
	st, _ := step(g, eyeAt(cfg.Fixation), limbHome(true), now, 10*time.Millisecond, 50)
	if st != Ready {
		t.Error("gate never became ready after the limb settled")
	}
}

func TestGateNullObservationFreezes(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))
	now := time.Now()
	g.Begin(now)

	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Millisecond)
		g.Step(eyeAt(cfg.Fixation), limbHome(true), now)
	}
	acc := g.Accumulated(now)
	if acc == 0 {
		t.Fatal("no dwell accumulated")
	}

	// a tracker blink must not reset the machine
	now = now.Add(10 * time.Millisecond)
	if got := g.Step(nullObs(), limbHome(true), now); got != Accumulating {
		t.Fatalf("unexpected state on null eye: %v", got)
	}
	if g.Accumulated(now) < acc {
		t.Error("null observation reset the dwell")
	}
}

func TestGateFixationExcursions(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))
	now := time.Now()
	g.Begin(now)

	// acquire fixation
	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Millisecond)
		g.Step(eyeAt(cfg.Fixation), limbHome(true), now)
	}

	// excursions inside the maintain ring are tolerated up to MaxMisses
	offFix := sample.Point{X: cfg.Fixation.X + cfg.FixationRadius + 20, Y: cfg.Fixation.Y}
	for i := 0; i < cfg.MaxMisses; i++ {
		now = now.Add(10 * time.Millisecond)
		g.Step(eyeAt(offFix), limbHome(true), now)
	}
	if g.Accumulated(now) == 0 {
		t.Fatal("tolerated excursions reset the dwell")
	}

	// one more miss crosses the limit and costs the dwell
	now = now.Add(10 * time.Millisecond)
	g.Step(eyeAt(offFix), limbHome(true), now)
	if g.Accumulated(now) != 0 {
		t.Error("excess misses did not reset the dwell")
	}
}

func TestGateFixationLeaveMaintainFails(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))
	now := time.Now()
	g.Begin(now)

	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Millisecond)
		g.Step(eyeAt(cfg.Fixation), limbHome(true), now)
	}

	farEye := sample.Point{X: cfg.Fixation.X + cfg.MaintainRadius + 1, Y: cfg.Fixation.Y}
	now = now.Add(10 * time.Millisecond)
	g.Step(eyeAt(farEye), limbHome(true), now)
	if g.Accumulated(now) != 0 {
		t.Error("leaving the maintain ring did not reset the dwell")
	}
}

func TestGateThresholdWithinBounds(t *testing.T) {
	cfg := testConfig()
	cfg.DwellMin = 100 * time.Millisecond
	cfg.DwellMax = 300 * time.Millisecond
	g := New(cfg, rand.New(rand.NewSource(99)))

	seen := map[time.Duration]bool{}
	for i := 0; i < 200; i++ {
		g.Begin(time.Now())
		th := g.Threshold()
		if th < cfg.DwellMin || th > cfg.DwellMax {
			t.Fatalf("threshold %v outside [%v, %v]", th, cfg.DwellMin, cfg.DwellMax)
		}
		seen[th] = true
	}
	if len(seen) < 2 {
		t.Error("threshold never varied across rounds")
	}
}

func TestGateResetRestartsEverything(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, rand.New(rand.NewSource(1)))
	now := time.Now()
	g.Begin(now)

	for i := 0; i < 8; i++ {
		now = now.Add(10 * time.Millisecond)
		g.Step(eyeAt(cfg.Fixation), limbHome(true), now)
	}
	g.Reset(now)
	if g.Accumulated(now) != 0 {
		t.Error("reset kept accumulated dwell")
	}
	if g.State() != Accumulating {
		t.Error("reset kept state")
	}
	if math.Abs(float64(g.Threshold()-100*time.Millisecond)) > 0 {
		t.Error("reset changed the drawn threshold")
	}
}
