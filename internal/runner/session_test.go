package runner

import (
	"context"
	"math/rand"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/reach_rig/internal/config"
	"github.com/relabs-tech/reach_rig/internal/operator"
	"github.com/relabs-tech/reach_rig/internal/recorder"
	"github.com/relabs-tech/reach_rig/internal/render"
	"github.com/relabs-tech/reach_rig/internal/sample"
	"github.com/relabs-tech/reach_rig/internal/sensors"
)

func sessionConfig(schedule []config.TrialSpec) *config.Config {
	return &config.Config{
		ScreenWidth:      1920,
		ScreenHeight:     1080,
		HomeX:            testHome.Center.X,
		HomeY:            testHome.Center.Y,
		HomeRadius:       testHome.Radius,
		MaxReachDistance: 700,
		LookRadiusScale:  2.0,
		AccuracyQuantile: 0.95,
		SampleRateHz:     500,
		TrialSchedule:    schedule,
	}
}

// squareWave alternates the limb between home and an off-home point every
// phase polls, so each gate opens during a home phase and each round then
// times out during the following away phase.
func squareWave(phase int) sensors.Script {
	away := sample.Point{X: 10, Y: 10}
	n := 0
	return func(time.Duration) ([]float64, bool) {
		p := testHome.Center
		if (n/phase)%2 == 1 {
			p = away
		}
		n++
		return []float64{p.X, p.Y}, false
	}
}

func TestSessionSchedulesAndRetries(t *testing.T) {
	cfg := sessionConfig([]config.TrialSpec{
		{Kind: "free", Rounds: 1, TimeoutMS: 100, Radius: 40, Practice: true},
		{Kind: "free", Rounds: 1, TimeoutMS: 100, Radius: 40},
	})

	eye := sensors.NewMock("eye", testHome, sensors.HoldAt(testHome.Center))
	hand := sensors.NewMock("hand", testHome, squareWave(500))
	rig := &sensors.Rig{Eye: eye, Limbs: []sensors.Sensor{hand}}
	if err := rig.EstablishAll(context.Background()); err != nil {
		t.Fatalf("establish: %v", err)
	}

	run := New(rig, render.Null{}, testGate(), &operator.Signals{}, Params{
		Fixation:       testHome.Center,
		SampleRateHz:   cfg.SampleRateHz,
		RenderInterval: 16 * time.Millisecond,
	})
	clk := &fakeClock{t: time.Unix(1000, 0)}
	run.SetClock(clk.now, clk.sleep)

	dir := t.TempDir()
	rec := recorder.New(dir)
	sess := NewSession(cfg, rig, run, rec, rand.New(rand.NewSource(5)))

	var events []recorder.RoundRecord
	sess.OnOutcome = func(r recorder.RoundRecord) { events = append(events, r) }

	if err := sess.Run(); err != nil {
		t.Fatalf("session: %v", err)
	}

	// practice round, scored round, one retry of the scored round
	if len(events) != 3 {
		t.Fatalf("recorded %d rounds, want 3", len(events))
	}
	if !events[0].Practice || events[0].Retry {
		t.Errorf("first record not a practice round: %+v", events[0])
	}
	if events[1].Practice || events[1].Retry {
		t.Errorf("second record should be the scored attempt: %+v", events[1])
	}
	if !events[2].Retry {
		t.Errorf("third record should be the retry: %+v", events[2])
	}
	// the retry replays the identical slot
	if events[2].Trial != events[1].Trial || events[2].Round != events[1].Round {
		t.Errorf("retry indices %d/%d, want %d/%d",
			events[2].Trial, events[2].Round, events[1].Trial, events[1].Round)
	}
	for _, ev := range events {
		if ev.Outcome != 0 {
			t.Errorf("expected timeouts only, got %+v", ev)
		}
	}

	// the dataset landed on disk despite an all-timeout session
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range files {
		if strings.HasSuffix(f.Name(), "_session_dataset.json") {
			found = true
		}
	}
	if !found {
		t.Errorf("no dataset written in %s: %v", dir, files)
	}
}

func TestSessionAdaptiveWithoutPracticeFails(t *testing.T) {
	cfg := sessionConfig([]config.TrialSpec{
		{Kind: "reach", Rounds: 1, TimeoutMS: 100}, // adaptive radius, no practice
	})

	eye := sensors.NewMock("eye", testHome, sensors.HoldAt(testHome.Center))
	hand := sensors.NewMock("hand", testHome, sensors.HoldAt(testHome.Center))
	rig := &sensors.Rig{Eye: eye, Limbs: []sensors.Sensor{hand}}
	if err := rig.EstablishAll(context.Background()); err != nil {
		t.Fatalf("establish: %v", err)
	}

	run := New(rig, render.Null{}, testGate(), &operator.Signals{}, Params{
		Fixation:     testHome.Center,
		SampleRateHz: cfg.SampleRateHz,
	})
	clk := &fakeClock{t: time.Unix(1000, 0)}
	run.SetClock(clk.now, clk.sleep)

	sess := NewSession(cfg, rig, run, recorder.New(t.TempDir()), rand.New(rand.NewSource(5)))
	if err := sess.Run(); err == nil {
		t.Fatal("expected a configuration error for the unresolvable radius")
	}
}
