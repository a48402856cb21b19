package recorder

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/relabs-tech/reach_rig/internal/sample"
	"github.com/relabs-tech/reach_rig/internal/stimulus"
)

func TestWriteAndReloadDataset(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	target := stimulus.Zone{Center: sample.Point{X: 500, Y: 300}, Radius: 40}
	r.Add(RoundRecord{
		Trial:     0,
		Round:     2,
		Kind:      "reach",
		Outcome:   1,
		StartedAt: time.Now(),
		Duration:  1.25,
		Target:    target,
		Elements: []stimulus.Element{
			{Shape: stimulus.ShapeCircle, Location: target.Center, Size: 40, Color: "#ffffff"},
		},
		Traces: map[string][]TracePoint{
			"hand": {{T: 0, X: 960, Y: 900}, {T: 0.5, X: 700, Y: 600}, {T: 1.25, X: 500, Y: 300}},
			"eye":  {{T: 0, X: 960, Y: 900}},
		},
	})
	r.Add(RoundRecord{Trial: 1, Round: 0, Kind: "free", Retry: true, Outcome: -1,
		Target: target, Traces: map[string][]TracePoint{}})

	r.SetThresholds(map[string]float64{"reach": 38.5})

	if r.Rounds() != 2 {
		t.Fatalf("rounds %d, want 2", r.Rounds())
	}

	path, err := r.Write()
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if ds.SchemaVersion != 1 {
		t.Errorf("schema version %d", ds.SchemaVersion)
	}
	if len(ds.Rounds) != 2 {
		t.Fatalf("reloaded %d rounds", len(ds.Rounds))
	}
	if ds.Thresholds["reach"] != 38.5 {
		t.Errorf("thresholds %v", ds.Thresholds)
	}

	first := ds.Rounds[0]
	if first.Kind != "reach" || first.Outcome != 1 || first.Round != 2 {
		t.Errorf("first record %+v", first)
	}
	if len(first.Traces["hand"]) != 3 {
		t.Errorf("hand trace length %d", len(first.Traces["hand"]))
	}
	if first.Traces["hand"][2].X != 500 {
		t.Errorf("endpoint %v", first.Traces["hand"][2])
	}

	second := ds.Rounds[1]
	if !second.Retry || second.Outcome != -1 {
		t.Errorf("second record %+v", second)
	}
	if ds.FinishedAt.Before(ds.StartedAt) {
		t.Error("finished before started")
	}
}
