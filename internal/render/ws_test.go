package render

import (
	"testing"
	"time"

	"github.com/relabs-tech/reach_rig/internal/stimulus"
)

func settle(t *testing.T, w *WS) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !w.CheckAsyncReady() {
		if time.Now().After(deadline) {
			t.Fatal("broadcaster never settled")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWSBurstScheduling(t *testing.T) {
	w := NewWS()
	elems := []stimulus.Element{{Shape: stimulus.ShapeCircle, Size: 10, Color: "#ffffff"}}

	// Schedule far faster than the writer drains. Stale queued frames are
	// superseded, so readiness must still converge and the written
	// sequence must catch up with the scheduled one, never report ready
	// while a scheduled frame is outstanding.
	for i := 0; i < 500; i++ {
		w.DrawElements(elems)
		w.ScheduleAsync()
	}
	settle(t, w)

	if got, want := w.written.Load(), w.scheduled.Load(); got != want {
		t.Errorf("written seq %d, scheduled seq %d", got, want)
	}
}

func TestWSUpdateWaitsForWrite(t *testing.T) {
	w := NewWS()
	w.DrawElements([]stimulus.Element{{Shape: stimulus.ShapeSquare, Size: 8, Color: "#30c030"}})
	if err := w.Update(); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !w.CheckAsyncReady() {
		t.Error("not ready after a synchronous update")
	}

	w.EmptyScreen()
	w.ScheduleAsync()
	settle(t, w)
}
