package runner

import (
	"testing"
	"time"

	"github.com/relabs-tech/reach_rig/internal/trial"
)

func TestRetryBufferQueuesNonSuccessInOrder(t *testing.T) {
	b := &RetryBuffer{}
	rounds := make([]*trial.Round, 4)
	for i := range rounds {
		rounds[i] = &trial.Round{Kind: trial.KindFree, Timeout: time.Second}
	}

	outcomes := []trial.Outcome{trial.Success, trial.Failure, trial.Timeout, trial.Success}
	for i, out := range outcomes {
		b.Push(rounds[i], 0, i, out)
	}

	if b.Len() != 2 {
		t.Fatalf("queued %d, want 2", b.Len())
	}

	first, ok := b.Pop()
	if !ok || first.Round != rounds[1] || first.RoundIndex != 1 {
		t.Errorf("first pop: %+v", first)
	}
	second, ok := b.Pop()
	if !ok || second.Round != rounds[2] || second.RoundIndex != 2 {
		t.Errorf("second pop: %+v", second)
	}
	if _, ok := b.Pop(); ok {
		t.Error("buffer not empty after draining")
	}
}
