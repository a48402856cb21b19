package runner

import "github.com/relabs-tech/reach_rig/internal/trial"

// retryEntry remembers which scheduled slot a layout originally ran in so
// the replayed attempt is recorded against the same indices.
type retryEntry struct {
	Round      *trial.Round
	TrialIndex int
	RoundIndex int
}

// RetryBuffer queues non-success rounds for one replay each, in the order
// they failed. A round whose retry also fails is dropped, never requeued.
type RetryBuffer struct {
	entries []retryEntry
}

// Push queues a round for retry when its outcome was not a success.
func (b *RetryBuffer) Push(r *trial.Round, trialIdx, roundIdx int, outcome trial.Outcome) {
	if outcome == trial.Success {
		return
	}
	b.entries = append(b.entries, retryEntry{Round: r, TrialIndex: trialIdx, RoundIndex: roundIdx})
}

// Pop removes and returns the oldest queued round.
func (b *RetryBuffer) Pop() (retryEntry, bool) {
	if len(b.entries) == 0 {
		return retryEntry{}, false
	}
	e := b.entries[0]
	b.entries = b.entries[1:]
	return e, true
}

// Len reports how many rounds await retry.
func (b *RetryBuffer) Len() int { return len(b.entries) }
