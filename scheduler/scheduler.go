// Package scheduler implements the worker-selection cost function (§4.E):
// given per-worker overlap scores and the latest load snapshot, pick the
// worker minimizing a weighted prefill-cost-plus-load score.
package scheduler

import (
	"github.com/inference-sim/kv-router/errs"
	"github.com/inference-sim/kv-router/kvindex"
	"github.com/inference-sim/kv-router/metrics"
)

// Weights controls the relative importance of prefill cost versus load
// pressure in the scheduling score. DefaultWeights is calibrated so a
// fully loaded worker is never preferred over one with equal prefill cost
// and slack.
type Weights struct {
	Alpha float64
	Beta  float64
}

// DefaultWeights sets Beta to one block size of tokens, so a full block of
// wasted prefill work costs exactly as much as a worker sitting at 100% of
// either its slot or block capacity.
func DefaultWeights(blockSize int) Weights {
	return Weights{Alpha: 1.0, Beta: float64(blockSize)}
}

// Candidate is one worker under consideration: its overlap score from the
// prefix index and its most recently polled load sample.
type Candidate struct {
	WorkerID kvindex.WorkerID
	Overlap  uint32
	Load     metrics.ForwardPassMetrics
}

func prefillCost(islTokens uint32, overlapBlocks uint32, blockSize int) float64 {
	covered := int64(overlapBlocks) * int64(blockSize)
	remaining := int64(islTokens) - covered
	if remaining < 0 {
		remaining = 0
	}
	return float64(remaining)
}

func loadPressure(load metrics.ForwardPassMetrics) float64 {
	blockPressure := float64(load.KVActiveBlocks) / float64(max64(1, load.KVTotalBlocks))
	slotPressure := float64(load.RequestActiveSlots) / float64(max64(1, load.RequestTotalSlots))
	return blockPressure + slotPressure
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func headroom(load metrics.ForwardPassMetrics) int64 {
	return int64(load.RequestTotalSlots) - int64(load.RequestActiveSlots)
}

// Schedule picks the candidate minimizing alpha*prefillCost + beta*loadPressure,
// breaking ties by larger headroom then by lower numeric worker ID. It
// returns errs.ErrNoWorkersAvailable if candidates is empty.
func Schedule(candidates []Candidate, islTokens uint32, blockSize int, w Weights) (kvindex.WorkerID, error) {
	if len(candidates) == 0 {
		return 0, errs.ErrNoWorkersAvailable
	}

	best := candidates[0]
	bestScore := score(best, islTokens, blockSize, w)

	for _, c := range candidates[1:] {
		s := score(c, islTokens, blockSize, w)
		if better(s, c, bestScore, best) {
			best, bestScore = c, s
		}
	}
	return best.WorkerID, nil
}

func score(c Candidate, islTokens uint32, blockSize int, w Weights) float64 {
	return w.Alpha*prefillCost(islTokens, c.Overlap, blockSize) + w.Beta*loadPressure(c.Load)
}

// better reports whether candidate b (score sb) should replace the current
// best a (score sa): strictly lower score wins; ties broken by larger
// headroom, then by lower worker_id.
func better(sb float64, b Candidate, sa float64, a Candidate) bool {
	const epsilon = 1e-9
	if sb < sa-epsilon {
		return true
	}
	if sb > sa+epsilon {
		return false
	}

	hb, ha := headroom(b.Load), headroom(a.Load)
	if hb != ha {
		return hb > ha
	}
	return b.WorkerID < a.WorkerID
}
