package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/kv-router/errs"
	"github.com/inference-sim/kv-router/kvindex"
	"github.com/inference-sim/kv-router/metrics"
)

func idleLoad() metrics.ForwardPassMetrics {
	return metrics.ForwardPassMetrics{RequestActiveSlots: 0, RequestTotalSlots: 10, KVActiveBlocks: 0, KVTotalBlocks: 100}
}

// TestSchedule_OverlapMonotonicity is testable property 5: at equal load,
// strictly greater overlap must win.
func TestSchedule_OverlapMonotonicity(t *testing.T) {
	w := DefaultWeights(16)
	candidates := []Candidate{
		{WorkerID: 1, Overlap: 2, Load: idleLoad()},
		{WorkerID: 2, Overlap: 5, Load: idleLoad()},
	}
	winner, err := Schedule(candidates, 200, 16, w)
	require.NoError(t, err)
	assert.Equal(t, kvindex.WorkerID(2), winner)
}

// TestSchedule_LoadMonotonicity is testable property 6: at equal overlap,
// strictly lower load must win.
func TestSchedule_LoadMonotonicity(t *testing.T) {
	w := DefaultWeights(16)
	busy := metrics.ForwardPassMetrics{RequestActiveSlots: 9, RequestTotalSlots: 10, KVActiveBlocks: 90, KVTotalBlocks: 100}
	candidates := []Candidate{
		{WorkerID: 1, Overlap: 3, Load: busy},
		{WorkerID: 2, Overlap: 3, Load: idleLoad()},
	}
	winner, err := Schedule(candidates, 200, 16, w)
	require.NoError(t, err)
	assert.Equal(t, kvindex.WorkerID(2), winner)
}

// TestSchedule_FullyLoadedNeverBeatsEqualPrefillWithSlack encodes the
// default-weight calibration guarantee directly: a worker pegged at 100%
// of either resource cannot win against an equal-prefill-cost competitor
// that has any slack at all.
func TestSchedule_FullyLoadedNeverBeatsEqualPrefillWithSlack(t *testing.T) {
	w := DefaultWeights(16)
	pegged := metrics.ForwardPassMetrics{RequestActiveSlots: 10, RequestTotalSlots: 10, KVActiveBlocks: 100, KVTotalBlocks: 100}
	slack := metrics.ForwardPassMetrics{RequestActiveSlots: 9, RequestTotalSlots: 10, KVActiveBlocks: 99, KVTotalBlocks: 100}
	candidates := []Candidate{
		{WorkerID: 1, Overlap: 4, Load: pegged},
		{WorkerID: 2, Overlap: 4, Load: slack},
	}
	winner, err := Schedule(candidates, 500, 16, w)
	require.NoError(t, err)
	assert.Equal(t, kvindex.WorkerID(2), winner)
}

// TestSchedule_TieBreaksOnHeadroomThenWorkerID covers the §4.E step 3 tie
// breaks: two candidates at the same load *ratio* (so an equal score) are
// broken by absolute headroom, not by the ratio itself, and a full tie is
// broken by the lower worker_id.
func TestSchedule_TieBreaksOnHeadroomThenWorkerID(t *testing.T) {
	w := DefaultWeights(16)
	lessHeadroom := metrics.ForwardPassMetrics{RequestActiveSlots: 8, RequestTotalSlots: 10, KVActiveBlocks: 0, KVTotalBlocks: 100}
	moreHeadroom := metrics.ForwardPassMetrics{RequestActiveSlots: 16, RequestTotalSlots: 20, KVActiveBlocks: 0, KVTotalBlocks: 100}
	candidates := []Candidate{
		{WorkerID: 5, Overlap: 0, Load: lessHeadroom},
		{WorkerID: 3, Overlap: 0, Load: moreHeadroom},
	}
	winner, err := Schedule(candidates, 100, 16, w)
	require.NoError(t, err)
	assert.Equal(t, kvindex.WorkerID(3), winner, "equal load ratio, more absolute headroom must win the tie")

	identical := []Candidate{
		{WorkerID: 9, Overlap: 0, Load: idleLoad()},
		{WorkerID: 2, Overlap: 0, Load: idleLoad()},
	}
	winner, err = Schedule(identical, 100, 16, w)
	require.NoError(t, err)
	assert.Equal(t, kvindex.WorkerID(2), winner, "lowest worker_id must win a full tie")
}

func TestSchedule_NoCandidatesFails(t *testing.T) {
	_, err := Schedule(nil, 100, 16, DefaultWeights(16))
	require.ErrorIs(t, err, errs.ErrNoWorkersAvailable)
}

func TestSchedule_PrefillCostNeverNegative(t *testing.T) {
	w := DefaultWeights(16)
	candidates := []Candidate{{WorkerID: 1, Overlap: 1000, Load: idleLoad()}}
	winner, err := Schedule(candidates, 10, 16, w)
	require.NoError(t, err)
	assert.Equal(t, kvindex.WorkerID(1), winner)
}
