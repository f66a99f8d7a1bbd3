// Package router exposes the single-call façade (§4.F) that composes the
// KV indexer, the metrics aggregator, and the scheduler into one
// schedule(tokens) -> worker_id operation.
package router

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/kv-router/errs"
	"github.com/inference-sim/kv-router/kvindex"
	"github.com/inference-sim/kv-router/metrics"
	"github.com/inference-sim/kv-router/scheduler"
)

// stalenessMultiple is the default snapshot-age warn threshold, expressed
// as a multiple of the metrics poll interval (§6 "Constants").
const stalenessMultiple = 10

// Router holds no mutable state beyond references to the subsystems it
// composes (§4.F).
type Router struct {
	indexer   *kvindex.Indexer
	agg       *metrics.Aggregator
	weights   scheduler.Weights
	blockSize int
	staleAge  time.Duration
	log       *logrus.Entry
}

// New constructs a Router. pollInterval is used only to derive the
// snapshot staleness warn threshold (10x pollInterval, per §4.E).
func New(indexer *kvindex.Indexer, agg *metrics.Aggregator, blockSize int, weights scheduler.Weights, pollInterval time.Duration) *Router {
	return &Router{
		indexer:   indexer,
		agg:       agg,
		weights:   weights,
		blockSize: blockSize,
		staleAge:  stalenessMultiple * pollInterval,
		log:       logrus.WithField("component", "router.Router"),
	}
}

// Schedule picks a worker for a request with the given input tokens. It
// never fails solely because the metrics snapshot is stale; staleness is
// logged as a warning per §4.E, and the second return value always
// reports whether the snapshot used was stale so callers that care can
// act on it.
func (r *Router) Schedule(ctx context.Context, tokens []uint32) (kvindex.WorkerID, bool, error) {
	overlap, err := r.indexer.FindMatches(ctx, tokens)
	if err != nil {
		return 0, false, err
	}

	snapshot, age := r.agg.Latest()
	stale := age > r.staleAge
	if stale {
		r.log.WithField("age", age).Warn("scheduling against a stale metrics snapshot")
	}

	byWorker := snapshot.ByWorkerID()
	candidates := make([]scheduler.Candidate, 0, len(overlap))
	for workerID, overlapBlocks := range overlap {
		endpoint, ok := byWorker[workerID]
		if !ok {
			continue
		}
		candidates = append(candidates, scheduler.Candidate{
			WorkerID: workerID,
			Overlap:  overlapBlocks,
			Load:     endpoint.Data,
		})
	}

	winner, err := scheduler.Schedule(candidates, uint32(len(tokens)), r.blockSize, r.weights)
	if err != nil {
		return 0, stale, err
	}
	return winner, stale, nil
}

// ensure the package surfaces the sentinel kinds schedule() callers match
// against, re-exported from errs for callers that only import router.
var (
	ErrNoWorkersAvailable = errs.ErrNoWorkersAvailable
	ErrCancelled          = errs.ErrCancelled
	ErrStaleSnapshot      = errs.ErrStaleSnapshot
)
