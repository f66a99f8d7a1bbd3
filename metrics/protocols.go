// Package metrics implements the periodic load-metrics aggregator (§4.D):
// it polls worker stats on a timer and publishes the latest snapshot for
// schedulers to read with last-writer-wins semantics.
package metrics

import (
	"time"

	"github.com/inference-sim/kv-router/kvindex"
)

// ForwardPassMetrics is the per-worker load sample reported by a worker's
// stats endpoint.
type ForwardPassMetrics struct {
	RequestActiveSlots uint64 `json:"request_active_slots"`
	RequestTotalSlots  uint64 `json:"request_total_slots"`
	KVActiveBlocks     uint64 `json:"kv_active_blocks"`
	KVTotalBlocks      uint64 `json:"kv_total_blocks"`
}

// statsEnvelope is the outer, NATS-service-style wrapper a worker's stats
// response arrives in. The core only cares about the nested Data field;
// the rest of the envelope exists for service-mesh plumbing outside this
// spec's scope and is skipped by json.Unmarshal as unknown fields.
type statsEnvelope struct {
	Data ForwardPassMetrics `json:"data"`
}

// Endpoint is one worker's parsed stats sample.
type Endpoint struct {
	Name     string             `json:"name"`
	Subject  string             `json:"subject"`
	WorkerID kvindex.WorkerID   `json:"-"`
	Data     ForwardPassMetrics `json:"data"`
}

// ProcessedEndpoints is the aggregate snapshot published for downstream
// consumers on namespace.events.l2c.<component>.<endpoint>.
type ProcessedEndpoints struct {
	Endpoints []Endpoint `json:"endpoints"`
	LoadAvg   float64    `json:"load_avg"`
	LoadStd   float64    `json:"load_std"`

	// GeneratedAt records when this snapshot was built, for the staleness
	// check in router.Router.Schedule. It is not part of the published wire
	// format (downstream consumers only ever see the latest snapshot,
	// never its age).
	GeneratedAt time.Time `json:"-"`
}

// ByWorkerID indexes the snapshot's endpoints for O(1) lookup during
// scheduling.
func (p *ProcessedEndpoints) ByWorkerID() map[kvindex.WorkerID]Endpoint {
	out := make(map[kvindex.WorkerID]Endpoint, len(p.Endpoints))
	for _, ep := range p.Endpoints {
		out[ep.WorkerID] = ep
	}
	return out
}
