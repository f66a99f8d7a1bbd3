package metrics

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/inference-sim/kv-router/errs"
	"github.com/inference-sim/kv-router/kvindex"
	"github.com/inference-sim/kv-router/transport"
)

// workerIDFromName parses the "worker-<id>" endpoint-name convention
// (§6 wire format) into a kvindex.WorkerID.
func workerIDFromName(name string) (kvindex.WorkerID, error) {
	id, ok := strings.CutPrefix(name, "worker-")
	if !ok {
		return 0, fmt.Errorf("endpoint name %q does not match \"worker-<id>\"", name)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("endpoint name %q: %w", name, err)
	}
	return kvindex.WorkerID(n), nil
}

// parseEndpoint decodes one raw scrape result into an Endpoint. A parse
// failure is reported so the caller can warn-and-skip it without failing
// the whole poll (§4.D).
func parseEndpoint(raw transport.RawEndpoint) (Endpoint, error) {
	workerID, err := workerIDFromName(raw.Name)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", errs.ErrDecode, err)
	}

	var envelope statsEnvelope
	if err := json.Unmarshal(raw.Data, &envelope); err != nil {
		return Endpoint{}, fmt.Errorf("%w: decoding stats for %s: %v", errs.ErrDecode, raw.Name, err)
	}

	return Endpoint{
		Name:     raw.Name,
		Subject:  raw.Subject,
		WorkerID: workerID,
		Data:     envelope.Data,
	}, nil
}

// buildSnapshot turns a scrape result into a ProcessedEndpoints, computing
// the cluster-wide load aggregate with gonum's population statistics (not
// hand-rolled, per the ambient-stack decision in SPEC_FULL.md §4.D).
// Endpoints that fail to parse are dropped with their error returned
// alongside the snapshot so the caller can warn about each one.
func buildSnapshot(raws []transport.RawEndpoint) (*ProcessedEndpoints, []error) {
	endpoints := make([]Endpoint, 0, len(raws))
	var parseErrs []error
	for _, raw := range raws {
		ep, err := parseEndpoint(raw)
		if err != nil {
			parseErrs = append(parseErrs, err)
			continue
		}
		endpoints = append(endpoints, ep)
	}

	if len(endpoints) == 0 {
		return &ProcessedEndpoints{Endpoints: endpoints}, parseErrs
	}

	loads := make([]float64, len(endpoints))
	for i, ep := range endpoints {
		loads[i] = float64(ep.Data.KVActiveBlocks)
	}
	mean, stdDev := stat.PopMeanStdDev(loads, nil)

	return &ProcessedEndpoints{
		Endpoints: endpoints,
		LoadAvg:   mean,
		LoadStd:   stdDev,
	}, parseErrs
}
