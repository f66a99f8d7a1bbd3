package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inference-sim/kv-router/errs"
	"github.com/inference-sim/kv-router/kvindex"
)

// scheduleRequest is the body of a POST /v1/schedule call: the caller's
// already-tokenized prompt.
type scheduleRequest struct {
	TokenIDs []uint32 `json:"token_ids"`
}

// scheduleResponse reports the chosen worker and whether the metrics
// snapshot behind that choice was stale (§4.E "StaleSnapshot" advisory).
type scheduleResponse struct {
	WorkerID kvindex.WorkerID `json:"worker_id"`
	Stale    bool             `json:"stale"`
}

// Handler returns the minimal HTTP health/debug surface this daemon
// promises (SPEC_FULL.md "Binary shape"): a liveness probe and the one
// route that actually calls Schedule. It is deliberately not the
// OpenAI-style request/response frontend, which spec.md §1 names as an
// out-of-scope collaborator; this exists so the façade has a caller.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", r.handleHealthz)
	mux.HandleFunc("POST /v1/schedule", r.handleSchedule)
	return mux
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (r *Router) handleSchedule(w http.ResponseWriter, req *http.Request) {
	var body scheduleRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if len(body.TokenIDs) == 0 {
		http.Error(w, "token_ids must be non-empty", http.StatusBadRequest)
		return
	}

	winner, stale, err := r.Schedule(req.Context(), body.TokenIDs)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrNoWorkersAvailable):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.Is(err, errs.ErrCancelled):
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(scheduleResponse{WorkerID: winner, Stale: stale})
}
