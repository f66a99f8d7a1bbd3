// Package errs collects the sentinel error values shared across the
// router core, per §7's error-kind taxonomy. Components that only ever
// handle an error locally (Decode, TransportFailure, ProtocolViolation)
// use errors.Is against these sentinels internally; the two that are
// meant to reach a Schedule caller (NoWorkersAvailable, Cancelled) are
// also exported for callers to check.
package errs

import "errors"

var (
	// ErrDecode marks a malformed event or stats payload. Logged at warn
	// and dropped; never surfaces past the component that saw it.
	ErrDecode = errors.New("kvrouter: malformed payload")

	// ErrProtocolViolation marks an event that is well-formed JSON but
	// violates a protocol invariant (wrong block size, zero blocks).
	// Logged at warn (rate-limited) and dropped.
	ErrProtocolViolation = errors.New("kvrouter: protocol violation")

	// ErrTransportFailure marks a subscription failure: events.Subscriber.Run
	// returns it when the subscription cannot be established and does not
	// retry. It never mutates state. Stats-scrape failures do not use this
	// sentinel; the metrics aggregator logs them and tries again on its
	// next tick.
	ErrTransportFailure = errors.New("kvrouter: transport failure")

	// ErrNoWorkersAvailable is returned by Schedule when no candidate
	// worker exists (empty snapshot, or overlap map naming no workers).
	ErrNoWorkersAvailable = errors.New("kvrouter: no workers available")

	// ErrStaleSnapshot names the stale-snapshot advisory (the metrics
	// snapshot used was older than the staleness threshold). It is never
	// returned: router.Router.Schedule reports staleness through its
	// boolean result, alongside a worker or ErrNoWorkersAvailable.
	ErrStaleSnapshot = errors.New("kvrouter: metrics snapshot is stale")

	// ErrCancelled is returned by any in-flight call whose owning
	// subsystem is shutting down.
	ErrCancelled = errors.New("kvrouter: cancelled")
)
