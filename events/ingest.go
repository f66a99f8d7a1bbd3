// Package events wires the wire-level RouterEvent protocol to the indexer
// on the cluster side (Subscriber, §4.C) and back out from a worker
// (Publisher, §4.G).
package events

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/kv-router/errs"
	"github.com/inference-sim/kv-router/internal/rate"
	"github.com/inference-sim/kv-router/kvindex"
	"github.com/inference-sim/kv-router/transport"
)

// warnLimit matches the first-N-occurrences policy used across the core
// for rate-limited diagnostics.
const warnLimit = 3

// Subscriber reads raw payloads off a PubSub subject, decodes them as
// RouterEvent, and forwards them to the indexer. A decode error or a
// protocol violation is logged and dropped; it never tears down the
// subscription (§4.C).
type Subscriber struct {
	bus     transport.PubSub
	indexer *kvindex.Indexer
	subject string
	log     *logrus.Entry
	warn    *rate.Limiter
}

// NewSubscriber constructs a Subscriber. Run must be called to start
// consuming.
func NewSubscriber(bus transport.PubSub, indexer *kvindex.Indexer, subject string) *Subscriber {
	return &Subscriber{
		bus:     bus,
		indexer: indexer,
		subject: subject,
		log:     logrus.WithField("component", "events.subscriber"),
		warn:    rate.NewLimiter(warnLimit),
	}
}

// Run subscribes to the configured subject and forwards decoded events to
// the indexer until ctx is cancelled or the subscription is torn down.
func (s *Subscriber) Run(ctx context.Context) error {
	msgs, err := s.bus.Subscribe(ctx, s.subject)
	if err != nil {
		return errs.ErrTransportFailure
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			s.handle(ctx, payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload []byte) {
	var event kvindex.RouterEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		if s.warn.Allow() {
			s.log.WithError(err).Warn("dropping malformed router event")
		}
		return
	}

	if err := s.indexer.Apply(ctx, event); err != nil {
		if s.warn.Allow() {
			s.log.WithError(err).WithField("worker_id", event.WorkerID).Warn("indexer rejected event")
		}
	}
}
