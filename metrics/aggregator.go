package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/kv-router/internal/rate"
	"github.com/inference-sim/kv-router/transport"
)

// warnLimit bounds how many aggregator warnings get logged before they are
// silently swallowed, matching the ingestion-side policy in events.Subscriber.
const warnLimit = 3

// Aggregator polls worker stats on a timer and publishes the latest
// processed snapshot for schedulers to read (§4.D). The snapshot cell is a
// lock-free atomic.Pointer swap: readers never block on the poller and the
// poller never blocks on readers.
type Aggregator struct {
	scraper  transport.StatsScraper
	service  string
	interval time.Duration
	timeout  time.Duration

	log  *logrus.Entry
	warn *rate.Limiter

	latest atomic.Pointer[ProcessedEndpoints]
}

// NewAggregator constructs an Aggregator and starts its polling loop. The
// loop stops when ctx is cancelled.
func NewAggregator(ctx context.Context, scraper transport.StatsScraper, service string, interval, timeout time.Duration) *Aggregator {
	a := &Aggregator{
		scraper:  scraper,
		service:  service,
		interval: interval,
		timeout:  timeout,
		log:      logrus.WithField("component", "metrics.aggregator"),
		warn:     rate.NewLimiter(warnLimit),
	}
	a.latest.Store(&ProcessedEndpoints{})
	go a.run(ctx)
	return a
}

func (a *Aggregator) run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

func (a *Aggregator) poll(ctx context.Context) {
	raws, err := a.scraper.Scrape(ctx, a.service, a.timeout)
	if err != nil {
		if a.warn.Allow() {
			a.log.WithError(err).Warn("stats scrape failed")
		}
		return
	}

	snapshot, parseErrs := buildSnapshot(raws)
	for _, perr := range parseErrs {
		if a.warn.Allow() {
			a.log.WithError(perr).Warn("dropping malformed worker stats endpoint")
		}
	}
	if len(snapshot.Endpoints) == 0 {
		if a.warn.Allow() {
			a.log.Warn("stats scrape produced no usable endpoints")
		}
	}

	snapshot.GeneratedAt = a.now()
	a.latest.Store(snapshot)
}

// now is the only place in the package that would need to change if the
// aggregator ever needed an injectable clock; Since() calls below use it
// indirectly via GeneratedAt.
func (a *Aggregator) now() time.Time {
	return time.Now()
}

// Latest returns the most recently published snapshot and how long ago it
// was generated. Never blocks.
func (a *Aggregator) Latest() (*ProcessedEndpoints, time.Duration) {
	snap := a.latest.Load()
	return snap, time.Since(snap.GeneratedAt)
}
