package events

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/kv-router/internal/rate"
	"github.com/inference-sim/kv-router/kvindex"
	"github.com/inference-sim/kv-router/transport"
)

// publishBuffer bounds how many pending events a worker may queue before
// PublishStored/PublishRemoved start blocking the caller.
const publishBuffer = 256

// BlockInput describes one KV block a worker is reporting in a Stored
// event, before block-size validation.
type BlockInput struct {
	ExternalHash uint64
	TokensHash   uint64
	TokenCount   int
}

// Publisher is the worker-side counterpart of Subscriber (§4.G): callers
// hand it blocks and removals, and a background goroutine marshals and
// publishes them. Delivery is at-least-once; the indexer tolerates
// duplicates because Apply is idempotent.
type Publisher struct {
	bus       transport.PubSub
	subject   string
	workerID  kvindex.WorkerID
	blockSize int

	tx   chan kvindex.RouterEvent
	done chan struct{}

	nextEventID atomic.Uint64

	log  *logrus.Entry
	warn *rate.Limiter
}

// NewPublisher constructs a Publisher and starts its background send loop.
// The loop stops once ctx is cancelled; any events still queued are
// dropped at that point.
func NewPublisher(ctx context.Context, bus transport.PubSub, subject string, workerID kvindex.WorkerID, blockSize int) *Publisher {
	p := &Publisher{
		bus:       bus,
		subject:   subject,
		workerID:  workerID,
		blockSize: blockSize,
		tx:        make(chan kvindex.RouterEvent, publishBuffer),
		done:      make(chan struct{}),
		log:       logrus.WithField("component", "events.publisher"),
		warn:      rate.NewLimiter(warnLimit),
	}
	go p.run(ctx)
	return p
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-p.tx:
			payload, err := json.Marshal(event)
			if err != nil {
				if p.warn.Allow() {
					p.log.WithError(err).Warn("failed to marshal router event")
				}
				continue
			}
			if err := p.bus.Publish(ctx, p.subject, payload); err != nil {
				if p.warn.Allow() {
					p.log.WithError(err).Warn("failed to publish router event")
				}
			}
		}
	}
}

// PublishStored emits a Stored event for the blocks whose token count
// equals the configured block size; blocks that don't are dropped with a
// rate-limited warning (§4.G). If none of the supplied blocks qualify, no
// event is sent at all.
func (p *Publisher) PublishStored(ctx context.Context, blocks []BlockInput, parentHash *uint64) {
	kept := make([]kvindex.StoredBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.TokenCount != p.blockSize {
			if p.warn.Allow() {
				p.log.WithField("token_count", b.TokenCount).
					WithField("block_size", p.blockSize).
					Warn("dropping block with partial token count")
			}
			continue
		}
		kept = append(kept, kvindex.StoredBlock{ExternalHash: b.ExternalHash, TokensHash: b.TokensHash})
	}
	if len(kept) == 0 {
		return
	}

	event := kvindex.RouterEvent{
		WorkerID: p.workerID,
		EventID:  p.nextEventID.Add(1),
		Data: kvindex.EventData{
			Stored: &kvindex.StoredData{Blocks: kept, ParentHash: parentHash},
		},
	}
	p.enqueue(ctx, event)
}

// PublishRemoved emits a Removed event for the given external hashes.
func (p *Publisher) PublishRemoved(ctx context.Context, externalHashes []uint64) {
	if len(externalHashes) == 0 {
		return
	}
	event := kvindex.RouterEvent{
		WorkerID: p.workerID,
		EventID:  p.nextEventID.Add(1),
		Data: kvindex.EventData{
			Removed: &kvindex.RemovedData{ExternalHashes: externalHashes},
		},
	}
	p.enqueue(ctx, event)
}

func (p *Publisher) enqueue(ctx context.Context, event kvindex.RouterEvent) {
	select {
	case p.tx <- event:
	case <-ctx.Done():
	}
}
