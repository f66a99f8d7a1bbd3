package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/kv-router/kvindex"
)

type fakeBus struct {
	ch chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{ch: make(chan []byte, 16)}
}

func (f *fakeBus) Publish(ctx context.Context, subject string, payload []byte) error {
	f.ch <- payload
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	return f.ch, nil
}

// TestSubscriber_ForwardsValidEventsToIndexer covers the happy path of the
// ingestion loop end to end against a real Indexer.
func TestSubscriber_ForwardsValidEventsToIndexer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx := kvindex.NewIndexer(ctx, 4)
	bus := newFakeBus()
	sub := NewSubscriber(bus, idx, "test.events.kv_events")
	go sub.Run(ctx)

	hashes := kvindex.HashBlocks([]uint32{1, 2, 3, 4}, 4)
	event := kvindex.RouterEvent{
		WorkerID: 1,
		EventID:  1,
		Data: kvindex.EventData{
			Stored: &kvindex.StoredData{Blocks: []kvindex.StoredBlock{
				{ExternalHash: 1, TokensHash: uint64(hashes[0])},
			}},
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	bus.ch <- payload

	require.Eventually(t, func() bool {
		matches, err := idx.FindMatches(ctx, []uint32{1, 2, 3, 4})
		return err == nil && matches[1] == 1
	}, time.Second, time.Millisecond)
}

// TestSubscriber_MalformedPayloadDoesNotTearDownSubscription covers §4.C's
// "a decode error does not tear down the subscription" invariant.
func TestSubscriber_MalformedPayloadDoesNotTearDownSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx := kvindex.NewIndexer(ctx, 4)
	bus := newFakeBus()
	sub := NewSubscriber(bus, idx, "test.events.kv_events")
	go sub.Run(ctx)

	bus.ch <- []byte("not json")

	hashes := kvindex.HashBlocks([]uint32{1, 2, 3, 4}, 4)
	event := kvindex.RouterEvent{
		WorkerID: 1,
		EventID:  1,
		Data: kvindex.EventData{
			Stored: &kvindex.StoredData{Blocks: []kvindex.StoredBlock{
				{ExternalHash: 1, TokensHash: uint64(hashes[0])},
			}},
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	bus.ch <- payload

	require.Eventually(t, func() bool {
		matches, err := idx.FindMatches(ctx, []uint32{1, 2, 3, 4})
		return err == nil && matches[1] == 1
	}, time.Second, time.Millisecond, "the valid event after the bad one must still land")
}

func TestSubscriber_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	idx := kvindex.NewIndexer(ctx, 4)
	bus := newFakeBus()
	sub := NewSubscriber(bus, idx, "test.events.kv_events")

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop after context cancellation")
	}
}
