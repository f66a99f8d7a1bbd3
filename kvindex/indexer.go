package kvindex

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/kv-router/errs"
	"github.com/inference-sim/kv-router/internal/rate"
)

// applyMsg carries one Apply request into the indexer's owning goroutine.
type applyMsg struct {
	event RouterEvent
	reply chan error
}

// queryMsg carries one FindMatches request into the indexer's owning
// goroutine.
type queryMsg struct {
	tokens []uint32
	reply  chan findMatchesResult
}

type findMatchesResult struct {
	matches map[WorkerID]uint32
}

// Indexer owns the trie described in §3 and serializes every mutation and
// query through a single goroutine (§4.B "Concurrency": no lock is
// exposed to the outside). Callers only ever see Apply and FindMatches;
// nothing outside this package can reach the trie directly.
type Indexer struct {
	blockSize int
	apply     chan applyMsg
	query     chan queryMsg
	log       *logrus.Entry
	warn      *rate.Limiter
}

// NewIndexer starts the indexer's owning goroutine and returns a handle
// to it. The goroutine runs until ctx is cancelled.
func NewIndexer(ctx context.Context, blockSize int) *Indexer {
	idx := &Indexer{
		blockSize: blockSize,
		apply:     make(chan applyMsg),
		query:     make(chan queryMsg),
		log:       logrus.WithField("component", "kvindex.Indexer"),
		warn:      rate.NewLimiter(3),
	}
	go idx.run(ctx)
	return idx
}

func (idx *Indexer) run(ctx context.Context) {
	t := newTrie()
	for {
		select {
		case <-ctx.Done():
			idx.log.Debug("indexer shutting down")
			return
		case msg := <-idx.apply:
			msg.reply <- idx.applyLocked(t, msg.event)
		case msg := <-idx.query:
			hashes := HashBlocks(msg.tokens, idx.blockSize)
			msg.reply <- findMatchesResult{matches: t.matchLengths(hashes)}
		}
	}
}

// applyLocked mutates t per §3/§4.B. It is called only from run, so "t" is
// never touched by more than one goroutine at a time despite the name not
// saying so explicitly — there is no lock because there is only ever one
// caller.
func (idx *Indexer) applyLocked(t *trie, event RouterEvent) error {
	switch event.Data.Kind() {
	case "Stored":
		return idx.applyStored(t, event.WorkerID, event.Data.Stored)
	case "Removed":
		idx.applyRemoved(t, event.WorkerID, event.Data.Removed)
		return nil
	default:
		if idx.warn.Allow() {
			idx.log.Warnf("dropping event %d from worker %d: neither Stored nor Removed set", event.EventID, event.WorkerID)
		}
		return fmt.Errorf("%w: event carries neither Stored nor Removed", errs.ErrProtocolViolation)
	}
}

func (idx *Indexer) applyStored(t *trie, worker WorkerID, data *StoredData) error {
	if len(data.Blocks) == 0 {
		if idx.warn.Allow() {
			idx.log.Warnf("dropping Stored event from worker %d: zero blocks", worker)
		}
		return fmt.Errorf("%w: Stored event carries zero blocks", errs.ErrProtocolViolation)
	}

	hashes := make([]Hash, len(data.Blocks))
	handles := make([]BlockHandle, len(data.Blocks))
	for i, b := range data.Blocks {
		hashes[i] = Hash(b.TokensHash)
		handles[i] = BlockHandle{ExternalHash: b.ExternalHash}
	}
	t.insertPath(hashes, handles, worker)
	return nil
}

func (idx *Indexer) applyRemoved(t *trie, worker WorkerID, data *RemovedData) {
	if len(data.ExternalHashes) == 0 {
		return
	}
	set := make(map[uint64]struct{}, len(data.ExternalHashes))
	for _, h := range data.ExternalHashes {
		set[h] = struct{}{}
	}
	t.removeWorkerBlocks(worker, set)
}

// Apply mutates the trie with event. It blocks until the indexer's
// goroutine has processed the event, or ctx is cancelled first.
func (idx *Indexer) Apply(ctx context.Context, event RouterEvent) error {
	reply := make(chan error, 1)
	select {
	case idx.apply <- applyMsg{event: event, reply: reply}:
	case <-ctx.Done():
		return errs.ErrCancelled
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return errs.ErrCancelled
	}
}

// FindMatches tokenizes tokens into blocks and returns, per worker, the
// count of consecutive leading blocks that worker has resident. Workers
// with zero overlap are simply absent from the result.
func (idx *Indexer) FindMatches(ctx context.Context, tokens []uint32) (map[WorkerID]uint32, error) {
	reply := make(chan findMatchesResult, 1)
	select {
	case idx.query <- queryMsg{tokens: tokens, reply: reply}:
	case <-ctx.Done():
		return nil, errs.ErrCancelled
	}
	select {
	case res := <-reply:
		return res.matches, nil
	case <-ctx.Done():
		return nil, errs.ErrCancelled
	}
}
