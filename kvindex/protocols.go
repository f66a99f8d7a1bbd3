package kvindex

// WorkerID stably identifies a worker process for its lifetime.
type WorkerID int64

// BlockHandle is what the indexer remembers about one worker's residency
// of one block: only the worker's own opaque identifier for it, which is
// all that is needed to process a later Removed event. The token hash
// that got us to this trie node is implied by the path, not stored here.
type BlockHandle struct {
	ExternalHash uint64
}

// StoredBlock is one block entry inside a Stored event, as published by a
// worker after it writes a block into its KV cache.
type StoredBlock struct {
	ExternalHash uint64 `json:"external_hash"`
	TokensHash   uint64 `json:"tokens_hash"`
}

// StoredData is the payload of a Stored event: an ordered run of blocks
// extending a prefix, plus the worker's own opaque handle to whatever
// block preceded the first one here (carried for the worker's own
// bookkeeping; the indexer does not consult it — see the "Cyclic
// references and parent-child links" design note).
type StoredData struct {
	Blocks     []StoredBlock `json:"blocks"`
	ParentHash *uint64       `json:"parent_hash,omitempty"`
}

// RemovedData is the payload of a Removed event: the external hashes of
// whatever blocks the worker evicted.
type RemovedData struct {
	ExternalHashes []uint64 `json:"block_hashes"`
}

// EventData is the closed tagged union nested under a RouterEvent's
// "data" key: exactly one of Stored or Removed is expected to be non-nil.
// The Go type system cannot express this, because the wire format is a
// single JSON object with one of two possible keys rather than a
// discriminated variant with an explicit tag field; Kind picks the variant,
// and an event with both set is treated as Stored.
type EventData struct {
	Stored  *StoredData  `json:"Stored,omitempty"`
	Removed *RemovedData `json:"Removed,omitempty"`
}

// Kind reports which variant of the union is populated.
func (d EventData) Kind() string {
	switch {
	case d.Stored != nil:
		return "Stored"
	case d.Removed != nil:
		return "Removed"
	default:
		return "invalid"
	}
}

// RouterEvent is the event a worker publishes on its KV event subject,
// reporting that it stored or removed blocks.
type RouterEvent struct {
	WorkerID WorkerID  `json:"worker_id"`
	EventID  uint64    `json:"event_id"`
	Data     EventData `json:"data"`
}
