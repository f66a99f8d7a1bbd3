package kvindex

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// DefaultBlockSize is the default number of tokens per KV cache block
// (see BLOCK_SIZE in the wire contract). A deployment may configure another
// size, but workers and the indexer must all use the same one.
const DefaultBlockSize = 64

// Hash is a 64-bit, deterministic digest of a token block's contents.
// Equal token sequences always hash to the same Hash, on any worker or on
// the indexer, for as long as BlockSize is held constant cluster-wide.
type Hash uint64

// HashBlock hashes a single full block of tokens. It returns an error if
// tokens is not exactly blockSize long — partial blocks are never hashed,
// per the "only full blocks are indexed" rule.
func HashBlock(tokens []uint32, blockSize int) (Hash, error) {
	if len(tokens) != blockSize {
		return 0, fmt.Errorf("kvindex: block has %d tokens, want %d", len(tokens), blockSize)
	}
	buf := make([]byte, 4*len(tokens))
	for i, tok := range tokens {
		binary.LittleEndian.PutUint32(buf[i*4:], tok)
	}
	return Hash(xxhash.Sum64(buf)), nil
}

// HashBlocks splits tokens into the maximal run of contiguous, full blocks
// of blockSize and hashes each independently. A trailing partial block, if
// any, is silently ignored — callers that need to know whether tokens had
// a partial tail can compare len(tokens)/blockSize against the length of
// the returned slice.
func HashBlocks(tokens []uint32, blockSize int) []Hash {
	n := len(tokens) / blockSize
	if n == 0 {
		return nil
	}
	hashes := make([]Hash, n)
	for i := 0; i < n; i++ {
		block := tokens[i*blockSize : (i+1)*blockSize]
		h, err := HashBlock(block, blockSize)
		if err != nil {
			// unreachable: block is always exactly blockSize long here.
			panic(err)
		}
		hashes[i] = h
	}
	return hashes
}
