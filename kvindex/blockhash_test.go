package kvindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHashBlock_Deterministic verifies testable property 1: hashing the
// same token block twice yields the same hash.
func TestHashBlock_Deterministic(t *testing.T) {
	tokens := []uint32{1, 2, 3, 4}
	h1, err := HashBlock(tokens, 4)
	require.NoError(t, err)
	h2, err := HashBlock(tokens, 4)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashBlock_DifferentTokensDifferentHash(t *testing.T) {
	a, err := HashBlock([]uint32{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	b, err := HashBlock([]uint32{5, 6, 7, 8}, 4)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashBlock_WrongLengthErrors(t *testing.T) {
	_, err := HashBlock([]uint32{1, 2, 3}, 4)
	require.Error(t, err)
}

// TestHashBlocks_SharedPrefixSameHashes mirrors the teacher's hierarchical
// hashing test: two sequences sharing a prefix produce identical hashes
// for the shared blocks and a different hash for the diverging one.
func TestHashBlocks_SharedPrefixSameHashes(t *testing.T) {
	a := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	b := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 99, 98, 97, 96}

	hashesA := HashBlocks(a, 4)
	hashesB := HashBlocks(b, 4)

	require.Len(t, hashesA, 3)
	require.Len(t, hashesB, 3)
	assert.Equal(t, hashesA[0], hashesB[0])
	assert.Equal(t, hashesA[1], hashesB[1])
	assert.NotEqual(t, hashesA[2], hashesB[2])
}

// TestHashBlocks_PartialTailIgnored verifies "only full blocks are
// indexed": a trailing partial block contributes no hash.
func TestHashBlocks_PartialTailIgnored(t *testing.T) {
	tokens := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9} // 2 full blocks of 4, tail of 1.
	hashes := HashBlocks(tokens, 4)
	assert.Len(t, hashes, 2)
}

func TestHashBlocks_ShorterThanOneBlockYieldsNone(t *testing.T) {
	tokens := []uint32{1, 2, 3}
	hashes := HashBlocks(tokens, 4)
	assert.Len(t, hashes, 0)
}
