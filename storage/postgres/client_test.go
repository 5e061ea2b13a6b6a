package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeLocalHashIsDeterministic(t *testing.T) {
	h1 := ComputeLocalHash("id-1", 1, 100, "USD->BRL", "sig-1", "prevhash")
	h2 := ComputeLocalHash("id-1", 1, 100, "USD->BRL", "sig-1", "prevhash")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestComputeLocalHashChangesWithPreviousHash(t *testing.T) {
	h1 := ComputeLocalHash("id-1", 1, 100, "USD->BRL", "sig-1", "prevhash-a")
	h2 := ComputeLocalHash("id-1", 1, 100, "USD->BRL", "sig-1", "prevhash-b")
	assert.NotEqual(t, h1, h2)
}

func TestComputeLocalHashChangesWithSequenceNumber(t *testing.T) {
	h1 := ComputeLocalHash("id-1", 1, 100, "USD->BRL", "sig-1", "prevhash")
	h2 := ComputeLocalHash("id-1", 2, 100, "USD->BRL", "sig-1", "prevhash")
	assert.NotEqual(t, h1, h2)
}

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Greater(t, cfg.MaxOpenConns, 0)
}
