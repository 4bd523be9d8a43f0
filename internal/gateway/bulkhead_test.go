package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangthobach/data-extraction/internal/common"
)

func TestBulkheadFailsFastAtCapacity(t *testing.T) {
	b := NewBulkhead("upload bulkhead", 2)

	require.NoError(t, b.Acquire())
	require.NoError(t, b.Acquire())

	err := b.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrOverloaded)
}

func TestBulkheadReleaseFreesSlot(t *testing.T) {
	b := NewBulkhead("sync bulkhead", 1)

	require.NoError(t, b.Acquire())
	require.Error(t, b.Acquire())

	b.Release()
	assert.NoError(t, b.Acquire())
}

func TestBulkheadZeroLimitDefaultsToOne(t *testing.T) {
	b := NewBulkhead("upload bulkhead", 0)

	require.NoError(t, b.Acquire())
	assert.Error(t, b.Acquire())
}
