package dbtypes

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDArrayRoundTrip(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	value, err := UUIDArray{a, b}.Value()
	require.NoError(t, err)

	var parsed UUIDArray
	require.NoError(t, parsed.Scan(value))
	assert.True(t, parsed.Contains(a))
	assert.True(t, parsed.Contains(b))
	assert.False(t, parsed.Contains(uuid.New()))
}

func TestUUIDArrayScanEmpty(t *testing.T) {
	var parsed UUIDArray
	require.NoError(t, parsed.Scan([]byte("{}")))
	assert.Empty(t, parsed)

	require.NoError(t, parsed.Scan(nil))
	assert.Empty(t, parsed)

	assert.Error(t, parsed.Scan(42))
}
