package hashx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 2.0, "a": 1.0, "nested": map[string]any{"y": "v", "x": "u"}}
	b := map[string]any{"nested": map[string]any{"x": "u", "y": "v"}, "a": 1.0, "b": 2.0}

	ca, err := CanonicalJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalJSON(b)
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
}

func TestCanonicalJSONStructsMatchMaps(t *testing.T) {
	type payload struct {
		TxnID string `json:"txn_id"`
		Count int    `json:"count"`
	}

	fromStruct, err := CanonicalJSON(payload{TxnID: "t1", Count: 3})
	require.NoError(t, err)
	fromMap, err := CanonicalJSON(map[string]any{"count": 3.0, "txn_id": "t1"})
	require.NoError(t, err)

	assert.Equal(t, fromStruct, fromMap)
}

func TestSumCanonicalDeterministic(t *testing.T) {
	v := map[string]any{"k": "v", "n": 7.0}

	h1, err := SumCanonical(v)
	require.NoError(t, err)
	h2, err := SumCanonical(v)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestSumCanonicalSensitiveToValues(t *testing.T) {
	h1, err := SumCanonical(map[string]any{"k": "v"})
	require.NoError(t, err)
	h2, err := SumCanonical(map[string]any{"k": "w"})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestIdentifier(t *testing.T) {
	assert.Empty(t, Identifier("", "salt"))
	assert.Equal(t, Identifier("10.0.0.1", "salt"), Identifier("10.0.0.1", "salt"))
	assert.NotEqual(t, Identifier("10.0.0.1", "salt"), Identifier("10.0.0.1", "pepper"))
	assert.NotContains(t, Identifier("10.0.0.1", "salt"), "10.0.0.1")
}
