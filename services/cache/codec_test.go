package cache

import (
	"testing"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_Results(t *testing.T) {
	results := []models.Result{
		{
			ID:         1001,
			Testcase:   models.Testcase{Name: "dist.rpmdeplint"},
			Outcome:    "PASSED",
			Data:       map[string][]string{"item": {"nethack-1.2.3-1.fc38"}, "type": {"koji_build"}},
			SubmitTime: "2024-03-01T10:00:00.000000",
		},
	}

	data, err := Encode(results)
	require.NoError(t, err)

	var decoded []models.Result
	require.NoError(t, Decode(data, &decoded))
	assert.Equal(t, results, decoded)
}

func TestEncode_Deterministic(t *testing.T) {
	value := map[string]any{"b": 1, "a": 2, "c": []string{"x"}}

	first, err := Encode(value)
	require.NoError(t, err)
	second, err := Encode(value)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecode_Corrupted(t *testing.T) {
	var v []models.Result
	err := Decode([]byte("not zstd"), &v)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "zstd decompress")
}
