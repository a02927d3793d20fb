package decision

import (
	"testing"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decisionMap(t *testing.T, summary string, unsatisfied ...map[string]any) map[string]any {
	t.Helper()
	resp := &models.DecisionResponse{
		PoliciesSatisfied:         len(unsatisfied) == 0,
		Summary:                   summary,
		SatisfiedRequirements:     []map[string]any{{"type": "test-result-passed", "testcase": "T2", "result_id": 2}},
		UnsatisfiedRequirements:   unsatisfied,
		ApplicablePolicies:        []string{"pkga-policy"},
		IncludeApplicablePolicies: true,
	}
	out, err := resp.ToMap()
	require.NoError(t, err)
	return out
}

func TestUnchanged(t *testing.T) {
	failed := func(resultID int) map[string]any {
		return map[string]any{"type": "test-result-failed", "testcase": "T1", "result_id": resultID}
	}

	tests := []struct {
		name   string
		before map[string]any
		after  map[string]any
		want   bool
	}{
		{
			name:   "identical",
			before: decisionMap(t, "1 of 2 required tests failed", failed(1)),
			after:  decisionMap(t, "1 of 2 required tests failed", failed(1)),
			want:   true,
		},
		{
			name:   "only result ids differ",
			before: decisionMap(t, "1 of 2 required tests failed", failed(1)),
			after:  decisionMap(t, "1 of 2 required tests failed", failed(7)),
			want:   true,
		},
		{
			name:   "requirement resolved",
			before: decisionMap(t, "1 of 2 required tests failed", failed(1)),
			after:  decisionMap(t, "All required tests passed"),
			want:   false,
		},
		{
			name:   "requirement type changed",
			before: decisionMap(t, "1 of 2 required tests failed", failed(1)),
			after: decisionMap(t, "1 of 2 required tests failed",
				map[string]any{"type": "test-result-errored", "testcase": "T1", "result_id": 1}),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unchanged(tt.before, tt.after)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnchanged_DoesNotModifyInput(t *testing.T) {
	before := decisionMap(t, "All required tests passed")
	_, err := Unchanged(before, before)
	require.NoError(t, err)

	reqs := before["satisfied_requirements"].([]any)
	assert.Contains(t, reqs[0], "result_id")
}

func TestFingerprint(t *testing.T) {
	a := map[string]any{"summary": "ok", "policies_satisfied": true}
	b := map[string]any{"policies_satisfied": true, "summary": "ok"}

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	fc, err := Fingerprint(map[string]any{"summary": "changed", "policies_satisfied": true})
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}
