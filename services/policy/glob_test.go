package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"fedora-*", "fedora-26", true},
		{"fedora-*", "epel-7", false},
		{"*", "", true},
		{"rhel-?", "rhel-8", true},
		{"rhel-?", "rhel-10", false},
		{"python-*", "python-requests", true},
		{"*", "modules/nodejs", true},
		{"rhel-*", "rhel-9/beta", true},
		{"fedora-[!3]*", "fedora-26", true},
		{"fedora-[!3]*", "fedora-38", false},
		{"fedora-[^3]*", "fedora-^", true},
		{"fedora-[^3]*", "fedora-26", false},
		{"rhel-[7-9]", "rhel-8", true},
		{"rhel-[7-9]", "rhel-6", false},
		{"[]]", "]", true},
		{"[!]]", "a", true},
		{"rhel-[8", "rhel-[8", true},
		{"rhel-[8", "rhel-8", false},
		{`a\b`, `a\b`, true},
		{"pkg.+(x)", "pkg.+(x)", true},
		{"pkg.+(x)", "pkgg(x)", false},
		{"Fedora-*", "fedora-26", false},
		{"rhel-[9-7]", "rhel-8", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, matchGlob(tt.pattern, tt.value))
		})
	}
}

func TestPolicy_MatchesProductVersionNegatedSet(t *testing.T) {
	p := &Policy{ProductVersions: []string{"fedora-[!r]*"}}
	assert.True(t, p.MatchesProductVersion("fedora-26"))
	assert.False(t, p.MatchesProductVersion("fedora-rawhide"))
}
