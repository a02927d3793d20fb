package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := parseFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, ".env", opts.envFile)
		assert.Empty(t, opts.policiesDir)
		assert.False(t, opts.checkPolicies)
	})

	t.Run("overrides", func(t *testing.T) {
		opts, err := parseFlags([]string{
			"--env-file", "/etc/greenwave/env",
			"--policies-dir=/srv/policies",
			"--subject-types-dir", "/srv/subject_types",
			"--check-policies",
		})
		require.NoError(t, err)
		assert.Equal(t, "/etc/greenwave/env", opts.envFile)
		assert.Equal(t, "/srv/policies", opts.policiesDir)
		assert.Equal(t, "/srv/subject_types", opts.subjectTypesDir)
		assert.True(t, opts.checkPolicies)
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := parseFlags([]string{"--listen"})
		assert.Error(t, err)
	})

	t.Run("positional arguments", func(t *testing.T) {
		_, err := parseFlags([]string{"serve"})
		assert.Error(t, err)
	})
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"--version"}, &out))
	assert.Equal(t, "greenwave dev\n", out.String())
}

func TestRun_CheckPolicies(t *testing.T) {
	subjectTypesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(subjectTypesDir, "koji_build.yaml"), []byte(`
--- !SubjectType
id: koji_build
is_koji_build: true
is_nvr: true
`), 0o644))

	t.Run("valid", func(t *testing.T) {
		policiesDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(policiesDir, "fedora.yaml"), []byte(`
--- !Policy
id: taskotron_release_critical_tasks
product_versions: [fedora-*]
decision_context: bodhi_update_push_stable
subject_type: koji_build
rules:
  - !PassingTestCaseRule {test_case_name: dist.abicheck}
`), 0o644))

		var out bytes.Buffer
		err := run([]string{
			"--env-file", filepath.Join(t.TempDir(), "missing.env"),
			"--policies-dir", policiesDir,
			"--subject-types-dir", subjectTypesDir,
			"--check-policies",
		}, &out)
		require.NoError(t, err)
		assert.Equal(t, "1 subject types and 1 policies are valid\n", out.String())
	})

	t.Run("invalid", func(t *testing.T) {
		policiesDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(policiesDir, "broken.yaml"), []byte(`
--- !Policy
id: broken
subject_type: koji_build
rules: []
`), 0o644))

		var out bytes.Buffer
		err := run([]string{
			"--env-file", filepath.Join(t.TempDir(), "missing.env"),
			"--policies-dir", policiesDir,
			"--subject-types-dir", subjectTypesDir,
			"--check-policies",
		}, &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid policies")
		assert.Empty(t, out.String())
	})
}
