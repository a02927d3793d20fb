package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPolicies = `
--- !Policy
id: "taskotron_release_critical_tasks"
product_versions:
  - fedora-26
  - fedora-27
decision_context: bodhi_update_push_stable
subject_type: koji_build
excluded_packages:
  - python-*
rules:
  - !PassingTestCaseRule {test_case_name: dist.abicheck}
  - !PassingTestCaseRule {test_case_name: dist.rpmdeplint, scenario: x86_64, valid_since: "2024-01-01T00:00:00"}
--- !Policy
id: "gating_yaml"
product_versions: [fedora-*]
decision_contexts: [bodhi_update_push_testing, bodhi_update_push_stable]
subject_type: brew-build
rules:
  - !RemoteRule {required: true}
`

func TestParsePolicies(t *testing.T) {
	policies, err := ParsePolicies([]byte(validPolicies))
	require.NoError(t, err)
	require.Len(t, policies, 2)

	first := policies[0]
	assert.Equal(t, "taskotron_release_critical_tasks", first.ID)
	assert.Equal(t, []string{"fedora-26", "fedora-27"}, first.ProductVersions)
	assert.Equal(t, []string{"bodhi_update_push_stable"}, first.AllDecisionContexts())
	assert.Equal(t, []string{"python-*"}, first.ExcludedPackages)
	assert.Equal(t, KindLocal, first.Kind)
	require.Len(t, first.Rules, 2)

	rule, ok := first.Rules[1].(*PassingTestCaseRule)
	require.True(t, ok)
	assert.Equal(t, "dist.rpmdeplint", rule.TestCaseName)
	assert.Equal(t, "x86_64", rule.Scenario)
	require.NotNil(t, rule.ValidSince)
	assert.Equal(t, 2024, rule.ValidSince.Year())
	assert.Nil(t, rule.ValidUntil)

	second := policies[1]
	assert.Equal(t, []string{"bodhi_update_push_testing", "bodhi_update_push_stable"}, second.AllDecisionContexts())
	assert.Equal(t, &RemoteRule{Required: true}, second.Rules[0])
}

func TestParsePolicies_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "missing id",
			doc:     "--- !Policy\nproduct_versions: [fedora-26]\ndecision_context: dc\nsubject_type: koji_build\nrules: []\n",
			wantErr: "Policy 'untitled': Attribute 'id' is required",
		},
		{
			name:    "missing product versions",
			doc:     "--- !Policy\nid: p\ndecision_context: dc\nsubject_type: koji_build\nrules: []\n",
			wantErr: `Policy "p": Attribute 'product_versions' is required`,
		},
		{
			name:    "missing subject type",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\ndecision_context: dc\nrules: []\n",
			wantErr: `Policy "p": Attribute 'subject_type' is required`,
		},
		{
			name:    "missing rules",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\ndecision_context: dc\nsubject_type: koji_build\n",
			wantErr: `Policy "p": Attribute 'rules' is required`,
		},
		{
			name:    "no decision context",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\nsubject_type: koji_build\nrules: []\n",
			wantErr: `Policy "p": No decision contexts provided`,
		},
		{
			name:    "both decision context forms",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\ndecision_context: a\ndecision_contexts: [b]\nsubject_type: koji_build\nrules: []\n",
			wantErr: `Policy "p": Both properties "decision_contexts" and "decision_context" were set`,
		},
		{
			name:    "obsolete rule",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\ndecision_context: dc\nsubject_type: koji_build\nrules:\n  - !PackageSpecificBuild {test_case_name: t, repos: [a]}\n",
			wantErr: `Policy "p": Attribute 'rules': !PackageSpecificBuild is obsolete. Please use the "packages" allowlist instead.`,
		},
		{
			name:    "unknown rule",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\ndecision_context: dc\nsubject_type: koji_build\nrules:\n  - !Bogus {test_case_name: t}\n",
			wantErr: `Policy "p": Attribute 'rules': Expected list of Rule objects`,
		},
		{
			name:    "rule without test case",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\ndecision_context: dc\nsubject_type: koji_build\nrules:\n  - !PassingTestCaseRule {scenario: s}\n",
			wantErr: `Policy "p": Attribute 'rules': YAML object !PassingTestCaseRule: Attribute 'test_case_name' is required`,
		},
		{
			name:    "empty valid since",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\ndecision_context: dc\nsubject_type: koji_build\nrules:\n  - !PassingTestCaseRule {test_case_name: t, valid_since: ''}\n",
			wantErr: `YAML object !PassingTestCaseRule: Attribute 'valid_since': Could not parse string as date/time, got: `,
		},
		{
			name:    "empty valid until",
			doc:     "--- !Policy\nid: p\nproduct_versions: [fedora-26]\ndecision_context: dc\nsubject_type: koji_build\nrules:\n  - !PassingTestCaseRule {test_case_name: t, valid_until: \"\"}\n",
			wantErr: `YAML object !PassingTestCaseRule: Attribute 'valid_until': Could not parse string as date/time, got: `,
		},
		{
			name:    "malformed yaml",
			doc:     "--- !Policy\nid: [unclosed\n",
			wantErr: "YAML Parser Error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicies([]byte(tt.doc))
			require.Error(t, err)
			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseRemotePolicies(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		policies, err := ParseRemotePolicies([]byte("--- !Policy\ndecision_context: bodhi_update_push_stable\nrules:\n  - !PassingTestCaseRule {test_case_name: dist.depcheck}\n"))
		require.NoError(t, err)
		require.Len(t, policies, 1)
		assert.Equal(t, []string{"*"}, policies[0].ProductVersions)
		assert.Equal(t, DefaultRemoteSubjectType, policies[0].SubjectType)
		assert.Equal(t, KindRemote, policies[0].Kind)
	})

	t.Run("root tag is implied", func(t *testing.T) {
		docs := []string{
			"---\ndecision_context: bodhi_update_push_stable\nrules:\n  - !PassingTestCaseRule {test_case_name: some_test_case}\n",
			"--- !GatingYaml\ndecision_context: bodhi_update_push_stable\nrules:\n  - !PassingTestCaseRule {test_case_name: some_test_case}\n",
		}
		for _, doc := range docs {
			policies, err := ParseRemotePolicies([]byte(doc))
			require.NoError(t, err)
			require.Len(t, policies, 1)
			require.Len(t, policies[0].Rules, 1)
			assert.Equal(t, "some_test_case", policies[0].Rules[0].(*PassingTestCaseRule).TestCaseName)
		}
	})

	t.Run("root must be a mapping", func(t *testing.T) {
		_, err := ParseRemotePolicies([]byte("--- !Policy\n- decision_context: dc\n"))
		require.Error(t, err)
		assert.Equal(t, "Expected mapping for !Policy tagged object", err.Error())
	})

	t.Run("remote rule is rejected", func(t *testing.T) {
		_, err := ParseRemotePolicies([]byte("--- !Policy\ndecision_context: dc\nrules:\n  - !RemoteRule {}\n"))
		require.Error(t, err)
		assert.Equal(t, "Policy 'untitled': RemoteRule is not allowed in remote policies", err.Error())
	})
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(validPolicies), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"),
		[]byte("--- !Policy\nid: first\nproduct_versions: ['*']\ndecision_context: dc\nsubject_type: koji_build\nrules: []\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not yaml: ["), 0o600))

	policies, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, policies, 3)
	assert.Equal(t, "first", policies[0].ID)
	assert.Equal(t, "taskotron_release_critical_tasks", policies[1].ID)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.yaml"), []byte("--- !Policy\nid: broken\n"), 0o600))
	_, err = LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c.yaml")
}

func TestSelect(t *testing.T) {
	subject := kojiBuild(nvr)
	base := func(id string) *Policy {
		return &Policy{
			ID:              id,
			ProductVersions: []string{"fedora-*"},
			DecisionContext: "bodhi_update_push_stable",
			SubjectType:     "koji_build",
			Rules:           []Rule{&PassingTestCaseRule{TestCaseName: "T1"}},
		}
	}

	tests := []struct {
		name       string
		policy     func() *Policy
		dcs        []string
		pv         string
		applicable bool
		excluded   bool
	}{
		{name: "match", policy: func() *Policy { return base("p") }, dcs: []string{"bodhi_update_push_stable"}, pv: "fedora-38", applicable: true},
		{name: "empty decision contexts match everything", policy: func() *Policy { return base("p") }, pv: "fedora-38", applicable: true},
		{name: "other decision context", policy: func() *Policy { return base("p") }, dcs: []string{"other"}, pv: "fedora-38"},
		{name: "product version glob", policy: func() *Policy { return base("p") }, dcs: []string{"bodhi_update_push_stable"}, pv: "epel-8"},
		{
			name: "subject type alias",
			policy: func() *Policy {
				p := base("p")
				p.SubjectType = "brew-build"
				return p
			},
			pv:         "fedora-38",
			applicable: true,
		},
		{
			name: "other subject type",
			policy: func() *Policy {
				p := base("p")
				p.SubjectType = "compose"
				return p
			},
			pv: "fedora-38",
		},
		{
			name: "excluded package",
			policy: func() *Policy {
				p := base("p")
				p.ExcludedPackages = []string{"net*"}
				return p
			},
			pv:       "fedora-38",
			excluded: true,
		},
		{
			name: "not in packages allowlist",
			policy: func() *Policy {
				p := base("p")
				p.Packages = []string{"python-*"}
				return p
			},
			pv: "fedora-38",
		},
		{
			name: "in packages allowlist",
			policy: func() *Policy {
				p := base("p")
				p.Packages = []string{"nethack"}
				return p
			},
			pv:         "fedora-38",
			applicable: true,
		},
		{
			name:       "on-demand policy takes any subject type",
			policy:     func() *Policy { return NewOnDemandPolicy("fedora-38", nil, nil, nil) },
			pv:         "fedora-38",
			applicable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Select([]*Policy{tt.policy()}, tt.dcs, tt.pv, subject)
			assert.Equal(t, tt.applicable, len(sel.Applicable) == 1)
			assert.Equal(t, tt.excluded, len(sel.Excluded) == 1)
			assert.Equal(t, !tt.applicable && !tt.excluded, sel.Empty())
		})
	}
}

func TestSelection_ExcludedAnswers(t *testing.T) {
	subject := kojiBuild(nvr)
	p := &Policy{ID: "p", ProductVersions: []string{"*"}, DecisionContext: "dc", SubjectType: "koji_build", ExcludedPackages: []string{"nethack"}}

	sel := Select([]*Policy{p}, nil, "", subject)
	answers := sel.ExcludedAnswers(subject)
	require.Len(t, answers, 1)
	assert.True(t, answers[0].IsSatisfied())
	assert.Equal(t, map[string]any{
		"type":               "excluded",
		"subject_identifier": nvr,
		"policy":             "p",
		"source":             nil,
	}, answers[0].ToJSON())
	assert.Equal(t, "no tests are required", Summarize(answers))
}

func TestEvaluator_ApplicablePairs(t *testing.T) {
	ctx := context.Background()
	subject := kojiBuild(nvr)
	policies := []*Policy{
		{
			ID: "p1", ProductVersions: []string{"fedora-39", "fedora-38"}, DecisionContext: "b_context", SubjectType: "koji_build",
			Rules: []Rule{&PassingTestCaseRule{TestCaseName: "T1"}},
		},
		{
			ID: "p2", ProductVersions: []string{"fedora-*"}, DecisionContext: "a_context", SubjectType: "koji_build",
			Rules: []Rule{&PassingTestCaseRule{TestCaseName: "T2"}},
		},
		{
			ID: "p3", ProductVersions: []string{"fedora-*"}, DecisionContexts: []string{"b_context", "c_context"}, SubjectType: "koji_build",
			Rules: []Rule{&RemoteRule{}},
		},
		{
			ID: "compose", ProductVersions: []string{"fedora-*"}, DecisionContext: "d_context", SubjectType: "compose",
			Rules: []Rule{&PassingTestCaseRule{TestCaseName: "T1"}},
		},
	}

	t.Run("by test case", func(t *testing.T) {
		ev := newTestEvaluator(DefaultSettings())
		pairs := ev.ApplicablePairs(ctx, policies, MatchAttributes{Subject: subject, Testcase: "T1", MatchAnyRemoteRule: true})
		assert.Equal(t, []Pair{
			{DecisionContext: "b_context", ProductVersion: "fedora-*"},
			{DecisionContext: "b_context", ProductVersion: "fedora-38"},
			{DecisionContext: "b_context", ProductVersion: "fedora-39"},
			{DecisionContext: "c_context", ProductVersion: "fedora-*"},
		}, pairs)
	})

	t.Run("by product version", func(t *testing.T) {
		ev := newTestEvaluator(DefaultSettings())
		pairs := ev.ApplicablePairs(ctx, policies, MatchAttributes{Subject: subject, ProductVersion: "fedora-38", Testcase: "T2", MatchAnyRemoteRule: true})
		assert.Equal(t, []Pair{
			{DecisionContext: "a_context", ProductVersion: "fedora-38"},
			{DecisionContext: "b_context", ProductVersion: "fedora-38"},
			{DecisionContext: "c_context", ProductVersion: "fedora-38"},
		}, pairs)
	})

	t.Run("remote rule resolved", func(t *testing.T) {
		ev := newTestEvaluator(remoteSettings())
		ev.builds.On("SourceCoordinates", context.Background(), nvr).
			Return(models.SCM{Namespace: "rpms", Name: "nethack", Revision: "abc"}, nil)
		ev.fetcher.On("Fetch", context.Background(), "https://src.example.com/rpms/nethack/raw/abc/f/gating.yaml").
			Return([]byte("--- !Policy\ndecision_context: c_context\nrules:\n  - !PassingTestCaseRule {test_case_name: T9}\n"), true, nil)

		pairs := ev.ApplicablePairs(ctx, policies[2:3], MatchAttributes{Subject: subject, ProductVersion: "fedora-38", Testcase: "T9"})
		assert.Len(t, pairs, 2)

		pairs = ev.ApplicablePairs(ctx, policies[2:3], MatchAttributes{Subject: subject, ProductVersion: "fedora-38", Testcase: "T1"})
		assert.Empty(t, pairs)
		ev.fetcher.AssertNumberOfCalls(t, "Fetch", 1)
	})
}

func TestWaive(t *testing.T) {
	subject := kojiBuild(nvr)
	s1, s2, empty := "s1", "s2", ""
	missing := func() Answer {
		return &TestResultMissing{Subject: subject, TestCase: "T1", Scenario: "s1"}
	}
	waiver := func(subjectType string, scenario *string) models.Waiver {
		return models.Waiver{ID: 7, SubjectType: subjectType, SubjectIdentifier: nvr, Testcase: "T1", Scenario: scenario, Waived: true}
	}

	tests := []struct {
		name   string
		waiver models.Waiver
		waived bool
	}{
		{name: "no scenario", waiver: waiver("koji_build", nil), waived: true},
		{name: "empty scenario", waiver: waiver("koji_build", &empty), waived: true},
		{name: "same scenario", waiver: waiver("koji_build", &s1), waived: true},
		{name: "other scenario", waiver: waiver("koji_build", &s2), waived: false},
		{name: "subject type alias", waiver: waiver("brew-build", nil), waived: true},
		{name: "other subject type", waiver: waiver("compose", nil), waived: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := Waive([]Answer{missing()}, []models.Waiver{tt.waiver})
			require.Len(t, answers, 1)
			assert.Equal(t, tt.waived, answers[0].IsSatisfied())
			if tt.waived {
				j := answers[0].ToJSON()
				assert.Equal(t, "test-result-missing-waived", j["type"])
				assert.Equal(t, "s1", j["scenario"])
			}
		})
	}

	t.Run("gating yaml answers are removed", func(t *testing.T) {
		answers := []Answer{
			&MissingGatingYaml{Subject: subject, Sources: []string{"https://x"}},
			&TestResultPassed{TestResult: TestResult{Subject: subject, TestCase: "T2"}},
		}
		waived := Waive(answers, []models.Waiver{{ID: 1, SubjectType: "koji_build", SubjectIdentifier: nvr, Testcase: "missing-gating-yaml", Waived: true}})
		assert.Equal(t, []string{"test-result-passed"}, answerTypes(waived))
	})

	t.Run("satisfied answers are kept", func(t *testing.T) {
		passed := &TestResultPassed{TestResult: TestResult{Subject: subject, TestCase: "T1"}}
		waived := Waive([]Answer{passed}, []models.Waiver{waiver("koji_build", nil)})
		assert.Equal(t, []Answer{passed}, waived)
	})
}

func TestSummarize(t *testing.T) {
	subject := kojiBuild(nvr)
	passed := &TestResultPassed{TestResult: TestResult{Subject: subject, TestCase: "T1"}}
	failed := &TestResultFailed{TestResult: TestResult{Subject: subject, TestCase: "T2"}}
	missing := &TestResultMissing{Subject: subject, TestCase: "T3"}
	incomplete := &TestResultIncomplete{TestResult: TestResult{Subject: subject, TestCase: "T4"}}
	fetched := &FetchedGatingYaml{Subject: subject, Source: "https://x"}
	excluded := &ExcludedInPolicy{SubjectIdentifier: nvr, PolicyID: "p"}
	missingYaml := &MissingGatingYaml{Subject: subject}

	tests := []struct {
		name    string
		answers []Answer
		want    string
	}{
		{name: "nothing", answers: nil, want: "no tests are required"},
		{name: "only informational", answers: []Answer{fetched, excluded}, want: "no tests are required"},
		{name: "all passed", answers: []Answer{passed, fetched}, want: "All required tests passed"},
		{name: "waived", answers: []Answer{passed, &TestResultWaived{Waived: failed, WaiverID: 1}}, want: "All required tests passed"},
		{name: "failed and missing", answers: []Answer{failed, missing}, want: "1 of 2 required tests failed, 1 result missing"},
		{name: "failed and many missing", answers: []Answer{failed, missing, incomplete, passed}, want: "1 of 4 required tests failed, 2 results missing"},
		{name: "only missing", answers: []Answer{missing, incomplete}, want: "2 of 2 required test results missing"},
		{name: "gating yaml counts as failed", answers: []Answer{missingYaml, passed}, want: "1 of 2 required tests failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.answers))
		})
	}
}

func TestAnswerJSON(t *testing.T) {
	subject := kojiBuild(nvr)

	t.Run("missing", func(t *testing.T) {
		a := &TestResultMissing{Subject: subject, TestCase: "T1"}
		assert.Equal(t, map[string]any{
			"type":               "test-result-missing",
			"testcase":           "T1",
			"subject_type":       "koji_build",
			"subject_identifier": nvr,
			"scenario":           nil,
			"source":             nil,
			"item":               map[string]string{"type": "koji_build", "item": nvr},
		}, a.ToJSON())
	})

	t.Run("incomplete serializes as missing", func(t *testing.T) {
		a := &TestResultIncomplete{TestResult: TestResult{Subject: subject, TestCase: "T1", ResultID: 3, Data: map[string]any{"scenario": nil}}}
		j := a.ToJSON()
		assert.Equal(t, "test-result-missing", j["type"])
		assert.Equal(t, int64(3), j["result_id"])
	})

	t.Run("passed has no item", func(t *testing.T) {
		a := &TestResultPassed{TestResult: TestResult{Subject: subject, TestCase: "T1", Source: "https://x"}}
		j := a.ToJSON()
		assert.NotContains(t, j, "item")
		assert.Equal(t, "https://x", j["source"])
	})

	t.Run("unsatisfied target", func(t *testing.T) {
		s, testcase, ok := UnsatisfiedTarget(&FailedFetchGatingYaml{Subject: subject, Error: "boom"})
		assert.True(t, ok)
		assert.Equal(t, subject, s)
		assert.Equal(t, "failed-fetch-gating-yaml", testcase)

		_, _, ok = UnsatisfiedTarget(&TestResultPassed{TestResult: TestResult{Subject: subject}})
		assert.False(t, ok)
	})
}

func TestPolicy_ToJSON(t *testing.T) {
	p := &Policy{
		ID:              "p",
		ProductVersions: []string{"fedora-*"},
		DecisionContext: "dc",
		SubjectType:     "koji_build",
		Rules:           []Rule{&PassingTestCaseRule{TestCaseName: "T1"}, &RemoteRule{Required: true}},
	}

	j := p.ToJSON()
	assert.Equal(t, "dc", j["decision_context"])
	assert.Equal(t, []string{}, j["decision_contexts"])
	assert.Equal(t, []map[string]any{
		{"rule": "PassingTestCaseRule", "test_case_name": "T1", "scenario": nil},
		{"rule": "RemoteRule", "required": true, "sources": []string{}},
	}, j["rules"])
	assert.Nil(t, j["relevance_key"])
}
