package policy

import (
	"github.com/release-engineering/greenwave-sub000/models"
)

// Answer is the outcome of evaluating a single rule for a single subject
type Answer interface {
	IsSatisfied() bool
	ToJSON() map[string]any

	// isTestResult is false for answers that do not stand for a test result
	// (gating yaml handling, package exclusion).
	isTestResult() bool
}

// unsatisfied is implemented by answers that block a decision until waived
type unsatisfied interface {
	Answer
	target() (subject *models.Subject, testcase, scenario string)
	missing() bool
	// toWaived returns nil when a waiver removes the answer entirely
	toWaived(waiverID int64) Answer
}

// TestResult carries the fields shared by answers derived from a ResultsDB
// result. Data holds the distinct-latest keys of the result, each mapped to
// its first value or nil.
type TestResult struct {
	Subject  *models.Subject
	TestCase string
	Source   string
	ResultID int64
	Data     map[string]any
}

func (r TestResult) scenario() string {
	s, _ := r.Data["scenario"].(string)
	return s
}

func (r TestResult) json(kind string, legacyItem bool) map[string]any {
	out := map[string]any{
		"type":               kind,
		"testcase":           r.TestCase,
		"subject_type":       r.Subject.Type(),
		"subject_identifier": r.Subject.Identifier(),
		"source":             nullable(r.Source),
		"result_id":          r.ResultID,
	}
	if legacyItem {
		out["item"] = r.Subject.ToMap()
	}
	for k, v := range r.Data {
		out[k] = v
	}
	return out
}

// TestResultPassed is a passing latest result
type TestResultPassed struct {
	TestResult
}

func (a *TestResultPassed) IsSatisfied() bool  { return true }
func (a *TestResultPassed) isTestResult() bool { return true }

func (a *TestResultPassed) ToJSON() map[string]any {
	return a.json("test-result-passed", false)
}

// TestResultFailed is a latest result with an outcome outside every known set
type TestResultFailed struct {
	TestResult
}

func (a *TestResultFailed) IsSatisfied() bool  { return false }
func (a *TestResultFailed) isTestResult() bool { return true }
func (a *TestResultFailed) missing() bool      { return false }

func (a *TestResultFailed) ToJSON() map[string]any {
	return a.json("test-result-failed", true)
}

func (a *TestResultFailed) target() (*models.Subject, string, string) {
	return a.Subject, a.TestCase, a.scenario()
}

func (a *TestResultFailed) toWaived(waiverID int64) Answer {
	return &TestResultWaived{Waived: a, WaiverID: waiverID}
}

// TestResultErrored is a latest result whose test run itself failed
type TestResultErrored struct {
	TestResult
	ErrorReason string
}

func (a *TestResultErrored) IsSatisfied() bool  { return false }
func (a *TestResultErrored) isTestResult() bool { return true }
func (a *TestResultErrored) missing() bool      { return false }

func (a *TestResultErrored) ToJSON() map[string]any {
	out := a.json("test-result-errored", true)
	out["error_reason"] = nullable(a.ErrorReason)
	return out
}

func (a *TestResultErrored) target() (*models.Subject, string, string) {
	return a.Subject, a.TestCase, a.scenario()
}

func (a *TestResultErrored) toWaived(waiverID int64) Answer {
	return &TestResultWaived{Waived: a, WaiverID: waiverID}
}

// TestResultIncomplete is a latest result that is still queued or running.
// It serializes as a missing result so existing consumers keep working.
type TestResultIncomplete struct {
	TestResult
}

func (a *TestResultIncomplete) IsSatisfied() bool  { return false }
func (a *TestResultIncomplete) isTestResult() bool { return true }
func (a *TestResultIncomplete) missing() bool      { return true }

func (a *TestResultIncomplete) ToJSON() map[string]any {
	return a.json("test-result-missing", true)
}

func (a *TestResultIncomplete) target() (*models.Subject, string, string) {
	return a.Subject, a.TestCase, a.scenario()
}

func (a *TestResultIncomplete) toWaived(waiverID int64) Answer {
	return &TestResultWaived{Waived: a, WaiverID: waiverID}
}

// TestResultMissing means no result exists for a required test case
type TestResultMissing struct {
	Subject  *models.Subject
	TestCase string
	Scenario string
	Source   string
}

func (a *TestResultMissing) IsSatisfied() bool  { return false }
func (a *TestResultMissing) isTestResult() bool { return true }
func (a *TestResultMissing) missing() bool      { return true }

func (a *TestResultMissing) ToJSON() map[string]any {
	return map[string]any{
		"type":               "test-result-missing",
		"testcase":           a.TestCase,
		"subject_type":       a.Subject.Type(),
		"subject_identifier": a.Subject.Identifier(),
		"scenario":           nullable(a.Scenario),
		"source":             nullable(a.Source),
		"item":               a.Subject.ToMap(),
	}
}

func (a *TestResultMissing) target() (*models.Subject, string, string) {
	return a.Subject, a.TestCase, a.Scenario
}

func (a *TestResultMissing) toWaived(waiverID int64) Answer {
	return &TestResultWaived{Waived: a, WaiverID: waiverID}
}

// TestResultWaived wraps an unsatisfied test result answer with the waiver
// that satisfies it
type TestResultWaived struct {
	Waived   Answer
	WaiverID int64
}

func (a *TestResultWaived) IsSatisfied() bool  { return true }
func (a *TestResultWaived) isTestResult() bool { return true }

func (a *TestResultWaived) ToJSON() map[string]any {
	out := a.Waived.ToJSON()
	out["type"] = out["type"].(string) + "-waived"
	out["waiver_id"] = a.WaiverID
	delete(out, "item")
	return out
}

// FetchedGatingYaml records the remote policy document that was used
type FetchedGatingYaml struct {
	Subject *models.Subject
	Source  string
}

func (a *FetchedGatingYaml) IsSatisfied() bool  { return true }
func (a *FetchedGatingYaml) isTestResult() bool { return false }

func (a *FetchedGatingYaml) ToJSON() map[string]any {
	return map[string]any{
		"type":               "fetched-gating-yaml",
		"testcase":           "fetched-gating-yaml",
		"subject_type":       a.Subject.Type(),
		"subject_identifier": a.Subject.Identifier(),
		"source":             a.Source,
	}
}

// MissingGatingYaml means a required remote policy was not found at any
// candidate source
type MissingGatingYaml struct {
	Subject *models.Subject
	Sources []string
}

func (a *MissingGatingYaml) IsSatisfied() bool     { return false }
func (a *MissingGatingYaml) isTestResult() bool    { return false }
func (a *MissingGatingYaml) missing() bool         { return false }
func (a *MissingGatingYaml) toWaived(int64) Answer { return nil }

func (a *MissingGatingYaml) target() (*models.Subject, string, string) {
	return a.Subject, "missing-gating-yaml", ""
}

func (a *MissingGatingYaml) ToJSON() map[string]any {
	return map[string]any{
		"type":               "missing-gating-yaml",
		"testcase":           "missing-gating-yaml",
		"subject_type":       a.Subject.Type(),
		"subject_identifier": a.Subject.Identifier(),
		"scenario":           nil,
		"sources":            nonNilStrings(a.Sources),
	}
}

// InvalidGatingYaml means the fetched remote policy could not be parsed or
// failed validation
type InvalidGatingYaml struct {
	Subject  *models.Subject
	TestCase string
	Details  string
	Source   string
}

func (a *InvalidGatingYaml) IsSatisfied() bool     { return false }
func (a *InvalidGatingYaml) isTestResult() bool    { return false }
func (a *InvalidGatingYaml) missing() bool         { return false }
func (a *InvalidGatingYaml) toWaived(int64) Answer { return nil }

func (a *InvalidGatingYaml) target() (*models.Subject, string, string) {
	return a.Subject, a.TestCase, ""
}

func (a *InvalidGatingYaml) ToJSON() map[string]any {
	return map[string]any{
		"type":               "invalid-gating-yaml",
		"testcase":           a.TestCase,
		"subject_type":       a.Subject.Type(),
		"subject_identifier": a.Subject.Identifier(),
		"scenario":           nil,
		"source":             a.Source,
		"details":            a.Details,
	}
}

// FailedFetchGatingYaml means looking up or fetching the remote policy hit
// an infrastructure error
type FailedFetchGatingYaml struct {
	Subject *models.Subject
	Sources []string
	Error   string
}

func (a *FailedFetchGatingYaml) IsSatisfied() bool     { return false }
func (a *FailedFetchGatingYaml) isTestResult() bool    { return false }
func (a *FailedFetchGatingYaml) missing() bool         { return false }
func (a *FailedFetchGatingYaml) toWaived(int64) Answer { return nil }

func (a *FailedFetchGatingYaml) target() (*models.Subject, string, string) {
	return a.Subject, "failed-fetch-gating-yaml", ""
}

func (a *FailedFetchGatingYaml) ToJSON() map[string]any {
	return map[string]any{
		"type":               "failed-fetch-gating-yaml",
		"testcase":           "failed-fetch-gating-yaml",
		"subject_type":       a.Subject.Type(),
		"subject_identifier": a.Subject.Identifier(),
		"scenario":           nil,
		"sources":            nonNilStrings(a.Sources),
		"error":              a.Error,
	}
}

// ExcludedInPolicy reports that a policy skipped the subject's package
type ExcludedInPolicy struct {
	SubjectIdentifier string
	PolicyID          string
	Source            string
}

func (a *ExcludedInPolicy) IsSatisfied() bool  { return true }
func (a *ExcludedInPolicy) isTestResult() bool { return false }

func (a *ExcludedInPolicy) ToJSON() map[string]any {
	return map[string]any{
		"type":               "excluded",
		"subject_identifier": a.SubjectIdentifier,
		"policy":             nullable(a.PolicyID),
		"source":             nullable(a.Source),
	}
}

// UnsatisfiedTarget returns the subject and test case name a waiver has to
// name to waive a, or false if a cannot be waived.
func UnsatisfiedTarget(a Answer) (*models.Subject, string, bool) {
	u, ok := a.(unsatisfied)
	if !ok || a.IsSatisfied() {
		return nil, "", false
	}
	subject, testcase, _ := u.target()
	return subject, testcase, true
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilStrings(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
