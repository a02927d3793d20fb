package models

import "encoding/json"

// DecisionRequest represents the body of POST /api/v1/decision. Fields that
// accept more than one JSON shape are kept raw and interpreted by the
// decision service.
type DecisionRequest struct {
	DecisionContext   json.RawMessage   `json:"decision_context,omitempty"`
	Rules             []json.RawMessage `json:"rules,omitempty"`
	ProductVersion    string            `json:"product_version"`
	Subject           json.RawMessage   `json:"subject,omitempty"`
	SubjectType       *string           `json:"subject_type,omitempty"`
	SubjectIdentifier *string           `json:"subject_identifier,omitempty"`
	Verbose           json.RawMessage   `json:"verbose,omitempty"`
	IgnoreResult      []int64           `json:"ignore_result,omitempty"`
	IgnoreWaiver      []int64           `json:"ignore_waiver,omitempty"`
	When              string            `json:"when,omitempty"`
	ExcludedPackages  []string          `json:"excluded_packages,omitempty"`
	Packages          []string          `json:"packages,omitempty"`
}

// RuleSpec is an inline rule of an on-demand decision request
type RuleSpec struct {
	Type         string   `json:"type" validate:"required,oneof=PassingTestCaseRule RemoteRule"`
	TestCaseName string   `json:"test_case_name,omitempty" validate:"required_if=Type PassingTestCaseRule"`
	Scenario     *string  `json:"scenario,omitempty"`
	ValidSince   string   `json:"valid_since,omitempty"`
	ValidUntil   string   `json:"valid_until,omitempty"`
	Required     bool     `json:"required,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

// DecisionResponse is the decision returned to callers. ApplicablePolicies
// is reported only when the decision was made against configured policies;
// Results and Waivers only in verbose mode.
type DecisionResponse struct {
	PoliciesSatisfied       bool
	Summary                 string
	SatisfiedRequirements   []map[string]any
	UnsatisfiedRequirements []map[string]any
	ApplicablePolicies      []string
	Results                 []Result
	Waivers                 []Waiver

	IncludeApplicablePolicies bool
	Verbose                   bool
}

// MarshalJSON implements json.Marshaler
func (r *DecisionResponse) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"policies_satisfied":       r.PoliciesSatisfied,
		"summary":                  r.Summary,
		"satisfied_requirements":   nonNil(r.SatisfiedRequirements),
		"unsatisfied_requirements": nonNil(r.UnsatisfiedRequirements),
	}
	if r.IncludeApplicablePolicies {
		out["applicable_policies"] = nonNil(r.ApplicablePolicies)
	}
	if r.Verbose {
		out["results"] = nonNil(r.Results)
		out["waivers"] = nonNil(r.Waivers)
	}
	return json.Marshal(out)
}

// ToMap converts the response into a generic JSON object, which is the
// form compared and published by the listener.
func (r *DecisionResponse) ToMap() (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
