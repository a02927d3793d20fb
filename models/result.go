package models

import (
	"strings"
	"time"
)

// SubmitTimeLayout is the timestamp format used by ResultsDB and WaiverDB
const SubmitTimeLayout = "2006-01-02T15:04:05.000000"

// Testcase is the ResultsDB test case reference embedded in a result
type Testcase struct {
	Name   string `json:"name" cbor:"name"`
	RefURL string `json:"ref_url,omitempty" cbor:"ref_url,omitempty"`
	Href   string `json:"href,omitempty" cbor:"href,omitempty"`
}

// Result represents a single ResultsDB test result
type Result struct {
	ID          int64               `json:"id" cbor:"id"`
	Testcase    Testcase            `json:"testcase" cbor:"testcase"`
	Outcome     string              `json:"outcome" cbor:"outcome"`
	Data        map[string][]string `json:"data" cbor:"data"`
	SubmitTime  string              `json:"submit_time" cbor:"submit_time"`
	Note        string              `json:"note,omitempty" cbor:"note,omitempty"`
	RefURL      string              `json:"ref_url,omitempty" cbor:"ref_url,omitempty"`
	Href        string              `json:"href,omitempty" cbor:"href,omitempty"`
	Groups      []string            `json:"groups,omitempty" cbor:"groups,omitempty"`
	ErrorReason string              `json:"error_reason,omitempty" cbor:"error_reason,omitempty"`
}

// DataValue returns the first value recorded under key, if any
func (r *Result) DataValue(key string) (string, bool) {
	values := r.Data[key]
	if len(values) == 0 || values[0] == "" {
		return "", false
	}
	return values[0], true
}

// HasScenario reports whether the result was recorded for scenario
func (r *Result) HasScenario(scenario string) bool {
	for _, s := range r.Data["scenario"] {
		if s == scenario {
			return true
		}
	}
	return false
}

// SubmittedBefore reports whether the result was submitted strictly before t
func (r *Result) SubmittedBefore(t time.Time) bool {
	submitted, err := ParseTimestamp(r.SubmitTime)
	if err != nil {
		return false
	}
	return submitted.Before(t)
}

// Waiver represents a WaiverDB waiver
type Waiver struct {
	ID                int64   `json:"id"`
	SubjectType       string  `json:"subject_type"`
	SubjectIdentifier string  `json:"subject_identifier"`
	Testcase          string  `json:"testcase"`
	ProductVersion    string  `json:"product_version"`
	Scenario          *string `json:"scenario,omitempty"`
	Waived            bool    `json:"waived"`
	Username          string  `json:"username,omitempty"`
	ProxiedBy         string  `json:"proxied_by,omitempty"`
	Comment           string  `json:"comment,omitempty"`
	Timestamp         string  `json:"timestamp,omitempty"`
}

// WaiverFilter is one entry of a WaiverDB "+filtered" query
type WaiverFilter struct {
	SubjectType       string `json:"subject_type"`
	SubjectIdentifier string `json:"subject_identifier"`
	ProductVersion    string `json:"product_version"`
	Testcase          string `json:"testcase,omitempty"`
	Since             string `json:"since,omitempty"`
}

// Build holds the Koji build attributes used during evaluation
type Build struct {
	NVR          string `json:"nvr" cbor:"nvr"`
	TaskID       int64  `json:"task_id,omitempty" cbor:"task_id,omitempty"`
	Source       string `json:"source,omitempty" cbor:"source,omitempty"`
	CreationTime string `json:"creation_time,omitempty" cbor:"creation_time,omitempty"`
}

// SCM holds the source-control coordinates of a build
type SCM struct {
	Namespace string
	Name      string
	Revision  string
}

// ParseTimestamp parses ResultsDB/WaiverDB and ISO 8601 timestamps. Values
// without a zone are treated as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// FormatTimestamp formats t the way ResultsDB expects in "since" filters
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(SubmitTimeLayout)
}
