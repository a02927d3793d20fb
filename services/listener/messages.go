package listener

import (
	"strconv"

	"github.com/release-engineering/greenwave-sub000/services"
)

// ResultsDBMessage is a new result announcement. Both the current format
// (testcase, data, submit_time) and the legacy one (task, result) are
// accepted.
type ResultsDBMessage struct {
	Testcase   *namedRef      `json:"testcase,omitempty"`
	Task       map[string]any `json:"task,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Outcome    string         `json:"outcome,omitempty"`
	SubmitTime string         `json:"submit_time,omitempty"`
	Result     *legacyResult  `json:"result,omitempty"`
}

type namedRef struct {
	Name string `json:"name"`
}

type legacyResult struct {
	SubmitTime string `json:"submit_time"`
}

// TestcaseName returns the announced test case
func (m *ResultsDBMessage) TestcaseName() (string, error) {
	if m.Testcase != nil && m.Testcase.Name != "" {
		return m.Testcase.Name, nil
	}
	if name, ok := m.Task["name"].(string); ok && name != "" {
		return name, nil
	}
	return "", services.NewValidationError("Message has no test case name")
}

// SubmittedAt returns the submit time of the announced result
func (m *ResultsDBMessage) SubmittedAt() (string, error) {
	if m.SubmitTime != "" {
		return m.SubmitTime, nil
	}
	if m.Result != nil && m.Result.SubmitTime != "" {
		return m.Result.SubmitTime, nil
	}
	return "", services.NewValidationError("Message has no submit time")
}

// SubjectData returns the result data describing the subject, with
// single-element lists unpacked. The test case name of legacy messages is
// not part of it.
func (m *ResultsDBMessage) SubjectData() map[string]any {
	data := m.Data
	legacy := false
	if data == nil {
		data = m.Task
		legacy = true
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if legacy && k == "name" {
			continue
		}
		out[k] = unpack(v)
	}
	return out
}

// BrewTaskID returns the Brew task id recorded with the result, or zero
func (m *ResultsDBMessage) BrewTaskID() int64 {
	if m.Data == nil {
		return 0
	}
	switch v := unpack(m.Data["brew_task_id"]).(type) {
	case float64:
		return int64(v)
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return id
	}
	return 0
}

// HasComposeID reports whether the result data names a compose
func (m *ResultsDBMessage) HasComposeID() bool {
	_, ok := m.SubjectData()["productmd.compose.id"]
	return ok
}

// WaiverDBMessage is a new waiver announcement
type WaiverDBMessage struct {
	ID                int64  `json:"id"`
	SubjectType       string `json:"subject_type" validate:"required"`
	SubjectIdentifier string `json:"subject_identifier" validate:"required"`
	Testcase          string `json:"testcase" validate:"required"`
	ProductVersion    string `json:"product_version" validate:"required"`
	Timestamp         string `json:"timestamp" validate:"required"`
	Waived            bool   `json:"waived"`
}

func unpack(v any) any {
	if list, ok := v.([]any); ok && len(list) == 1 {
		return list[0]
	}
	return v
}
