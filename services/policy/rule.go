package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/release-engineering/greenwave-sub000/models"
	"go.uber.org/zap"
)

// Rule is a single requirement of a policy
type Rule interface {
	// Key identifies equal rules; a rule is verified at most once per
	// subject no matter how many policies declare it.
	Key() string
	ToJSON() map[string]any

	check(ctx context.Context, p *Policy, rc *RuleContext) ([]Answer, error)
	matches(ctx context.Context, ev *Evaluator, p *Policy, attrs MatchAttributes) bool
}

// PassingTestCaseRule requires the latest results of a test case to pass
type PassingTestCaseRule struct {
	TestCaseName string
	Scenario     string
	ValidSince   *time.Time
	ValidUntil   *time.Time
}

func (r *PassingTestCaseRule) Key() string {
	return "PassingTestCaseRule|" + r.TestCaseName + "|" + r.Scenario
}

func (r *PassingTestCaseRule) ToJSON() map[string]any {
	return map[string]any{
		"rule":           "PassingTestCaseRule",
		"test_case_name": r.TestCaseName,
		"scenario":       nullable(r.Scenario),
	}
}

func (r *PassingTestCaseRule) matches(_ context.Context, _ *Evaluator, _ *Policy, attrs MatchAttributes) bool {
	return attrs.Testcase == "" || attrs.Testcase == r.TestCaseName
}

func (r *PassingTestCaseRule) check(ctx context.Context, p *Policy, rc *RuleContext) ([]Answer, error) {
	ev := rc.evaluator
	if r.ValidSince != nil || r.ValidUntil != nil {
		created, err := ev.creationTime(ctx, rc.Subject.Identifier())
		if err != nil {
			return nil, err
		}
		if r.ValidSince != nil && created.Before(*r.ValidSince) {
			return nil, nil
		}
		if r.ValidUntil != nil && !r.ValidUntil.After(created) {
			return nil, nil
		}
	}

	results, err := ev.results.Retrieve(ctx, rc.Subject, r.TestCaseName)
	if err != nil {
		return nil, err
	}

	if r.Scenario != "" {
		filtered := results[:0:0]
		for _, result := range results {
			if result.HasScenario(r.Scenario) {
				filtered = append(filtered, result)
			}
		}
		results = filtered
	}

	if len(results) == 0 {
		return []Answer{&TestResultMissing{
			Subject:  rc.Subject,
			TestCase: r.TestCaseName,
			Scenario: r.Scenario,
			Source:   p.Source,
		}}, nil
	}

	settings := ev.settings
	answers := make([]Answer, 0, len(results))
	for i := range results {
		result := &results[i]
		data := make(map[string]any, len(settings.DistinctLatestResultsOn))
		for _, key := range settings.DistinctLatestResultsOn {
			if v, ok := result.DataValue(key); ok {
				data[key] = v
			} else {
				data[key] = nil
			}
		}
		base := TestResult{
			Subject:  rc.Subject,
			TestCase: r.TestCaseName,
			Source:   p.Source,
			ResultID: result.ID,
			Data:     data,
		}

		logger := ev.logger.With(
			zap.Int64("result_id", result.ID),
			zap.String("testcase", r.TestCaseName),
			zap.String("outcome", result.Outcome),
		)
		switch {
		case contains(settings.OutcomesPassed, result.Outcome):
			logger.Debug("Test result passed")
			answers = append(answers, &TestResultPassed{TestResult: base})
		case contains(settings.OutcomesIncomplete, result.Outcome):
			logger.Debug("Test result incomplete")
			if settings.IncompleteResultsBlock {
				answers = append(answers, &TestResultIncomplete{TestResult: base})
			}
		case contains(settings.OutcomesError, result.Outcome):
			logger.Debug("Test result errored", zap.String("error_reason", result.ErrorReason))
			answers = append(answers, &TestResultErrored{TestResult: base, ErrorReason: result.ErrorReason})
		default:
			logger.Debug("Test result failed")
			answers = append(answers, &TestResultFailed{TestResult: base})
		}
	}
	return answers, nil
}

// RemoteRule delegates to a policy document hosted next to the subject's
// sources
type RemoteRule struct {
	Required bool
	Sources  []string
}

func (r *RemoteRule) Key() string {
	return "RemoteRule|" + strconv.FormatBool(r.Required) + "|" + strings.Join(r.Sources, " ")
}

func (r *RemoteRule) ToJSON() map[string]any {
	return map[string]any{
		"rule":     "RemoteRule",
		"required": r.Required,
		"sources":  nonNilStrings(r.Sources),
	}
}

func (r *RemoteRule) check(ctx context.Context, p *Policy, rc *RuleContext) ([]Answer, error) {
	if !rc.Subject.SupportsRemoteRule() {
		return nil, nil
	}

	subPolicies, answers := rc.evaluator.subPolicies(ctx, r, p, rc.Subject)
	for _, sub := range subPolicies {
		if !sub.MatchesDecisionContexts(rc.DecisionContexts) {
			continue
		}
		if rc.ProductVersion != "" && !sub.MatchesProductVersion(rc.ProductVersion) {
			continue
		}
		subAnswers, err := sub.Check(ctx, rc)
		if err != nil {
			return nil, err
		}
		answers = append(answers, subAnswers...)
	}
	return answers, nil
}

func (r *RemoteRule) matches(ctx context.Context, ev *Evaluator, p *Policy, attrs MatchAttributes) bool {
	if attrs.MatchAnyRemoteRule || attrs.Subject == nil || !attrs.Subject.SupportsRemoteRule() {
		return true
	}

	subPolicies, answers := ev.subPolicies(ctx, r, p, attrs.Subject)
	if len(answers) == 0 {
		return true
	}
	for _, answer := range answers {
		if !answer.IsSatisfied() {
			return true
		}
	}
	for _, sub := range subPolicies {
		if sub.matches(ctx, ev, attrs) {
			return true
		}
	}
	return false
}

// RuleFromSpec builds a rule from the JSON form used by on-demand decision
// requests
func RuleFromSpec(spec models.RuleSpec) (Rule, error) {
	switch spec.Type {
	case "PassingTestCaseRule":
		if spec.TestCaseName == "" {
			return nil, newLoadError("Attribute 'test_case_name' is required")
		}
		rule := &PassingTestCaseRule{TestCaseName: spec.TestCaseName}
		if spec.Scenario != nil {
			rule.Scenario = *spec.Scenario
		}
		var err error
		if spec.ValidSince != "" {
			if rule.ValidSince, err = parseRuleTime("valid_since", spec.ValidSince); err != nil {
				return nil, err
			}
		}
		if spec.ValidUntil != "" {
			if rule.ValidUntil, err = parseRuleTime("valid_until", spec.ValidUntil); err != nil {
				return nil, err
			}
		}
		return rule, nil
	case "RemoteRule":
		return &RemoteRule{Required: spec.Required, Sources: spec.Sources}, nil
	case "":
		return nil, newLoadError("Key 'type' is required for each list item")
	default:
		return nil, newLoadError(fmt.Sprintf("Key 'type' for an list item is not valid: %s", spec.Type))
	}
}

func contains(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
