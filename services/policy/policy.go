package policy

import (
	"context"

	"github.com/release-engineering/greenwave-sub000/models"
)

// Kind tells where a policy came from
type Kind int

const (
	// KindLocal is a policy loaded from the configured policies directory
	KindLocal Kind = iota
	// KindRemote is a policy fragment fetched for a RemoteRule
	KindRemote
	// KindOnDemand is a policy built from the rules of a decision request
	KindOnDemand
)

const (
	DefaultRemoteSubjectType = "koji_build"
	OnDemandPolicyID         = "on-demand-policy"
)

// Policy is a set of rules gating subjects of one type at one or more
// decision contexts
type Policy struct {
	ID               string
	ProductVersions  []string
	DecisionContext  string
	DecisionContexts []string
	SubjectType      string
	Rules            []Rule
	ExcludedPackages []string
	Packages         []string
	RelevanceKey     string
	RelevanceValue   string

	// Source is the URL a remote policy was fetched from
	Source string
	Kind   Kind
}

// MatchAttributes narrows down which policies apply. Empty fields match
// anything.
type MatchAttributes struct {
	DecisionContexts []string
	ProductVersion   string
	Subject          *models.Subject
	Testcase         string

	// MatchAnyRemoteRule skips fetching remote policies while matching
	MatchAnyRemoteRule bool
}

// AllDecisionContexts returns the effective decision contexts
func (p *Policy) AllDecisionContexts() []string {
	if len(p.DecisionContexts) > 0 {
		return p.DecisionContexts
	}
	if p.DecisionContext != "" {
		return []string{p.DecisionContext}
	}
	return nil
}

// Validate checks the decision context invariant and, for remote policies,
// that no rule delegates further.
func (p *Policy) Validate() error {
	if p.Kind == KindRemote {
		for _, rule := range p.Rules {
			if _, ok := rule.(*RemoteRule); ok {
				return newLoadError("RemoteRule is not allowed in remote policies")
			}
		}
	}
	if p.DecisionContext == "" && len(p.DecisionContexts) == 0 {
		return newLoadError("No decision contexts provided")
	}
	if p.DecisionContext != "" && len(p.DecisionContexts) > 0 {
		return newLoadError(`Both properties "decision_contexts" and "decision_context" were set`)
	}
	return nil
}

// MatchesProductVersion reports whether any product version pattern matches pv
func (p *Policy) MatchesProductVersion(pv string) bool {
	return matchAny(pv, p.ProductVersions)
}

// MatchesDecisionContexts reports whether the policy serves any of dcs. An
// empty dcs matches every policy.
func (p *Policy) MatchesDecisionContexts(dcs []string) bool {
	if len(dcs) == 0 {
		return true
	}
	for _, dc := range dcs {
		for _, own := range p.AllDecisionContexts() {
			if dc == own {
				return true
			}
		}
	}
	return false
}

// MatchesSubjectType is alias-aware. On-demand policies take any subject.
func (p *Policy) MatchesSubjectType(subject *models.Subject) bool {
	if subject == nil || p.Kind == KindOnDemand {
		return true
	}
	return subject.SubjectType().Matches(p.SubjectType)
}

// matchesSubPolicy selects the fragments of a remote document relevant to
// this policy
func (p *Policy) matchesSubPolicy(sub *Policy) bool {
	if p.Kind == KindOnDemand {
		for _, pv := range p.ProductVersions {
			if sub.MatchesProductVersion(pv) {
				return true
			}
		}
		return false
	}
	for _, dc := range sub.AllDecisionContexts() {
		for _, own := range p.AllDecisionContexts() {
			if dc == own {
				return true
			}
		}
	}
	return false
}

// packageFilter is the outcome of the package allow and deny lists
type packageFilter int

const (
	packageIncluded packageFilter = iota
	packageExcluded
	packageNotListed
)

func (p *Policy) filterPackage(subject *models.Subject) packageFilter {
	name, ok := subject.PackageName()
	if !ok || name == "" {
		return packageIncluded
	}
	if matchAny(name, p.ExcludedPackages) {
		return packageExcluded
	}
	if len(p.Packages) > 0 && !matchAny(name, p.Packages) {
		return packageNotListed
	}
	return packageIncluded
}

// matches applies decision context, product version, subject type and rule
// filters
func (p *Policy) matches(ctx context.Context, ev *Evaluator, attrs MatchAttributes) bool {
	if !p.MatchesDecisionContexts(attrs.DecisionContexts) {
		return false
	}
	if attrs.ProductVersion != "" && !p.MatchesProductVersion(attrs.ProductVersion) {
		return false
	}
	if !p.MatchesSubjectType(attrs.Subject) {
		return false
	}
	if len(p.Rules) == 0 {
		return true
	}
	for _, rule := range p.Rules {
		if rule.matches(ctx, ev, p, attrs) {
			return true
		}
	}
	return false
}

// Check evaluates every rule of the policy for the subject of rc
func (p *Policy) Check(ctx context.Context, rc *RuleContext) ([]Answer, error) {
	switch p.filterPackage(rc.Subject) {
	case packageExcluded:
		return []Answer{p.excludedAnswer(rc.Subject)}, nil
	case packageNotListed:
		return nil, nil
	}

	var answers []Answer
	for _, rule := range p.Rules {
		ruleAnswers, err := rc.Verify(ctx, p, rule)
		if err != nil {
			return nil, err
		}
		answers = append(answers, ruleAnswers...)
	}
	return answers, nil
}

func (p *Policy) excludedAnswer(subject *models.Subject) Answer {
	return &ExcludedInPolicy{
		SubjectIdentifier: subject.Identifier(),
		PolicyID:          p.ID,
		Source:            p.Source,
	}
}

// ToJSON returns the policy as listed by the policies endpoint
func (p *Policy) ToJSON() map[string]any {
	rules := make([]map[string]any, 0, len(p.Rules))
	for _, rule := range p.Rules {
		rules = append(rules, rule.ToJSON())
	}
	return map[string]any{
		"id":                p.ID,
		"product_versions":  nonNilStrings(p.ProductVersions),
		"decision_context":  nullable(p.DecisionContext),
		"decision_contexts": nonNilStrings(p.DecisionContexts),
		"subject_type":      p.SubjectType,
		"rules":             rules,
		"excluded_packages": nonNilStrings(p.ExcludedPackages),
		"packages":          nonNilStrings(p.Packages),
		"relevance_key":     nullable(p.RelevanceKey),
		"relevance_value":   nullable(p.RelevanceValue),
	}
}

// NewOnDemandPolicy builds the policy evaluated for the inline rules of a
// decision request
func NewOnDemandPolicy(productVersion string, rules []Rule, excludedPackages, packages []string) *Policy {
	return &Policy{
		ID:               OnDemandPolicyID,
		ProductVersions:  []string{productVersion},
		DecisionContext:  OnDemandPolicyID,
		SubjectType:      "unused",
		Rules:            rules,
		ExcludedPackages: excludedPackages,
		Packages:         packages,
		Kind:             KindOnDemand,
	}
}

// matchAny reports whether value matches any of the shell patterns
func matchAny(value string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchGlob(pattern, value) {
			return true
		}
	}
	return false
}
