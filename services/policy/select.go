package policy

import (
	"context"
	"sort"

	"github.com/release-engineering/greenwave-sub000/models"
	"go.uber.org/zap"
)

// Selection is the outcome of matching policies against a subject
type Selection struct {
	// Applicable policies gate the subject and are checked
	Applicable []*Policy
	// Excluded policies would apply but list the subject's package in
	// excluded_packages
	Excluded []*Policy
}

// Empty reports whether no policy concerns the subject at all
func (s Selection) Empty() bool {
	return len(s.Applicable) == 0 && len(s.Excluded) == 0
}

// Select returns the policies gating subject at the given decision contexts
// and product version. Remote rules are not resolved while selecting.
func Select(policies []*Policy, decisionContexts []string, productVersion string, subject *models.Subject) Selection {
	var sel Selection
	for _, p := range policies {
		if !p.MatchesDecisionContexts(decisionContexts) {
			continue
		}
		if productVersion != "" && !p.MatchesProductVersion(productVersion) {
			continue
		}
		if !p.MatchesSubjectType(subject) {
			continue
		}
		switch p.filterPackage(subject) {
		case packageExcluded:
			sel.Excluded = append(sel.Excluded, p)
		case packageIncluded:
			sel.Applicable = append(sel.Applicable, p)
		}
	}
	return sel
}

// ExcludedAnswers reports each excluded policy of the selection
func (s Selection) ExcludedAnswers(subject *models.Subject) []Answer {
	answers := make([]Answer, 0, len(s.Excluded))
	for _, p := range s.Excluded {
		answers = append(answers, p.excludedAnswer(subject))
	}
	return answers
}

// Pair is a decision context and product version a subject is gated at
type Pair struct {
	DecisionContext string
	ProductVersion  string
}

// ApplicablePairs returns the sorted, unique decision context and product
// version pairs of the policies matching attrs. Without a product version in
// attrs the policies' own product version patterns are used.
func (e *Evaluator) ApplicablePairs(ctx context.Context, policies []*Policy, attrs MatchAttributes) []Pair {
	seen := make(map[Pair]bool)
	var pairs []Pair
	add := func(pair Pair) {
		if !seen[pair] {
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}

	matched := 0
	for _, p := range policies {
		if !p.matches(ctx, e, attrs) {
			continue
		}
		matched++
		for _, dc := range p.AllDecisionContexts() {
			if attrs.ProductVersion != "" {
				add(Pair{DecisionContext: dc, ProductVersion: attrs.ProductVersion})
				continue
			}
			for _, pv := range p.ProductVersions {
				add(Pair{DecisionContext: dc, ProductVersion: pv})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].DecisionContext != pairs[j].DecisionContext {
			return pairs[i].DecisionContext < pairs[j].DecisionContext
		}
		return pairs[i].ProductVersion < pairs[j].ProductVersion
	})

	e.logger.Debug("Found applicable decision contexts",
		zap.Int("policies", matched),
		zap.Int("pairs", len(pairs)),
		zap.String("testcase", attrs.Testcase),
	)
	return pairs
}
