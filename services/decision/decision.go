package decision

import (
	"context"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services/policy"
	"github.com/release-engineering/greenwave-sub000/services/resources"
)

// decision collects the answers of every subject of one request
type decision struct {
	decisionContexts []string
	productVersion   string
	verbose          bool

	answers    []policy.Answer
	applicable []string
	results    []models.Result
	waivers    []models.Waiver
	filters    []models.WaiverFilter
}

func (d *decision) check(ctx context.Context, ev *policy.Evaluator, results policy.ResultsSource, subject *models.Subject, sel policy.Selection) error {
	if d.verbose {
		found, err := results.Retrieve(ctx, subject, "")
		if err != nil {
			return err
		}
		d.results = append(d.results, found...)
		d.filters = append(d.filters, models.WaiverFilter{
			SubjectType:       subject.Type(),
			SubjectIdentifier: subject.Identifier(),
			ProductVersion:    d.productVersion,
		})
	}

	rc := ev.NewRuleContext(d.decisionContexts, d.productVersion, subject)
	for _, p := range sel.Applicable {
		answers, err := p.Check(ctx, rc)
		if err != nil {
			return err
		}
		d.answers = append(d.answers, answers...)
		d.applicable = append(d.applicable, p.ID)
	}
	d.answers = append(d.answers, sel.ExcludedAnswers(subject)...)
	for _, p := range sel.Excluded {
		d.applicable = append(d.applicable, p.ID)
	}
	return nil
}

// waive looks up waivers for the unsatisfied answers, or for every subject
// in verbose mode, and applies them
func (d *decision) waive(ctx context.Context, waivers *resources.WaiversRetriever) error {
	if !d.verbose {
		seen := make(map[models.WaiverFilter]bool)
		for _, answer := range d.answers {
			subject, testcase, ok := policy.UnsatisfiedTarget(answer)
			if !ok {
				continue
			}
			filter := models.WaiverFilter{
				SubjectType:       subject.Type(),
				SubjectIdentifier: subject.Identifier(),
				ProductVersion:    d.productVersion,
				Testcase:          testcase,
			}
			if !seen[filter] {
				seen[filter] = true
				d.filters = append(d.filters, filter)
			}
		}
	}

	d.waivers = []models.Waiver{}
	if len(d.filters) > 0 {
		found, err := waivers.Retrieve(ctx, d.filters)
		if err != nil {
			return err
		}
		d.waivers = found
	}

	d.answers = policy.Waive(d.answers, d.waivers)
	return nil
}

func (d *decision) response(includeApplicable bool) *models.DecisionResponse {
	resp := &models.DecisionResponse{
		PoliciesSatisfied:         true,
		Summary:                   policy.Summarize(d.answers),
		SatisfiedRequirements:     []map[string]any{},
		UnsatisfiedRequirements:   []map[string]any{},
		IncludeApplicablePolicies: includeApplicable,
		Verbose:                   d.verbose,
	}
	for _, answer := range d.answers {
		if answer.IsSatisfied() {
			resp.SatisfiedRequirements = append(resp.SatisfiedRequirements, answer.ToJSON())
			continue
		}
		resp.PoliciesSatisfied = false
		resp.UnsatisfiedRequirements = append(resp.UnsatisfiedRequirements, answer.ToJSON())
	}
	if includeApplicable {
		resp.ApplicablePolicies = append([]string{}, d.applicable...)
	}
	if d.verbose {
		resp.Results = uniqueResults(d.results)
		resp.Waivers = uniqueWaivers(d.waivers)
	}
	return resp
}

// uniqueResults drops repeated result ids, keeping the first occurrence
func uniqueResults(results []models.Result) []models.Result {
	seen := make(map[int64]bool, len(results))
	out := make([]models.Result, 0, len(results))
	for _, r := range results {
		if !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	return out
}

func uniqueWaivers(waivers []models.Waiver) []models.Waiver {
	seen := make(map[int64]bool, len(waivers))
	out := make([]models.Waiver, 0, len(waivers))
	for _, w := range waivers {
		if !seen[w.ID] {
			seen[w.ID] = true
			out = append(out, w)
		}
	}
	return out
}
