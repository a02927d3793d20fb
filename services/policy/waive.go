package policy

import (
	"github.com/release-engineering/greenwave-sub000/models"
)

// Waive replaces each unsatisfied answer that has a matching waiver with its
// waived form. A waiver without a scenario matches any scenario. Waived
// gating yaml failures are dropped from the answers.
func Waive(answers []Answer, waivers []models.Waiver) []Answer {
	out := make([]Answer, 0, len(answers))
	for _, answer := range answers {
		u, ok := answer.(unsatisfied)
		if !ok || answer.IsSatisfied() {
			out = append(out, answer)
			continue
		}
		waiver := findWaiver(u, waivers)
		if waiver == nil {
			out = append(out, answer)
			continue
		}
		if waived := u.toWaived(waiver.ID); waived != nil {
			out = append(out, waived)
		}
	}
	return out
}

func findWaiver(answer unsatisfied, waivers []models.Waiver) *models.Waiver {
	subject, testcase, scenario := answer.target()
	for i := range waivers {
		w := &waivers[i]
		if !subject.SubjectType().Matches(w.SubjectType) ||
			w.SubjectIdentifier != subject.Identifier() ||
			w.Testcase != testcase {
			continue
		}
		if w.Scenario == nil || *w.Scenario == "" || *w.Scenario == scenario {
			return w
		}
	}
	return nil
}
