package policy

import "fmt"

// Summarize describes the answers of a decision in one sentence
func Summarize(answers []Answer) string {
	var total, failed, missing int
	for _, answer := range answers {
		u, blocking := answer.(unsatisfied)
		blocking = blocking && !answer.IsSatisfied()
		if !blocking && !answer.isTestResult() {
			continue
		}
		total++
		switch {
		case !blocking:
		case u.missing():
			missing++
		default:
			failed++
		}
	}

	switch {
	case failed > 0 && missing > 0:
		return fmt.Sprintf("%d of %d required tests failed, %s", failed, total, plural(missing, "result", "results")+" missing")
	case failed > 0:
		return fmt.Sprintf("%d of %d required tests failed", failed, total)
	case missing > 0:
		return fmt.Sprintf("%d of %d required test results missing", missing, total)
	case total > 0:
		return "All required tests passed"
	default:
		return "no tests are required"
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
