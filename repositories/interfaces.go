package repositories

import (
	"context"

	"github.com/release-engineering/greenwave-sub000/models"
)

// ResultsQuery selects the latest test results for one physical subject
// query
type ResultsQuery struct {
	// Subject holds the subject parameters, e.g. {"type": "koji_build,brew-build", "item": "..."}.
	// Comma separated values match any of the listed values.
	Subject map[string]string

	// Testcase restricts the query to one test case; empty means all
	Testcase string

	// DistinctOn lists the result data keys that, with the test case name,
	// identify a logical check. Only the newest result per check is returned.
	DistinctOn []string

	// Since is a "start,end" submit time range, both ends inclusive
	Since string
}

// ResultsRepository handles test result lookups
type ResultsRepository interface {
	// Latest returns the latest results matching the query, newest first
	Latest(ctx context.Context, query ResultsQuery) ([]models.Result, error)
}

// WaiversRepository handles waiver lookups
type WaiversRepository interface {
	// Filtered returns the newest waivers matching any of the filters
	Filtered(ctx context.Context, filters []models.WaiverFilter) ([]models.Waiver, error)
}

// HealthChecker is implemented by stores that can report readiness
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Results ResultsRepository
	Waivers WaiversRepository
}

// HealthCheck checks every store that supports it
func (r *Repositories) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]any{"results": r.Results, "waivers": r.Waivers}
	out := make(map[string]error, len(checks))
	for name, repo := range checks {
		if hc, ok := repo.(HealthChecker); ok {
			out[name] = hc.HealthCheck(ctx)
		}
	}
	return out
}
