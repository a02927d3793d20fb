package resources

import (
	"context"
	"fmt"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"github.com/release-engineering/greenwave-sub000/services/cache"
	"go.uber.org/zap"
)

const sinceStart = "1900-01-01T00:00:00.000000"

// ResultsCacheKey returns the external cache key holding the passing results
// of one test case for a subject
func ResultsCacheKey(subjectType, identifier, testcase string) string {
	return fmt.Sprintf("greenwave.resources:ResultsRetriever|%s %s %s", subjectType, identifier, testcase)
}

// RetrieverOptions holds the per-request retrieval options
type RetrieverOptions struct {
	// IgnoreIDs are dropped from every returned list
	IgnoreIDs []int64

	// When, if set, restricts retrieval to items submitted up to that
	// point in time. Format: models.SubmitTimeLayout.
	When string
}

func (o RetrieverOptions) since() string {
	if o.When == "" {
		return ""
	}
	return sinceStart + "," + o.When
}

func (o RetrieverOptions) ignored() map[int64]bool {
	ignored := make(map[int64]bool, len(o.IgnoreIDs))
	for _, id := range o.IgnoreIDs {
		ignored[id] = true
	}
	return ignored
}

// ResultsRetriever retrieves the latest test results for subjects. It is
// created per decision request: every lookup is memoized for the lifetime of
// the request, while passing results of single test cases are shared between
// requests through the external cache store.
//
// A ResultsRetriever is not safe for concurrent use.
type ResultsRetriever struct {
	repo           repositories.ResultsRepository
	store          cache.Store
	distinctOn     []string
	outcomesPassed map[string]bool
	since          string
	until          string
	ignored        map[int64]bool
	logger         *zap.Logger

	memo map[string][]models.Result
}

// NewResultsRetriever creates a request-scoped results retriever
func NewResultsRetriever(repo repositories.ResultsRepository, store cache.Store, distinctOn, outcomesPassed []string, opts RetrieverOptions, logger *zap.Logger) *ResultsRetriever {
	if store == nil {
		store = cache.NoopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	passed := make(map[string]bool, len(outcomesPassed))
	for _, o := range outcomesPassed {
		passed[o] = true
	}
	return &ResultsRetriever{
		repo:           repo,
		store:          store,
		distinctOn:     distinctOn,
		outcomesPassed: passed,
		since:          opts.since(),
		until:          opts.When,
		ignored:        opts.ignored(),
		logger:         logger,
		memo:           make(map[string][]models.Result),
	}
}

// Retrieve returns the latest results for the subject, newest first. An
// empty testcase retrieves the results of every test case.
func (r *ResultsRetriever) Retrieve(ctx context.Context, subject *models.Subject, testcase string) ([]models.Result, error) {
	results, err := r.retrieveAll(ctx, subject, testcase)
	if err != nil {
		return nil, err
	}
	return r.filterIgnored(results), nil
}

func (r *ResultsRetriever) retrieveAll(ctx context.Context, subject *models.Subject, testcase string) ([]models.Result, error) {
	memoKey := subject.Type() + " " + subject.Identifier()
	if all, ok := r.memo[memoKey]; ok && testcase != "" {
		var results []models.Result
		for _, res := range all {
			if res.Testcase.Name == testcase {
				results = append(results, res)
			}
		}
		return results, nil
	}

	var cacheKey string
	if testcase != "" {
		memoKey += " " + testcase
		if results, ok := r.memo[memoKey]; ok {
			return results, nil
		}
		cacheKey = ResultsCacheKey(subject.Type(), subject.Identifier(), testcase)
		if results := r.getCached(ctx, cacheKey); len(results) > 0 && r.matchTime(results) {
			r.memo[memoKey] = results
			return results, nil
		}
	}

	var results []models.Result
	for _, q := range subject.ResultQueries() {
		found, err := r.repo.Latest(ctx, repositories.ResultsQuery{
			Subject:    q,
			Testcase:   testcase,
			DistinctOn: r.distinctOn,
			Since:      r.since,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, found...)
	}

	// every key reaches the store at most once per request
	r.memo[memoKey] = results

	// Only passing results are cached; anything else may still change.
	if cacheKey != "" && r.allPassed(results) {
		r.setCached(ctx, cacheKey, results)
	}
	return results, nil
}

func (r *ResultsRetriever) allPassed(results []models.Result) bool {
	for _, res := range results {
		if !r.outcomesPassed[res.Outcome] {
			return false
		}
	}
	return true
}

func (r *ResultsRetriever) matchTime(results []models.Result) bool {
	if r.until == "" {
		return true
	}
	for _, res := range results {
		if res.SubmitTime >= r.until {
			return false
		}
	}
	return true
}

func (r *ResultsRetriever) getCached(ctx context.Context, key string) []models.Result {
	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("results cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	var results []models.Result
	if err := cache.Decode(data, &results); err != nil {
		r.logger.Warn("discarding undecodable cached results", zap.String("key", key), zap.Error(err))
		return nil
	}
	return results
}

func (r *ResultsRetriever) setCached(ctx context.Context, key string, results []models.Result) {
	if results == nil {
		results = []models.Result{}
	}
	data, err := cache.Encode(results)
	if err != nil {
		r.logger.Warn("failed to encode results for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		r.logger.Warn("failed to cache results", zap.String("key", key), zap.Error(err))
	}
}

func (r *ResultsRetriever) filterIgnored(results []models.Result) []models.Result {
	if len(r.ignored) == 0 {
		return results
	}
	filtered := make([]models.Result, 0, len(results))
	for _, res := range results {
		if !r.ignored[res.ID] {
			filtered = append(filtered, res)
		}
	}
	return filtered
}
