package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"github.com/release-engineering/greenwave-sub000/services"
	"go.uber.org/zap"
)

// ResultsRepository reads test results straight from the ResultsDB schema
type ResultsRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewResultsRepository creates a new results repository
func NewResultsRepository(db *DB, logger *zap.Logger) *ResultsRepository {
	return &ResultsRepository{
		db:     db,
		logger: logger,
	}
}

var _ repositories.ResultsRepository = (*ResultsRepository)(nil)

// HealthCheck checks the database connection
func (r *ResultsRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// buildResultsQuery returns the SQL selecting results matching q, newest
// first, together with its arguments
func buildResultsQuery(q repositories.ResultsQuery) (string, []interface{}, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	keys := make([]string, 0, len(q.Subject))
	for k := range q.Subject {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM result_data d WHERE d.result_id = r.id AND d.key = %s AND d.value = ANY(%s))",
			arg(k), arg(pq.Array(strings.Split(q.Subject[k], ","))),
		))
	}

	if q.Testcase != "" {
		where = append(where, "r.testcase_name = ANY("+arg(pq.Array(strings.Split(q.Testcase, ",")))+")")
	}

	if q.Since != "" {
		start, end, err := parseRange(q.Since)
		if err != nil {
			return "", nil, err
		}
		where = append(where, "r.submit_time >= "+arg(start))
		if !end.IsZero() {
			where = append(where, "r.submit_time <= "+arg(end))
		}
	}

	query := `
		SELECT r.id, r.testcase_name, r.outcome, r.submit_time,
			COALESCE(r.note, ''), COALESCE(r.ref_url, ''), COALESCE(t.ref_url, '')
		FROM result r
		JOIN testcase t ON t.name = r.testcase_name`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, "\n\t\t\tAND ")
	}
	query += "\n\t\tORDER BY r.submit_time DESC, r.id DESC"
	return query, args, nil
}

func parseRange(since string) (time.Time, time.Time, error) {
	startStr, endStr, _ := strings.Cut(since, ",")
	start, err := models.ParseTimestamp(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, services.NewValidationError(fmt.Sprintf("invalid since %q", since))
	}
	var end time.Time
	if strings.TrimSpace(endStr) != "" {
		if end, err = models.ParseTimestamp(endStr); err != nil {
			return time.Time{}, time.Time{}, services.NewValidationError(fmt.Sprintf("invalid since %q", since))
		}
	}
	return start, end, nil
}

// Latest returns the newest result of every distinct check matching the
// query, newest first
func (r *ResultsRepository) Latest(ctx context.Context, q repositories.ResultsQuery) ([]models.Result, error) {
	query, args, err := buildResultsQuery(q)
	if err != nil {
		return nil, err
	}

	var results []models.Result
	err = InSnapshot(ctx, r.db, func(db Querier) error {
		all, err := r.queryResults(ctx, db, query, args)
		if err != nil {
			return err
		}
		if err := r.loadData(ctx, db, all); err != nil {
			return err
		}
		results = latestDistinct(all, q.DistinctOn)
		return nil
	})
	if err != nil {
		return nil, services.WrapExternal("failed to query results", err)
	}

	r.logger.Debug("retrieved results",
		zap.Any("query", q.Subject),
		zap.String("testcase", q.Testcase),
		zap.Int("count", len(results)),
	)
	return results, nil
}

func (r *ResultsRepository) queryResults(ctx context.Context, db Querier, query string, args []interface{}) ([]models.Result, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []models.Result
	for rows.Next() {
		var (
			res        models.Result
			submitTime time.Time
		)
		if err := rows.Scan(
			&res.ID,
			&res.Testcase.Name,
			&res.Outcome,
			&submitTime,
			&res.Note,
			&res.RefURL,
			&res.Testcase.RefURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.SubmitTime = models.FormatTimestamp(submitTime)
		res.Data = make(map[string][]string)
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// loadData fills the data of every result with a single query
func (r *ResultsRepository) loadData(ctx context.Context, db Querier, results []models.Result) error {
	if len(results) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Result, len(results))
	ids := make([]int64, 0, len(results))
	for i := range results {
		byID[results[i].ID] = &results[i]
		ids = append(ids, results[i].ID)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT result_id, key, value FROM result_data WHERE result_id = ANY($1) ORDER BY id`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to query result data: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			resultID   int64
			key, value string
		)
		if err := rows.Scan(&resultID, &key, &value); err != nil {
			return fmt.Errorf("failed to scan result data: %w", err)
		}
		if res, ok := byID[resultID]; ok {
			res.Data[key] = append(res.Data[key], value)
		}
	}
	return rows.Err()
}

// latestDistinct keeps the first (newest) result per test case and values
// of the distinct-on data keys
func latestDistinct(results []models.Result, distinctOn []string) []models.Result {
	seen := make(map[string]bool, len(results))
	latest := make([]models.Result, 0, len(results))
	for _, res := range results {
		key := []string{res.Testcase.Name}
		for _, k := range distinctOn {
			key = append(key, strings.Join(res.Data[k], ","))
		}
		id := strings.Join(key, "\x00")
		if seen[id] {
			continue
		}
		seen[id] = true
		latest = append(latest, res)
	}
	return latest
}
