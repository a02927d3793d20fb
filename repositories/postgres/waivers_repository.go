package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"github.com/release-engineering/greenwave-sub000/services"
	"go.uber.org/zap"
)

// WaiversRepository reads waivers straight from the WaiverDB schema
type WaiversRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewWaiversRepository creates a new waivers repository
func NewWaiversRepository(db *DB, logger *zap.Logger) *WaiversRepository {
	return &WaiversRepository{
		db:     db,
		logger: logger,
	}
}

var _ repositories.WaiversRepository = (*WaiversRepository)(nil)

// HealthCheck checks the database connection
func (r *WaiversRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// buildWaiversQuery selects the newest waiver per subject, test case,
// product version and scenario matching any of the filters
func buildWaiversQuery(filters []models.WaiverFilter) (string, []interface{}, error) {
	var (
		clauses []string
		args    []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range filters {
		conds := []string{
			"subject_type = " + arg(f.SubjectType),
			"subject_identifier = " + arg(f.SubjectIdentifier),
			"product_version = " + arg(f.ProductVersion),
		}
		if f.Testcase != "" {
			conds = append(conds, "testcase = "+arg(f.Testcase))
		}
		if f.Since != "" {
			start, end, err := parseRange(f.Since)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, "timestamp >= "+arg(start))
			if !end.IsZero() {
				conds = append(conds, "timestamp <= "+arg(end))
			}
		}
		clauses = append(clauses, "("+strings.Join(conds, " AND ")+")")
	}

	query := `
		SELECT DISTINCT ON (subject_type, subject_identifier, testcase, product_version, scenario)
			id, subject_type, subject_identifier, testcase, product_version, scenario,
			waived, username, proxied_by, comment, timestamp
		FROM waiver
		WHERE ` + strings.Join(clauses, "\n\t\t\tOR ") + `
		ORDER BY subject_type, subject_identifier, testcase, product_version, scenario, timestamp DESC`
	return query, args, nil
}

// Filtered returns the newest waivers matching any of the filters
func (r *WaiversRepository) Filtered(ctx context.Context, filters []models.WaiverFilter) ([]models.Waiver, error) {
	if len(filters) == 0 {
		return []models.Waiver{}, nil
	}

	query, args, err := buildWaiversQuery(filters)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.WrapExternal("failed to query waivers", err)
	}
	defer rows.Close()

	waivers := []models.Waiver{}
	for rows.Next() {
		var (
			w                            models.Waiver
			scenario, proxiedBy, comment sql.NullString
			timestamp                    time.Time
		)
		if err := rows.Scan(
			&w.ID,
			&w.SubjectType,
			&w.SubjectIdentifier,
			&w.Testcase,
			&w.ProductVersion,
			&scenario,
			&w.Waived,
			&w.Username,
			&proxiedBy,
			&comment,
			&timestamp,
		); err != nil {
			return nil, services.WrapExternal("failed to scan waiver", err)
		}
		if scenario.Valid {
			s := scenario.String
			w.Scenario = &s
		}
		w.ProxiedBy = proxiedBy.String
		w.Comment = comment.String
		w.Timestamp = models.FormatTimestamp(timestamp)
		waivers = append(waivers, w)
	}

	if err := rows.Err(); err != nil {
		return nil, services.WrapExternal("error iterating waivers", err)
	}

	r.logger.Debug("retrieved waivers", zap.Int("filters", len(filters)), zap.Int("count", len(waivers)))
	return waivers, nil
}
