package resources

import (
	"context"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"go.uber.org/zap"
)

// WaiversRetriever retrieves active waivers for a decision request
type WaiversRetriever struct {
	repo    repositories.WaiversRepository
	since   string
	ignored map[int64]bool
	logger  *zap.Logger
}

// NewWaiversRetriever creates a request-scoped waivers retriever
func NewWaiversRetriever(repo repositories.WaiversRepository, opts RetrieverOptions, logger *zap.Logger) *WaiversRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaiversRetriever{
		repo:    repo,
		since:   opts.since(),
		ignored: opts.ignored(),
		logger:  logger,
	}
}

// Retrieve returns the waivers matching any of the filters. Revoked
// waivers (waived == false) and ignored ids are dropped.
func (r *WaiversRetriever) Retrieve(ctx context.Context, filters []models.WaiverFilter) ([]models.Waiver, error) {
	if len(filters) == 0 {
		return []models.Waiver{}, nil
	}

	query := make([]models.WaiverFilter, len(filters))
	copy(query, filters)
	if r.since != "" {
		for i := range query {
			query[i].Since = r.since
		}
	}

	found, err := r.repo.Filtered(ctx, query)
	if err != nil {
		return nil, err
	}

	waivers := make([]models.Waiver, 0, len(found))
	for _, w := range found {
		if w.Waived && !r.ignored[w.ID] {
			waivers = append(waivers, w)
		}
	}
	r.logger.Debug("retrieved waivers", zap.Int("filters", len(filters)), zap.Int("active", len(waivers)))
	return waivers, nil
}
