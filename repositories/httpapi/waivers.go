package httpapi

import (
	"context"
	"net/http"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"go.uber.org/zap"
)

// WaiverDBClient implements repositories.WaiversRepository over the
// WaiverDB REST API
type WaiverDBClient struct {
	client
}

// NewWaiverDBClient creates a WaiverDB client. BaseURL is the API root,
// e.g. https://waiverdb.example.com/api/v1.0.
func NewWaiverDBClient(cfg ClientConfig, logger *zap.Logger) *WaiverDBClient {
	return &WaiverDBClient{client: newClient(cfg, logger)}
}

var _ repositories.WaiversRepository = (*WaiverDBClient)(nil)

type filteredRequest struct {
	Filters []models.WaiverFilter `json:"filters"`
}

type waiversPage struct {
	Data []models.Waiver `json:"data"`
}

// Filtered posts the filters to /waivers/+filtered
func (c *WaiverDBClient) Filtered(ctx context.Context, filters []models.WaiverFilter) ([]models.Waiver, error) {
	if len(filters) == 0 {
		return []models.Waiver{}, nil
	}

	var page waiversPage
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/waivers/+filtered", filteredRequest{Filters: filters}, &page); err != nil {
		return nil, err
	}

	c.logger.Debug("retrieved waivers", zap.Int("filters", len(filters)), zap.Int("count", len(page.Data)))
	return page.Data, nil
}
