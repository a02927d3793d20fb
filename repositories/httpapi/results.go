package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"go.uber.org/zap"
)

// ResultsDBClient implements repositories.ResultsRepository over the
// ResultsDB REST API
type ResultsDBClient struct {
	client
}

// NewResultsDBClient creates a ResultsDB client. BaseURL is the API root,
// e.g. https://resultsdb.example.com/api/v2.0.
func NewResultsDBClient(cfg ClientConfig, logger *zap.Logger) *ResultsDBClient {
	return &ResultsDBClient{client: newClient(cfg, logger)}
}

var _ repositories.ResultsRepository = (*ResultsDBClient)(nil)

type resultsPage struct {
	Data []models.Result `json:"data"`
	Next *string         `json:"next"`
}

// Latest queries /results/latest and follows "next" links
func (c *ResultsDBClient) Latest(ctx context.Context, query repositories.ResultsQuery) ([]models.Result, error) {
	params := url.Values{}
	keys := make([]string, 0, len(query.Subject))
	for k := range query.Subject {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Set(k, query.Subject[k])
	}
	if len(query.DistinctOn) > 0 {
		params.Set("_distinct_on", strings.Join(query.DistinctOn, ","))
	}
	if query.Since != "" {
		params.Set("since", query.Since)
	}
	if query.Testcase != "" {
		params.Set("testcases", query.Testcase)
	}

	next := c.baseURL + "/results/latest?" + params.Encode()
	var results []models.Result
	for next != "" {
		var page resultsPage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		results = append(results, page.Data...)

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	c.logger.Debug("retrieved results",
		zap.Any("query", query.Subject),
		zap.String("testcase", query.Testcase),
		zap.Int("count", len(results)),
	)
	return results, nil
}
