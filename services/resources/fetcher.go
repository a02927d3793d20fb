package resources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/release-engineering/greenwave-sub000/services"
	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
)

// maxDocumentBytes caps the size of a fetched gating document
const maxDocumentBytes = 10 << 20

// HTTPFetcher downloads remote policy documents from a git web UI
type HTTPFetcher struct {
	httpClient *http.Client
	maxElapsed time.Duration
	maxBytes   int64
	logger     *zap.Logger
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout and
// retry budget
func NewHTTPFetcher(timeout, maxElapsed time.Duration, logger *zap.Logger) *HTTPFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
		maxBytes:   maxDocumentBytes,
		logger:     logger,
	}
}

// Fetch returns the document at url. A 404 response means the document
// does not exist and is not an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, bool, error) {
	var (
		content []byte
		found   bool
	)
	err := utils.Retry(ctx, f.maxElapsed, f.logger, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(services.WrapInternal("failed to create request", err))
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return services.WrapExternal(fmt.Sprintf("request to %s failed", url), err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			return services.WrapExternal(fmt.Sprintf("failed to read response from %s", url), err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			f.logger.Debug("remote rule not found", zap.String("url", url))
			return nil
		case resp.StatusCode >= 500:
			return services.WrapExternal(fmt.Sprintf("Got unexpected status code %d for %s: %s", resp.StatusCode, url, body), nil)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(services.WrapExternal(fmt.Sprintf("Got unexpected status code %d for %s: %s", resp.StatusCode, url, body), nil))
		}

		if int64(len(body)) > f.maxBytes {
			return backoff.Permanent(services.WrapExternal(fmt.Sprintf("Response from %s exceeds %d bytes", url, f.maxBytes), nil))
		}
		content, found = body, true
		return nil
	})
	if err != nil {
		f.logger.Error("failed to fetch remote rule", zap.String("url", url), zap.Error(err))
		return nil, false, err
	}
	return content, found, nil
}
