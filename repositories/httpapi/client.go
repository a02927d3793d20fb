package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/release-engineering/greenwave-sub000/services"
	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
)

const userAgent = "greenwave"

// ClientConfig configures a REST client of an external service
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxElapsed time.Duration // total retry budget for transport errors and 5xx responses
}

type client struct {
	baseURL    string
	httpClient *http.Client
	maxElapsed time.Duration
	logger     *zap.Logger
}

func newClient(cfg ClientConfig, logger *zap.Logger) client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxElapsed: cfg.MaxElapsed,
		logger:     logger,
	}
}

// do sends a request and decodes a JSON response into out. Transport errors
// and 5xx responses are retried; any other non-2xx status is returned as an
// external error right away.
func (c *client) do(ctx context.Context, method, url string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return services.WrapInternal("failed to marshal request", err)
		}
	}

	var respBody []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(services.WrapInternal("failed to create request", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return services.WrapExternal(fmt.Sprintf("request to %s failed", url), err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return services.WrapExternal(fmt.Sprintf("failed to read response from %s", url), err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := services.WrapExternal(fmt.Sprintf("Got unexpected status code %d for %s: %s", resp.StatusCode, url, respBody), nil)
			if resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := utils.Retry(ctx, c.maxElapsed, c.logger, op); err != nil {
		c.logger.Error("request failed", zap.String("method", method), zap.String("url", url), zap.Error(err))
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return services.WrapExternal(fmt.Sprintf("invalid JSON response from %s", url), err)
	}
	return nil
}

// HealthCheck reports whether the service answers on its base URL
func (c *client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}
