package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"github.com/release-engineering/greenwave-sub000/repositories/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthcheck", nil)
	w := httptest.NewRecorder()

	handler.HandleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Health check OK", w.Body.String())
}

func TestHandleReadiness(t *testing.T) {
	logger := zap.NewNop()

	t.Run("ready when the databases answer", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		for i := 0; i < 2; i++ {
			mock.ExpectPing()
			mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		}

		pg := postgres.WrapDB(db, logger)
		repos := &repositories.Repositories{
			Results: postgres.NewResultsRepository(pg, logger),
			Waivers: postgres.NewWaiversRepository(pg, logger),
		}
		handler := NewHealthHandler(logger, repos.HealthCheck)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/api/v1/readiness", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "ready", response.Status)
		assert.Equal(t, map[string]string{"results": "healthy", "waivers": "healthy"}, response.Checks)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not ready when a check fails", func(t *testing.T) {
		handler := NewHealthHandler(logger,
			func(context.Context) map[string]error {
				return map[string]error{"results": nil}
			},
			func(context.Context) map[string]error {
				return map[string]error{"cache": errors.New("dial tcp: connection refused")}
			},
		)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/api/v1/readiness", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "not_ready", response.Status)
		assert.Equal(t, "healthy", response.Checks["results"])
		assert.Equal(t, "unhealthy", response.Checks["cache"])
	})

	t.Run("ready without checks", func(t *testing.T) {
		handler := NewHealthHandler(logger)

		w := httptest.NewRecorder()
		handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/api/v1/readiness", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
