package handlers

import (
	"context"
	"net/http"

	"github.com/release-engineering/greenwave-sub000/middleware"
	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
)

// DecisionMaker makes gating decisions
type DecisionMaker interface {
	MakeDecision(ctx context.Context, req *models.DecisionRequest) (*models.DecisionResponse, error)
}

// DecisionHandler handles decision requests
type DecisionHandler struct {
	decisions DecisionMaker
	logger    *zap.Logger
}

// NewDecisionHandler creates a new DecisionHandler
func NewDecisionHandler(decisions DecisionMaker, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisions: decisions,
		logger:    logger,
	}
}

// HandleDecision handles POST /api/v1/decision
func (h *DecisionHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req *models.DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	resp, err := h.decisions.MakeDecision(r.Context(), req)
	if err != nil {
		h.logger.Debug("decision failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("decision made",
		zap.String("request_id", requestID),
		zap.Bool("policies_satisfied", resp.PoliciesSatisfied),
		zap.String("summary", resp.Summary))

	if err := utils.WriteOK(w, r, resp); err != nil {
		h.logger.Error("failed to write decision response", zap.Error(err))
	}
}
