package handlers

import (
	"context"
	"net/http"

	"github.com/release-engineering/greenwave-sub000/middleware"
	"github.com/release-engineering/greenwave-sub000/services/listener"
	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
)

// MessageHandler handles message bus announcements
type MessageHandler interface {
	HandleResultsDB(ctx context.Context, msg *listener.ResultsDBMessage) (listener.Outcome, error)
	HandleWaiverDB(ctx context.Context, msg *listener.WaiverDBMessage) (listener.Outcome, error)
}

// ListenerHandler accepts ResultsDB and WaiverDB messages relayed from the
// message bus
type ListenerHandler struct {
	listener MessageHandler
	logger   *zap.Logger
}

// NewListenerHandler creates a new ListenerHandler
func NewListenerHandler(l MessageHandler, logger *zap.Logger) *ListenerHandler {
	return &ListenerHandler{
		listener: l,
		logger:   logger,
	}
}

// HandleResultsDB handles POST /api/v1/listener/resultsdb
func (h *ListenerHandler) HandleResultsDB(w http.ResponseWriter, r *http.Request) {
	var msg listener.ResultsDBMessage
	if err := decodeJSON(r, &msg); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	outcome, err := h.listener.HandleResultsDB(r.Context(), &msg)
	h.respond(w, r, "resultsdb", outcome, err)
}

// HandleWaiverDB handles POST /api/v1/listener/waiverdb
func (h *ListenerHandler) HandleWaiverDB(w http.ResponseWriter, r *http.Request) {
	var msg listener.WaiverDBMessage
	if err := decodeJSON(r, &msg); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	outcome, err := h.listener.HandleWaiverDB(r.Context(), &msg)
	h.respond(w, r, "waiverdb", outcome, err)
}

func (h *ListenerHandler) respond(w http.ResponseWriter, r *http.Request, source string, outcome listener.Outcome, err error) {
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.logger.Info("message handled",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("source", source),
		zap.Bool("processed", outcome.Processed),
		zap.Int("published", outcome.Published))
	if err := utils.WriteOK(w, r, outcome); err != nil {
		h.logger.Error("failed to write listener response", zap.Error(err))
	}
}
