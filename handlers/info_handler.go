package handlers

import (
	"net/http"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services/policy"
	"github.com/release-engineering/greenwave-sub000/utils"
	"go.uber.org/zap"
)

// InfoHandler serves the loaded configuration
type InfoHandler struct {
	version      string
	policies     []*policy.Policy
	subjectTypes []*models.SubjectType
	logger       *zap.Logger
}

// NewInfoHandler creates a new InfoHandler
func NewInfoHandler(version string, policies []*policy.Policy, subjectTypes []*models.SubjectType, logger *zap.Logger) *InfoHandler {
	return &InfoHandler{
		version:      version,
		policies:     policies,
		subjectTypes: subjectTypes,
		logger:       logger,
	}
}

// HandleAbout handles GET /api/v1/about
func (h *InfoHandler) HandleAbout(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, r, map[string]string{"version": h.version}); err != nil {
		h.logger.Error("failed to write about response", zap.Error(err))
	}
}

// HandlePolicies handles GET /api/v1/policies
func (h *InfoHandler) HandlePolicies(w http.ResponseWriter, r *http.Request) {
	policies := make([]map[string]any, 0, len(h.policies))
	for _, p := range h.policies {
		policies = append(policies, p.ToJSON())
	}
	if err := utils.WriteOK(w, r, map[string]any{"policies": policies}); err != nil {
		h.logger.Error("failed to write policies response", zap.Error(err))
	}
}

// HandleSubjectTypes handles GET /api/v1/subject_types
func (h *InfoHandler) HandleSubjectTypes(w http.ResponseWriter, r *http.Request) {
	types := h.subjectTypes
	if types == nil {
		types = []*models.SubjectType{}
	}
	if err := utils.WriteOK(w, r, map[string]any{"subject_types": types}); err != nil {
		h.logger.Error("failed to write subject types response", zap.Error(err))
	}
}
