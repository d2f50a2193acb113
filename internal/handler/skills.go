package handler

import (
	"net/http"

	"cadence/internal/httputil"
	"cadence/internal/skills"
)

// SkillsHandler lists the embedded skill registry.
type SkillsHandler struct {
	registry *skills.Registry
}

// NewSkillsHandler creates a new skills handler
func NewSkillsHandler(registry *skills.Registry) *SkillsHandler {
	return &SkillsHandler{registry: registry}
}

// ListSkills returns all registered augmentation skills.
// GET /api/skills
func (h *SkillsHandler) ListSkills(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.registry.List())
}
