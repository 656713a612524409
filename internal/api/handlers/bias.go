package handlers

import (
	"net/http"

	"github.com/luxsync/selene/internal/service"
)

type BiasHandler struct {
	auditor *service.AuditorService
}

func NewBiasHandler(auditor *service.AuditorService) *BiasHandler {
	return &BiasHandler{auditor: auditor}
}

// Get returns the latest bias report, running an audit on demand if none
// has been cached yet.
func (h *BiasHandler) Get(w http.ResponseWriter, r *http.Request) {
	report := h.auditor.Latest()
	if report == nil {
		report = h.auditor.RunNow()
	}
	writeJSON(w, http.StatusOK, report)
}
