package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/luxsync/selene/internal/domain"
	"github.com/luxsync/selene/internal/service"
)

type PipelineHandler struct {
	integrator *service.IntegratorService
}

func NewPipelineHandler(integrator *service.IntegratorService) *PipelineHandler {
	return &PipelineHandler{integrator: integrator}
}

// Execute runs one full pipeline frame for the posted musical situation.
func (h *PipelineHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var pctx domain.PipelineContext
	if err := json.NewDecoder(r.Body).Decode(&pctx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if pctx.Vibe == "" {
		writeError(w, http.StatusBadRequest, "vibe is required")
		return
	}
	if pctx.Energy < 0 || pctx.Energy > 1 {
		writeError(w, http.StatusBadRequest, "energy must be in [0,1]")
		return
	}

	decision := h.integrator.Execute(r.Context(), pctx)
	writeJSON(w, http.StatusOK, decision)
}

type outcomeRequest struct {
	DecisionID         string  `json:"decision_id"`
	ActualBeauty       float64 `json:"actual_beauty"`
	AudienceEngagement float64 `json:"audience_engagement"`
	GPUOverload        bool    `json:"gpu_overload"`
	CrowdReaction      string  `json:"crowd_reaction,omitempty"`
}

// Outcome reconciles an executed decision with its measured result.
func (h *PipelineHandler) Outcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := uuid.Parse(req.DecisionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid decision_id")
		return
	}

	audit, err := h.integrator.AuditExecution(id, domain.EffectOutcome{
		ActualBeauty:       req.ActualBeauty,
		AudienceEngagement: req.AudienceEngagement,
		GPUOverload:        req.GPUOverload,
		CrowdReaction:      req.CrowdReaction,
	})
	if err != nil {
		if errors.Is(err, service.ErrUnknownDecision) {
			writeError(w, http.StatusNotFound, "decision not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

type audioFrameRequest struct {
	Context domain.MusicalContext `json:"context"`
	Metrics domain.AudioMetrics   `json:"metrics"`
}

// Audio ingests one audio analysis frame and returns the updated target.
func (h *PipelineHandler) Audio(w http.ResponseWriter, r *http.Request) {
	var req audioFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target := h.integrator.UpdateTarget(req.Context, req.Metrics)
	writeJSON(w, http.StatusOK, target)
}

// State returns the current system state snapshot.
func (h *PipelineHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.integrator.State())
}
