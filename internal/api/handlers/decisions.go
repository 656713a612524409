package handlers

import (
	"net/http"
	"strconv"

	"github.com/luxsync/selene/internal/domain"
)

type DecisionsHandler struct {
	journal domain.DecisionJournal
}

func NewDecisionsHandler(journal domain.DecisionJournal) *DecisionsHandler {
	return &DecisionsHandler{journal: journal}
}

// List returns the most recent persisted decisions. Without a journal the
// list is simply empty.
func (h *DecisionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusOK, map[string]any{"decisions": []domain.DecisionRecord{}, "count": 0})
		return
	}

	limit := parseIntParam(r, "limit", 50)
	records, err := h.journal.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": records, "count": len(records)})
}

// Similar returns past decisions made in similar musical moments, nearest
// target genome first.
func (h *DecisionsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "decision journal disabled")
		return
	}

	target := domain.Genome{
		Aggression: parseFloatParam(r, "aggression", 0.5),
		Chaos:      parseFloatParam(r, "chaos", 0.5),
		Organicity: parseFloatParam(r, "organicity", 0.5),
	}
	limit := parseIntParam(r, "limit", 10)

	records, err := h.journal.FindSimilarMoments(r.Context(), target, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query similar moments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": records, "count": len(records), "target": target})
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseFloatParam(r *http.Request, name string, fallback float64) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	if err != nil || v < 0 || v > 1 {
		return fallback
	}
	return v
}
