package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/luxsync/selene/internal/domain"
	"github.com/luxsync/selene/internal/service"
)

type MoodHandler struct {
	mood *service.MoodService
}

func NewMoodHandler(mood *service.MoodService) *MoodHandler {
	return &MoodHandler{mood: mood}
}

type moodResponse struct {
	Mood    domain.MoodID      `json:"mood"`
	Profile domain.MoodProfile `json:"profile"`
	ForMs   int64              `json:"active_for_ms"`
}

func (h *MoodHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, moodResponse{
		Mood:    h.mood.Current(),
		Profile: h.mood.Profile(),
		ForMs:   h.mood.TimeSinceLastChange().Milliseconds(),
	})
}

type setMoodRequest struct {
	Mood string `json:"mood"`
}

func (h *MoodHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req setMoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !domain.ValidMood(req.Mood) {
		writeError(w, http.StatusBadRequest, "unknown mood: "+req.Mood)
		return
	}

	h.mood.SetMood(domain.MoodID(req.Mood))
	writeJSON(w, http.StatusOK, moodResponse{
		Mood:    h.mood.Current(),
		Profile: h.mood.Profile(),
		ForMs:   h.mood.TimeSinceLastChange().Milliseconds(),
	})
}
