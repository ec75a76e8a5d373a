package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prospectid/npid-gateway/internal/api/respond"
	"github.com/prospectid/npid-gateway/internal/cache"
	"github.com/prospectid/npid-gateway/internal/npid"
)

// GetSeasons returns the athlete's season options for a video type.
// @Summary Get season options
// @Description Returns the season dropdown choices for a video submission. The upstream answers an empty list when any identifying parameter is missing — that is its contract, not an error.
// @Tags videos
// @Produce json
// @Param id path string true "Primary (contact) ID"
// @Param video_type query string true "Video type" Enums(highlight, skills, game)
// @Param main_id query string false "Main ID when already known"
// @Param sport_alias query string false "Sport alias"
// @Success 200 {array} npid.OptionRecord
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/athletes/{id}/seasons [get]
func (h *Handler) GetSeasons(w http.ResponseWriter, r *http.Request) {
	primaryID := chi.URLParam(r, "id")
	videoType := r.URL.Query().Get("video_type")

	identity, err := h.adapter.Resolve(r.Context(), npid.SearchResult{
		PrimaryID:  primaryID,
		MainID:     r.URL.Query().Get("main_id"),
		SportAlias: r.URL.Query().Get("sport_alias"),
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}

	cacheKey := fmt.Sprintf("seasons:%s:%s:%s", primaryID, identity.SportAlias, videoType)
	ttl := cache.TTLSeasons

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	seasons, err := h.adapter.Seasons(r.Context(), identity, videoType)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	if seasons == nil {
		seasons = []npid.OptionRecord{}
	}

	raw, err := json.Marshal(seasons)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "encode seasons")
		return
	}
	etag := h.cache.Set(cacheKey, raw, ttl)
	respond.WriteJSON(w, raw, etag, ttl, false)
}

type submitVideoRequest struct {
	VideoURL       string `json:"video_url"`
	Source         string `json:"source,omitempty"`
	VideoType      string `json:"video_type"`
	Season         string `json:"season,omitempty"`
	MainID         string `json:"main_id,omitempty"`
	SportAlias     string `json:"sport_alias,omitempty"`
	AutoApprove    bool   `json:"auto_approve,omitempty"`
	AllowAmbiguous bool   `json:"allow_ambiguous,omitempty"`
}

// SubmitVideo posts a video onto the athlete's profile.
// @Summary Submit video
// @Description Submits a career video for the athlete. An identity resolved by the unverified primary-as-main fallback is rejected unless allow_ambiguous is set.
// @Tags videos
// @Accept json
// @Produce json
// @Param id path string true "Primary (contact) ID"
// @Param body body submitVideoRequest true "Submission"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 504 {object} respond.ErrorResponse
// @Router /api/v1/athletes/{id}/videos [post]
func (h *Handler) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	primaryID := chi.URLParam(r, "id")
	var req submitVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if req.VideoURL == "" || req.VideoType == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "video_url and video_type are required")
		return
	}

	identity, err := h.adapter.Resolve(r.Context(), npid.SearchResult{
		PrimaryID:  primaryID,
		MainID:     req.MainID,
		SportAlias: req.SportAlias,
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}
	if identity.Ambiguous() && !req.AllowAmbiguous {
		respond.FromError(w, &npid.Error{
			Kind: npid.KindIdentityAmbiguous,
			Op:   "submit_video",
		})
		return
	}

	err = h.adapter.SubmitVideo(r.Context(), npid.VideoSubmission{
		Identity:    identity,
		VideoURL:    req.VideoURL,
		Source:      req.Source,
		VideoType:   req.VideoType,
		Season:      req.Season,
		AutoApprove: req.AutoApprove,
	})
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":     "submitted",
		"primary_id": identity.PrimaryID,
		"main_id":    identity.MainID,
	})
}

type stageRequest struct {
	Stage string `json:"stage"`
}

// UpdateStage moves a video task to a new progress stage.
// @Summary Update video stage
// @Tags videos
// @Accept json
// @Produce json
// @Param id path string true "Video message ID"
// @Param body body stageRequest true "Stage"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 504 {object} respond.ErrorResponse
// @Router /api/v1/videos/{id}/stage [post]
func (h *Handler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	videoMsgID := chi.URLParam(r, "id")
	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Stage == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "stage is required")
		return
	}
	if err := h.adapter.UpdateStage(r.Context(), videoMsgID, req.Stage); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status": "updated",
		"stage":  req.Stage,
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus sets a video task's progress status.
// @Summary Update video status
// @Tags videos
// @Accept json
// @Produce json
// @Param id path string true "Video message ID"
// @Param body body statusRequest true "Status"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 504 {object} respond.ErrorResponse
// @Router /api/v1/videos/{id}/status [post]
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	videoMsgID := chi.URLParam(r, "id")
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "status is required")
		return
	}
	if err := h.adapter.UpdateStatus(r.Context(), videoMsgID, req.Status); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status": "updated",
	})
}

type dueDateRequest struct {
	DueDate string `json:"due_date"`
}

// UpdateDueDate sets a video task's due date.
// @Summary Update video due date
// @Tags videos
// @Accept json
// @Produce json
// @Param id path string true "Video message ID"
// @Param body body dueDateRequest true "Due date (MM/DD/YYYY)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Failure 504 {object} respond.ErrorResponse
// @Router /api/v1/videos/{id}/due-date [post]
func (h *Handler) UpdateDueDate(w http.ResponseWriter, r *http.Request) {
	videoMsgID := chi.URLParam(r, "id")
	var req dueDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DueDate == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "due_date is required")
		return
	}
	if err := h.adapter.UpdateDueDate(r.Context(), videoMsgID, req.DueDate); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":   "updated",
		"due_date": req.DueDate,
	})
}
