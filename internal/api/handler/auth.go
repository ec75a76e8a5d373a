package handler

import (
	"encoding/json"
	"net/http"

	"github.com/prospectid/npid-gateway/internal/api/respond"
)

type loginRequest struct {
	Force bool `json:"force"`
}

// Login performs the upstream credential handshake.
// @Summary Authenticate against the upstream backend
// @Description Runs the login handshake with the configured credentials and persists the resulting session. With force=false a still-valid session is kept.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body loginRequest false "Login options"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if r.Body != nil {
		// An empty body means force=false.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if err := h.adapter.Login(r.Context(), req.Force); err != nil {
		respond.FromError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status": "authenticated",
	})
}
