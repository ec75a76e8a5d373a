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

// SearchContacts searches the upstream contact list.
// @Summary Search contacts
// @Description Searches athletes or parents by name or email and returns parsed result rows.
// @Tags contacts
// @Produce json
// @Param query query string true "Name or email fragment"
// @Param type query string false "Contact type" Enums(athlete, parent) default(athlete)
// @Success 200 {array} npid.SearchResult
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/contacts [get]
func (h *Handler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "query parameter is required")
		return
	}
	searchFor := r.URL.Query().Get("type")
	if searchFor == "" {
		searchFor = "athlete"
	}

	cacheKey := fmt.Sprintf("contacts:%s:%s", searchFor, query)
	ttl := cache.TTLContacts

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	results, err := h.adapter.SearchContacts(r.Context(), query, searchFor)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	raw, err := json.Marshal(results)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "encode results")
		return
	}
	etag := h.cache.Set(cacheKey, raw, ttl)
	respond.WriteJSON(w, raw, etag, ttl, false)
}

// ResolveIdentity reconciles an athlete's identifier namespaces.
// @Summary Resolve athlete identity
// @Description Resolves the athlete's main id from its primary id. The source field reports how the main id was obtained; "fallback" marks an unverified primary-as-main guess.
// @Tags contacts
// @Produce json
// @Param id path string true "Primary (contact) ID"
// @Param main_id query string false "Main ID when already known from a search result"
// @Param sport_alias query string false "Sport alias"
// @Success 200 {object} npid.AthleteIdentity
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/athletes/{id}/resolve [get]
func (h *Handler) ResolveIdentity(w http.ResponseWriter, r *http.Request) {
	sr := npid.SearchResult{
		PrimaryID:  chi.URLParam(r, "id"),
		MainID:     r.URL.Query().Get("main_id"),
		SportAlias: r.URL.Query().Get("sport_alias"),
	}
	id, err := h.adapter.Resolve(r.Context(), sr)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, id)
}
