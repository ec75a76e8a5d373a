package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/prospectid/npid-gateway/internal/api/respond"
	"github.com/prospectid/npid-gateway/internal/cache"
	"github.com/prospectid/npid-gateway/internal/npid"
)

// ListInbox returns video-team inbox threads.
// @Summary List inbox threads
// @Description Returns parsed inbox threads from the upstream video-team inbox, optionally filtered by assignment state.
// @Tags inbox
// @Produce json
// @Param limit query int false "Maximum threads to return" default(100)
// @Param filter query string false "Assignment filter" Enums(both, assigned, unassigned) default(both)
// @Success 200 {array} npid.Thread
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/inbox [get]
func (h *Handler) ListInbox(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = npid.FilterBoth
	}

	cacheKey := fmt.Sprintf("inbox:%d:%s", limit, filter)
	ttl := cache.TTLInbox

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	threads, err := h.adapter.InboxThreads(r.Context(), limit, filter)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	raw, err := json.Marshal(threads)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "encode threads")
		return
	}
	etag := h.cache.Set(cacheKey, raw, ttl)
	respond.WriteJSON(w, raw, etag, ttl, false)
}

// GetMessage returns one message's parsed detail.
// @Summary Get message detail
// @Description Returns the subject, sender, and content of one inbox message with quoted history stripped.
// @Tags inbox
// @Produce json
// @Param id path string true "Message ID"
// @Param item_code query string true "Thread item code"
// @Success 200 {object} npid.MessageDetail
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/inbox/{id} [get]
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	itemCode := r.URL.Query().Get("item_code")

	cacheKey := fmt.Sprintf("message:%s:%s", messageID, itemCode)
	ttl := cache.TTLMessage

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	detail, err := h.adapter.GetMessageDetail(r.Context(), messageID, itemCode)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	raw, err := json.Marshal(detail)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "encode message")
		return
	}
	etag := h.cache.Set(cacheKey, raw, ttl)
	respond.WriteJSON(w, raw, etag, ttl, false)
}

// GetAssignmentModal returns the assignment form data for a thread.
// @Summary Get assignment modal data
// @Description Returns the owners, stages, statuses, hidden identifiers, and form token embedded in the thread's assignment modal.
// @Tags inbox
// @Produce json
// @Param id path string true "Message ID"
// @Param item_code query string true "Thread item code"
// @Success 200 {object} npid.ModalData
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/inbox/{id}/assignment [get]
func (h *Handler) GetAssignmentModal(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	itemCode := r.URL.Query().Get("item_code")

	cacheKey := fmt.Sprintf("modal:%s:%s", messageID, itemCode)
	ttl := cache.TTLModal

	if data, etag, ok := h.cache.Get(cacheKey); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	modal, err := h.adapter.AssignmentModal(r.Context(), messageID, itemCode)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	raw, err := json.Marshal(modal)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "encode modal")
		return
	}
	etag := h.cache.Set(cacheKey, raw, ttl)
	respond.WriteJSON(w, raw, etag, ttl, false)
}

// AssignThread assigns a thread to a video-team owner.
// @Summary Assign inbox thread
// @Description Assigns the thread to an owner with optional stage and status. The upstream form token is acquired and scoped per thread.
// @Tags inbox
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param body body npid.AssignRequest true "Assignment"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/inbox/{id}/assign [post]
func (h *Handler) AssignThread(w http.ResponseWriter, r *http.Request) {
	var req npid.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	req.MessageID = chi.URLParam(r, "id")
	if req.OwnerID == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "owner_id is required")
		return
	}

	if err := h.adapter.AssignThread(r.Context(), req); err != nil {
		respond.FromError(w, err)
		return
	}
	h.cache.Invalidate("inbox:")
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":     "assigned",
		"message_id": req.MessageID,
		"owner_id":   req.OwnerID,
	})
}

type replyRequest struct {
	ItemCode string `json:"item_code"`
	Message  string `json:"message"`
}

// SendReply replies to an inbox thread.
// @Summary Reply to inbox thread
// @Description Sends a reply on the thread; the original message rides quoted below the reply, matching the upstream composer behavior.
// @Tags inbox
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param body body replyRequest true "Reply"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/inbox/{id}/reply [post]
func (h *Handler) SendReply(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}
	if req.Message == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "message is required")
		return
	}

	if err := h.adapter.SendReply(r.Context(), messageID, req.ItemCode, req.Message); err != nil {
		respond.FromError(w, err)
		return
	}
	h.cache.Invalidate("message:" + messageID)
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":     "sent",
		"message_id": messageID,
	})
}
