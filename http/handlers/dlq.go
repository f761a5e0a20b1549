package handlers

import (
	"net/http"

	"course-marketplace/http/response"
	"course-marketplace/logger"
	"course-marketplace/utils"
)

type resolveRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

// GetDLQMessages retrieves unresolved DLQ messages
// GET /api/dlq/messages?limit=50
func (h *Handler) GetDLQMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.ParseLimit(r, utils.DefaultDLQLimit, utils.MaxDLQLimit)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	messages, err := h.dlq.List(r.Context(), limit)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.SuccessResponse(w, http.StatusOK, "DLQ messages retrieved", map[string]interface{}{
		"count": len(messages),
		"data":  messages,
	})
}

// RetryDLQMessage replays a specific DLQ message
// POST /api/dlq/messages/{id}/retry
func (h *Handler) RetryDLQMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	ok, err := h.dlq.Retry(r.Context(), messageID)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	msg := "Message replayed and resolved"
	if !ok {
		logger.Warn("Manual retry of DLQ message %s failed", messageID)
		msg = "Message replay failed, it stays in the queue"
	}
	response.SuccessResponse(w, http.StatusOK, msg, map[string]interface{}{
		"messageId": messageID,
		"succeeded": ok,
	})
}

// ResolveDLQMessage marks a DLQ message as resolved
// POST /api/dlq/messages/{id}/resolve
func (h *Handler) ResolveDLQMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := pathID(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req resolveRequest
	if err := utils.DecodeAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.dlq.Resolve(r.Context(), messageID, req.Notes); err != nil {
		response.Error(w, r, err)
		return
	}

	response.SuccessResponse(w, http.StatusOK, "Message marked as resolved", map[string]interface{}{
		"messageId": messageID,
	})
}

// GetDLQStats retrieves statistics about DLQ messages
// GET /api/dlq/stats
func (h *Handler) GetDLQStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dlq.Stats(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "DLQ statistics", stats)
}
