package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mabgcm/turkiyedental2-sub001/internal/domain"
	"github.com/mabgcm/turkiyedental2-sub001/internal/service"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/httputil"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/validator"
)

// ModerationHandler handles the administrator endpoints for reviews.
type ModerationHandler struct {
	moderation *service.ModerationService
	reviews    *service.ReviewService
	views      *service.ViewService
	logger     *slog.Logger
}

// NewModerationHandler creates a new moderation HTTP handler.
func NewModerationHandler(
	moderation *service.ModerationService,
	reviews *service.ReviewService,
	views *service.ViewService,
	logger *slog.Logger,
) *ModerationHandler {
	return &ModerationHandler{
		moderation: moderation,
		reviews:    reviews,
		views:      views,
		logger:     logger,
	}
}

// SetStatusRequest is the JSON request body for a moderation decision.
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// Queue handles GET /api/v1/moderation/queue
// @Summary Pending reviews, oldest first
// @Description Signed-in callers that are not administrators get authorized=false and no reviews.
// @Tags moderation
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/moderation/queue [get]
func (h *ModerationHandler) Queue(w http.ResponseWriter, r *http.Request) {
	queue, err := h.views.ModerationQueue(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: queue})
}

// GetReview handles GET /api/v1/moderation/reviews/{id}
// @Summary Any review regardless of status
// @Tags moderation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Review id"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/moderation/reviews/{id} [get]
func (h *ModerationHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.reviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// Approve handles POST /api/v1/moderation/reviews/{id}/approve
// @Summary Approve a pending review
// @Description Publishes the review and recomputes the clinic rating. stats_stale=true means the status was stored but the rating was not.
// @Tags moderation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Review id"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/moderation/reviews/{id}/approve [post]
func (h *ModerationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	result, err := h.moderation.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Reject handles POST /api/v1/moderation/reviews/{id}/reject
// @Summary Reject a pending review
// @Tags moderation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Review id"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/moderation/reviews/{id}/reject [post]
func (h *ModerationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	result, err := h.moderation.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// SetStatus handles PUT /api/v1/moderation/reviews/{id}/status
// @Summary Set a moderation decision
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Review id"
// @Param request body SetStatusRequest true "approved or rejected"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/moderation/reviews/{id}/status [put]
func (h *ModerationHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SetStatusRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.moderation.SetStatus(r.Context(), chi.URLParam(r, "id"), domain.Status(req.Status))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Reply handles PUT /api/v1/moderation/reviews/{id}/reply
// @Summary Attach the clinic's reply to a review
// @Tags moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Review id"
// @Param request body service.ReplyInput true "Reply text"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/moderation/reviews/{id}/reply [put]
func (h *ModerationHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req service.ReplyInput
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.reviews.Reply(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}
