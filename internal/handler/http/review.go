package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mabgcm/turkiyedental2-sub001/internal/service"
	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/httputil"
)

const maxBodyBytes = 1 << 20

// ReviewHandler handles HTTP requests for patient review endpoints.
type ReviewHandler struct {
	reviews *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(reviews *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		logger:  logger,
	}
}

// SubmitReview handles POST /api/v1/clinics/{id}/reviews
// @Summary Submit a review
// @Description Stores a pending review from the signed-in patient. All invalid fields are reported together.
// @Tags reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Clinic id (slug)"
// @Param request body service.SubmitReviewInput true "Review to submit"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /api/v1/clinics/{id}/reviews [post]
func (h *ReviewHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitReviewInput
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	review, err := h.reviews.Submit(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: review})
}

// FlagReview handles POST /api/v1/reviews/{id}/flag
// @Summary Flag a review for moderator attention
// @Tags reviews
// @Produce json
// @Security BearerAuth
// @Param id path string true "Review id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/reviews/{id}/flag [post]
func (h *ReviewHandler) FlagReview(w http.ResponseWriter, r *http.Request) {
	review, err := h.reviews.Flag(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: review})
}

// decodeJSON reads a size-limited JSON body into dst without validating it;
// the services validate so that tag and domain failures are reported together.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func writeInvalid(w http.ResponseWriter, msg string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: msg},
	})
}
