package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mabgcm/turkiyedental2-sub001/internal/service"
	"github.com/mabgcm/turkiyedental2-sub001/pkg/httputil"
)

// ClinicHandler handles HTTP requests for clinic endpoints.
type ClinicHandler struct {
	clinics    *service.ClinicService
	views      *service.ViewService
	moderation *service.ModerationService
	logger     *slog.Logger
}

// NewClinicHandler creates a new clinic HTTP handler.
func NewClinicHandler(
	clinics *service.ClinicService,
	views *service.ViewService,
	moderation *service.ModerationService,
	logger *slog.Logger,
) *ClinicHandler {
	return &ClinicHandler{
		clinics:    clinics,
		views:      views,
		moderation: moderation,
		logger:     logger,
	}
}

// ListClinics handles GET /api/v1/clinics
// @Summary Clinic directory
// @Description Lists clinics by name with their display rating. fresh=true derives ratings from approved reviews instead of the stored aggregate.
// @Tags clinics
// @Produce json
// @Param fresh query bool false "Recompute ratings on the fly without storing them"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/clinics [get]
func (h *ClinicHandler) ListClinics(w http.ResponseWriter, r *http.Request) {
	fresh := false
	if v := r.URL.Query().Get("fresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeInvalid(w, "fresh must be a boolean")
			return
		}
		fresh = b
	}

	clinics, err := h.views.Directory(r.Context(), fresh)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: clinics})
}

// GetClinic handles GET /api/v1/clinics/{id}
// @Summary Clinic page
// @Tags clinics
// @Produce json
// @Param id path string true "Clinic id (slug)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/clinics/{id} [get]
func (h *ClinicHandler) GetClinic(w http.ResponseWriter, r *http.Request) {
	detail, err := h.views.ClinicDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: detail})
}

// ListClinicReviews handles GET /api/v1/clinics/{id}/reviews
// @Summary Approved reviews of a clinic
// @Description Returns approved reviews, newest first, with category averages over the same reviews.
// @Tags reviews
// @Produce json
// @Param id path string true "Clinic id (slug)"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/clinics/{id}/reviews [get]
func (h *ClinicHandler) ListClinicReviews(w http.ResponseWriter, r *http.Request) {
	view, err := h.views.ClinicReviews(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// CreateClinic handles POST /api/v1/clinics
// @Summary Register a clinic
// @Tags clinics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateClinicInput true "Clinic to register"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/clinics [post]
func (h *ClinicHandler) CreateClinic(w http.ResponseWriter, r *http.Request) {
	var req service.CreateClinicInput
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	clinic, err := h.clinics.Create(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: clinic})
}

// UpdateClinic handles PATCH /api/v1/clinics/{id}
// @Summary Update clinic details
// @Description Partial update. avg_rating and review_count override the computed rating.
// @Tags clinics
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Clinic id (slug)"
// @Param request body service.UpdateClinicInput true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/clinics/{id} [patch]
func (h *ClinicHandler) UpdateClinic(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateClinicInput
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	clinic, err := h.clinics.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: clinic})
}

// DeleteClinic handles DELETE /api/v1/clinics/{id}
// @Summary Delete a clinic
// @Description Reviews of the clinic are kept.
// @Tags clinics
// @Security BearerAuth
// @Param id path string true "Clinic id (slug)"
// @Success 204
// @Router /api/v1/clinics/{id} [delete]
func (h *ClinicHandler) DeleteClinic(w http.ResponseWriter, r *http.Request) {
	if err := h.clinics.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecomputeClinic handles POST /api/v1/clinics/{id}/recompute
// @Summary Rebuild a clinic rating from its approved reviews
// @Tags clinics
// @Produce json
// @Security BearerAuth
// @Param id path string true "Clinic id (slug)"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/clinics/{id}/recompute [post]
func (h *ClinicHandler) RecomputeClinic(w http.ResponseWriter, r *http.Request) {
	stats, err := h.moderation.RecomputeClinic(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}
