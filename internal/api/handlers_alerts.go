package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shielded-scanner/internal/alert"
	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

// userID extracts the authenticated user from the request. Authentication
// proper is a gateway concern; this service trusts the forwarded header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// handleCreateAlert handles POST /api/v1/alerts
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	var req struct {
		Category   types.AlertCategory    `json:"category"`
		Conditions models.AlertConditions `json:"conditions"`
		Method     types.DeliveryMethod   `json:"method"`
		WebhookURL string                 `json:"webhookUrl"`
		Email      string                 `json:"email"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	created, err := s.alertService.CreateAlert(r.Context(), &alert.CreateAlertInput{
		UserID:     uid,
		Category:   req.Category,
		Conditions: req.Conditions,
		Method:     req.Method,
		WebhookURL: req.WebhookURL,
		Email:      req.Email,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// handleListAlerts handles GET /api/v1/alerts
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	alerts, err := s.alertService.GetUserAlerts(r.Context(), uid)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// handleUpdateAlertStatus handles PATCH /api/v1/alerts/{id}
func (s *Server) handleUpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	var req struct {
		Active *bool `json:"active"`
	}
	if err := parseJSONBody(r, &req); err != nil || req.Active == nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Body must carry an active flag", nil)
		return
	}

	updated, err := s.alertService.UpdateAlertStatus(r.Context(), uid, mux.Vars(r)["id"], *req.Active)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// handleDeleteAlert handles DELETE /api/v1/alerts/{id}
func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	if err := s.alertService.DeleteAlert(r.Context(), uid, mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListNotifications handles GET /api/v1/notifications
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required", nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	notifications, err := s.alertService.GetUserNotifications(r.Context(), uid, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*models.AlertNotification{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}
