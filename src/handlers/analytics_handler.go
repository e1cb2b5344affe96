package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/services"
	"github.com/username/tradeclarity/backend/src/utils"
)

type AnalyticsHandler struct {
	analyticsService services.AnalyticsService
	emailService     services.EmailService
}

func NewAnalyticsHandler(analyticsService services.AnalyticsService, emailService services.EmailService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		emailService:     emailService,
	}
}

type computeRequest struct {
	Trigger    string `json:"trigger,omitempty"`
	TradeCount int    `json:"tradeCount,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

// HandleCompute runs the analytics compute/cache orchestration. Authenticated
// users compute for themselves; internal-key callers name the target user in
// the body.
func (h *AnalyticsHandler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	// An empty body is a valid compute request.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, authenticated := GetUserIDFromContext(r.Context())
	if !authenticated {
		if req.UserID == "" {
			utils.SendJSONError(w, "userId required for internal compute requests", http.StatusBadRequest)
			return
		}
		userID = req.UserID
	}

	outcome, err := h.analyticsService.Compute(r.Context(), userID, req.Trigger)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoTrades):
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   services.ErrNoTrades.Error(),
			})
		case errors.Is(err, services.ErrTradeFetchFailed):
			logger.L.Error("Analytics compute failed fetching trades", "userID", userID, "error", err)
			utils.SendJSONError(w, services.ErrTradeFetchFailed.Error(), http.StatusInternalServerError)
		case errors.Is(err, services.ErrCacheSaveFailed):
			logger.L.Error("Analytics compute failed saving cache", "userID", userID, "error", err)
			utils.SendJSONError(w, services.ErrCacheSaveFailed.Error(), http.StatusInternalServerError)
		default:
			logger.L.Error("Analytics compute failed", "userID", userID, "error", err)
			utils.SendJSONError(w, "An internal error occurred while computing analytics.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Success bool `json:"success"`
		*services.ComputeOutcome
	}{true, outcome})
}

// HandleGetCache serves the cached analytics payload when one is valid for
// the user's current trade set.
func (h *AnalyticsHandler) HandleGetCache(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	entry, found := h.analyticsService.GetCached(userID)
	w.Header().Set("Content-Type", "application/json")
	if !found {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"cached":  false,
		})
		return
	}

	w.Header().Set("Cache-Control", "private, s-maxage=60, stale-while-revalidate=120")
	if err := json.NewEncoder(w).Encode(struct {
		Success bool `json:"success"`
		Cached  bool `json:"cached"`
		*models.AnalyticsCacheEntry
	}{true, true, entry}); err != nil {
		logger.L.Error("Error encoding cached analytics response", "userID", userID, "error", err)
	}
}

type emailReportRequest struct {
	ToEmail string `json:"toEmail"`
	Subject string `json:"subject,omitempty"`
}

// HandleEmailReport mails the user's current AI-context summary.
func (h *AnalyticsHandler) HandleEmailReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req emailReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToEmail == "" {
		utils.SendJSONError(w, "toEmail is required", http.StatusBadRequest)
		return
	}

	entry, found := h.analyticsService.GetCached(userID)
	if !found {
		utils.SendJSONError(w, "No analytics available to report. Compute analytics first.", http.StatusNotFound)
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = "Your trading analytics summary"
	}
	if err := h.emailService.SendAnalyticsSummary(req.ToEmail, subject, entry.AIContext); err != nil {
		logger.L.Error("Failed to send analytics summary email", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to send summary email.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}
