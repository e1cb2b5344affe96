package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/services"
	"github.com/username/tradeclarity/backend/src/utils"
)

type PortfolioHandler struct {
	portfolioService services.PortfolioService
}

func NewPortfolioHandler(service services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolioService: service,
	}
}

// HandleGetPortfolio returns the aggregated multi-connection portfolio with
// ETag support so dashboards polling it can skip unchanged payloads.
func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	portfolio, err := h.portfolioService.GetAggregatedPortfolio(userID)
	if err != nil {
		logger.L.Error("Error aggregating portfolio", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error retrieving portfolio data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	currentETag, etagErr := utils.GenerateETag(portfolio)
	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("%q", currentETag)
		w.Header().Set("ETag", quotedETag)
		for _, clientETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(clientETag) == quotedETag {
				logger.L.Debug("ETag match for portfolio data", "userID", userID, "etag", currentETag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else {
		logger.L.Warn("Proceeding without ETag check due to ETag generation error", "userID", userID, "error", etagErr)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(portfolio); err != nil {
		logger.L.Error("Error encoding JSON response for portfolio", "userID", userID, "error", err)
	}
}
