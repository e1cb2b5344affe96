package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/services"
	"github.com/username/tradeclarity/backend/src/utils"
)

type CurrencyHandler struct {
	rateService services.RateService
}

func NewCurrencyHandler(service services.RateService) *CurrencyHandler {
	return &CurrencyHandler{
		rateService: service,
	}
}

// HandleGetRates returns USD-based currency rates from the provider chain.
// The response names the provider that served them so clients can surface
// staleness.
func (h *CurrencyHandler) HandleGetRates(w http.ResponseWriter, r *http.Request) {
	result, err := h.rateService.GetRates(r.Context())
	if err != nil {
		logger.L.Error("All currency rate providers failed", "error", err)
		utils.SendJSONError(w, "Currency rates unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Success bool `json:"success"`
		*services.RateResult
	}{true, result}); err != nil {
		logger.L.Error("Error encoding currency rates response", "error", err)
	}
}
