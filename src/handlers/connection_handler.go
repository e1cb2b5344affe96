package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/username/tradeclarity/backend/src/config"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/security"
	"github.com/username/tradeclarity/backend/src/security/validation"
	"github.com/username/tradeclarity/backend/src/services"
	"github.com/username/tradeclarity/backend/src/utils"
)

// ConnectionHandler manages a user's exchange and brokerage connections:
// API-key connections with sealed credentials, aggregator-backed connections,
// and the brokerage OAuth link flow.
type ConnectionHandler struct {
	store            services.TradeStore
	sealer           *security.CredentialSealer
	snapTradeService services.SnapTradeService
	oauthConfig      *oauth2.Config
}

func NewConnectionHandler(store services.TradeStore, sealer *security.CredentialSealer, snapTradeService services.SnapTradeService) *ConnectionHandler {
	return &ConnectionHandler{
		store:            store,
		sealer:           sealer,
		snapTradeService: snapTradeService,
		oauthConfig: &oauth2.Config{
			ClientID:     config.Cfg.BrokerOAuthClientID,
			ClientSecret: config.Cfg.BrokerOAuthSecret,
			RedirectURL:  config.Cfg.BrokerOAuthRedirect,
			Scopes:       []string{"read"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.Cfg.BrokerOAuthAuthURL,
				TokenURL: config.Cfg.BrokerOAuthTokenURL,
			},
		},
	}
}

func (h *ConnectionHandler) HandleListConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	connections, err := h.store.ListConnections(userID)
	if err != nil {
		logger.L.Error("Error listing connections", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error retrieving connections", http.StatusInternalServerError)
		return
	}
	if connections == nil {
		connections = []models.ExchangeConnection{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"connections": connections,
	})
}

type createConnectionRequest struct {
	Exchange  string `json:"exchange"`
	Label     string `json:"label"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

func (h *ConnectionHandler) HandleCreateConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Exchange = strings.ToUpper(strings.TrimSpace(req.Exchange))
	// Labels end up in re-exported spreadsheets, keep them formula-inert.
	req.Label = validation.SanitizeForFormulaInjection(strings.TrimSpace(req.Label))
	if req.Exchange == "" || req.APIKey == "" || req.APISecret == "" {
		utils.SendJSONError(w, "exchange, apiKey and apiSecret are required", http.StatusBadRequest)
		return
	}

	plaintext, err := json.Marshal(models.ConnectionCredentials{
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
	})
	if err != nil {
		utils.SendJSONError(w, "An internal error occurred", http.StatusInternalServerError)
		return
	}
	sealed, err := h.sealer.Seal(plaintext)
	if err != nil {
		logger.L.Error("Failed to seal connection credentials", "userID", userID, "error", err)
		utils.SendJSONError(w, "An internal error occurred", http.StatusInternalServerError)
		return
	}

	conn := &models.ExchangeConnection{
		ID:                uuid.NewString(),
		UserID:            userID,
		Exchange:          req.Exchange,
		Label:             req.Label,
		SealedCredentials: sealed,
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.store.CreateConnection(conn); err != nil {
		logger.L.Error("Failed to create connection", "userID", userID, "exchange", req.Exchange, "error", err)
		utils.SendJSONError(w, "Error creating connection", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Connection created", "userID", userID, "connectionID", conn.ID, "exchange", conn.Exchange)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":    true,
		"connection": conn,
	})
}

// HandleDeleteConnection removes a connection. Its trades and snapshots go
// with it via the cascading foreign keys, so the analytics cache is
// invalidated too.
func (h *ConnectionHandler) HandleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")
	if connectionID == "" {
		utils.SendJSONError(w, "connection id required", http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteConnection(userID, connectionID); err != nil {
		if errors.Is(err, services.ErrConnectionMissing) {
			utils.SendJSONError(w, services.ErrConnectionMissing.Error(), http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to delete connection", "userID", userID, "connectionID", connectionID, "error", err)
		utils.SendJSONError(w, "Error deleting connection", http.StatusInternalServerError)
		return
	}

	if err := h.store.DeleteAnalyticsCache(userID); err != nil {
		logger.L.Warn("Failed to invalidate analytics cache after connection delete", "userID", userID, "error", err)
	}

	logger.L.Info("Connection deleted", "userID", userID, "connectionID", connectionID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
}

func (h *ConnectionHandler) HandleSnapTradeRegister(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	user, err := h.snapTradeService.RegisterUser(r.Context(), userID)
	if err != nil {
		logger.L.Error("Aggregator registration failed", "userID", userID, "error", err)
		utils.SendJSONError(w, "Error registering with brokerage aggregator", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"stUserId": user.STUserID,
	})
}

func (h *ConnectionHandler) HandleSnapTradeSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("id")
	result, err := h.snapTradeService.SyncConnection(r.Context(), userID, connectionID)
	if err != nil {
		if errors.Is(err, services.ErrConnectionMissing) {
			utils.SendJSONError(w, services.ErrConnectionMissing.Error(), http.StatusNotFound)
			return
		}
		if errors.Is(err, services.ErrNotRegistered) {
			utils.SendJSONError(w, services.ErrNotRegistered.Error(), http.StatusConflict)
			return
		}
		logger.L.Error("Aggregator sync failed", "userID", userID, "connectionID", connectionID, "error", err)
		utils.SendJSONError(w, "Error syncing connection", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Success bool `json:"success"`
		*services.SyncResult
	}{true, result})
}

// oauthState is what rides through the brokerage authorize redirect. It is
// sealed so the callback can trust the user id it carries.
type oauthState struct {
	UserID   string `json:"userId"`
	Exchange string `json:"exchange"`
	Nonce    string `json:"nonce"`
}

func (h *ConnectionHandler) HandleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	if h.oauthConfig.ClientID == "" || h.oauthConfig.Endpoint.AuthURL == "" {
		utils.SendJSONError(w, "Brokerage OAuth is not configured", http.StatusNotImplemented)
		return
	}

	statePlain, err := json.Marshal(oauthState{
		UserID:   userID,
		Exchange: r.URL.Query().Get("exchange"),
		Nonce:    uuid.NewString(),
	})
	if err != nil {
		utils.SendJSONError(w, "An internal error occurred", http.StatusInternalServerError)
		return
	}
	sealed, err := h.sealer.Seal(statePlain)
	if err != nil {
		logger.L.Error("Failed to seal OAuth state", "userID", userID, "error", err)
		utils.SendJSONError(w, "An internal error occurred", http.StatusInternalServerError)
		return
	}
	state := base64.RawURLEncoding.EncodeToString(sealed)

	authURL := h.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      true,
		"authorizeUrl": authURL,
	})
}

func (h *ConnectionHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	frontendErr := func(code string) {
		http.Redirect(w, r, fmt.Sprintf("%s/connections?error=%s", config.Cfg.FrontendBaseURL, code), http.StatusTemporaryRedirect)
	}

	sealed, err := base64.RawURLEncoding.DecodeString(r.FormValue("state"))
	if err != nil {
		logger.L.Warn("OAuth callback with undecodable state")
		frontendErr("invalid_state")
		return
	}
	statePlain, err := h.sealer.Open(sealed)
	if err != nil {
		logger.L.Warn("OAuth callback with unverifiable state", "error", err)
		frontendErr("invalid_state")
		return
	}
	var state oauthState
	if err := json.Unmarshal(statePlain, &state); err != nil || state.UserID == "" {
		frontendErr("invalid_state")
		return
	}

	token, err := h.oauthConfig.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		logger.L.Error("Failed to exchange OAuth code for token", "userID", state.UserID, "error", err)
		frontendErr("token_exchange_failed")
		return
	}

	tokenPlain, err := json.Marshal(token)
	if err != nil {
		frontendErr("token_store_failed")
		return
	}
	sealedToken, err := h.sealer.Seal(tokenPlain)
	if err != nil {
		logger.L.Error("Failed to seal OAuth token", "userID", state.UserID, "error", err)
		frontendErr("token_store_failed")
		return
	}

	exchange := state.Exchange
	if exchange == "" {
		exchange = models.ExchangeSnapTrade
	}
	conn := &models.ExchangeConnection{
		ID:                uuid.NewString(),
		UserID:            state.UserID,
		Exchange:          exchange,
		Label:             "Linked brokerage account",
		SealedCredentials: sealedToken,
		CreatedAt:         time.Now().UTC(),
	}
	if err := h.store.CreateConnection(conn); err != nil {
		logger.L.Error("Failed to persist OAuth-linked connection", "userID", state.UserID, "error", err)
		frontendErr("connection_create_failed")
		return
	}

	logger.L.Info("Brokerage account linked via OAuth", "userID", state.UserID, "connectionID", conn.ID)
	http.Redirect(w, r, fmt.Sprintf("%s/connections?linked=%s", config.Cfg.FrontendBaseURL, conn.ID), http.StatusTemporaryRedirect)
}
