package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/transformers"
	"golang.org/x/net/publicsuffix"
)

// snapTradeServiceImpl talks to the brokerage aggregator API and lands the
// results in canonical storage. Requests are signed with the consumer key;
// the client carries a cookie jar because the aggregator pins session
// affinity on some endpoints.
type snapTradeServiceImpl struct {
	baseURL     string
	clientID    string
	consumerKey string
	httpClient  *http.Client
	store       TradeStore
}

func NewSnapTradeService(baseURL, clientID, consumerKey string, timeout time.Duration, store TradeStore) SnapTradeService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar for aggregator client", "error", err)
	}

	return &snapTradeServiceImpl{
		baseURL:     baseURL,
		clientID:    clientID,
		consumerKey: consumerKey,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		store: store,
	}
}

// RegisterUser ensures this user has an aggregator identity. The store makes
// the insert-or-fetch atomic, so two concurrent registrations for the same
// user converge on the same credentials instead of racing.
func (s *snapTradeServiceImpl) RegisterUser(ctx context.Context, userID string) (*models.SnapTradeUser, error) {
	candidateID := "tc-" + uuid.NewString()
	candidateSecret := uuid.NewString()

	user, err := s.store.GetOrCreateSnapTradeUser(userID, candidateID, candidateSecret)
	if err != nil {
		return nil, fmt.Errorf("registering aggregator user: %w", err)
	}

	// Only the row winner registers upstream; a pre-existing row means the
	// upstream registration already happened.
	if user.STUserID == candidateID {
		body := map[string]string{"userId": user.STUserID, "userSecret": user.STUserSecret}
		if err := s.call(ctx, http.MethodPost, "/snapTrade/registerUser", body, nil); err != nil {
			return nil, fmt.Errorf("upstream aggregator registration failed: %w", err)
		}
		logger.L.Info("Registered user with aggregator", "userID", userID)
	}
	return user, nil
}

// SyncConnection pulls activities and balances for one connection, stores the
// trade-shaped activities as canonical trades, records a fresh holding
// snapshot, and invalidates the analytics cache when anything new landed.
func (s *snapTradeServiceImpl) SyncConnection(ctx context.Context, userID, connectionID string) (*SyncResult, error) {
	conn, err := s.store.GetConnection(userID, connectionID)
	if err != nil {
		return nil, err
	}

	// Read-only lookup: syncing must never mint an identity, or a later
	// RegisterUser would find the row and skip the upstream registration.
	stUser, err := s.store.GetSnapTradeUser(userID)
	if err != nil {
		return nil, fmt.Errorf("loading aggregator identity: %w", err)
	}

	query := url.Values{
		"userId":     {stUser.STUserID},
		"userSecret": {stUser.STUserSecret},
	}
	if conn.SnapTradeAuthID != "" {
		query.Set("authorizationId", conn.SnapTradeAuthID)
	}

	var activities []models.BrokerActivity
	if err := s.call(ctx, http.MethodGet, "/activities?"+query.Encode(), nil, &activities); err != nil {
		return nil, fmt.Errorf("fetching aggregator activities: %w", err)
	}

	result := &SyncResult{}
	var trades []models.CanonicalTrade
	for _, activity := range activities {
		trade := transformers.TradeFromActivity(activity, connectionID)
		if trade == nil {
			result.ActivitiesDropped++
			continue
		}
		trades = append(trades, *trade)
	}

	inserted, duplicates, err := s.store.InsertTrades(userID, trades)
	if err != nil {
		return nil, fmt.Errorf("persisting aggregator trades: %w", err)
	}
	result.TradesInserted = inserted
	result.TradesSkipped = duplicates

	// Balances are best effort: a failed balances call still leaves the
	// trade sync intact.
	var balances []models.BrokerBalance
	if err := s.call(ctx, http.MethodGet, "/balances?"+query.Encode(), nil, &balances); err != nil {
		logger.L.Warn("Aggregator balances fetch failed, skipping snapshot", "userID", userID, "connectionID", connectionID, "error", err)
	} else if len(balances) > 0 {
		snapshot := snapshotFromBalances(userID, conn, balances)
		if err := s.store.InsertHoldingSnapshot(snapshot); err != nil {
			logger.L.Warn("Failed to record holding snapshot", "userID", userID, "connectionID", connectionID, "error", err)
		} else {
			result.SnapshotRecorded = true
		}
	}

	if result.TradesInserted > 0 {
		if err := s.store.DeleteAnalyticsCache(userID); err != nil {
			logger.L.Warn("Failed to invalidate analytics cache after sync", "userID", userID, "error", err)
		}
	}

	logger.L.Info("Aggregator sync finished", "userID", userID, "connectionID", connectionID,
		"inserted", result.TradesInserted, "dropped", result.ActivitiesDropped)
	return result, nil
}

func snapshotFromBalances(userID string, conn *models.ExchangeConnection, balances []models.BrokerBalance) *models.HoldingSnapshot {
	snapshot := &models.HoldingSnapshot{
		UserID:          userID,
		ConnectionID:    conn.ID,
		Exchange:        models.ExchangeSnapTrade,
		PrimaryCurrency: "USD",
		SnapshotTime:    time.Now().UTC(),
	}

	for _, b := range balances {
		snapshot.Holdings = append(snapshot.Holdings, models.Holding{
			Asset:    b.Asset,
			Quantity: b.Quantity,
			Price:    b.Price,
			USDValue: b.Value,
		})
		snapshot.TotalSpotValue += b.Value
		if b.Currency != "" {
			snapshot.PrimaryCurrency = b.Currency
		}
	}
	snapshot.TotalPortfolioValue = snapshot.TotalSpotValue
	return snapshot
}

// call performs one signed aggregator request. The caller's context bounds
// the whole exchange on top of the client timeout.
func (s *snapTradeServiceImpl) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody []byte
	if body != nil {
		var err error
		if reqBody, err = json.Marshal(body); err != nil {
			return err
		}
	}

	fullURL := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("clientId", s.clientID)
	req.Header.Set("timestamp", timestamp)
	req.Header.Set("Signature", s.sign(path, timestamp, reqBody))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("aggregator request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("aggregator returned status %d for %s", resp.StatusCode, path)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding aggregator response for %s: %w", path, err)
		}
	}
	return nil
}

func (s *snapTradeServiceImpl) sign(path, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.consumerKey))
	mac.Write([]byte(path + "|" + timestamp + "|"))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
