package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradeclarity/backend/src/models"
)

// aggregatorStore extends the shared stub with the identity and connection
// behavior the aggregator service exercises.
type aggregatorStore struct {
	stubTradeStore

	conn             *models.ExchangeConnection
	stUser           *models.SnapTradeUser
	getOrCreateCalls int
	insertedTrades   int
	snapshots        int
}

func (s *aggregatorStore) GetConnection(userID, connectionID string) (*models.ExchangeConnection, error) {
	if s.conn == nil || s.conn.ID != connectionID {
		return nil, ErrConnectionMissing
	}
	return s.conn, nil
}

func (s *aggregatorStore) GetSnapTradeUser(userID string) (*models.SnapTradeUser, error) {
	if s.stUser == nil {
		return nil, ErrNotRegistered
	}
	return s.stUser, nil
}

func (s *aggregatorStore) GetOrCreateSnapTradeUser(userID, stUserID, stUserSecret string) (*models.SnapTradeUser, error) {
	s.getOrCreateCalls++
	if s.stUser == nil {
		s.stUser = &models.SnapTradeUser{UserID: userID, STUserID: stUserID, STUserSecret: stUserSecret}
	}
	return s.stUser, nil
}

func (s *aggregatorStore) InsertTrades(userID string, trades []models.CanonicalTrade) (int, int, error) {
	s.insertedTrades += len(trades)
	return len(trades), 0, nil
}

func (s *aggregatorStore) InsertHoldingSnapshot(snap *models.HoldingSnapshot) error {
	s.snapshots++
	return nil
}

func newAggregatorTestServer(t *testing.T, registerCalls *int, activities []models.BrokerActivity) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/snapTrade/registerUser":
			*registerCalls++
			json.NewEncoder(w).Encode(map[string]string{"userId": "ok"})
		case "/activities":
			json.NewEncoder(w).Encode(activities)
		case "/balances":
			json.NewEncoder(w).Encode([]models.BrokerBalance{
				{Asset: "AAPL", Quantity: 10, Price: 150, Value: 1500, Currency: "USD"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestRegisterUser_UpstreamCalledOnlyByRowWinner(t *testing.T) {
	registerCalls := 0
	srv := newAggregatorTestServer(t, &registerCalls, nil)
	defer srv.Close()

	store := &aggregatorStore{}
	svc := NewSnapTradeService(srv.URL, "client-id", "consumer-key", time.Second, store)

	user, err := svc.RegisterUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 1, registerCalls)

	again, err := svc.RegisterUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, user.STUserID, again.STUserID)
	assert.Equal(t, 1, registerCalls, "a pre-existing row means registration already happened")
}

func TestSyncConnection_UnregisteredUserFailsWithoutMintingIdentity(t *testing.T) {
	store := &aggregatorStore{conn: &models.ExchangeConnection{ID: "conn-1", UserID: "user-1"}}
	svc := NewSnapTradeService("http://127.0.0.1:0", "client-id", "consumer-key", time.Second, store)

	_, err := svc.SyncConnection(context.Background(), "user-1", "conn-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.Zero(t, store.getOrCreateCalls, "sync must never create aggregator credentials")
	assert.Nil(t, store.stUser)
}

func TestSyncBeforeRegisterDoesNotSwallowRegistration(t *testing.T) {
	registerCalls := 0
	srv := newAggregatorTestServer(t, &registerCalls, nil)
	defer srv.Close()

	store := &aggregatorStore{conn: &models.ExchangeConnection{ID: "conn-1", UserID: "user-1"}}
	svc := NewSnapTradeService(srv.URL, "client-id", "consumer-key", time.Second, store)

	_, err := svc.SyncConnection(context.Background(), "user-1", "conn-1")
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = svc.RegisterUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, registerCalls, "registration after a failed sync must still reach the aggregator")
}

func TestSyncConnection_RegisteredUserHappyPath(t *testing.T) {
	registerCalls := 0
	srv := newAggregatorTestServer(t, &registerCalls, []models.BrokerActivity{
		{ID: "a-1", Type: "BUY", Symbol: "AAPL", Units: 10, Price: 150, Currency: "USD", TradeDate: "2025-03-01T10:00:00Z"},
		{ID: "a-2", Type: "DIVIDEND", Symbol: "AAPL", Units: 0, Price: 0, Currency: "USD", TradeDate: "2025-03-02T10:00:00Z"},
	})
	defer srv.Close()

	store := &aggregatorStore{
		conn:   &models.ExchangeConnection{ID: "conn-1", UserID: "user-1"},
		stUser: &models.SnapTradeUser{UserID: "user-1", STUserID: "tc-abc", STUserSecret: "secret"},
	}
	svc := NewSnapTradeService(srv.URL, "client-id", "consumer-key", time.Second, store)

	result, err := svc.SyncConnection(context.Background(), "user-1", "conn-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.TradesInserted)
	assert.Equal(t, 1, result.ActivitiesDropped, "non-trade activities are dropped")
	assert.True(t, result.SnapshotRecorded)
	assert.Equal(t, 1, store.snapshots)
	assert.Equal(t, 1, store.deleteCalls, "new trades invalidate the analytics cache")
	assert.Zero(t, registerCalls)
}
