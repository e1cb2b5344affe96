package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/username/tradeclarity/backend/src/database"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
)

// sqlTradeStore implements TradeStore over the shared database handle.
type sqlTradeStore struct {
	db *sql.DB
}

func NewTradeStore() TradeStore {
	return &sqlTradeStore{db: database.DB}
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func (s *sqlTradeStore) InsertTrades(userID string, trades []models.CanonicalTrade) (int, int, error) {
	if len(trades) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("beginning trade insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO trades
		(user_id, connection_id, exchange, trade_id, order_id, symbol, account_type, is_buyer, is_maker,
		 quantity, price, quote_quantity, commission, commission_asset, trade_time, raw_data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing trade insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	inserted, duplicates := 0, 0
	for _, t := range trades {
		_, err := stmt.Exec(
			userID, nullable(t.ConnectionID), t.Exchange, t.TradeID, t.OrderID, t.Symbol, t.AccountType,
			t.IsBuyer, t.IsMaker,
			t.Quantity.String(), t.Price.String(), t.QuoteQuantity.String(), t.Commission.String(),
			t.CommissionAsset, t.TradeTime, t.RawData, now,
		)
		if err != nil {
			if isUniqueConstraintErr(err) {
				duplicates++
				continue
			}
			return 0, 0, fmt.Errorf("inserting trade %s: %w", t.TradeID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing trade inserts: %w", err)
	}
	return inserted, duplicates, nil
}

func (s *sqlTradeStore) InsertFuturesIncome(userID string, records []models.FuturesIncomeRecord) (int, int, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("beginning futures income transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO futures_income
		(user_id, connection_id, exchange, tran_id, symbol, income, asset, income_type, time, raw_data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing futures income insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	inserted, duplicates := 0, 0
	for _, r := range records {
		_, err := stmt.Exec(
			userID, nullable(r.ConnectionID), r.Exchange, r.TranID, r.Symbol,
			r.Income.String(), r.Asset, r.IncomeType, r.Time, r.RawData, now,
		)
		if err != nil {
			if isUniqueConstraintErr(err) {
				duplicates++
				continue
			}
			return 0, 0, fmt.Errorf("inserting futures income %s: %w", r.TranID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing futures income inserts: %w", err)
	}
	return inserted, duplicates, nil
}

func (s *sqlTradeStore) FetchTrades(userID string) ([]models.CanonicalTrade, error) {
	rows, err := s.db.Query(`SELECT id, trade_id, order_id, symbol, account_type, is_buyer, is_maker,
		quantity, price, quote_quantity, commission, commission_asset, trade_time,
		exchange, COALESCE(connection_id, ''), COALESCE(raw_data, ''), updated_at
		FROM trades WHERE user_id = ? ORDER BY trade_time ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []models.CanonicalTrade
	for rows.Next() {
		var t models.CanonicalTrade
		var qty, price, quoteQty, commission string
		var orderID sql.NullString
		var updatedAt int64
		if err := rows.Scan(&t.ID, &t.TradeID, &orderID, &t.Symbol, &t.AccountType, &t.IsBuyer, &t.IsMaker,
			&qty, &price, &quoteQty, &commission, &t.CommissionAsset, &t.TradeTime,
			&t.Exchange, &t.ConnectionID, &t.RawData, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning trade row: %w", err)
		}
		t.OrderID = orderID.String
		t.UserID = userID
		t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		if err := scanDecimals(&t, qty, price, quoteQty, commission); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *sqlTradeStore) FetchFuturesIncome(userID string) ([]models.FuturesIncomeRecord, error) {
	rows, err := s.db.Query(`SELECT id, tran_id, symbol, income, COALESCE(asset, ''), COALESCE(income_type, ''),
		time, exchange, COALESCE(connection_id, ''), updated_at
		FROM futures_income WHERE user_id = ? ORDER BY time ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying futures income: %w", err)
	}
	defer rows.Close()

	var records []models.FuturesIncomeRecord
	for rows.Next() {
		var r models.FuturesIncomeRecord
		var income string
		var updatedAt int64
		if err := rows.Scan(&r.ID, &r.TranID, &r.Symbol, &income, &r.Asset, &r.IncomeType,
			&r.Time, &r.Exchange, &r.ConnectionID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning futures income row: %w", err)
		}
		r.UserID = userID
		r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		if err := r.Income.Scan(income); err != nil {
			return nil, fmt.Errorf("parsing stored income %q: %w", income, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *sqlTradeStore) CountTrades(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

func (s *sqlTradeStore) GetAnalyticsCache(userID string) (*models.AnalyticsCacheEntry, error) {
	var entry models.AnalyticsCacheEntry
	var analyticsJSON string
	var expiresAt, computedAt int64

	err := s.db.QueryRow(`SELECT analytics_data, COALESCE(ai_context, ''), total_trades, trades_hash, expires_at, computed_at
		FROM analytics_cache WHERE user_id = ?`, userID).
		Scan(&analyticsJSON, &entry.AIContext, &entry.TotalTrades, &entry.TradesHash, &expiresAt, &computedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying analytics cache: %w", err)
	}

	entry.UserID = userID
	entry.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	entry.ComputedAt = time.UnixMilli(computedAt).UTC()
	if err := json.Unmarshal([]byte(analyticsJSON), &entry.AnalyticsData); err != nil {
		return nil, fmt.Errorf("decoding cached analytics payload: %w", err)
	}
	return &entry, nil
}

func (s *sqlTradeStore) UpsertAnalyticsCache(entry *models.AnalyticsCacheEntry) error {
	analyticsJSON, err := json.Marshal(entry.AnalyticsData)
	if err != nil {
		return fmt.Errorf("encoding analytics payload: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO analytics_cache (user_id, analytics_data, ai_context, total_trades, trades_hash, expires_at, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			analytics_data = excluded.analytics_data,
			ai_context = excluded.ai_context,
			total_trades = excluded.total_trades,
			trades_hash = excluded.trades_hash,
			expires_at = excluded.expires_at,
			computed_at = excluded.computed_at`,
		entry.UserID, string(analyticsJSON), entry.AIContext, entry.TotalTrades, entry.TradesHash,
		entry.ExpiresAt.UnixMilli(), entry.ComputedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upserting analytics cache: %w", err)
	}
	return nil
}

func (s *sqlTradeStore) TouchAnalyticsCacheExpiry(userID string, expiresAt time.Time) error {
	_, err := s.db.Exec(`UPDATE analytics_cache SET expires_at = ? WHERE user_id = ?`,
		expiresAt.UnixMilli(), userID)
	return err
}

func (s *sqlTradeStore) DeleteAnalyticsCache(userID string) error {
	_, err := s.db.Exec(`DELETE FROM analytics_cache WHERE user_id = ?`, userID)
	return err
}

func (s *sqlTradeStore) InsertHoldingSnapshot(snap *models.HoldingSnapshot) error {
	holdingsJSON, err := json.Marshal(snap.Holdings)
	if err != nil {
		return fmt.Errorf("encoding snapshot holdings: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO holding_snapshots
		(user_id, connection_id, exchange, holdings, total_portfolio_value, total_spot_value, total_futures_value, primary_currency, snapshot_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.UserID, snap.ConnectionID, snap.Exchange, string(holdingsJSON),
		snap.TotalPortfolioValue, snap.TotalSpotValue, snap.TotalFuturesValue,
		snap.PrimaryCurrency, snap.SnapshotTime.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting holding snapshot: %w", err)
	}
	return nil
}

func (s *sqlTradeStore) LatestSnapshotForConnection(userID, connectionID string) (*models.HoldingSnapshot, error) {
	var snap models.HoldingSnapshot
	var holdingsJSON string
	var snapshotTime int64

	err := s.db.QueryRow(`SELECT id, connection_id, exchange, holdings, total_portfolio_value,
		total_spot_value, total_futures_value, primary_currency, snapshot_time
		FROM holding_snapshots WHERE user_id = ? AND connection_id = ?
		ORDER BY snapshot_time DESC LIMIT 1`, userID, connectionID).
		Scan(&snap.ID, &snap.ConnectionID, &snap.Exchange, &holdingsJSON, &snap.TotalPortfolioValue,
			&snap.TotalSpotValue, &snap.TotalFuturesValue, &snap.PrimaryCurrency, &snapshotTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot for connection %s: %w", connectionID, err)
	}

	snap.UserID = userID
	snap.SnapshotTime = time.UnixMilli(snapshotTime).UTC()
	if err := json.Unmarshal([]byte(holdingsJSON), &snap.Holdings); err != nil {
		return nil, fmt.Errorf("decoding snapshot holdings: %w", err)
	}
	return &snap, nil
}

func (s *sqlTradeStore) CreateConnection(conn *models.ExchangeConnection) error {
	_, err := s.db.Exec(`INSERT INTO exchange_connections
		(id, user_id, exchange, label, sealed_credentials, snaptrade_auth_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conn.ID, conn.UserID, conn.Exchange, conn.Label, conn.SealedCredentials,
		nullable(conn.SnapTradeAuthID), conn.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting exchange connection: %w", err)
	}
	return nil
}

func (s *sqlTradeStore) ListConnections(userID string) ([]models.ExchangeConnection, error) {
	rows, err := s.db.Query(`SELECT id, exchange, COALESCE(label, ''), COALESCE(snaptrade_auth_id, ''), created_at
		FROM exchange_connections WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []models.ExchangeConnection
	for rows.Next() {
		var c models.ExchangeConnection
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.Exchange, &c.Label, &c.SnapTradeAuthID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning connection row: %w", err)
		}
		c.UserID = userID
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (s *sqlTradeStore) GetConnection(userID, connectionID string) (*models.ExchangeConnection, error) {
	var c models.ExchangeConnection
	var createdAt int64
	err := s.db.QueryRow(`SELECT id, exchange, COALESCE(label, ''), sealed_credentials, COALESCE(snaptrade_auth_id, ''), created_at
		FROM exchange_connections WHERE user_id = ? AND id = ?`, userID, connectionID).
		Scan(&c.ID, &c.Exchange, &c.Label, &c.SealedCredentials, &c.SnapTradeAuthID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrConnectionMissing
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection %s: %w", connectionID, err)
	}
	c.UserID = userID
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &c, nil
}

// DeleteConnection removes the connection row; trades, futures income and
// snapshots cascade via foreign keys.
func (s *sqlTradeStore) DeleteConnection(userID, connectionID string) error {
	res, err := s.db.Exec(`DELETE FROM exchange_connections WHERE user_id = ? AND id = ?`, userID, connectionID)
	if err != nil {
		return fmt.Errorf("deleting connection %s: %w", connectionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConnectionMissing
	}
	logger.L.Info("Deleted exchange connection and cascaded its data", "userID", userID, "connectionID", connectionID)
	return nil
}

// GetOrCreateSnapTradeUser registers the aggregator identity atomically: a
// single conditional upsert with RETURNING, so two concurrent registrations
// converge on one row without a read-check-write race window.
func (s *sqlTradeStore) GetOrCreateSnapTradeUser(userID, stUserID, stUserSecret string) (*models.SnapTradeUser, error) {
	var u models.SnapTradeUser
	var createdAt int64
	err := s.db.QueryRow(`INSERT INTO snaptrade_users (user_id, st_user_id, st_user_secret, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET user_id = user_id
		RETURNING st_user_id, st_user_secret, created_at`,
		userID, stUserID, stUserSecret, time.Now().UnixMilli()).
		Scan(&u.STUserID, &u.STUserSecret, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("upserting snaptrade user: %w", err)
	}
	u.UserID = userID
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &u, nil
}

// GetSnapTradeUser reads the aggregator identity without creating one. Sync
// paths use this so an unregistered user fails loudly instead of minting
// credentials the aggregator has never seen.
func (s *sqlTradeStore) GetSnapTradeUser(userID string) (*models.SnapTradeUser, error) {
	var u models.SnapTradeUser
	var createdAt int64
	err := s.db.QueryRow(`SELECT st_user_id, st_user_secret, created_at FROM snaptrade_users WHERE user_id = ?`, userID).
		Scan(&u.STUserID, &u.STUserSecret, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("loading snaptrade user: %w", err)
	}
	u.UserID = userID
	u.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &u, nil
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func scanDecimals(t *models.CanonicalTrade, qty, price, quoteQty, commission string) error {
	if err := t.Quantity.Scan(qty); err != nil {
		return fmt.Errorf("parsing stored quantity %q: %w", qty, err)
	}
	if err := t.Price.Scan(price); err != nil {
		return fmt.Errorf("parsing stored price %q: %w", price, err)
	}
	if err := t.QuoteQuantity.Scan(quoteQty); err != nil {
		return fmt.Errorf("parsing stored quote quantity %q: %w", quoteQty, err)
	}
	if err := t.Commission.Scan(commission); err != nil {
		return fmt.Errorf("parsing stored commission %q: %w", commission, err)
	}
	return nil
}
