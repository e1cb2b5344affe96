package services

import (
	"context"
	"errors"
	"time"

	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/parsers"
)

// Machine-stable service errors. Handlers translate these into HTTP status
// codes and the JSON error strings clients switch on.
var (
	ErrParsingFailed     = errors.New("PARSING_FAILED")
	ErrNoTrades          = errors.New("NO_TRADES")
	ErrTradeFetchFailed  = errors.New("FAILED_TO_FETCH_TRADES")
	ErrCacheSaveFailed   = errors.New("FAILED_TO_SAVE_CACHE")
	ErrConnectionMissing = errors.New("CONNECTION_NOT_FOUND")
	ErrNotRegistered     = errors.New("SNAPTRADE_NOT_REGISTERED")
)

// TradeStore is the persistence boundary for trades, futures income, holding
// snapshots, analytics cache rows and exchange connections. All operations
// are scoped by user id.
type TradeStore interface {
	InsertTrades(userID string, trades []models.CanonicalTrade) (inserted, duplicates int, err error)
	InsertFuturesIncome(userID string, records []models.FuturesIncomeRecord) (inserted, duplicates int, err error)
	FetchTrades(userID string) ([]models.CanonicalTrade, error)
	FetchFuturesIncome(userID string) ([]models.FuturesIncomeRecord, error)
	CountTrades(userID string) (int, error)

	GetAnalyticsCache(userID string) (*models.AnalyticsCacheEntry, error)
	UpsertAnalyticsCache(entry *models.AnalyticsCacheEntry) error
	TouchAnalyticsCacheExpiry(userID string, expiresAt time.Time) error
	DeleteAnalyticsCache(userID string) error

	InsertHoldingSnapshot(snap *models.HoldingSnapshot) error
	LatestSnapshotForConnection(userID, connectionID string) (*models.HoldingSnapshot, error)

	CreateConnection(conn *models.ExchangeConnection) error
	ListConnections(userID string) ([]models.ExchangeConnection, error)
	GetConnection(userID, connectionID string) (*models.ExchangeConnection, error)
	DeleteConnection(userID, connectionID string) error

	GetOrCreateSnapTradeUser(userID, stUserID, stUserSecret string) (*models.SnapTradeUser, error)
	GetSnapTradeUser(userID string) (*models.SnapTradeUser, error)
}

// ImportResult is what an upload returns to the client: the records emitted
// in analyzer wire shape plus the row accounting.
type ImportResult struct {
	SpotTrades    []models.SpotTradePayload     `json:"spotTrades"`
	FuturesIncome []models.FuturesIncomePayload `json:"futuresIncome"`
	AccountType   string                        `json:"accountType"`
	TotalRows     int                           `json:"totalRows"`
	SkippedRows   int                           `json:"skippedRows"`
	Inserted      int                           `json:"inserted"`
	Duplicates    int                           `json:"duplicates"`
}

// ImportService ingests trade history from CSV uploads.
type ImportService interface {
	ProcessCSVUpload(raw string, userID, exchange, accountType string, mapping *parsers.ColumnMapping) (*ImportResult, error)
	GetLatestImportResult(userID string) (*ImportResult, bool)
}

// ComputeOutcome reports what the analytics orchestrator did for a request.
type ComputeOutcome struct {
	Cached      bool      `json:"cached"`
	Computed    bool      `json:"computed"`
	TotalTrades int       `json:"totalTrades"`
	ComputedAt  time.Time `json:"computedAt"`
}

// AnalyticsService owns the compute/cache orchestration for a user's
// analytics.
type AnalyticsService interface {
	Compute(ctx context.Context, userID, trigger string) (*ComputeOutcome, error)
	GetCached(userID string) (*models.AnalyticsCacheEntry, bool)
}

// Analyzer computes the analytics payload from normalized trades. The
// portfolio argument is best-effort and may be nil.
type Analyzer interface {
	Analyze(spot []models.SpotTradePayload, futures []models.FuturesIncomePayload, portfolio *models.AggregatedPortfolio) *models.AnalyticsResult
}

// PortfolioService produces the combined multi-connection portfolio view.
type PortfolioService interface {
	GetAggregatedPortfolio(userID string) (*models.AggregatedPortfolio, error)
}

// RateResult is the currency-rate response including which provider served it.
type RateResult struct {
	Rates   map[string]float64 `json:"rates"`
	Source  string             `json:"source"`
	AgeDays int                `json:"ageDays"`
}

// RateService resolves USD-based currency rates through an ordered provider
// chain (live API, database cache, static constants).
type RateService interface {
	GetRates(ctx context.Context) (*RateResult, error)
}

// SnapTradeService wraps the brokerage aggregator: per-user registration,
// activity/balance sync into canonical storage.
type SnapTradeService interface {
	RegisterUser(ctx context.Context, userID string) (*models.SnapTradeUser, error)
	SyncConnection(ctx context.Context, userID, connectionID string) (*SyncResult, error)
}

// SyncResult summarizes one aggregator sync run.
type SyncResult struct {
	TradesInserted    int  `json:"tradesInserted"`
	TradesSkipped     int  `json:"tradesSkipped"`
	ActivitiesDropped int  `json:"activitiesDropped"`
	SnapshotRecorded  bool `json:"snapshotRecorded"`
}

// EmailService delivers analytics summary reports.
type EmailService interface {
	SendAnalyticsSummary(toEmail, subject, body string) error
}
