package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/processors"
	"github.com/username/tradeclarity/backend/src/transformers"
)

// slidingExpiryWindow is how far the expiry moves forward when a compute
// request hits a still-valid cache entry.
const slidingExpiryWindow = time.Hour

// analyticsServiceImpl runs the compute/cache pipeline:
// fetch trades -> (empty: delete cache, stop) -> hash -> cache lookup ->
// (fresh: bump expiry, stop) -> portfolio (best effort) -> analyze ->
// format AI context -> upsert cache.
type analyticsServiceImpl struct {
	store     TradeStore
	analyzer  Analyzer
	portfolio PortfolioService
	cacheTTL  time.Duration
	now       func() time.Time
}

func NewAnalyticsService(store TradeStore, analyzer Analyzer, portfolio PortfolioService, cacheTTL time.Duration) AnalyticsService {
	return &analyticsServiceImpl{
		store:     store,
		analyzer:  analyzer,
		portfolio: portfolio,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

func (s *analyticsServiceImpl) Compute(ctx context.Context, userID, trigger string) (*ComputeOutcome, error) {
	start := s.now()
	logger.L.Info("Analytics compute requested", "userID", userID, "trigger", trigger)

	trades, err := s.store.FetchTrades(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTradeFetchFailed, err)
	}

	// Zero trades is a terminal state, not a stale cache: drop the row so the
	// dashboard reports "no trades" rather than serving leftovers.
	if len(trades) == 0 {
		if err := s.store.DeleteAnalyticsCache(userID); err != nil {
			logger.L.Warn("Failed to delete analytics cache for empty trade set", "userID", userID, "error", err)
		}
		return nil, ErrNoTrades
	}

	currentHash := processors.ComputeTradesHash(trades)

	cached, err := s.store.GetAnalyticsCache(userID)
	if err != nil {
		logger.L.Warn("Analytics cache lookup failed, recomputing", "userID", userID, "error", err)
	}
	if cached != nil && cached.TradesHash == currentHash && s.now().Before(cached.ExpiresAt) {
		newExpiry := s.now().Add(slidingExpiryWindow)
		if err := s.store.TouchAnalyticsCacheExpiry(userID, newExpiry); err != nil {
			logger.L.Warn("Failed to bump analytics cache expiry", "userID", userID, "error", err)
		}
		logger.L.Info("Analytics cache fresh, skipping recompute", "userID", userID, "totalTrades", cached.TotalTrades)
		return &ComputeOutcome{Cached: true, TotalTrades: cached.TotalTrades, ComputedAt: cached.ComputedAt}, nil
	}

	// Portfolio data is best effort: analytics still compute without it.
	var portfolio *models.AggregatedPortfolio
	if s.portfolio != nil {
		if portfolio, err = s.portfolio.GetAggregatedPortfolio(userID); err != nil {
			logger.L.Warn("Portfolio fetch failed, computing analytics without portfolio", "userID", userID, "error", err)
			portfolio = nil
		}
	}

	futures, err := s.store.FetchFuturesIncome(userID)
	if err != nil {
		logger.L.Warn("Futures income fetch failed, computing analytics without it", "userID", userID, "error", err)
		futures = nil
	}

	spotPayloads := make([]models.SpotTradePayload, 0, len(trades))
	for _, t := range trades {
		spotPayloads = append(spotPayloads, transformers.SpotPayloadFromTrade(t))
	}
	futuresPayloads := make([]models.FuturesIncomePayload, 0, len(futures))
	for _, f := range futures {
		futuresPayloads = append(futuresPayloads, transformers.FuturesPayloadFromRecord(f))
	}

	result := s.analyzer.Analyze(spotPayloads, futuresPayloads, portfolio)

	computedAt := s.now()
	entry := &models.AnalyticsCacheEntry{
		UserID:        userID,
		AnalyticsData: result,
		AIContext:     FormatAIContext(result),
		TotalTrades:   result.TotalTrades,
		TradesHash:    currentHash,
		ExpiresAt:     computedAt.Add(s.cacheTTL),
		ComputedAt:    computedAt,
	}

	// Losing the upsert would silently discard the recomputation, so this
	// failure is fatal to the request.
	if err := s.store.UpsertAnalyticsCache(entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSaveFailed, err)
	}

	logger.L.Info("Analytics recomputed", "userID", userID, "totalTrades", result.TotalTrades, "duration", s.now().Sub(start))
	return &ComputeOutcome{Computed: true, TotalTrades: result.TotalTrades, ComputedAt: computedAt}, nil
}

// GetCached returns the cache entry only while it is still valid: the stored
// hash must match the user's current trade set and the expiry must be in the
// future.
func (s *analyticsServiceImpl) GetCached(userID string) (*models.AnalyticsCacheEntry, bool) {
	entry, err := s.store.GetAnalyticsCache(userID)
	if err != nil || entry == nil {
		return nil, false
	}
	if !s.now().Before(entry.ExpiresAt) {
		return nil, false
	}

	trades, err := s.store.FetchTrades(userID)
	if err != nil || len(trades) == 0 {
		return nil, false
	}
	if processors.ComputeTradesHash(trades) != entry.TradesHash {
		return nil, false
	}
	return entry, true
}

// FormatAIContext renders a compact plain-text summary of the analytics for
// the chat assistant's system context.
func FormatAIContext(r *models.AnalyticsResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trading summary: %d trades (%d buys, %d sells), total volume %.2f, commissions %.2f.\n",
		r.TotalTrades, r.BuyCount, r.SellCount, r.TotalVolume, r.TotalCommission)
	fmt.Fprintf(&b, "Realized PnL: spot %.2f, futures %.2f. Win rate %.1f%% (%d wins / %d losses).\n",
		r.SpotRealizedPnl, r.FuturesRealizedPnl, r.WinRate, r.WinningTrades, r.LosingTrades)

	limit := len(r.SymbolStats)
	if limit > 5 {
		limit = 5
	}
	for _, stat := range r.SymbolStats[:limit] {
		fmt.Fprintf(&b, "%s: %d trades, volume %.2f, realized PnL %.2f.\n",
			stat.Symbol, stat.Trades, stat.Volume, stat.RealizedPnl)
	}

	if r.Portfolio != nil && r.Portfolio.SnapshotCount > 0 {
		fmt.Fprintf(&b, "Portfolio: %.2f USD across %d connection(s), %d holdings.\n",
			r.Portfolio.TotalPortfolioValue, r.Portfolio.SnapshotCount, len(r.Portfolio.Holdings))
	}
	return b.String()
}
