package models

import "time"

// AnalyticsCacheEntry is the single cached analytics row per user. It is
// derived state, rebuildable from the user's canonical trades at any time,
// and valid only while TradesHash matches the current trade set and the
// expiry has not passed.
type AnalyticsCacheEntry struct {
	UserID        string           `json:"-"`
	AnalyticsData *AnalyticsResult `json:"analyticsData"`
	AIContext     string           `json:"aiContext"`
	TotalTrades   int              `json:"totalTrades"`
	TradesHash    string           `json:"-"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	ComputedAt    time.Time        `json:"computedAt"`
}

// SymbolStat is the per-symbol breakdown inside an analytics result.
type SymbolStat struct {
	Symbol      string  `json:"symbol"`
	Trades      int     `json:"trades"`
	Volume      float64 `json:"volume"`
	NetQuantity float64 `json:"netQuantity"`
	RealizedPnl float64 `json:"realizedPnl"`
}

// AnalyticsResult is the computed analytics payload stored in the cache and
// returned to the dashboard.
type AnalyticsResult struct {
	TotalTrades        int          `json:"totalTrades"`
	BuyCount           int          `json:"buyCount"`
	SellCount          int          `json:"sellCount"`
	TotalVolume        float64      `json:"totalVolume"`
	TotalCommission    float64      `json:"totalCommission"`
	SpotRealizedPnl    float64      `json:"spotRealizedPnl"`
	FuturesRealizedPnl float64      `json:"futuresRealizedPnl"`
	WinRate            float64      `json:"winRate"`
	WinningTrades      int          `json:"winningTrades"`
	LosingTrades       int          `json:"losingTrades"`
	FirstTradeTime     int64        `json:"firstTradeTime"`
	LastTradeTime      int64        `json:"lastTradeTime"`
	SymbolStats        []SymbolStat `json:"symbolStats"`

	Portfolio *AggregatedPortfolio `json:"portfolio,omitempty"`
}
