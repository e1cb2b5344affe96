package models

import "time"

// Holding is one asset position inside a snapshot.
type Holding struct {
	Asset    string  `json:"asset"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	USDValue float64 `json:"usdValue"`

	// Set during aggregation, not by the sync job.
	Exchange         string `json:"exchange,omitempty"`
	OriginalCurrency string `json:"originalCurrency,omitempty"`
}

// HoldingSnapshot is a point-in-time capture of one connection's balances and
// valuation. Snapshots are never mutated; newer ones supersede older ones.
type HoldingSnapshot struct {
	ID                  int64     `json:"-"`
	UserID              string    `json:"-"`
	ConnectionID        string    `json:"connectionId"`
	Exchange            string    `json:"exchange"`
	Holdings            []Holding `json:"holdings"`
	TotalPortfolioValue float64   `json:"totalPortfolioValue"`
	TotalSpotValue      float64   `json:"totalSpotValue"`
	TotalFuturesValue   float64   `json:"totalFuturesValue"`
	PrimaryCurrency     string    `json:"primaryCurrency"`
	SnapshotTime        time.Time `json:"snapshotTime"`
}

// AggregatedPortfolio is the combined view over the most recent snapshot of
// every connection, normalized to USD.
type AggregatedPortfolio struct {
	TotalPortfolioValue float64   `json:"totalPortfolioValue"`
	TotalSpotValue      float64   `json:"totalSpotValue"`
	TotalFuturesValue   float64   `json:"totalFuturesValue"`
	Holdings            []Holding `json:"holdings"`
	SnapshotTime        time.Time `json:"snapshotTime"`
	SnapshotCount       int       `json:"snapshotCount"`
}
