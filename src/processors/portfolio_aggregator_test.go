package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradeclarity/backend/src/models"
)

func TestAggregate_EmptyInput(t *testing.T) {
	result := NewPortfolioAggregator().Aggregate(nil)

	require.NotNil(t, result)
	assert.Zero(t, result.TotalPortfolioValue)
	assert.Zero(t, result.SnapshotCount)
	assert.NotNil(t, result.Holdings, "holdings must serialize as [] not null")
}

func TestAggregate_LatestSnapshotPerConnectionWins(t *testing.T) {
	older := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)

	result := NewPortfolioAggregator().Aggregate([]models.HoldingSnapshot{
		{
			ConnectionID: "conn-1", Exchange: "BINANCE", PrimaryCurrency: "USD",
			SnapshotTime: older, TotalSpotValue: 1000,
			Holdings: []models.Holding{{Asset: "BTC", USDValue: 1000}},
		},
		{
			ConnectionID: "conn-1", Exchange: "BINANCE", PrimaryCurrency: "USD",
			SnapshotTime: newer, TotalSpotValue: 500,
			Holdings: []models.Holding{{Asset: "BTC", USDValue: 500}},
		},
	})

	assert.Equal(t, 1, result.SnapshotCount, "two snapshots of one connection count once")
	require.Len(t, result.Holdings, 1)
	assert.InDelta(t, 500, result.Holdings[0].USDValue, 0.001, "newer snapshot supersedes, values are not merged")
	assert.Equal(t, newer, result.SnapshotTime)
}

func TestAggregate_CurrencyNormalization(t *testing.T) {
	snapTime := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	result := NewPortfolioAggregator().Aggregate([]models.HoldingSnapshot{
		{
			ConnectionID: "conn-inr", Exchange: "COINDCX", PrimaryCurrency: "INR",
			SnapshotTime: snapTime, TotalSpotValue: 87000,
			Holdings: []models.Holding{{Asset: "BTC", USDValue: 87000}},
		},
	})

	require.Len(t, result.Holdings, 1)
	assert.InDelta(t, 1000, result.Holdings[0].USDValue, 0.001, "87000 INR at 1/87 is 1000 USD")
	assert.InDelta(t, 1000, result.TotalSpotValue, 0.001)
	assert.Equal(t, "INR", result.Holdings[0].OriginalCurrency)
}

func TestAggregate_DeduplicatesByAssetAndExchangeKeepingMax(t *testing.T) {
	snapTime := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	result := NewPortfolioAggregator().Aggregate([]models.HoldingSnapshot{
		{
			ConnectionID: "conn-1", Exchange: "BINANCE", PrimaryCurrency: "USD",
			SnapshotTime: snapTime, TotalSpotValue: 900,
			Holdings: []models.Holding{
				{Asset: "btc", USDValue: 600},
				{Asset: "ETH", USDValue: 300},
			},
		},
		{
			ConnectionID: "conn-2", Exchange: "binance", PrimaryCurrency: "USD",
			SnapshotTime: snapTime.Add(time.Minute), TotalSpotValue: 450,
			Holdings: []models.Holding{
				{Asset: "BTC", USDValue: 450},
			},
		},
		{
			ConnectionID: "conn-3", Exchange: "COINDCX", PrimaryCurrency: "USD",
			SnapshotTime: snapTime, TotalSpotValue: 100,
			Holdings: []models.Holding{
				{Asset: "BTC", USDValue: 100},
			},
		},
	})

	// btc@binance dedups case-insensitively to the larger value; btc@coindcx
	// is a distinct key and survives.
	require.Len(t, result.Holdings, 3)
	assert.Equal(t, 3, result.SnapshotCount)

	byKey := map[string]float64{}
	for _, h := range result.Holdings {
		byKey[h.Asset+"@"+h.Exchange] = h.USDValue
	}
	assert.InDelta(t, 600, byKey["btc@BINANCE"], 0.001)
	assert.InDelta(t, 300, byKey["ETH@BINANCE"], 0.001)
	assert.InDelta(t, 100, byKey["BTC@COINDCX"], 0.001)

	// The total is recomputed from the deduplicated holdings, not summed from
	// the per-snapshot totals (which would double count BTC).
	assert.InDelta(t, 1000, result.TotalPortfolioValue, 0.001)
}

func TestAggregate_HoldingsSortedByValueDescending(t *testing.T) {
	snapTime := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	result := NewPortfolioAggregator().Aggregate([]models.HoldingSnapshot{
		{
			ConnectionID: "conn-1", Exchange: "BINANCE", PrimaryCurrency: "USD",
			SnapshotTime: snapTime,
			Holdings: []models.Holding{
				{Asset: "DOGE", USDValue: 10},
				{Asset: "BTC", USDValue: 900},
				{Asset: "ETH", USDValue: 200},
			},
		},
	})

	require.Len(t, result.Holdings, 3)
	assert.Equal(t, "BTC", result.Holdings[0].Asset)
	assert.Equal(t, "ETH", result.Holdings[1].Asset)
	assert.Equal(t, "DOGE", result.Holdings[2].Asset)
}
