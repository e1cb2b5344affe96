package processors

import (
	"sort"
	"strings"

	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
)

// Fixed approximate conversion rates to USD for snapshot currencies. This is
// intentionally not the live rate chain: snapshots are already stale by the
// time they are aggregated, and a fixed rate keeps aggregation deterministic.
var usdConversionRates = map[string]float64{
	"USD": 1,
	"INR": 1.0 / 87.0,
	"EUR": 1.09,
	"GBP": 1.27,
}

// PortfolioAggregator merges per-connection holding snapshots into one
// combined USD-denominated view.
type PortfolioAggregator struct{}

func NewPortfolioAggregator() *PortfolioAggregator { return &PortfolioAggregator{} }

// Aggregate keeps only the most recent snapshot per connection, normalizes
// each to USD, concatenates holdings, deduplicates by asset+exchange keeping
// the larger usdValue, and recomputes the total from the deduplicated
// holdings. The recalculated total is authoritative over the per-snapshot
// sums because it reflects the deduplication.
func (a *PortfolioAggregator) Aggregate(snapshots []models.HoldingSnapshot) *models.AggregatedPortfolio {
	result := &models.AggregatedPortfolio{Holdings: []models.Holding{}}
	if len(snapshots) == 0 {
		return result
	}

	// Latest snapshot per connection; later snapshots fully supersede
	// earlier ones, there is no partial merge within a connection.
	latest := make(map[string]models.HoldingSnapshot)
	for _, snap := range snapshots {
		if prev, ok := latest[snap.ConnectionID]; !ok || snap.SnapshotTime.After(prev.SnapshotTime) {
			latest[snap.ConnectionID] = snap
		}
	}

	deduped := make(map[string]models.Holding)
	for _, snap := range latest {
		rate := usdRate(snap.PrimaryCurrency)

		result.TotalSpotValue += snap.TotalSpotValue * rate
		result.TotalFuturesValue += snap.TotalFuturesValue * rate
		if snap.SnapshotTime.After(result.SnapshotTime) {
			result.SnapshotTime = snap.SnapshotTime
		}
		result.SnapshotCount++

		for _, h := range snap.Holdings {
			h.Exchange = snap.Exchange
			h.OriginalCurrency = snap.PrimaryCurrency
			h.USDValue *= rate

			key := strings.ToUpper(h.Asset) + "|" + strings.ToUpper(snap.Exchange)
			if existing, ok := deduped[key]; !ok || h.USDValue > existing.USDValue {
				// Larger value wins on duplicates; values are never summed.
				deduped[key] = h
			}
		}
	}

	total := 0.0
	for _, h := range deduped {
		result.Holdings = append(result.Holdings, h)
		total += h.USDValue
	}
	result.TotalPortfolioValue = total

	sort.Slice(result.Holdings, func(i, j int) bool {
		if result.Holdings[i].USDValue != result.Holdings[j].USDValue {
			return result.Holdings[i].USDValue > result.Holdings[j].USDValue
		}
		return result.Holdings[i].Asset < result.Holdings[j].Asset
	})

	return result
}

func usdRate(currency string) float64 {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return 1
	}
	if rate, ok := usdConversionRates[currency]; ok {
		return rate
	}
	logger.L.Warn("No USD conversion rate for snapshot currency, assuming 1:1", "currency", currency)
	return 1
}
