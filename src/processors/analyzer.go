package processors

import (
	"sort"

	"github.com/username/tradeclarity/backend/src/models"
)

// AnalyticsProcessor computes trading analytics over the normalized wire
// payloads. Spot realized PnL uses average-cost accounting per symbol;
// futures PnL is the sum of realized income records.
type AnalyticsProcessor struct{}

func NewAnalyticsProcessor() *AnalyticsProcessor { return &AnalyticsProcessor{} }

type symbolPosition struct {
	stat      models.SymbolStat
	qty       float64
	costOfQty float64
}

func (p *AnalyticsProcessor) Analyze(
	spot []models.SpotTradePayload,
	futures []models.FuturesIncomePayload,
	portfolio *models.AggregatedPortfolio,
) *models.AnalyticsResult {
	result := &models.AnalyticsResult{
		TotalTrades: len(spot),
		Portfolio:   portfolio,
	}

	positions := make(map[string]*symbolPosition)

	ordered := make([]models.SpotTradePayload, len(spot))
	copy(ordered, spot)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time })

	for _, t := range ordered {
		if result.FirstTradeTime == 0 || t.Time < result.FirstTradeTime {
			result.FirstTradeTime = t.Time
		}
		if t.Time > result.LastTradeTime {
			result.LastTradeTime = t.Time
		}

		qty, _ := t.Qty.Float64()
		price, _ := t.Price.Float64()
		quote, _ := t.QuoteQty.Float64()
		commission, _ := t.Commission.Float64()

		result.TotalVolume += quote
		result.TotalCommission += commission

		pos, ok := positions[t.Symbol]
		if !ok {
			pos = &symbolPosition{stat: models.SymbolStat{Symbol: t.Symbol}}
			positions[t.Symbol] = pos
		}
		pos.stat.Trades++
		pos.stat.Volume += quote

		if t.IsBuyer {
			result.BuyCount++
			pos.qty += qty
			pos.costOfQty += qty * price
			pos.stat.NetQuantity += qty
			continue
		}

		result.SellCount++
		pos.stat.NetQuantity -= qty

		// Realized PnL against the average cost of the open quantity. Sells
		// beyond the tracked position (transfers in, missing history) realize
		// nothing for the untracked part.
		if pos.qty > 0 {
			matched := qty
			if matched > pos.qty {
				matched = pos.qty
			}
			avgCost := pos.costOfQty / pos.qty
			pnl := matched * (price - avgCost)

			pos.stat.RealizedPnl += pnl
			result.SpotRealizedPnl += pnl
			if pnl > 0 {
				result.WinningTrades++
			} else if pnl < 0 {
				result.LosingTrades++
			}

			pos.qty -= matched
			pos.costOfQty -= matched * avgCost
		}
	}

	for _, f := range futures {
		income, _ := f.Income.Float64()
		result.FuturesRealizedPnl += income
		if income > 0 {
			result.WinningTrades++
		} else if income < 0 {
			result.LosingTrades++
		}
	}

	if closed := result.WinningTrades + result.LosingTrades; closed > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(closed) * 100
	}

	for _, pos := range positions {
		result.SymbolStats = append(result.SymbolStats, pos.stat)
	}
	sort.Slice(result.SymbolStats, func(i, j int) bool {
		if result.SymbolStats[i].Volume != result.SymbolStats[j].Volume {
			return result.SymbolStats[i].Volume > result.SymbolStats[j].Volume
		}
		return result.SymbolStats[i].Symbol < result.SymbolStats[j].Symbol
	})

	return result
}
