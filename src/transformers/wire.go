package transformers

import (
	"github.com/shopspring/decimal"
	"github.com/username/tradeclarity/backend/src/models"
)

// SpotPayloadFromTrade maps a stored canonical trade to the analyzer wire
// shape. Numeric fields ride as strings on the wire; decimal handles that at
// marshal time.
func SpotPayloadFromTrade(t models.CanonicalTrade) models.SpotTradePayload {
	return models.SpotTradePayload{
		ID:              t.TradeID,
		Symbol:          t.Symbol,
		Qty:             t.Quantity,
		Price:           t.Price,
		QuoteQty:        t.QuoteQuantity,
		Commission:      t.Commission,
		CommissionAsset: t.CommissionAsset,
		IsBuyer:         t.IsBuyer,
		IsMaker:         t.IsMaker,
		Time:            t.TradeTime,
		OrderID:         t.OrderID,
		AccountType:     t.AccountType,
	}
}

// SpotPayloadFromExchangeRow maps a native exchange trade row to the analyzer
// wire shape. isBuyer derives from the exchange's side field, isMaker from
// the order type.
func SpotPayloadFromExchangeRow(r models.ExchangeTradeRow) models.SpotTradePayload {
	price := mustDecimal(r.Price)
	qty := mustDecimal(r.Quantity)
	quoteQty := mustDecimal(r.QuoteQuantity)
	if quoteQty.IsZero() {
		quoteQty = price.Mul(qty)
	}

	return models.SpotTradePayload{
		ID:              r.ID,
		Symbol:          r.Symbol,
		Qty:             qty,
		Price:           price,
		QuoteQty:        quoteQty,
		Commission:      mustDecimal(r.Commission),
		CommissionAsset: r.CommissionAsset,
		IsBuyer:         r.Side == "BUY",
		IsMaker:         r.Type == "LIMIT",
		Time:            r.Time,
		OrderID:         r.OrderID,
		AccountType:     models.AccountTypeSpot,
	}
}

// FuturesPayloadFromRecord maps a stored futures income record to the
// analyzer wire shape.
func FuturesPayloadFromRecord(r models.FuturesIncomeRecord) models.FuturesIncomePayload {
	return models.FuturesIncomePayload{
		ID:         r.TranID,
		Symbol:     r.Symbol,
		Income:     r.Income,
		Asset:      r.Asset,
		IncomeType: r.IncomeType,
		Time:       r.Time,
		TranID:     r.TranID,
	}
}

func mustDecimal(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
