package transformers

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/utils"
)

// TradeFromActivity maps one aggregator activity onto the canonical trade
// schema. Only trade-shaped activities survive: BUY and SELL are kept,
// everything else (dividends, contributions, transfers) returns nil and is
// dropped by the caller.
//
// isBuyer comes from the explicit activity type; the sign of the units field
// is consulted only when the type is blank. Quantity is always abs(units).
// A zero-units, zero-price activity is still emitted; rejecting it is the
// job of downstream validation, not the transformer.
func TradeFromActivity(activity models.BrokerActivity, connectionID string) *models.CanonicalTrade {
	var isBuyer bool
	switch strings.ToUpper(strings.TrimSpace(activity.Type)) {
	case "BUY":
		isBuyer = true
	case "SELL":
		isBuyer = false
	case "":
		if activity.Units == 0 {
			return nil
		}
		isBuyer = activity.Units > 0
	default:
		return nil
	}

	tradeID := activity.ID
	if tradeID == "" {
		tradeID = "snaptrade-" + uuid.NewString()
	}

	tradeTime, err := utils.ParseTimestampMillis(activity.TradeDate)
	if err != nil {
		tradeTime = 0
	}

	quantity := decimal.NewFromFloat(activity.Units).Abs()
	price := decimal.NewFromFloat(activity.Price)

	raw, _ := json.Marshal(activity)

	return &models.CanonicalTrade{
		TradeID:         tradeID,
		Symbol:          strings.ToUpper(activity.Symbol),
		AccountType:     models.AccountTypeSpot,
		IsBuyer:         isBuyer,
		Quantity:        quantity,
		Price:           price,
		QuoteQuantity:   price.Mul(quantity),
		Commission:      decimal.NewFromFloat(activity.Fee).Abs(),
		CommissionAsset: strings.ToUpper(activity.Currency),
		TradeTime:       tradeTime,
		Exchange:        models.ExchangeSnapTrade,
		ConnectionID:    connectionID,
		RawData:         string(raw),
	}
}
