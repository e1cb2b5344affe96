package transformers

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradeclarity/backend/src/models"
)

func TestSpotPayloadFromExchangeRow(t *testing.T) {
	tests := []struct {
		name      string
		row       models.ExchangeTradeRow
		wantBuyer bool
		wantMaker bool
		wantQuote string
	}{
		{
			name: "limit buy with explicit quote qty",
			row: models.ExchangeTradeRow{
				ID: "1001", Symbol: "BTCUSDT", Side: "BUY", Type: "LIMIT",
				Price: "50000", Quantity: "0.01", QuoteQuantity: "500",
				Commission: "0.0005", CommissionAsset: "BTC", Time: 1700000000000,
			},
			wantBuyer: true,
			wantMaker: true,
			wantQuote: "500",
		},
		{
			name: "market sell derives quote qty",
			row: models.ExchangeTradeRow{
				ID: "1002", Symbol: "ETHUSDT", Side: "SELL", Type: "MARKET",
				Price: "3000", Quantity: "2", Time: 1700000100000,
			},
			wantBuyer: false,
			wantMaker: false,
			wantQuote: "6000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := SpotPayloadFromExchangeRow(tt.row)
			assert.Equal(t, tt.wantBuyer, payload.IsBuyer)
			assert.Equal(t, tt.wantMaker, payload.IsMaker)
			assert.Equal(t, tt.wantQuote, payload.QuoteQty.String())
			assert.Equal(t, models.AccountTypeSpot, payload.AccountType)
			assert.Equal(t, tt.row.ID, payload.ID)
		})
	}

	t.Run("garbage numerics degrade to zero", func(t *testing.T) {
		payload := SpotPayloadFromExchangeRow(models.ExchangeTradeRow{ID: "x", Price: "n/a", Quantity: ""})
		assert.True(t, payload.Price.IsZero())
		assert.True(t, payload.Qty.IsZero())
	})
}

func TestPayloadsMarshalNumericsAsStrings(t *testing.T) {
	spot := SpotPayloadFromTrade(models.CanonicalTrade{
		TradeID: "t-1", Symbol: "BTCUSDT", IsBuyer: true,
		Quantity: decimal.RequireFromString("0.01"),
		Price:    decimal.RequireFromString("50000"),
	})
	raw, err := json.Marshal(spot)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":"50000"`)
	assert.Contains(t, string(raw), `"qty":"0.01"`)

	futures := FuturesPayloadFromRecord(models.FuturesIncomeRecord{
		TranID: "f-1", Symbol: "BTCUSDT", Income: decimal.RequireFromString("-3.21"), Asset: "USDT",
	})
	raw, err = json.Marshal(futures)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"income":"-3.21"`)
	assert.Equal(t, "f-1", futures.ID, "the record id doubles as the payload id")
}
