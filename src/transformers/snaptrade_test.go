package transformers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradeclarity/backend/src/models"
)

func TestTradeFromActivity_TypeFiltering(t *testing.T) {
	tests := []struct {
		name     string
		activity models.BrokerActivity
		wantKept bool
		wantBuy  bool
	}{
		{
			name:     "explicit BUY",
			activity: models.BrokerActivity{ID: "a1", Type: "BUY", Symbol: "AAPL", Units: 10, Price: 150},
			wantKept: true,
			wantBuy:  true,
		},
		{
			name:     "explicit SELL with negative units",
			activity: models.BrokerActivity{ID: "a2", Type: "SELL", Symbol: "AAPL", Units: -10, Price: 160},
			wantKept: true,
			wantBuy:  false,
		},
		{
			name:     "lowercase type is accepted",
			activity: models.BrokerActivity{ID: "a3", Type: "buy", Symbol: "MSFT", Units: 1, Price: 400},
			wantKept: true,
			wantBuy:  true,
		},
		{
			name:     "blank type falls back to positive units",
			activity: models.BrokerActivity{ID: "a4", Symbol: "TSLA", Units: 5, Price: 200},
			wantKept: true,
			wantBuy:  true,
		},
		{
			name:     "blank type falls back to negative units",
			activity: models.BrokerActivity{ID: "a5", Symbol: "TSLA", Units: -5, Price: 210},
			wantKept: true,
			wantBuy:  false,
		},
		{
			name:     "blank type with zero units is dropped",
			activity: models.BrokerActivity{ID: "a6", Symbol: "TSLA", Units: 0},
			wantKept: false,
		},
		{
			name:     "DIVIDEND is dropped",
			activity: models.BrokerActivity{ID: "a7", Type: "DIVIDEND", Symbol: "KO", Units: 0, Price: 0},
			wantKept: false,
		},
		{
			name:     "CONTRIBUTION is dropped",
			activity: models.BrokerActivity{ID: "a8", Type: "CONTRIBUTION", Units: 1000},
			wantKept: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := TradeFromActivity(tt.activity, "conn-1")
			if !tt.wantKept {
				assert.Nil(t, trade)
				return
			}
			require.NotNil(t, trade)
			assert.Equal(t, tt.wantBuy, trade.IsBuyer)
		})
	}
}

func TestTradeFromActivity_Normalization(t *testing.T) {
	trade := TradeFromActivity(models.BrokerActivity{
		ID:        "act-9",
		Type:      "SELL",
		Symbol:    "aapl",
		Units:     -12.5,
		Price:     160,
		Fee:       -1.25,
		Currency:  "usd",
		TradeDate: "2025-03-01 10:00:00",
	}, "conn-7")

	require.NotNil(t, trade)
	assert.Equal(t, "act-9", trade.TradeID)
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, "12.5", trade.Quantity.String(), "quantity is always the absolute value")
	assert.Equal(t, "1.25", trade.Commission.String(), "commission is always the absolute value")
	assert.Equal(t, "USD", trade.CommissionAsset)
	assert.Equal(t, "2000", trade.QuoteQuantity.String())
	assert.Equal(t, models.ExchangeSnapTrade, trade.Exchange)
	assert.Equal(t, "conn-7", trade.ConnectionID)
	assert.Equal(t, models.AccountTypeSpot, trade.AccountType)
	assert.NotZero(t, trade.TradeTime)
	assert.Contains(t, trade.RawData, `"act-9"`, "the source activity is retained for audit")
}

func TestTradeFromActivity_SynthesizesMissingID(t *testing.T) {
	trade := TradeFromActivity(models.BrokerActivity{Type: "BUY", Symbol: "NVDA", Units: 1, Price: 800}, "conn-1")

	require.NotNil(t, trade)
	assert.True(t, strings.HasPrefix(trade.TradeID, "snaptrade-"), "missing ids are synthesized, got %q", trade.TradeID)
	assert.Greater(t, len(trade.TradeID), len("snaptrade-"))
}

func TestTradeFromActivity_ZeroEconomicsStillEmitted(t *testing.T) {
	trade := TradeFromActivity(models.BrokerActivity{ID: "z1", Type: "BUY", Symbol: "XYZ", Units: 0, Price: 0}, "conn-1")

	require.NotNil(t, trade, "a typed BUY with zero units is emitted, rejection is downstream's call")
	assert.True(t, trade.Quantity.IsZero())
	assert.True(t, trade.QuoteQuantity.IsZero())
}
