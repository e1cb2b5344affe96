package parsers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/tradeclarity/backend/src/models"
)

func TestParse_BinancePresetRoundTrip(t *testing.T) {
	raw := "Date(UTC),Pair,Side,Price,Executed,Amount,Fee\n" +
		"2025-03-01 10:00:00,BTCUSDT,BUY,50000,0.01,500,0.0005\n" +
		"2025-03-01 11:00:00,ETHUSDT,SELL,3000,1.5,4500,0.45\n"

	mapping, err := ResolveMapping(nil, "binance", SplitHeader("Date(UTC),Pair,Side,Price,Executed,Amount,Fee"))
	require.NoError(t, err)

	result, err := NewCSVTradeParser().Parse(raw, mapping, "binance", models.AccountTypeSpot)
	require.NoError(t, err)

	assert.Equal(t, models.AccountTypeSpot, result.AccountType)
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, 0, result.SkippedRows)
	require.Len(t, result.SpotTrades, 2)

	buy := result.SpotTrades[0]
	assert.Equal(t, "BTCUSDT", buy.Symbol)
	assert.True(t, buy.IsBuyer)
	assert.Equal(t, "50000", buy.Price.String())
	assert.Equal(t, "0.01", buy.Quantity.String())
	assert.Equal(t, "500", buy.QuoteQuantity.String(), "the Amount column overrides price*qty")
	assert.Equal(t, "0.0005", buy.Commission.String())
	assert.Equal(t, "binance", buy.Exchange)
	assert.NotEmpty(t, buy.TradeID)
	assert.NotZero(t, buy.TradeTime)

	sell := result.SpotTrades[1]
	assert.False(t, sell.IsBuyer)
}

func TestParse_RowAccountingInvariant(t *testing.T) {
	// Row 2 has no symbol, row 3 has a garbage timestamp, row 4 has a garbage
	// price. Every data row must land in either records or skipped.
	raw := "Date(UTC),Pair,Side,Price,Executed,Amount,Fee\n" +
		"2025-03-01 10:00:00,BTCUSDT,BUY,50000,0.01,500,0\n" +
		"2025-03-01 10:01:00,,BUY,50000,0.01,500,0\n" +
		"not-a-date,ETHUSDT,SELL,3000,1,3000,0\n" +
		"2025-03-01 10:02:00,SOLUSDT,BUY,oops,2,300,0\n"

	mapping, err := ResolveMapping(nil, "binance", SplitHeader(raw[:len("Date(UTC),Pair,Side,Price,Executed,Amount,Fee")]))
	require.NoError(t, err)

	result, err := NewCSVTradeParser().Parse(raw, mapping, "binance", models.AccountTypeSpot)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalRows)
	assert.Equal(t, 3, result.SkippedRows)
	assert.Len(t, result.SpotTrades, 1)
	assert.Equal(t, result.TotalRows, len(result.SpotTrades)+result.SkippedRows,
		"records plus skipped must account for every data row")
}

func TestParse_QuotedFieldsAndSeparators(t *testing.T) {
	raw := "Timestamp,Market,Side,Price,Quantity,Fee,Fee Currency,Total\n" +
		`2025-03-01 10:00:00,BTCINR,BUY,"1,234.56",2,"0.5",INR,"2,469.12"` + "\n"

	mapping, err := ResolveMapping(nil, "coindcx", SplitHeader("Timestamp,Market,Side,Price,Quantity,Fee,Fee Currency,Total"))
	require.NoError(t, err)

	result, err := NewCSVTradeParser().Parse(raw, mapping, "coindcx", models.AccountTypeSpot)
	require.NoError(t, err)

	require.Len(t, result.SpotTrades, 1)
	trade := result.SpotTrades[0]
	assert.Equal(t, "1234.56", trade.Price.String(), "a quoted thousands-separated value is one field")
	assert.Equal(t, "2469.12", trade.QuoteQuantity.String())
	assert.Equal(t, "INR", trade.CommissionAsset)
}

func TestParseDecimalField_SeparatorLocales(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"thousands with decimal point", "1,234.56", "1234.56"},
		{"thousands-grouped integer", "1,234", "1234"},
		{"multiple thousands groups", "1,234,567", "1234567"},
		{"european decimal comma", "1,5", "1.5"},
		{"european decimal with long fraction", "0,00012", "0.00012"},
		{"plain integer", "500", "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecimalField(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParse_FeeWithEmbeddedAsset(t *testing.T) {
	raw := "Date(UTC),Pair,Side,Price,Executed,Amount,Fee\n" +
		"2025-03-01 10:00:00,BTCUSDT,BUY,50000,0.01,500,0.00012BTC\n"

	mapping, err := ResolveMapping(nil, "binance", SplitHeader("Date(UTC),Pair,Side,Price,Executed,Amount,Fee"))
	require.NoError(t, err)

	result, err := NewCSVTradeParser().Parse(raw, mapping, "binance", models.AccountTypeSpot)
	require.NoError(t, err)

	require.Len(t, result.SpotTrades, 1)
	assert.Equal(t, "0.00012", result.SpotTrades[0].Commission.String())
	assert.Equal(t, "BTC", result.SpotTrades[0].CommissionAsset)
}

func TestParse_FuturesRouting(t *testing.T) {
	header := "Date(UTC),Symbol,Side,Price,Quantity,Fee,Realized Profit"
	raw := header + "\n" +
		"2025-03-01 10:00:00,BTCUSDT,SELL,50000,0.01,0.02,12.34\n" +
		"2025-03-01 10:05:00,BTCUSDT,BUY,49000,0.01,0.02,-3.21\n"

	mapping, err := ResolveMapping(nil, "binance-futures", SplitHeader(header))
	require.NoError(t, err)

	t.Run("explicit futures account type", func(t *testing.T) {
		result, err := NewCSVTradeParser().Parse(raw, mapping, "binance", models.AccountTypeFutures)
		require.NoError(t, err)

		assert.Equal(t, models.AccountTypeFutures, result.AccountType)
		assert.Empty(t, result.SpotTrades)
		require.Len(t, result.FuturesIncome, 2)
		assert.Equal(t, "12.34", result.FuturesIncome[0].Income.String())
		assert.Equal(t, "-3.21", result.FuturesIncome[1].Income.String())
		assert.Equal(t, "REALIZED_PNL", result.FuturesIncome[0].IncomeType)
		assert.Equal(t, "USDT", result.FuturesIncome[0].Asset, "asset defaults to USDT when the file has none")
	})

	t.Run("inferred from mapping", func(t *testing.T) {
		result, err := NewCSVTradeParser().Parse(raw, mapping, "binance", "")
		require.NoError(t, err)
		assert.Equal(t, models.AccountTypeFutures, result.AccountType, "a realizedPnl mapping implies futures")
		assert.Len(t, result.FuturesIncome, 2)
	})
}

func TestParse_EmptyAndMalformedInput(t *testing.T) {
	parser := NewCSVTradeParser()
	mapping := exchangePresets["binance"]

	_, err := parser.Parse("   \n  ", mapping, "binance", models.AccountTypeSpot)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = parser.Parse("Date(UTC),Pair,Side,Price,Executed,Amount,Fee\n", mapping, "binance", models.AccountTypeSpot)
	assert.ErrorIs(t, err, ErrMalformedCSV, "a header with no data rows is malformed")

	_, err = parser.Parse("just one junk line", ColumnMapping{Symbol: "Pair", Timestamp: "Date(UTC)"}, "binance", models.AccountTypeSpot)
	assert.ErrorIs(t, err, ErrMalformedCSV)
}

func TestParse_StableRowIDs(t *testing.T) {
	raw := "Date(UTC),Pair,Side,Price,Executed,Amount,Fee\n" +
		"2025-03-01 10:00:00,BTCUSDT,BUY,50000,0.01,500,0\n"

	mapping := exchangePresets["binance"]
	first, err := NewCSVTradeParser().Parse(raw, mapping, "binance", models.AccountTypeSpot)
	require.NoError(t, err)
	second, err := NewCSVTradeParser().Parse(raw, mapping, "binance", models.AccountTypeSpot)
	require.NoError(t, err)

	assert.Equal(t, first.SpotTrades[0].TradeID, second.SpotTrades[0].TradeID,
		"re-importing the same file must produce the same ids for dedup")
}

func TestResolveMapping_FallbackChain(t *testing.T) {
	binanceHeader := SplitHeader("Date(UTC),Pair,Side,Price,Executed,Amount,Fee")

	t.Run("supplied mapping wins when it fits", func(t *testing.T) {
		supplied := &ColumnMapping{Symbol: "Pair", Timestamp: "Date(UTC)", Price: "Price", Quantity: "Executed"}
		mapping, err := ResolveMapping(supplied, "binance", binanceHeader)
		require.NoError(t, err)
		assert.Equal(t, *supplied, mapping)
	})

	t.Run("unfit supplied mapping falls through to preset", func(t *testing.T) {
		supplied := &ColumnMapping{Symbol: "Ticker", Timestamp: "When", Price: "Px", Quantity: "Qty"}
		mapping, err := ResolveMapping(supplied, "binance", binanceHeader)
		require.NoError(t, err)
		assert.Equal(t, exchangePresets["binance"], mapping)
	})

	t.Run("unknown exchange falls through to alias detection", func(t *testing.T) {
		header := SplitHeader("Time,Instrument,Direction,Rate,Size,Fees")
		mapping, err := ResolveMapping(nil, "kraken", header)
		require.NoError(t, err)
		assert.Equal(t, "Instrument", mapping.Symbol)
		assert.Equal(t, "Time", mapping.Timestamp)
		assert.Equal(t, "Rate", mapping.Price)
		assert.Equal(t, "Size", mapping.Quantity)
	})

	t.Run("nothing fits", func(t *testing.T) {
		header := SplitHeader("colA,colB,colC")
		_, err := ResolveMapping(nil, "unknown", header)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedCSV))
	})
}
