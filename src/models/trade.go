package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account types a trade can belong to. The account type decides whether a
// record is projected into the spot trade stream or the futures income stream.
const (
	AccountTypeSpot    = "SPOT"
	AccountTypeFutures = "FUTURES"
)

// Known provenance values for canonical trades.
const (
	ExchangeBinance   = "binance"
	ExchangeCoinDCX   = "coindcx"
	ExchangeSnapTrade = "snaptrade"
	ExchangeCSVImport = "csv-import"
)

// CanonicalTrade is the unified trade representation every source (native
// exchange API, CSV upload, brokerage aggregator) is normalized into before
// analytics. It is immutable after ingestion; corrections happen via
// re-import, deletions cascade from the owning connection or upload.
type CanonicalTrade struct {
	ID          int64  `json:"-"`
	UserID      string `json:"-"`
	TradeID     string `json:"tradeId"`
	OrderID     string `json:"orderId,omitempty"`
	Symbol      string `json:"symbol"`
	AccountType string `json:"accountType"`
	IsBuyer     bool   `json:"isBuyer"`
	IsMaker     bool   `json:"isMaker"`

	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	QuoteQuantity   decimal.Decimal `json:"quoteQuantity"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`

	// TradeTime is a UTC epoch in milliseconds, already normalized from the
	// source timezone.
	TradeTime int64 `json:"tradeTime"`

	Exchange     string `json:"exchange"`
	ConnectionID string `json:"connectionId,omitempty"`
	// RawData keeps the opaque source payload (CSV line, activity JSON) for audit.
	RawData string `json:"-"`

	UpdatedAt time.Time `json:"-"`
}

// FuturesIncomeRecord is the derived projection of a FUTURES-account trade.
type FuturesIncomeRecord struct {
	ID           int64           `json:"-"`
	UserID       string          `json:"-"`
	TranID       string          `json:"tranId"`
	Symbol       string          `json:"symbol"`
	Income       decimal.Decimal `json:"income"`
	Asset        string          `json:"asset"`
	IncomeType   string          `json:"incomeType"`
	Time         int64           `json:"time"`
	Exchange     string          `json:"exchange"`
	ConnectionID string          `json:"connectionId,omitempty"`
	RawData      string          `json:"-"`
	UpdatedAt    time.Time       `json:"-"`
}

// ExchangeTradeRow mirrors a trade row as persisted from a native exchange
// API, with the exchange's own field conventions (string side/type) intact.
type ExchangeTradeRow struct {
	ID              string `json:"id"`
	OrderID         string `json:"orderId"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"` // BUY or SELL
	Type            string `json:"type"` // LIMIT, MARKET, ...
	Price           string `json:"price"`
	Quantity        string `json:"qty"`
	QuoteQuantity   string `json:"quoteQty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
}

// SpotTradePayload is the wire shape the external analyzer consumes for spot
// trades. Numeric fields are string-typed on the wire; decimal.Decimal
// marshals as a quoted string, which satisfies that contract.
type SpotTradePayload struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Qty             decimal.Decimal `json:"qty"`
	Price           decimal.Decimal `json:"price"`
	QuoteQty        decimal.Decimal `json:"quoteQty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	IsBuyer         bool            `json:"isBuyer"`
	IsMaker         bool            `json:"isMaker"`
	Time            int64           `json:"time"`
	OrderID         string          `json:"orderId"`
	AccountType     string          `json:"accountType"`
}

// FuturesIncomePayload is the analyzer wire shape for futures income.
type FuturesIncomePayload struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Income     decimal.Decimal `json:"income"`
	Asset      string          `json:"asset"`
	IncomeType string          `json:"incomeType"`
	Time       int64           `json:"time"`
	TranID     string          `json:"tranId"`
}
