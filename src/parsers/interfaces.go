package parsers

import (
	"errors"

	"github.com/username/tradeclarity/backend/src/models"
)

// Machine-stable parse errors surfaced to clients as 400s.
var (
	ErrEmptyFile           = errors.New("EMPTY_FILE")
	ErrMalformedCSV        = errors.New("MALFORMED_CSV")
	ErrUnsupportedExchange = errors.New("UNSUPPORTED_EXCHANGE")
)

// ColumnMapping associates logical trade fields to literal header column
// names in an uploaded file. Mappings come from the client (user-confirmed or
// AI-suggested); when one is unusable the parser falls back to the
// per-exchange presets and then to generic header detection.
type ColumnMapping struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Timestamp    string `json:"timestamp"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	Fee          string `json:"fee,omitempty"`
	FeeAsset     string `json:"feeAsset,omitempty"`
	Total        string `json:"total,omitempty"`
	RealizedPnl  string `json:"realizedPnl,omitempty"`
	PositionSide string `json:"positionSide,omitempty"`
}

// Usable reports whether the mapping carries the minimum columns to emit any
// record at all: symbol and timestamp, plus either spot economics or a
// futures PnL column.
func (m ColumnMapping) Usable() bool {
	if m.Symbol == "" || m.Timestamp == "" {
		return false
	}
	if m.RealizedPnl != "" {
		return true
	}
	return m.Price != "" && m.Quantity != ""
}

// ImpliesFutures reports whether the mapping itself marks the file as a
// futures export, used when the caller gives no explicit account type.
func (m ColumnMapping) ImpliesFutures() bool {
	return m.PositionSide != "" || m.RealizedPnl != ""
}

// ParseResult is the outcome of parsing one uploaded file. The invariant
// len(SpotTrades)+len(FuturesIncome)+SkippedRows == TotalRows always holds.
type ParseResult struct {
	SpotTrades    []models.CanonicalTrade
	FuturesIncome []models.FuturesIncomeRecord
	AccountType   string
	TotalRows     int
	SkippedRows   int
}
