package parsers

import (
	"fmt"
	"strings"
)

// Hard-coded per-exchange column presets, matched by exact header name. These
// are the fallback when no usable mapping is supplied with the upload.
var exchangePresets = map[string]ColumnMapping{
	"binance": {
		Symbol:    "Pair",
		Side:      "Side",
		Timestamp: "Date(UTC)",
		Price:     "Price",
		Quantity:  "Executed",
		Fee:       "Fee",
		Total:     "Amount",
	},
	"binance-futures": {
		Symbol:      "Symbol",
		Side:        "Side",
		Timestamp:   "Date(UTC)",
		Price:       "Price",
		Quantity:    "Quantity",
		Fee:         "Fee",
		RealizedPnl: "Realized Profit",
	},
	"coindcx": {
		Symbol:    "Market",
		Side:      "Side",
		Timestamp: "Timestamp",
		Price:     "Price",
		Quantity:  "Quantity",
		Fee:       "Fee",
		FeeAsset:  "Fee Currency",
		Total:     "Total",
	},
}

// Aliases for generic header detection, tried when neither the supplied
// mapping nor an exchange preset fits the file.
var headerAliases = map[string][]string{
	"symbol":       {"symbol", "pair", "market", "instrument"},
	"side":         {"side", "type", "buy/sell", "direction"},
	"timestamp":    {"date(utc)", "date (utc)", "timestamp", "date", "time", "trade time", "created at"},
	"price":        {"price", "rate", "avg price", "execution price"},
	"quantity":     {"executed", "quantity", "qty", "amount", "filled", "size"},
	"fee":          {"fee", "commission", "fees"},
	"feeAsset":     {"fee currency", "fee coin", "fee asset", "commission asset"},
	"total":        {"total", "quote qty", "quote quantity", "volume"},
	"realizedPnl":  {"realized profit", "realized pnl", "realized p&l", "closed pnl"},
	"positionSide": {"position side", "positionside"},
}

// ResolveMapping picks the column mapping for an upload. Priority order:
// the supplied mapping (AI-suggested or user-confirmed), the exchange preset,
// then generic alias detection over the actual header.
func ResolveMapping(supplied *ColumnMapping, exchange string, header []string) (ColumnMapping, error) {
	if supplied != nil && supplied.Usable() && mappingFitsHeader(*supplied, header) {
		return *supplied, nil
	}

	if preset, ok := exchangePresets[strings.ToLower(exchange)]; ok && mappingFitsHeader(preset, header) {
		return preset, nil
	}

	if detected, ok := detectMapping(header); ok {
		return detected, nil
	}
	return ColumnMapping{}, fmt.Errorf("%w: no column mapping fits header %v", ErrMalformedCSV, header)
}

// mappingFitsHeader verifies that every required mapped column actually
// exists in the header (case-insensitive). Optional columns may be absent.
func mappingFitsHeader(m ColumnMapping, header []string) bool {
	index := headerIndex(header)
	has := func(name string) bool {
		if name == "" {
			return false
		}
		_, ok := index[normalizeHeader(name)]
		return ok
	}
	if !has(m.Symbol) || !has(m.Timestamp) {
		return false
	}
	if m.RealizedPnl != "" {
		return has(m.RealizedPnl)
	}
	return has(m.Price) && has(m.Quantity)
}

func detectMapping(header []string) (ColumnMapping, bool) {
	index := headerIndex(header)
	find := func(field string) string {
		for _, alias := range headerAliases[field] {
			if _, ok := index[alias]; ok {
				// Return the original header spelling so lookups stay exact.
				for _, h := range header {
					if normalizeHeader(h) == alias {
						return strings.TrimSpace(h)
					}
				}
			}
		}
		return ""
	}

	m := ColumnMapping{
		Symbol:       find("symbol"),
		Side:         find("side"),
		Timestamp:    find("timestamp"),
		Price:        find("price"),
		Quantity:     find("quantity"),
		Fee:          find("fee"),
		FeeAsset:     find("feeAsset"),
		Total:        find("total"),
		RealizedPnl:  find("realizedPnl"),
		PositionSide: find("positionSide"),
	}
	return m, m.Usable()
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeHeader(h)] = i
	}
	return index
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
