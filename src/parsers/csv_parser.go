package parsers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/tradeclarity/backend/src/logger"
	"github.com/username/tradeclarity/backend/src/models"
	"github.com/username/tradeclarity/backend/src/utils"
)

// CSVTradeParser turns raw delimited text plus a resolved column mapping into
// canonical trade records. Individual bad rows are skipped and counted, never
// failing the whole batch.
type CSVTradeParser struct{}

func NewCSVTradeParser() *CSVTradeParser { return &CSVTradeParser{} }

// Parse processes one uploaded file. accountType may be SPOT, FUTURES, or
// empty; when empty the mapping decides whether rows are futures income.
func (p *CSVTradeParser) Parse(raw string, mapping ColumnMapping, exchange, accountType string) (*ParseResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyFile
	}

	lines := splitLines(raw)
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: need a header and at least one data row", ErrMalformedCSV)
	}

	delim := detectDelimiter(lines[0])
	header := splitDelimited(lines[0], delim)
	index := headerIndex(header)

	col := func(name string) int {
		if name == "" {
			return -1
		}
		if i, ok := index[normalizeHeader(name)]; ok {
			return i
		}
		return -1
	}
	field := func(fields []string, i int) string {
		if i < 0 || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	symbolCol := col(mapping.Symbol)
	timeCol := col(mapping.Timestamp)
	if symbolCol < 0 || timeCol < 0 {
		return nil, fmt.Errorf("%w: mapped symbol/timestamp columns not present in header", ErrMalformedCSV)
	}
	sideCol := col(mapping.Side)
	priceCol := col(mapping.Price)
	qtyCol := col(mapping.Quantity)
	feeCol := col(mapping.Fee)
	feeAssetCol := col(mapping.FeeAsset)
	totalCol := col(mapping.Total)
	pnlCol := col(mapping.RealizedPnl)

	futures := strings.EqualFold(accountType, models.AccountTypeFutures) ||
		(accountType == "" && mapping.ImpliesFutures())

	result := &ParseResult{AccountType: models.AccountTypeSpot}
	if futures {
		result.AccountType = models.AccountTypeFutures
	}

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result.TotalRows++

		fields := splitDelimited(line, delim)

		symbol := field(fields, symbolCol)
		tradeTime, terr := utils.ParseTimestampMillis(field(fields, timeCol))
		if symbol == "" || terr != nil {
			result.SkippedRows++
			logger.L.Debug("Skipping CSV row", "reason", "missing symbol or unparsable timestamp", "row", result.TotalRows)
			continue
		}
		symbol = strings.ToUpper(symbol)

		recordID := rowID(exchange, line)

		if futures {
			income, err := parseDecimalField(field(fields, pnlCol))
			if err != nil {
				result.SkippedRows++
				logger.L.Debug("Skipping futures CSV row", "reason", "unparsable realized pnl", "row", result.TotalRows)
				continue
			}
			asset := field(fields, feeAssetCol)
			if asset == "" {
				asset = "USDT"
			}
			result.FuturesIncome = append(result.FuturesIncome, models.FuturesIncomeRecord{
				TranID:     recordID,
				Symbol:     symbol,
				Income:     income,
				Asset:      strings.ToUpper(asset),
				IncomeType: "REALIZED_PNL",
				Time:       tradeTime,
				Exchange:   exchangeOrImport(exchange),
				RawData:    line,
			})
			continue
		}

		price, perr := parseDecimalField(field(fields, priceCol))
		quantity, qerr := parseDecimalField(field(fields, qtyCol))
		if perr != nil || qerr != nil {
			result.SkippedRows++
			logger.L.Debug("Skipping spot CSV row", "reason", "unparsable price or quantity", "row", result.TotalRows)
			continue
		}

		commission, commissionAsset := parseFeeField(field(fields, feeCol))
		if commissionAsset == "" {
			commissionAsset = field(fields, feeAssetCol)
		}

		quoteQty := price.Mul(quantity)
		if v := field(fields, totalCol); v != "" {
			if total, err := parseDecimalField(v); err == nil {
				quoteQty = total
			}
		}

		result.SpotTrades = append(result.SpotTrades, models.CanonicalTrade{
			TradeID:         recordID,
			Symbol:          symbol,
			AccountType:     models.AccountTypeSpot,
			IsBuyer:         strings.EqualFold(field(fields, sideCol), "BUY"),
			Quantity:        quantity.Abs(),
			Price:           price,
			QuoteQuantity:   quoteQty,
			Commission:      commission.Abs(),
			CommissionAsset: strings.ToUpper(commissionAsset),
			TradeTime:       tradeTime,
			Exchange:        exchangeOrImport(exchange),
			RawData:         line,
		})
	}

	return result, nil
}

func exchangeOrImport(exchange string) string {
	if exchange == "" {
		return models.ExchangeCSVImport
	}
	return strings.ToLower(exchange)
}

// rowID derives a stable record id from the source line, so re-importing the
// same file is idempotent under the (user, exchange, trade_id) unique key.
func rowID(exchange, line string) string {
	sum := sha256.Sum256([]byte(exchange + "|" + line))
	return "csv-" + hex.EncodeToString(sum[:8])
}

// SplitHeader splits a raw header line into column names, with the same
// delimiter detection and quote handling the row parser uses.
func SplitHeader(headerLine string) []string {
	return splitDelimited(headerLine, detectDelimiter(headerLine))
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// detectDelimiter picks the delimiter with the highest count in the header
// row, among comma, semicolon and tab. Comma wins ties.
func detectDelimiter(header string) rune {
	best, bestCount := ',', strings.Count(header, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(header, string(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

// splitDelimited splits one line on the delimiter, honoring double quotes: a
// quoted field may contain the delimiter, and a doubled quote inside a quoted
// field is a literal quote. The state is toggled character by character.
func splitDelimited(line string, delim rune) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == delim && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}

// parseDecimalField parses a numeric CSV cell, tolerating thousands
// separators ("1,234.56", "1,234") and a lone European decimal comma ("1,5").
// Without a dot, a single comma followed by exactly three digits is read as a
// thousands separator, anything else as the decimal mark.
func parseDecimalField(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(strings.ReplaceAll(v, " ", ""))
	if v == "" {
		return decimal.Zero, fmt.Errorf("empty numeric field")
	}
	switch {
	case strings.Contains(v, "."):
		v = strings.ReplaceAll(v, ",", "")
	case strings.Count(v, ",") > 1:
		v = strings.ReplaceAll(v, ",", "")
	case strings.Contains(v, ","):
		if i := strings.IndexByte(v, ','); len(v)-i-1 == 3 {
			v = strings.ReplaceAll(v, ",", "")
		} else {
			v = strings.Replace(v, ",", ".", 1)
		}
	}
	return decimal.NewFromString(v)
}

// parseFeeField handles fee cells that append the fee asset to the number,
// like "0.00012BTC". Returns zero fee for blank cells.
func parseFeeField(v string) (decimal.Decimal, string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, ""
	}

	cut := len(v)
	for cut > 0 {
		c := v[cut-1]
		if (c >= '0' && c <= '9') || c == '.' || c == ',' {
			break
		}
		cut--
	}
	numeric, asset := v[:cut], strings.TrimSpace(v[cut:])

	fee, err := parseDecimalField(numeric)
	if err != nil {
		return decimal.Zero, asset
	}
	return fee, asset
}
